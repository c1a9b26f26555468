package server

import (
	"errors"
	"strconv"
	"strings"

	"vibely/internal/middleware"
	"vibely/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const (
	tokenIssuer   = "vibely-api"
	tokenAudience = "vibely-client"
)

// tokenClaims is the payload of an access token.
type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(msg))
}

// AuthRequired authenticates the caller by a single-use websocket ticket
// (?ticket=) or a bearer token. A bad ticket on a websocket route is final;
// elsewhere the bearer token is still tried.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := c.Locals("userID").(uint); ok {
			return c.Next()
		}

		if ticket := c.Query("ticket"); ticket != "" && s.redis != nil {
			if userID, err := s.redeemTicket(c, ticket); err == nil {
				setUser(c, userID)
				return c.Next()
			}
			if strings.HasPrefix(c.Path(), "/api/ws/") && c.Path() != "/api/ws/ticket" {
				return unauthorized(c, "Invalid or expired WebSocket ticket")
			}
		}

		raw := bearerToken(c)
		if raw == "" {
			return unauthorized(c, "Authorization required")
		}
		claims, err := s.parseToken(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		userID, err := strconv.ParseUint(claims.Subject, 10, 32)
		if err != nil {
			return unauthorized(c, "Invalid user ID in token")
		}
		if s.isRevoked(c, claims.ID) {
			return unauthorized(c, "Token has been revoked")
		}

		setUser(c, uint(userID))
		c.Locals("tokenClaims", claims)
		return c.Next()
	}
}

// redeemTicket consumes a websocket ticket; each ticket works once.
func (s *Server) redeemTicket(c *fiber.Ctx, ticket string) (uint, error) {
	raw, err := s.redis.GetDel(c.Context(), wsTicketKey(ticket)).Result()
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// isRevoked checks the logout blacklist. Lookup failures count as not
// revoked so a Redis outage does not log everyone out.
func (s *Server) isRevoked(c *fiber.Ctx, jti string) bool {
	if jti == "" || s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(c.Context(), blacklistKey(jti)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		middleware.Logger.WarnContext(c.UserContext(), "revocation check failed", "error", err)
		return false
	}
	return n > 0
}

// parseToken validates signature, issuer, audience and expiry.
func (s *Server) parseToken(raw string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return []byte(s.config.JWTSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, models.NewUnauthorizedError("Invalid subject claim")
	}
	return claims, nil
}

// optionalUserID identifies the caller on public routes, ignoring bad tokens.
func (s *Server) optionalUserID(c *fiber.Ctx) (uint, bool) {
	raw := bearerToken(c)
	if raw == "" {
		return 0, false
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

func bearerToken(c *fiber.Ctx) string {
	scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	if !ok || scheme != "Bearer" {
		return ""
	}
	return strings.TrimSpace(token)
}

func setUser(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	c.SetUserContext(middleware.WithUserID(c.UserContext(), userID))
}
