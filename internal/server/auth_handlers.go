package server

import (
	"errors"
	"strconv"
	"time"

	"vibely/internal/models"
	"vibely/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTTL    = 7 * 24 * time.Hour
	wsTicketTTL = 30 * time.Second
)

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new user account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,password=string,name=string} true "Signup request"
// @Success 201 {object} object{token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return s.respondWithSession(c, fiber.StatusCreated, user)
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} object{token=string,user=models.User}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return s.respondWithSession(c, fiber.StatusOK, user)
}

// respondWithSession issues a token for user and writes {token, user}.
func (s *Server) respondWithSession(c *fiber.Ctx, status int, user *models.User) error {
	token, err := s.generateToken(user.ID, user.Username)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.Status(status).JSON(fiber.Map{"token": token, "user": user})
}

// Logout handles POST /api/auth/logout by revoking the token's jti until it expires.
// @Summary Logout
// @Tags auth
// @Security BearerAuth
// @Success 200 {object} object{success=bool}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, ok := c.Locals("tokenClaims").(*tokenClaims)
	if ok && claims.ID != "" && s.redis != nil {
		ttl := tokenTTL
		if claims.ExpiresAt != nil {
			ttl = time.Until(claims.ExpiresAt.Time)
		}
		if ttl > 0 {
			if err := s.redis.Set(c.UserContext(), blacklistKey(claims.ID), "1", ttl).Err(); err != nil {
				return models.RespondWithError(c, fiber.StatusInternalServerError,
					models.NewInternalError(err))
			}
		}
	}
	return c.JSON(fiber.Map{"success": true})
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Success 200 {object} models.User
// @Router /auth/me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	user, err := s.userService.GetUserByID(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(user)
}

// IssueWSTicket handles POST /api/ws/ticket. The ticket is single use and
// lets websocket clients authenticate without putting the JWT in a URL.
// @Summary Issue websocket ticket
// @Tags realtime
// @Security BearerAuth
// @Success 200 {object} object{ticket=string,expiresIn=int}
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			&models.AppError{Code: "UNAVAILABLE", Message: "Realtime tickets are unavailable"})
	}
	ticket := uuid.NewString()
	userID := strconv.FormatUint(uint64(currentUserID(c)), 10)
	if err := s.redis.Set(c.UserContext(), wsTicketKey(ticket), userID, wsTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{
		"ticket":    ticket,
		"expiresIn": int(wsTicketTTL.Seconds()),
	})
}

// errNoSigningKey is returned when the server has no JWT secret configured.
var errNoSigningKey = errors.New("JWT secret not configured")

// generateToken signs a week-long HS256 access token. The random jti lets
// Logout revoke this token alone.
func (s *Server) generateToken(userID uint, username string) (string, error) {
	if s.config.JWTSecret == "" {
		return "", errNoSigningKey
	}
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}).SignedString([]byte(s.config.JWTSecret))
}
