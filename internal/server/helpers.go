package server

import (
	"errors"
	"strings"
	"unicode"

	"vibely/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// errResponseWritten means a helper already sent the response. Handlers
// return nil on it so the error handler does not write a second body.
var errResponseWritten = errors.New("response already written")

// parseID reads a positive integer route parameter, answering 400 itself
// when it is missing or malformed.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err == nil && id > 0 {
		return uint(id), nil
	}
	_ = models.RespondWithError(c, fiber.StatusBadRequest,
		models.NewValidationError("Invalid "+humanizeParam(param)))
	return 0, errResponseWritten
}

// humanizeParam turns a camelCase route parameter into words for error
// messages: "id" is "ID", "commentId" is "comment ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	stem, ok := strings.CutSuffix(param, "Id")
	if !ok {
		return param
	}
	var b strings.Builder
	for i, r := range stem {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte(' ')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	b.WriteString(" ID")
	return b.String()
}

// mapServiceError picks the HTTP status for an error returned by a service.
func mapServiceError(err error) int {
	return models.StatusFor(err, fiber.StatusInternalServerError)
}

// currentUserID is zero on routes without AuthRequired.
func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

func wsTicketKey(ticket string) string { return "ws_ticket:" + ticket }

func blacklistKey(jti string) string { return "blacklist:" + jti }

// requireUpgrade rejects plain HTTP requests on websocket routes.
func requireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}
