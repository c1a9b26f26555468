package server

import (
	"strings"

	"vibely/internal/models"
	"vibely/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetChats handles GET /api/inbox/chats
// @Summary Conversation list
// @Description Threads the caller takes part in, newest activity first
// @Tags inbox
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{chats=[]models.ChatThread}
// @Router /inbox/chats [get]
func (s *Server) GetChats(c *fiber.Ctx) error {
	threads, err := s.chatService.Threads(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(fiber.Map{"chats": threads})
}

// GetUser handles GET /api/inbox/users/:id
// @Summary Get user
// @Tags inbox
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /inbox/users/{id} [get]
func (s *Server) GetUser(c *fiber.Ctx) error {
	userID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.GetUserByID(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(user)
}

// SearchUsers handles GET /api/inbox/:username
// @Summary Search users by username prefix
// @Tags inbox
// @Produce json
// @Security BearerAuth
// @Param username path string true "Username prefix"
// @Success 200 {object} object{users=[]models.User}
// @Router /inbox/{username} [get]
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	users, err := s.userService.SearchUsers(c.UserContext(), c.Params("username"), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(fiber.Map{"users": users})
}

// UpdateAccount handles PUT /api/account/update
// @Summary Update username or profile
// @Description Send {username} to change the handle, or any of {name,avatar,bio}.
// @Tags account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{username=string,name=string,avatar=string,bio=string} true "Changes"
// @Success 200 {object} object{success=bool,user=models.User}
// @Failure 409 {object} models.ErrorResponse
// @Router /account/update [put]
func (s *Server) UpdateAccount(c *fiber.Ctx) error {
	var req struct {
		Username *string `json:"username"`
		Name     *string `json:"name"`
		Avatar   *string `json:"avatar"`
		Bio      *string `json:"bio"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Username == nil && req.Name == nil && req.Avatar == nil && req.Bio == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Nothing to update"))
	}

	ctx := c.UserContext()
	userID := currentUserID(c)

	var (
		user *models.User
		err  error
	)
	if req.Username != nil {
		if user, err = s.userService.UpdateUsername(ctx, userID, *req.Username); err != nil {
			return models.RespondWithError(c, mapServiceError(err), err)
		}
	}
	if req.Name != nil || req.Avatar != nil || req.Bio != nil {
		if user, err = s.userService.UpdateProfile(ctx, service.UpdateProfileInput{
			UserID: userID,
			Name:   req.Name,
			Avatar: req.Avatar,
			Bio:    req.Bio,
		}); err != nil {
			return models.RespondWithError(c, mapServiceError(err), err)
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
	})
}

// GetMessages handles GET /api/chats/:key/messages
// @Summary Conversation snapshot
// @Description Newest messages keyed by push key
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param key path string true "Conversation key"
// @Success 200 {object} service.Snapshot
// @Failure 403 {object} models.ErrorResponse
// @Router /chats/{key}/messages [get]
func (s *Server) GetMessages(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Params("key"))
	if err := s.chatService.Authorize(c.UserContext(), key, currentUserID(c)); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	snap, err := s.chatService.Snapshot(c.UserContext(), key)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(snap)
}

// SendMessage handles POST /api/chats/:key/messages
// @Summary Send a direct message
// @Tags chats
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param key path string true "Conversation key"
// @Param request body object{text=string,createdAt=int} true "Message; createdAt in unix milliseconds"
// @Success 201 {object} object{key=string,message=models.ChatMessage}
// @Failure 400 {object} models.ErrorResponse
// @Router /chats/{key}/messages [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	var req struct {
		Text      string `json:"text"`
		CreatedAt int64  `json:"createdAt"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx := c.UserContext()
	userID := currentUserID(c)
	sender, err := s.userService.GetUserByID(ctx, userID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	msg, err := s.chatService.SendMessage(ctx, service.SendMessageInput{
		UserID:    userID,
		UserEmail: sender.Email,
		Key:       strings.TrimSpace(c.Params("key")),
		Text:      req.Text,
		CreatedAt: req.CreatedAt,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"key":     msg.PushKey,
		"message": msg,
	})
}
