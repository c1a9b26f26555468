package server

import (
	"vibely/internal/models"
	"vibely/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetFeed handles GET /api/posts/feed?limit=&cursor=
// @Summary Public feed
// @Description Newest public posts first, paged by an opaque cursor
// @Tags posts
// @Produce json
// @Param limit query int false "Page size (max 50)"
// @Param cursor query string false "Cursor from the previous page"
// @Success 200 {object} object{success=bool,posts=[]models.Post,nextCursor=string,hasMore=bool}
// @Failure 400 {object} models.ErrorResponse
// @Router /posts/feed [get]
func (s *Server) GetFeed(c *fiber.Ctx) error {
	userID, _ := s.optionalUserID(c)

	page, err := s.postService.Feed(c.UserContext(), service.FeedInput{
		Cursor:        c.Query("cursor"),
		Limit:         c.QueryInt("limit", 0),
		CurrentUserID: userID,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"posts":      page.Posts,
		"nextCursor": page.NextCursor,
		"hasMore":    page.HasMore,
	})
}

// CreatePost handles POST /api/posts
// @Summary Create post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{content=string,image=string,isPublic=bool} true "Post"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		Content  string `json:"content"`
		Image    string `json:"image"`
		IsPublic *bool  `json:"isPublic"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:   currentUserID(c),
		Content:  req.Content,
		ImageURL: req.Image,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPost handles GET /api/posts/:id
// @Summary Get post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID, _ := s.optionalUserID(c)

	post, err := s.postService.GetPost(c.UserContext(), postID, userID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
// @Summary Delete post
// @Tags posts
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} object{success=bool}
// @Failure 403 {object} models.ErrorResponse
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.DeletePost(c.UserContext(), service.DeletePostInput{
		UserID: currentUserID(c),
		PostID: postID,
	}); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(fiber.Map{"success": true})
}
