package server

import (
	"vibely/internal/models"
	"vibely/internal/service"

	"github.com/gofiber/fiber/v2"
)

// LikePost handles POST /api/actions/posts/:id/like
// @Summary Like or unlike a post
// @Description With "liked" in the body the like is set to that value, otherwise it is toggled.
// @Tags actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body object{liked=bool} false "Desired state"
// @Success 200 {object} object{liked=bool,likes=[]int,likesCount=int}
// @Failure 404 {object} models.ErrorResponse
// @Router /actions/posts/{id}/like [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Liked *bool `json:"liked"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}

	post, err := s.postService.SetLike(c.UserContext(), service.SetLikeInput{
		UserID: currentUserID(c),
		PostID: postID,
		Liked:  req.Liked,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(fiber.Map{
		"liked":      post.Liked,
		"likes":      post.Likes,
		"likesCount": post.LikesCount,
	})
}

// GetComments handles GET /api/actions/posts/:id/comments
// @Summary Comment tree of a post
// @Tags actions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} object{comments=[]models.Comment}
// @Router /actions/posts/{id}/comments [get]
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if _, err := s.postService.GetPost(c.UserContext(), postID, currentUserID(c)); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	comments, err := s.commentService.ListComments(c.UserContext(), postID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	return c.JSON(fiber.Map{"comments": comments})
}

// CreateComment handles POST /api/actions/posts/:id/comment
// @Summary Comment on a post
// @Tags actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body object{content=string,parentId=int,image=string} true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Router /actions/posts/{id}/comment [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Content  string `json:"content"`
		ParentID *uint  `json:"parentId"`
		Image    string `json:"image"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.commentService.CreateComment(c.UserContext(), service.CreateCommentInput{
		UserID:   currentUserID(c),
		PostID:   postID,
		ParentID: req.ParentID,
		Content:  req.Content,
		ImageURL: req.Image,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.Status(fiber.StatusCreated).JSON(comment)
}

// DeleteComment handles DELETE /api/actions/posts/:id/comments/:commentId
// @Summary Delete a comment and its replies
// @Tags actions
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param commentId path int true "Comment ID"
// @Success 200 {object} object{success=bool}
// @Failure 403 {object} models.ErrorResponse
// @Router /actions/posts/{id}/comments/{commentId} [delete]
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	commentID, err := s.parseID(c, "commentId")
	if err != nil {
		return nil
	}

	if err := s.commentService.DeleteComment(c.UserContext(), service.DeleteCommentInput{
		UserID:    currentUserID(c),
		PostID:    postID,
		CommentID: commentID,
	}); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// LikeComment handles POST /api/actions/posts/:id/comments/:commentId/like
// @Summary Toggle a like on a comment
// @Tags actions
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param commentId path int true "Comment ID"
// @Success 200 {object} object{liked=bool}
// @Router /actions/posts/{id}/comments/{commentId}/like [post]
func (s *Server) LikeComment(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	commentID, err := s.parseID(c, "commentId")
	if err != nil {
		return nil
	}

	liked, err := s.commentService.ToggleCommentLike(c.UserContext(), service.ToggleCommentLikeInput{
		UserID:    currentUserID(c),
		PostID:    postID,
		CommentID: commentID,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(fiber.Map{"liked": liked})
}
