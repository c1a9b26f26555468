package api

import (
	"context"
	"net/http"

	"vibely/internal/validation"
)

// ActionsAPI wraps /actions/posts.
type ActionsAPI struct {
	c *Client
}

// Like sets the caller's like on a post. A nil liked toggles it.
func (a *ActionsAPI) Like(ctx context.Context, postID uint, liked *bool) (*LikeResult, error) {
	var body any
	if liked != nil {
		body = map[string]bool{"liked": *liked}
	}
	var out LikeResult
	if err := a.c.do(ctx, http.MethodPost, "actions/posts/"+idPath(postID)+"/like", nil, body, &out, "Failed to like post"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Comments loads the comment tree of a post.
func (a *ActionsAPI) Comments(ctx context.Context, postID uint) ([]*Comment, error) {
	var out struct {
		Comments []*Comment `json:"comments"`
	}
	if err := a.c.do(ctx, http.MethodGet, "actions/posts/"+idPath(postID)+"/comments", nil, nil, &out, "Failed to load comments"); err != nil {
		return nil, err
	}
	return out.Comments, nil
}

// AddComment comments on a post, or replies to parentID when it is non-nil.
func (a *ActionsAPI) AddComment(ctx context.Context, postID uint, content string, parentID *uint, image string) (*Comment, error) {
	if err := validation.ValidateComment(content); err != nil {
		return nil, validationError(err)
	}
	body := struct {
		Content  string `json:"content"`
		ParentID *uint  `json:"parentId,omitempty"`
		Image    string `json:"image,omitempty"`
	}{content, parentID, image}

	var out Comment
	if err := a.c.do(ctx, http.MethodPost, "actions/posts/"+idPath(postID)+"/comment", nil, body, &out, "Failed to add comment"); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComment removes a comment and its replies.
func (a *ActionsAPI) DeleteComment(ctx context.Context, postID, commentID uint) error {
	path := "actions/posts/" + idPath(postID) + "/comments/" + idPath(commentID)
	return a.c.do(ctx, http.MethodDelete, path, nil, nil, nil, "Failed to delete comment")
}

// LikeComment toggles the caller's like on a comment and reports the new state.
func (a *ActionsAPI) LikeComment(ctx context.Context, postID, commentID uint) (bool, error) {
	var out struct {
		Liked bool `json:"liked"`
	}
	path := "actions/posts/" + idPath(postID) + "/comments/" + idPath(commentID) + "/like"
	if err := a.c.do(ctx, http.MethodPost, path, nil, nil, &out, "Failed to like comment"); err != nil {
		return false, err
	}
	return out.Liked, nil
}
