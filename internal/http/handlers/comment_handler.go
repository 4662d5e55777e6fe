// Comment and media HTTP handlers.
//
//   - GET  /contents/{id}/comments   (paginated, ETag support)
//   - POST /contents/{id}/comments   (requires access to the content)
//   - POST /contents/{id}/media-url  (signed link to the content's file)
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/utils"
)

// PostCommentRequest is the JSON payload for a new comment.
type PostCommentRequest struct {
	Body string `json:"body" binding:"required" example:"Great breakdown, thanks!"`
}

// ListCommentsResponse wraps a page of comments.
type ListCommentsResponse struct {
	Comments   []domain.Comment `json:"comments"`
	Pagination Pagination       `json:"pagination"`
}

// MediaURLRequest names the file a signed link is wanted for. An empty
// file_path means the content's own file.
type MediaURLRequest struct {
	FilePath string `json:"file_path" example:"creator-1/notes.pdf"`
}

// ListComments godoc
// @ID          listComments
// @Summary     List comments of a content
// @Tags        Comments
// @Produce     json
// @Param       id         path   string  true  "Content ID"
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListCommentsResponse
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /contents/{id}/comments [get]
func (h *Handlers) ListComments(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	page, size := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	items, total, err := h.comments.ListPage(ctx, userID(c), id, page, size)
	if err != nil {
		failErr(c, err)
		return
	}
	if count, latest, err := h.comments.Stats(ctx, id); err == nil {
		if checkETag(c, "comments", id, count, latest) {
			return
		}
	}
	ok(c, http.StatusOK, ListCommentsResponse{Comments: items, Pagination: newPagination(page, size, total)})
}

// PostComment godoc
// @ID          postComment
// @Summary     Comment on a content
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer session token"
// @Param       id             path    string  true  "Content ID"
// @Param       body           body    handlers.PostCommentRequest  true  "Comment"
// @Success     201  {object} domain.Comment
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     403  {object} handlers.ErrorResponse
// @Router      /contents/{id}/comments [post]
func (h *Handlers) PostComment(c *gin.Context) {
	var req PostCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}
	cm, err := h.comments.Create(c.Request.Context(), userID(c), c.Param("id"), req.Body)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, cm)
}

// MediaURL godoc
// @ID          mediaURL
// @Summary     Issue a signed media link
// @Description Returns a time-limited URL for the content's private file when the caller has access.
// @Tags        Contents
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer session token"
// @Param       id             path    string  true  "Content ID"
// @Param       body           body    handlers.MediaURLRequest  false  "File path"
// @Success     200  {object} services.SignedMedia
// @Failure     401  {object} handlers.ErrorResponse
// @Failure     403  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /contents/{id}/media-url [post]
func (h *Handlers) MediaURL(c *gin.Context) {
	var req MediaURLRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	m, err := h.media.SignedURL(c.Request.Context(), userID(c), c.Param("id"), req.FilePath)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, m)
}
