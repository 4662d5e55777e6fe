// Content HTTP handlers.
//
// This file exposes REST endpoints for content resources:
//   - GET    /contents                (published, paginated, ETag support)
//   - GET    /contents/search?q=      (ranked search)
//   - GET    /contents/{id}           (detail with access flag; records a view)
//   - POST   /contents                (create)
//   - PUT    /contents/{id}           (update, creator only)
//   - DELETE /contents/{id}           (delete, creator only)
//   - GET    /contents/{id}/access    (purchase check)
//   - PUT    /contents/{id}/file      (multipart upload, creator only)
//   - GET    /me/contents             (caller's own contents)
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/services"
	"github.com/monitizeclub/monitize-backend/internal/utils"
)

// MaxUploadBytes caps a single uploaded file.
const MaxUploadBytes = 100 << 20

// ContentRequest is the JSON payload for creating or updating a content.
// Omitted fields keep their current (or default) value.
type ContentRequest struct {
	Title       *string               `json:"title" example:"Week 12 trading notes"`
	Description *string               `json:"description" example:"Setups and results"`
	Price       *decimal.Decimal      `json:"price" swaggertype:"string" example:"499.00"`
	ContentType *domain.ContentType   `json:"content_type" swaggertype:"string" example:"document"`
	Body        *string               `json:"body"`
	FilePath    *string               `json:"file_path" example:"creator-1/notes.pdf"`
	Status      *domain.ContentStatus `json:"status" swaggertype:"string" example:"published"`
	ScheduledAt *time.Time            `json:"scheduled_at"`
}

func (r ContentRequest) input() services.ContentInput {
	return services.ContentInput{
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		ContentType: r.ContentType,
		Body:        r.Body,
		FilePath:    r.FilePath,
		Status:      r.Status,
		ScheduledAt: r.ScheduledAt,
	}
}

// ListContentsResponse wraps a page of contents and pagination information.
type ListContentsResponse struct {
	Contents   []domain.Content `json:"contents"`
	Pagination Pagination       `json:"pagination"`
}

// SearchResponse carries ranked search hits.
type SearchResponse struct {
	Query   string               `json:"query"`
	Results []services.SearchHit `json:"results"`
}

// AccessResponse answers a purchase check.
type AccessResponse struct {
	ContentID string `json:"content_id"`
	HasAccess bool   `json:"has_access"`
}

// MyContentsResponse lists the caller's own contents.
type MyContentsResponse struct {
	Contents []domain.Content `json:"contents"`
}

// ListContents godoc
// @ID          listContents
// @Summary     List published contents
// @Description Returns a page of published contents without their gated payload. Supports weak ETag via If-None-Match.
// @Tags        Contents
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListContentsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /contents [get]
func (h *Handlers) ListContents(c *gin.Context) {
	ctx := c.Request.Context()
	page, size := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	if count, latest, err := h.contents.PublishedStats(ctx); err == nil {
		scope := strconv.Itoa(page) + "/" + strconv.Itoa(size)
		if checkETag(c, "contents", scope, count, latest) {
			return
		}
	}

	items, total, err := h.contents.ListPublished(ctx, page, size)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListContentsResponse{Contents: items, Pagination: newPagination(page, size, total)})
}

// SearchContents godoc
// @ID          searchContents
// @Summary     Search published contents
// @Tags        Contents
// @Produce     json
// @Param       q      query  string  true  "Search text"
// @Param       limit  query  int     false "Max results" minimum(1) maximum(20) default(20)
// @Success     200  {object} handlers.SearchResponse
// @Failure     400  {object} handlers.ErrorResponse
// @Router      /contents/search [get]
func (h *Handlers) SearchContents(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query parameter q is required")
		return
	}
	hits, err := h.contents.Search(c.Request.Context(), q, utils.AtoiDefault(c.Query("limit"), 0))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SearchResponse{Query: q, Results: hits})
}

// GetContent godoc
// @ID          getContent
// @Summary     Get a content
// @Description Returns the content with a has_access flag. Without access the body and file path are omitted. The view is recorded.
// @Tags        Contents
// @Produce     json
// @Param       Authorization  header  string  false "Bearer session token"
// @Param       id             path    string  true  "Content ID"
// @Success     200  {object} services.ContentDetail
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /contents/{id} [get]
func (h *Handlers) GetContent(c *gin.Context) {
	d, err := h.contents.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// CreateContent godoc
// @ID          createContent
// @Summary     Create a content
// @Tags        Contents
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer session token"
// @Param       body           body    handlers.ContentRequest  true  "Content fields"
// @Success     201  {object} domain.Content
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     401  {object} handlers.ErrorResponse
// @Router      /contents [post]
func (h *Handlers) CreateContent(c *gin.Context) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ct, err := h.contents.Create(c.Request.Context(), userID(c), req.input())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, ct)
}

// UpdateContent godoc
// @ID          updateContent
// @Summary     Update a content
// @Tags        Contents
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer session token"
// @Param       id             path    string  true  "Content ID"
// @Param       body           body    handlers.ContentRequest  true  "Fields to change"
// @Success     200  {object} domain.Content
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     403  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /contents/{id} [put]
func (h *Handlers) UpdateContent(c *gin.Context) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ct, err := h.contents.Update(c.Request.Context(), userID(c), c.Param("id"), req.input())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ct)
}

// DeleteContent godoc
// @ID          deleteContent
// @Summary     Delete a content
// @Tags        Contents
// @Param       Authorization  header  string  true  "Bearer session token"
// @Param       id             path    string  true  "Content ID"
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /contents/{id} [delete]
func (h *Handlers) DeleteContent(c *gin.Context) {
	if err := h.contents.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// CheckAccess godoc
// @ID          checkAccess
// @Summary     Check purchase access
// @Description True when the content is free, owned by the caller, or purchased by the caller.
// @Tags        Contents
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer session token"
// @Param       id             path    string  true  "Content ID"
// @Success     200  {object} handlers.AccessResponse
// @Failure     401  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /contents/{id}/access [get]
func (h *Handlers) CheckAccess(c *gin.Context) {
	id := c.Param("id")
	has, err := h.contents.CheckAccess(c.Request.Context(), userID(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AccessResponse{ContentID: id, HasAccess: has})
}

// UploadContentFile godoc
// @ID          uploadContentFile
// @Summary     Upload the file of a content
// @Tags        Contents
// @Accept      multipart/form-data
// @Produce     json
// @Param       Authorization  header    string  true  "Bearer session token"
// @Param       id             path      string  true  "Content ID"
// @Param       file           formData  file    true  "File"
// @Success     200  {object} domain.Content
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     403  {object} handlers.ErrorResponse
// @Router      /contents/{id}/file [put]
func (h *Handlers) UploadContentFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" is required")
		return
	}
	if fh.Size > MaxUploadBytes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable file")
		return
	}
	defer f.Close()

	mime := fh.Header.Get("Content-Type")
	ct, err := h.contents.UploadFile(c.Request.Context(), userID(c), c.Param("id"), fh.Filename, f, fh.Size, mime)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ct)
}

// ListMyContents godoc
// @ID          listMyContents
// @Summary     List the caller's contents
// @Tags        Me
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer session token"
// @Success     200  {object} handlers.MyContentsResponse
// @Failure     401  {object} handlers.ErrorResponse
// @Router      /me/contents [get]
func (h *Handlers) ListMyContents(c *gin.Context) {
	items, err := h.contents.ListByCreator(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MyContentsResponse{Contents: items})
}
