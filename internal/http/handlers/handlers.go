// Package handlers exposes the REST endpoints of the platform. Handlers are
// transport-thin: they bind and validate input, call a service, and translate
// the result or error into an HTTP response.
package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/http/middleware"
	"github.com/monitizeclub/monitize-backend/internal/repo"
	"github.com/monitizeclub/monitize-backend/internal/services"
)

// ContentService manages creator content.
type ContentService interface {
	Create(ctx context.Context, userID string, in services.ContentInput) (*domain.Content, error)
	Update(ctx context.Context, userID, contentID string, in services.ContentInput) (*domain.Content, error)
	Delete(ctx context.Context, userID, contentID string) error
	Get(ctx context.Context, userID, contentID string) (*services.ContentDetail, error)
	CheckAccess(ctx context.Context, userID, contentID string) (bool, error)
	ListPublished(ctx context.Context, page, pageSize int) ([]domain.Content, int64, error)
	PublishedStats(ctx context.Context) (int64, *time.Time, error)
	ListByCreator(ctx context.Context, userID string) ([]domain.Content, error)
	Search(ctx context.Context, query string, limit int) ([]services.SearchHit, error)
	UploadFile(ctx context.Context, userID, contentID, filename string, r io.Reader, size int64, mime string) (*domain.Content, error)
}

// PurchaseService runs the order and payment flow.
type PurchaseService interface {
	CreateOrder(ctx context.Context, in services.CreateOrderInput) (*services.OrderResult, error)
	VerifyPayment(ctx context.Context, userID, gatewayOrderID, paymentID, signature string) (*services.VerifyResult, error)
	RecordCapturedPayment(ctx context.Context, body []byte, signature string) (*services.VerifyResult, error)
	ListPurchases(ctx context.Context, userID string) ([]domain.Transaction, error)
}

// MediaService issues signed links to private files.
type MediaService interface {
	SignedURL(ctx context.Context, userID, contentID, filePath string) (*services.SignedMedia, error)
}

// CommentService lists and creates comments.
type CommentService interface {
	ListPage(ctx context.Context, userID, contentID string, page, pageSize int) ([]domain.Comment, int64, error)
	Stats(ctx context.Context, contentID string) (int64, *time.Time, error)
	Create(ctx context.Context, userID, contentID, body string) (*domain.Comment, error)
}

// WithdrawalService handles creator payouts.
type WithdrawalService interface {
	Overview(ctx context.Context, creatorID string) (*services.WithdrawalOverview, error)
	Request(ctx context.Context, creatorID string, amount decimal.Decimal, d repo.PayoutDetails) (*domain.WithdrawalRequest, error)
}

// AdminService serves platform aggregates.
type AdminService interface {
	Dashboard(ctx context.Context, userID string) (*repo.Dashboard, error)
}

// Deps lists the services behind the handlers.
type Deps struct {
	Contents    ContentService
	Purchases   PurchaseService
	Media       MediaService
	Comments    CommentService
	Withdrawals WithdrawalService
	Admin       AdminService
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	contents    ContentService
	purchases   PurchaseService
	media       MediaService
	comments    CommentService
	withdrawals WithdrawalService
	admin       AdminService
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		contents:    d.Contents,
		purchases:   d.Purchases,
		media:       d.Media,
		comments:    d.Comments,
		withdrawals: d.Withdrawals,
		admin:       d.Admin,
	}
}

// userID returns the caller resolved by the auth middleware, or "".
func userID(c *gin.Context) string { return middleware.UserID(c) }
