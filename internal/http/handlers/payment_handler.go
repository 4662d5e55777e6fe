// Payment HTTP handlers.
//
//   - POST /payments/orders     (open a gateway order; honors Idempotency-Key)
//   - POST /payments/verify     (verify the checkout callback and record the purchase)
//   - POST /webhooks/razorpay   (gateway webhook; signed raw body)
//   - GET  /me/purchases        (caller's purchases)
//
// The verify and webhook paths share one recording routine, so a purchase is
// written once whichever arrives first.
package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/http/middleware"
	"github.com/monitizeclub/monitize-backend/internal/services"
)

// MaxWebhookBytes caps a webhook body.
const MaxWebhookBytes = 256 << 10

// CreateOrderRequest asks for an order on one content.
type CreateOrderRequest struct {
	ContentID string `json:"content_id" binding:"required" example:"5b0b7d2e-4c55-4a43-9a53-2f0f3c1e9a10"`
	// Amount is optional; when sent it must equal the content price.
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"499.00"`
}

// VerifyPaymentRequest carries the checkout callback fields.
type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required" example:"order_N5a6b7c8d9"`
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required" example:"pay_N5a6b7c8e0"`
	RazorpaySignature string `json:"razorpay_signature" binding:"required"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Status        string `json:"status" example:"recorded"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// PurchasesResponse lists the caller's purchases.
type PurchasesResponse struct {
	Purchases []domain.Transaction `json:"purchases"`
}

// CreateOrder godoc
// @ID          createOrder
// @Summary     Create a payment order
// @Description Opens a gateway order for the content price. A retried request with the same Idempotency-Key returns the first order with Idempotency-Replayed: true.
// @Tags        Payments
// @Accept      json
// @Produce     json
// @Param       Authorization    header  string  true  "Bearer session token"
// @Param       Idempotency-Key  header  string  false "Key for safe retries"
// @Param       body             body    handlers.CreateOrderRequest  true  "Order request"
// @Success     201  {object} services.OrderResult
// @Success     200  {object} services.OrderResult "Replayed order"
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     401  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Failure     409  {object} handlers.ErrorResponse "Already purchased"
// @Failure     502  {object} handlers.ErrorResponse "Gateway error"
// @Router      /payments/orders [post]
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ContentID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content_id required")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.purchases.CreateOrder(c.Request.Context(), services.CreateOrderInput{
		UserID:         userID(c),
		ContentID:      strings.TrimSpace(req.ContentID),
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, res)
		return
	}
	ok(c, http.StatusCreated, res)
}

// VerifyPayment godoc
// @ID          verifyPayment
// @Summary     Verify a payment
// @Description Checks the gateway signature and records the purchase exactly once. Repeated calls return the existing transaction.
// @Tags        Payments
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer session token"
// @Param       body           body    handlers.VerifyPaymentRequest  true  "Checkout callback"
// @Success     200  {object} services.VerifyResult
// @Failure     400  {object} handlers.ErrorResponse "Signature invalid"
// @Failure     401  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /payments/verify [post]
func (h *Handlers) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
		return
	}
	res, err := h.purchases.VerifyPayment(c.Request.Context(), userID(c),
		strings.TrimSpace(req.RazorpayOrderID), strings.TrimSpace(req.RazorpayPaymentID), strings.TrimSpace(req.RazorpaySignature))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// RazorpayWebhook godoc
// @ID          razorpayWebhook
// @Summary     Gateway webhook
// @Description Records captured payments. The raw body must be signed with the webhook secret in X-Razorpay-Signature.
// @Tags        Payments
// @Accept      json
// @Produce     json
// @Param       X-Razorpay-Signature  header  string  true  "HMAC-SHA256 of the body"
// @Success     200  {object} handlers.WebhookResponse
// @Failure     400  {object} handlers.ErrorResponse "Signature invalid"
// @Router      /webhooks/razorpay [post]
func (h *Handlers) RazorpayWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxWebhookBytes+1))
	if err != nil || len(body) > MaxWebhookBytes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	res, err := h.purchases.RecordCapturedPayment(c.Request.Context(), body, c.GetHeader(middleware.HeaderRazorpaySignature))
	if err != nil {
		failErr(c, err)
		return
	}
	if res == nil {
		ok(c, http.StatusOK, WebhookResponse{Status: "ignored"})
		return
	}
	ok(c, http.StatusOK, WebhookResponse{Status: "recorded", TransactionID: res.TransactionID})
}

// ListPurchases godoc
// @ID          listPurchases
// @Summary     List the caller's purchases
// @Tags        Me
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer session token"
// @Success     200  {object} handlers.PurchasesResponse
// @Failure     401  {object} handlers.ErrorResponse
// @Router      /me/purchases [get]
func (h *Handlers) ListPurchases(c *gin.Context) {
	items, err := h.purchases.ListPurchases(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, PurchasesResponse{Purchases: items})
}
