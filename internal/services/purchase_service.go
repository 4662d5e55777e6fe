// Package services – PurchaseService
//
// This file implements the two server-side steps of buying content: opening
// a gateway order (CreateOrder) and recording a verified payment
// (VerifyPayment). Captured-payment webhooks reuse the same recording core.
//
// Recording is idempotent. A retried verification returns the transaction
// already written, and the unique index on (razorpay_payment_id, user_id)
// settles concurrent retries: the losing insert reads back the winner's row.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/access"
	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/payment"
	"github.com/monitizeclub/monitize-backend/internal/repo"
)

var paymentOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payments_verified_total",
		Help: "Payment verifications by outcome (recorded, replayed, raced, rejected).",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(paymentOutcomes)
}

// idempotencyStatusCreated is stored with every create-order idempotency row.
const idempotencyStatusCreated = 201

// PurchaseService opens gateway orders and records verified payments.
type PurchaseService struct {
	DB      *gorm.DB
	Gateway payment.Gateway
	// Access is told about every recorded purchase. Optional.
	Access *access.Registry

	// KeyID is the public gateway key returned to clients.
	KeyID string
	// KeySecret signs checkout callbacks. It is never returned.
	KeySecret string
	// WebhookSecret signs webhook deliveries.
	WebhookSecret string

	Currency       string
	FeeRate        decimal.Decimal
	IdempotencyTTL time.Duration

	Logger zerolog.Logger
}

// CreateOrderInput is the request to buy one content.
type CreateOrderInput struct {
	UserID    string
	ContentID string
	// Amount is the client's view of the price. Zero means "use the stored
	// price"; any other value must equal it.
	Amount decimal.Decimal
	// IdempotencyKey, when set, makes retried requests return the order the
	// first request produced.
	IdempotencyKey string
}

// OrderResult is what a client needs to open the checkout widget.
type OrderResult struct {
	OrderID        string          `json:"order_id"`
	GatewayOrderID string          `json:"razorpay_order_id"`
	Amount         decimal.Decimal `json:"amount"`
	AmountMinor    int64           `json:"amount_minor"`
	Currency       string          `json:"currency"`
	KeyID          string          `json:"key_id"`
	ContentTitle   string          `json:"content_title"`
	PlatformFee    decimal.Decimal `json:"platform_fee"`
	// Replayed is true when the order was returned from an earlier request
	// with the same idempotency key.
	Replayed bool `json:"replayed"`
}

// VerifyResult reports a recorded purchase.
type VerifyResult struct {
	TransactionID string `json:"transaction_id"`
	ContentID     string `json:"content_id"`
	// AlreadyRecorded is true when an earlier call (or a concurrent one) had
	// already written the transaction.
	AlreadyRecorded bool `json:"already_recorded"`
}

func (s *PurchaseService) tracer() trace.Tracer { return otel.Tracer("services/PurchaseService") }

// CreateOrder validates the purchase, opens a remote order at the gateway
// and persists it with status created. Nothing is persisted when the gateway
// call fails.
func (s *PurchaseService) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderResult, error) {
	ctx, span := s.tracer().Start(ctx, "CreateOrder",
		trace.WithAttributes(
			attribute.String("content.id", in.ContentID),
			attribute.String("user.id", in.UserID),
		),
	)
	defer span.End()

	if strings.TrimSpace(in.UserID) == "" {
		return nil, ErrUnauthenticated
	}
	c, err := repo.GetContent(ctx, s.DB, in.ContentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, err
	}
	if c.OwnedBy(in.UserID) {
		return nil, ErrOwnContent
	}
	if c.IsFree() {
		return nil, ErrFreeContent
	}
	if !in.Amount.IsZero() && !in.Amount.Equal(c.Price) {
		return nil, ErrAmountMismatch
	}

	bought, err := repo.HasSuccessfulPurchase(ctx, s.DB, c.ID, in.UserID)
	if err != nil {
		return nil, err
	}
	if bought {
		return nil, ErrAlreadyPurchased
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		res, err := s.replay(ctx, in.UserID, c, key)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	fee, earnings := payment.SplitFee(c.Price, s.FeeRate)
	orderID := uuid.NewString()
	remote, err := s.Gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   payment.ToMinorUnits(c.Price),
		Currency: s.Currency,
		Receipt:  orderID,
		Notes: map[string]string{
			"content_id": c.ID,
			"user_id":    in.UserID,
		},
	})
	if err != nil {
		span.RecordError(err)
		s.Logger.Error().Err(err).Str("content_id", c.ID).Msg("gateway create order failed")
		if errors.Is(err, payment.ErrGateway) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	currency := s.Currency
	if remote.Currency != "" {
		currency = remote.Currency
	}
	o := &domain.Order{
		ID:              orderID,
		UserID:          in.UserID,
		ContentID:       c.ID,
		CreatorID:       c.CreatorID,
		RazorpayOrderID: remote.ID,
		Amount:          c.Price,
		Currency:        currency,
		PlatformFee:     fee,
		CreatorEarnings: earnings,
		Status:          domain.OrderCreated,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateOrder(ctx, tx, o); err != nil {
			return err
		}
		if key == "" {
			return nil
		}
		_, err := repo.CreateIdempotency(ctx, tx, in.UserID, c.ID, key, o.ID, idempotencyStatusCreated, s.ttl())
		return err
	})
	if errors.Is(err, repo.ErrDuplicate) && key != "" {
		// A concurrent request with the same key committed first.
		return s.replay(ctx, in.UserID, c, key)
	}
	if err != nil {
		return nil, err
	}
	return s.result(o, c, false), nil
}

func (s *PurchaseService) replay(ctx context.Context, userID string, c *domain.Content, key string) (*OrderResult, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, c.ID, key, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	o, err := repo.GetOrder(ctx, s.DB, rec.OrderID)
	if err != nil {
		return nil, err
	}
	return s.result(o, c, true), nil
}

func (s *PurchaseService) result(o *domain.Order, c *domain.Content, replayed bool) *OrderResult {
	return &OrderResult{
		OrderID:        o.ID,
		GatewayOrderID: o.RazorpayOrderID,
		Amount:         o.Amount,
		AmountMinor:    payment.ToMinorUnits(o.Amount),
		Currency:       o.Currency,
		KeyID:          s.KeyID,
		ContentTitle:   c.Title,
		PlatformFee:    o.PlatformFee,
		Replayed:       replayed,
	}
}

func (s *PurchaseService) ttl() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}

// VerifyPayment checks the checkout signature and records the purchase.
// A tampered signature writes nothing and leaves the order untouched.
func (s *PurchaseService) VerifyPayment(ctx context.Context, userID, gatewayOrderID, paymentID, signature string) (*VerifyResult, error) {
	ctx, span := s.tracer().Start(ctx, "VerifyPayment",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("gateway.order_id", gatewayOrderID),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	if !payment.VerifySignature(s.KeySecret, gatewayOrderID, paymentID, signature) {
		paymentOutcomes.WithLabelValues("rejected").Inc()
		s.Logger.Warn().Str("user_id", userID).Str("razorpay_order_id", gatewayOrderID).Msg("payment signature rejected")
		return nil, ErrSignatureInvalid
	}
	return s.record(ctx, userID, gatewayOrderID, paymentID, signature)
}

// RecordCapturedPayment handles a gateway webhook delivery. Deliveries for
// events other than a capture, for orders this service never opened, and
// captures whose amount or currency differ from the order are acknowledged
// and ignored (nil result, nil error).
func (s *PurchaseService) RecordCapturedPayment(ctx context.Context, body []byte, signature string) (*VerifyResult, error) {
	ctx, span := s.tracer().Start(ctx, "RecordCapturedPayment")
	defer span.End()

	if s.WebhookSecret == "" || !payment.VerifyWebhook(s.WebhookSecret, body, signature) {
		paymentOutcomes.WithLabelValues("rejected").Inc()
		return nil, ErrSignatureInvalid
	}
	ev, err := payment.ParseWebhook(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !ev.IsCapture() {
		return nil, nil
	}
	p := ev.Payment()
	if p.ID == "" || p.OrderID == "" {
		return nil, nil
	}
	o, err := repo.GetOrderByGatewayID(ctx, s.DB, p.OrderID)
	if errors.Is(err, repo.ErrNotFound) {
		s.Logger.Info().Str("razorpay_order_id", p.OrderID).Msg("webhook for unknown order ignored")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if want := payment.ToMinorUnits(o.Amount); p.Amount != want || (p.Currency != "" && !strings.EqualFold(p.Currency, o.Currency)) {
		paymentOutcomes.WithLabelValues("mismatch").Inc()
		s.Logger.Warn().
			Str("razorpay_order_id", p.OrderID).
			Str("razorpay_payment_id", p.ID).
			Int64("captured_minor", p.Amount).
			Int64("order_minor", want).
			Str("currency", p.Currency).
			Msg("webhook capture does not match order; not recorded")
		return nil, nil
	}
	return s.record(ctx, o.UserID, p.OrderID, p.ID, "")
}

// record writes the transaction for a payment whose authenticity has
// already been established.
func (s *PurchaseService) record(ctx context.Context, userID, gatewayOrderID, paymentID, signature string) (*VerifyResult, error) {
	existing, err := repo.GetTransactionByPayment(ctx, s.DB, paymentID, userID)
	if err == nil {
		paymentOutcomes.WithLabelValues("replayed").Inc()
		s.markPurchased(existing)
		return &VerifyResult{TransactionID: existing.ID, ContentID: existing.ContentID, AlreadyRecorded: true}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	o, err := repo.GetOrderByGatewayID(ctx, s.DB, gatewayOrderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}

	if o.Status == domain.OrderPaid {
		prior, err := repo.GetTransactionByOrder(ctx, s.DB, gatewayOrderID, userID)
		if err == nil {
			paymentOutcomes.WithLabelValues("replayed").Inc()
			s.markPurchased(prior)
			return &VerifyResult{TransactionID: prior.ID, ContentID: prior.ContentID, AlreadyRecorded: true}, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	t := &domain.Transaction{
		ID:                uuid.NewString(),
		ContentID:         o.ContentID,
		UserID:            userID,
		CreatorID:         o.CreatorID,
		Amount:            o.Amount,
		PlatformFee:       o.PlatformFee,
		CreatorEarnings:   o.CreatorEarnings,
		RazorpayOrderID:   gatewayOrderID,
		RazorpayPaymentID: paymentID,
		RazorpaySignature: signature,
		Status:            domain.TxSuccess,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkOrderPaid(ctx, tx, o.ID); err != nil {
			return err
		}
		return repo.CreateTransaction(ctx, tx, t)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		winner, lerr := repo.GetTransactionByPayment(ctx, s.DB, paymentID, userID)
		if errors.Is(lerr, repo.ErrNotFound) {
			// The payment's row exists but was deleted: the purchase was revoked.
			return nil, fmt.Errorf("%w: purchase revoked", ErrForbidden)
		}
		if lerr != nil {
			return nil, lerr
		}
		paymentOutcomes.WithLabelValues("raced").Inc()
		s.markPurchased(winner)
		return &VerifyResult{TransactionID: winner.ID, ContentID: winner.ContentID, AlreadyRecorded: true}, nil
	}
	if err != nil {
		return nil, err
	}

	paymentOutcomes.WithLabelValues("recorded").Inc()
	s.markPurchased(t)
	s.Logger.Info().
		Str("transaction_id", t.ID).
		Str("content_id", t.ContentID).
		Str("amount", t.Amount.StringFixed(2)).
		Msg("purchase recorded")
	return &VerifyResult{TransactionID: t.ID, ContentID: t.ContentID}, nil
}

func (s *PurchaseService) markPurchased(t *domain.Transaction) {
	if s.Access != nil {
		s.Access.MarkPurchased(t.ContentID, t.UserID)
	}
}

// ListPurchases returns the caller's successful purchases, newest first.
func (s *PurchaseService) ListPurchases(ctx context.Context, userID string) ([]domain.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	items, err := repo.ListPurchases(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Transaction{}
	}
	return items, nil
}

// PurgeExpiredKeys deletes idempotency records past their expiry.
func (s *PurchaseService) PurgeExpiredKeys(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, time.Now().UTC())
}
