package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultBaseURL is the Razorpay REST API root.
const DefaultBaseURL = "https://api.razorpay.com"

// maxReplyBytes bounds how much of a gateway reply is read.
const maxReplyBytes = 1 << 20

// Razorpay is a minimal Razorpay Orders API client. It never retries: a
// retried create could open a second remote order.
type Razorpay struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
	Client    *http.Client
}

// NewRazorpay returns a client with the given credentials and per-call timeout.
func NewRazorpay(baseURL, keyID, keySecret string, timeout time.Duration) *Razorpay {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Razorpay{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		KeyID:     keyID,
		KeySecret: keySecret,
		Timeout:   timeout,
		Client:    &http.Client{},
	}
}

type razorpayOrderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder implements Gateway by calling POST /v1/orders.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*RemoteOrder, error) {
	ctx, span := otel.Tracer("payment").Start(ctx, "razorpay.CreateOrder")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("payment.amount_minor", req.Amount),
		attribute.String("payment.currency", req.Currency),
	)

	order, err := r.createOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.order_id", order.ID))
	return order, nil
}

func (r *Razorpay) createOrder(ctx context.Context, req OrderRequest) (*RemoteOrder, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGateway)
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(razorpayOrderBody{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrGateway, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(r.KeyID, r.KeySecret)

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e razorpayError
		if json.Unmarshal(body, &e) == nil && e.Error.Description != "" {
			return nil, fmt.Errorf("%w: status %d: %s: %s", ErrGateway, resp.StatusCode, e.Error.Code, e.Error.Description)
		}
		return nil, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}

	var order RemoteOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", ErrGateway, err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: reply without order id", ErrGateway)
	}
	return &order, nil
}
