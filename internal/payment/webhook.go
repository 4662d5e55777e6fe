package payment

import (
	"encoding/json"
	"fmt"
)

// Webhook event names handled by the service.
const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
)

// WebhookEvent is the subset of a Razorpay webhook payload the service reads.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity WebhookPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// WebhookPayment is the payment entity inside a webhook.
type WebhookPayment struct {
	ID       string            `json:"id"`
	OrderID  string            `json:"order_id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

// ParseWebhook decodes a webhook body. It does not verify the signature;
// call VerifyWebhook first.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("decode webhook: missing event")
	}
	return &ev, nil
}

// Payment returns the payment entity of a capture-style event.
func (e *WebhookEvent) Payment() WebhookPayment { return e.Payload.Payment.Entity }

// IsCapture reports whether the event confirms a captured payment.
func (e *WebhookEvent) IsCapture() bool {
	return e.Event == EventPaymentCaptured || e.Event == EventOrderPaid
}
