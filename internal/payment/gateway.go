// Package payment talks to the external payment gateway (Razorpay) and
// verifies the signatures it issues.
//
// The Gateway interface is the only surface the service layer depends on;
// Razorpay is the production implementation. Money helpers convert decimal
// major-unit amounts to the gateway's minor units and split the platform fee.
package payment

import (
	"context"
	"errors"
)

// ErrGateway wraps every failure to create a remote order: transport errors,
// timeouts, non-2xx replies and undecodable bodies.
var ErrGateway = errors.New("payment gateway error")

// OrderRequest is the input to CreateOrder. Amount is in minor units.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// RemoteOrder is the gateway's view of a created order.
type RemoteOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway creates remote orders.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*RemoteOrder, error)
}
