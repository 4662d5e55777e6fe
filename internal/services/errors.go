// Package services defines the business logic for content, purchases, media,
// withdrawals, comments and the admin dashboard. This file centralizes the
// service-level error values so that they can be returned consistently by
// service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"

	"github.com/monitizeclub/monitize-backend/internal/payment"
)

// Identity and authorization errors.
var (
	// ErrUnauthenticated is returned when an operation needs a verified user
	// and none was supplied.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the caller is known but not allowed to
	// perform the operation (not the creator, not an admin, no access).
	ErrForbidden = errors.New("forbidden")
)

// Content errors.
var (
	// ErrContentNotFound indicates the requested content does not exist or
	// has been deleted.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidInput is returned for malformed create/update requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrFileMismatch is returned when a media request names a file that does
	// not belong to the content.
	ErrFileMismatch = errors.New("file does not belong to content")

	// ErrStorageDisabled is returned by media operations when no object
	// storage is configured.
	ErrStorageDisabled = errors.New("media storage is not configured")
)

// Purchase errors.
var (
	// ErrOrderNotFound indicates that no order exists for the gateway order ID
	// and user.
	ErrOrderNotFound = errors.New("order not found")

	// ErrAlreadyPurchased guards against charging a user twice for the same
	// content.
	ErrAlreadyPurchased = errors.New("content already purchased")

	// ErrSignatureInvalid is returned when a payment or webhook signature does
	// not match.
	ErrSignatureInvalid = errors.New("payment signature invalid")

	// ErrGateway is returned when the remote order could not be created.
	ErrGateway = payment.ErrGateway

	// ErrAmountMismatch is returned when the client-supplied amount differs
	// from the stored price.
	ErrAmountMismatch = errors.New("amount does not match content price")

	// ErrFreeContent is returned when an order is requested for free content.
	ErrFreeContent = errors.New("content is free")

	// ErrOwnContent is returned when a creator tries to buy their own content.
	ErrOwnContent = errors.New("cannot purchase own content")
)

// Withdrawal errors.
var (
	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// creator's available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPayoutDetails is returned when a withdrawal carries neither a UPI ID
	// nor complete bank details.
	ErrPayoutDetails = errors.New("payout details required")
)
