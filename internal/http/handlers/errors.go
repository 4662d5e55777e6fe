// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Every error response carries one of these codes next to the HTTP status so
// clients can branch on a stable value instead of parsing messages.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "already_purchased",
//	  "message": "content already purchased"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/monitizeclub/monitize-backend/internal/http/middleware"
	"github.com/monitizeclub/monitize-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Payment flow:
	ErrCodeAlreadyPurchased = "already_purchased"
	ErrCodeSignatureInvalid = "signature_invalid"
	ErrCodeGateway          = "gateway_error"
)

const msgInternal = "internal server error"

// failErr maps a service error onto the envelope. Client errors carry the
// sentinel's message; anything unrecognized is logged and answered with a
// generic 500.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "forbidden")
	case errors.Is(err, services.ErrFileMismatch):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrContentNotFound), errors.Is(err, services.ErrOrderNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrAlreadyPurchased):
		fail(c, http.StatusConflict, ErrCodeAlreadyPurchased, err.Error())
	case errors.Is(err, services.ErrInsufficientBalance):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrSignatureInvalid):
		fail(c, http.StatusBadRequest, ErrCodeSignatureInvalid, err.Error())
	case errors.Is(err, services.ErrGateway):
		middleware.LoggerFrom(c).Error().Err(err).Msg("payment gateway failure")
		fail(c, http.StatusBadGateway, ErrCodeGateway, "payment gateway unavailable")
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrAmountMismatch),
		errors.Is(err, services.ErrFreeContent),
		errors.Is(err, services.ErrOwnContent),
		errors.Is(err, services.ErrPayoutDetails):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrStorageDisabled):
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "media storage unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeInternal, "request timed out")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, msgInternal)
	}
}
