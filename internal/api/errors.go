package api

import (
	"errors"
	"net/http"

	"cryptopay-fulfillment-go/internal/checkout"
	"cryptopay-fulfillment-go/internal/store"
)

var ErrInvalidRequest = errors.New("invalid request")

// httpError maps a service error to a status and a message safe to show callers.
// Provider and storage text never leaves the process.
func httpError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrInvoiceNotFound):
		return http.StatusNotFound, "invoice not found"
	case errors.Is(err, checkout.ErrCheckoutUnavailable):
		return http.StatusServiceUnavailable, checkout.ErrCheckoutUnavailable.Error()
	case errors.Is(err, checkout.ErrUnknownTier):
		return http.StatusBadRequest, checkout.ErrUnknownTier.Error()
	case errors.Is(err, checkout.ErrInvalidTarget):
		return http.StatusBadRequest, checkout.ErrInvalidTarget.Error()
	case errors.Is(err, checkout.ErrInvalidQuantity):
		return http.StatusBadRequest, checkout.ErrInvalidQuantity.Error()
	case errors.Is(err, checkout.ErrUnsupportedKind):
		return http.StatusBadRequest, checkout.ErrUnsupportedKind.Error()
	case errors.Is(err, store.ErrInvalidAmount):
		return http.StatusBadRequest, store.ErrInvalidAmount.Error()
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
