package reconcile

import (
	"context"
	"errors"

	"cryptopay-fulfillment-go/internal/fulfillment"
	"cryptopay-fulfillment-go/internal/models"
)

// ErrNoData means the payment provider returned nothing for an invoice.
// The invoice is skipped for this sweep.
var ErrNoData = errors.New("payment provider returned no data")

// PaymentProvider issues invoices and reports their status.
type PaymentProvider interface {
	CreateInvoice(ctx context.Context, req models.CreateInvoiceRequest) (*models.PaymentInvoice, error)
	GetInvoiceStatus(ctx context.Context, invoiceId string) (*models.PaymentInvoice, error)
	Ping(ctx context.Context) error
}

// Dispatcher performs the side effect of a paid invoice.
type Dispatcher interface {
	Dispatch(ctx context.Context, req fulfillment.Request) error
}

var _ Dispatcher = (*fulfillment.Dispatcher)(nil)
