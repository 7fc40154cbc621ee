package store

import (
	"context"
	"errors"
	"time"

	"cryptopay-fulfillment-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared by every backend.
var (
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidAmount        = errors.New("amount must be positive with at most 2 decimal places")
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrInvoiceExists        = errors.New("invoice already exists")
	ErrPriceNotFound        = errors.New("price tier not found")
)

// CreateInvoiceParams contains the parameters for persisting a new invoice.
type CreateInvoiceParams struct {
	Id           string
	OwnerId      int64
	AmountUsd    decimal.Decimal
	AmountCrypto decimal.Decimal
	Asset        string
	Payload      string
	PayUrl       string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Ledger owns balance mutation. Amounts are USD with at most 2 decimal places.
type Ledger interface {
	// Credit increases the balance, creating the record on first use.
	// A non-empty reference makes the call idempotent: a replay returns ErrDuplicateTransaction.
	Credit(ctx context.Context, ownerId int64, amount decimal.Decimal, reference string) (decimal.Decimal, error)
	// Debit atomically decreases the balance or fails with ErrInsufficientFunds.
	Debit(ctx context.Context, ownerId int64, amount decimal.Decimal, reference string) (decimal.Decimal, error)
	// GetBalance returns zero for owners without a record and never creates one.
	GetBalance(ctx context.Context, ownerId int64) (decimal.Decimal, error)
}

// LedgerHistory is implemented by ledgers that keep a queryable audit trail.
type LedgerHistory interface {
	ListEntries(ctx context.Context, ownerId int64, limit int) ([]models.LedgerEntry, error)
}

// InvoiceStore persists invoices. Status writes are conditional on the invoice still being pending.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*models.Invoice, error)
	GetInvoice(ctx context.Context, invoiceId string) (*models.Invoice, error)
	// ListPendingInvoices returns pending, non-quarantined invoices, oldest first.
	ListPendingInvoices(ctx context.Context) ([]models.Invoice, error)
	ListOwnerInvoices(ctx context.Context, ownerId int64, limit int) ([]models.Invoice, error)
	// MarkPaid moves a pending invoice to paid and flags its dispatch as pending.
	// It reports false when the invoice was no longer pending.
	MarkPaid(ctx context.Context, invoiceId string, paidAt time.Time) (bool, error)
	// MarkStatus moves a pending invoice to expired or cancelled.
	MarkStatus(ctx context.Context, invoiceId string, status models.InvoiceStatus) (bool, error)
	SetFulfillmentStatus(ctx context.Context, invoiceId string, status models.FulfillmentStatus, note string) error
	// ListStalledDispatches returns paid invoices still pending dispatch that were paid before cutoff.
	ListStalledDispatches(ctx context.Context, cutoff time.Time) ([]models.Invoice, error)
}

// PricingStore holds the configurable price table.
type PricingStore interface {
	GetPriceTier(ctx context.Context, kind models.ProductKind, quantity int) (*models.PriceTier, error)
	ListPriceTiers(ctx context.Context, kind models.ProductKind) ([]models.PriceTier, error)
	UpsertPriceTier(ctx context.Context, tier models.PriceTier) error
	SetPriceTierActive(ctx context.Context, kind models.ProductKind, quantity int, active bool) error
}

// ValidAmount reports whether amount is positive with at most 2 decimal places.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(2))
}
