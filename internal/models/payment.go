package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest asks the payment provider for a new invoice
type CreateInvoiceRequest struct {
	AmountUsd    decimal.Decimal
	Asset        string
	CurrencyType string // "fiat" prices the invoice in USD, "crypto" in Asset
	Description  string
	Payload      string
}

// PaymentInvoice is the payment provider's view of an invoice
type PaymentInvoice struct {
	Id        string
	Status    InvoiceStatus
	RawStatus string
	Amount    decimal.Decimal
	Asset     string
	PayUrl    string
	Payload   string
	CreatedAt time.Time
	PaidAt    *time.Time
}
