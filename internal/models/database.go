package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance represents an owner's spendable balance (hot data)
type Balance struct {
	OwnerId    int64           `db:"owner_id"`
	BalanceUsd decimal.Decimal `db:"balance_cents"`
	Version    int64           `db:"version"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// LedgerEntryKind is the direction of a balance mutation
type LedgerEntryKind string

const (
	LedgerEntryCredit LedgerEntryKind = "credit"
	LedgerEntryDebit  LedgerEntryKind = "debit"
)

// LedgerEntry represents immutable balance history (cold data)
type LedgerEntry struct {
	Id           string          `db:"id"`
	OwnerId      int64           `db:"owner_id"`
	Kind         LedgerEntryKind `db:"kind"`
	Amount       decimal.Decimal `db:"amount_cents"`
	BalanceAfter decimal.Decimal `db:"balance_after_cents"`
	Reference    string          `db:"reference"`
	CreatedAt    time.Time       `db:"created_at"`
}

// ProductKind identifies an externally fulfilled product
type ProductKind string

const (
	ProductSubscription ProductKind = "subscription"
	ProductPoints       ProductKind = "points"
)

// PriceTier is one row of the pricing table
type PriceTier struct {
	Kind      ProductKind     `db:"kind" yaml:"kind" json:"kind"`
	Quantity  int             `db:"quantity" yaml:"quantity" json:"quantity"`
	PriceUsd  decimal.Decimal `db:"price_usd" yaml:"-" json:"price_usd"`
	Active    bool            `db:"is_active" yaml:"active" json:"active"`
	UpdatedAt time.Time       `db:"updated_at" yaml:"-" json:"updated_at"`
}

// FulfillmentOrder is the provider's record of a placed order
type FulfillmentOrder struct {
	Id        string          `json:"id"`
	Kind      ProductKind     `json:"kind"`
	Target    string          `json:"target"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}
