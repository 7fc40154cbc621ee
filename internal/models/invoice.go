/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle status of a payment invoice
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusExpired   InvoiceStatus = "expired"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// IsTerminal reports whether the status can no longer change.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusExpired || s == InvoiceStatusCancelled
}

// ParseInvoiceStatus maps a provider status string to a known status.
func ParseInvoiceStatus(s string) (InvoiceStatus, bool) {
	switch InvoiceStatus(s) {
	case InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusExpired, InvoiceStatusCancelled:
		return InvoiceStatus(s), true
	case "active":
		// Crypto Pay reports unpaid invoices as "active"
		return InvoiceStatusPending, true
	}
	return "", false
}

// FulfillmentStatus tracks the side effect that follows a paid invoice
type FulfillmentStatus string

const (
	FulfillmentNone            FulfillmentStatus = ""
	FulfillmentPendingDispatch FulfillmentStatus = "pending_dispatch"
	FulfillmentDispatched      FulfillmentStatus = "dispatched"
	FulfillmentFailed          FulfillmentStatus = "failed"
	FulfillmentQuarantined     FulfillmentStatus = "quarantined"
)

// Invoice represents a tracked expectation of payment from the payment provider
type Invoice struct {
	Id                string            `db:"invoice_id" json:"id"`
	OwnerId           int64             `db:"owner_id" json:"owner_id"`
	AmountUsd         decimal.Decimal   `db:"amount_usd" json:"amount_usd"`
	AmountCrypto      decimal.Decimal   `db:"amount_crypto" json:"amount_crypto"`
	Asset             string            `db:"asset" json:"asset"`
	Status            InvoiceStatus     `db:"status" json:"status"`
	Payload           string            `db:"payload" json:"payload"`
	PayUrl            string            `db:"pay_url" json:"pay_url,omitempty"`
	FulfillmentStatus FulfillmentStatus `db:"fulfillment_status" json:"fulfillment_status,omitempty"`
	FulfillmentNote   string            `db:"fulfillment_note" json:"fulfillment_note,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
	PaidAt            *time.Time        `db:"paid_at" json:"paid_at,omitempty"`
	ExpiresAt         time.Time         `db:"expires_at" json:"expires_at"`
}

// IsExpired reports whether the invoice outlived ttl at the given instant.
func (i *Invoice) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.After(i.CreatedAt.Add(ttl))
}
