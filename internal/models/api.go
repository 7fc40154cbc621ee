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

// OwnerBalance represents an owner's balance with recent history
type OwnerBalance struct {
	OwnerId int64            `json:"owner_id"`
	Balance decimal.Decimal  `json:"balance_usd"`
	Entries []LedgerEntryDTO `json:"entries,omitempty"`
}

// LedgerEntryDTO represents a ledger entry in API responses
type LedgerEntryDTO struct {
	Id           string          `json:"id"`
	Kind         string          `json:"kind"`
	Amount       decimal.Decimal `json:"amount_usd"`
	BalanceAfter decimal.Decimal `json:"balance_after_usd"`
	Reference    string          `json:"reference"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CheckoutRequest is the body of POST /checkout
type CheckoutRequest struct {
	OwnerId  int64  `json:"owner_id" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
	Target   string `json:"target" binding:"required"`
}

// TopUpRequest is the body of POST /topups
type TopUpRequest struct {
	OwnerId   int64           `json:"owner_id" binding:"required"`
	AmountUsd decimal.Decimal `json:"amount_usd"`
}

// CheckoutResult is returned by checkout and top-up endpoints
type CheckoutResult struct {
	Success   bool            `json:"success"`
	Mode      string          `json:"mode,omitempty"`
	InvoiceId string          `json:"invoice_id,omitempty"`
	PayUrl    string          `json:"pay_url,omitempty"`
	PriceUsd  decimal.Decimal `json:"price_usd,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ReconcileResult is returned by POST /invoices/:id/reconcile
type ReconcileResult struct {
	Success   bool   `json:"success"`
	InvoiceId string `json:"invoice_id"`
	Outcome   string `json:"outcome,omitempty"`
	Error     string `json:"error,omitempty"`
}
