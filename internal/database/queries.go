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

package database

const (
	// Balance queries
	queryGetBalance = `
		SELECT balance_cents
		FROM balances
		WHERE owner_id = ?`

	queryEnsureBalance = `
		INSERT INTO balances (owner_id, balance_cents, version, created_at, updated_at)
		VALUES (?, 0, 1, ?, ?)
		ON CONFLICT(owner_id) DO NOTHING`

	queryCreditBalance = `
		UPDATE balances
		SET balance_cents = balance_cents + ?, version = version + 1, updated_at = ?
		WHERE owner_id = ?`

	// The balance guard makes the debit a single atomic read-modify-write.
	queryDebitBalance = `
		UPDATE balances
		SET balance_cents = balance_cents - ?, version = version + 1, updated_at = ?
		WHERE owner_id = ? AND balance_cents >= ?`

	// Ledger entry queries
	queryCheckDuplicateReference = `
		SELECT id FROM ledger_entries WHERE reference = ? LIMIT 1`

	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (id, owner_id, kind, amount_cents, balance_after_cents, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryListLedgerEntries = `
		SELECT id, owner_id, kind, amount_cents, balance_after_cents, reference, created_at
		FROM ledger_entries
		WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	// Invoice queries
	invoiceColumns = `
		invoice_id, owner_id, amount_usd, amount_crypto, asset, status, payload, pay_url,
		fulfillment_status, fulfillment_note, created_at, updated_at, paid_at, expires_at`

	queryInsertInvoice = `
		INSERT INTO invoices (invoice_id, owner_id, amount_usd, amount_crypto, asset, status, payload, pay_url,
		                      created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?)`

	queryGetInvoice = `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE invoice_id = ?`

	queryListPendingInvoices = `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE status = 'pending' AND fulfillment_status != 'quarantined'
		ORDER BY created_at ASC, invoice_id ASC`

	queryListOwnerInvoices = `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE owner_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	queryListStalledDispatches = `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE status = 'paid' AND fulfillment_status = 'pending_dispatch' AND paid_at < ?
		ORDER BY paid_at ASC`

	queryMarkInvoicePaid = `
		UPDATE invoices
		SET status = 'paid', paid_at = ?, fulfillment_status = 'pending_dispatch', updated_at = ?
		WHERE invoice_id = ? AND status = 'pending'`

	queryMarkInvoiceStatus = `
		UPDATE invoices
		SET status = ?, updated_at = ?
		WHERE invoice_id = ? AND status = 'pending'`

	querySetFulfillmentStatus = `
		UPDATE invoices
		SET fulfillment_status = ?, fulfillment_note = ?, updated_at = ?
		WHERE invoice_id = ?`

	queryInvoiceExists = `
		SELECT 1 FROM invoices WHERE invoice_id = ?`

	// Pricing queries
	queryGetPriceTier = `
		SELECT kind, quantity, price_usd, is_active, updated_at
		FROM pricing
		WHERE kind = ? AND quantity = ?`

	queryListPriceTiers = `
		SELECT kind, quantity, price_usd, is_active, updated_at
		FROM pricing
		WHERE (? = '' OR kind = ?)
		ORDER BY kind, quantity`

	queryUpsertPriceTier = `
		INSERT INTO pricing (kind, quantity, price_usd, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, quantity) DO UPDATE
		SET price_usd = excluded.price_usd, is_active = excluded.is_active, updated_at = excluded.updated_at`

	querySetPriceTierActive = `
		UPDATE pricing
		SET is_active = ?, updated_at = ?
		WHERE kind = ? AND quantity = ?`
)
