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

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptopay-fulfillment-go/internal/clock"
	"cryptopay-fulfillment-go/internal/fulfillment"
	"cryptopay-fulfillment-go/internal/intent"
	"cryptopay-fulfillment-go/internal/metrics"
	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/notify"
	"cryptopay-fulfillment-go/internal/store"

	"go.uber.org/zap"
)

const DefaultInvoiceTTL = 3 * time.Minute

type OutcomeKind string

const (
	OutcomeUnchanged OutcomeKind = "unchanged"
	OutcomeExpired   OutcomeKind = "expired"
	OutcomePaid      OutcomeKind = "paid"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeSkipped   OutcomeKind = "skipped"
)

// Outcome is the result of reconciling one invoice.
// DispatchErr is set when the invoice became paid but its side effect failed.
type Outcome struct {
	InvoiceId   string
	Kind        OutcomeKind
	DispatchErr error
}

// Deps are the collaborators of a Machine.
type Deps struct {
	Invoices   store.InvoiceStore
	Payments   PaymentProvider
	Dispatcher Dispatcher
	Notifier   notify.Notifier
	Clock      clock.Clock
	Metrics    *metrics.EngineMetrics
}

// Machine advances pending invoices toward a terminal status.
type Machine struct {
	invoices   store.InvoiceStore
	payments   PaymentProvider
	dispatcher Dispatcher
	notifier   notify.Notifier
	clock      clock.Clock
	metrics    *metrics.EngineMetrics
	ttl        time.Duration
}

func NewMachine(deps Deps, ttl time.Duration) *Machine {
	if ttl <= 0 {
		ttl = DefaultInvoiceTTL
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NoOp{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return &Machine{
		invoices:   deps.Invoices,
		payments:   deps.Payments,
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		ttl:        ttl,
	}
}

// Force loads one invoice and reconciles it. Terminal invoices are left alone.
func (m *Machine) Force(ctx context.Context, invoiceId string) (Outcome, error) {
	inv, err := m.invoices.GetInvoice(ctx, invoiceId)
	if err != nil {
		return Outcome{InvoiceId: invoiceId}, err
	}
	if inv.Status.IsTerminal() {
		return Outcome{InvoiceId: invoiceId, Kind: OutcomeUnchanged}, nil
	}
	return m.Reconcile(ctx, inv)
}

// Reconcile applies one step of the invoice lifecycle to a pending invoice.
// The local expiry check runs before any provider call, so a late payment on an
// expired invoice is never acted on.
func (m *Machine) Reconcile(ctx context.Context, inv *models.Invoice) (Outcome, error) {
	out := Outcome{InvoiceId: inv.Id, Kind: OutcomeUnchanged}
	if inv.Status != models.InvoiceStatusPending {
		return out, nil
	}

	if inv.IsExpired(m.clock.Now(), m.ttl) {
		return m.transition(ctx, inv, models.InvoiceStatusExpired)
	}

	remote, err := m.payments.GetInvoiceStatus(ctx, inv.Id)
	if errors.Is(err, ErrNoData) {
		zap.L().Debug("No provider data for invoice", zap.String("invoice_id", inv.Id))
		out.Kind = OutcomeSkipped
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("failed to fetch status of invoice %s: %w", inv.Id, err)
	}

	switch remote.Status {
	case models.InvoiceStatusPaid:
		return m.settle(ctx, inv, remote)
	case models.InvoiceStatusExpired, models.InvoiceStatusCancelled:
		return m.transition(ctx, inv, remote.Status)
	default:
		return out, nil
	}
}

// settle records the payment and dispatches exactly once. The payload is decoded
// before the invoice is marked paid so an undecodable intent never consumes a payment.
func (m *Machine) settle(ctx context.Context, inv *models.Invoice, remote *models.PaymentInvoice) (Outcome, error) {
	out := Outcome{InvoiceId: inv.Id, Kind: OutcomeUnchanged}

	in, err := intent.Parse(inv.Payload)
	if err != nil {
		zap.L().Error("Quarantining paid invoice with malformed payload",
			zap.String("invoice_id", inv.Id),
			zap.Int64("owner_id", inv.OwnerId),
			zap.String("payload", inv.Payload),
			zap.Error(err))
		if qErr := m.invoices.SetFulfillmentStatus(ctx, inv.Id, models.FulfillmentQuarantined, err.Error()); qErr != nil {
			return out, errors.Join(err, qErr)
		}
		m.alertAdmins(ctx, notify.AdminDispatchStalled, notify.Message{
			OwnerId:   inv.OwnerId,
			InvoiceId: inv.Id,
			Amount:    inv.AmountUsd,
			Reason:    "payload could not be decoded",
		})
		out.Kind = OutcomeSkipped
		return out, err
	}

	paidAt := m.clock.Now()
	if remote.PaidAt != nil {
		paidAt = remote.PaidAt.UTC()
	}

	changed, err := m.invoices.MarkPaid(ctx, inv.Id, paidAt)
	if err != nil {
		return out, fmt.Errorf("failed to mark invoice %s paid: %w", inv.Id, err)
	}
	if !changed {
		zap.L().Info("Invoice already settled by another worker", zap.String("invoice_id", inv.Id))
		return out, nil
	}

	m.metrics.IncTransition(string(models.InvoiceStatusPaid))
	zap.L().Info("Invoice paid",
		zap.String("invoice_id", inv.Id),
		zap.Int64("owner_id", inv.OwnerId),
		zap.String("amount_usd", inv.AmountUsd.String()),
		zap.String("intent", string(in.Kind())))

	out.Kind = OutcomePaid
	out.DispatchErr = m.dispatcher.Dispatch(ctx, fulfillment.Request{
		OwnerId:   inv.OwnerId,
		AmountUsd: inv.AmountUsd,
		Intent:    in,
		InvoiceId: inv.Id,
	})
	return out, nil
}

func (m *Machine) transition(ctx context.Context, inv *models.Invoice, status models.InvoiceStatus) (Outcome, error) {
	out := Outcome{InvoiceId: inv.Id, Kind: OutcomeUnchanged}

	changed, err := m.invoices.MarkStatus(ctx, inv.Id, status)
	if err != nil {
		return out, fmt.Errorf("failed to mark invoice %s %s: %w", inv.Id, status, err)
	}
	if !changed {
		return out, nil
	}

	m.metrics.IncTransition(string(status))
	zap.L().Info("Invoice closed",
		zap.String("invoice_id", inv.Id),
		zap.Int64("owner_id", inv.OwnerId),
		zap.String("status", string(status)))

	if status == models.InvoiceStatusCancelled {
		out.Kind = OutcomeCancelled
		return out, nil
	}

	out.Kind = OutcomeExpired
	msg := notify.Message{OwnerId: inv.OwnerId, InvoiceId: inv.Id, Amount: inv.AmountUsd}
	if err := m.notifier.NotifyOwner(ctx, inv.OwnerId, notify.InvoiceExpired, msg); err != nil {
		zap.L().Warn("Failed to notify owner of expiry",
			zap.String("invoice_id", inv.Id),
			zap.Int64("owner_id", inv.OwnerId),
			zap.Error(err))
	}
	return out, nil
}

func (m *Machine) alertAdmins(ctx context.Context, tmpl notify.Template, msg notify.Message) {
	if err := m.notifier.NotifyAdmins(ctx, tmpl, msg); err != nil {
		zap.L().Warn("Failed to notify admins",
			zap.String("template", string(tmpl)),
			zap.Error(err))
	}
}
