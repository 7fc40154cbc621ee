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

package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"cryptopay-fulfillment-go/internal/fragment"
	"cryptopay-fulfillment-go/internal/intent"
	"cryptopay-fulfillment-go/internal/metrics"
	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/notify"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Provider places orders for externally fulfilled products.
type Provider interface {
	PlaceSubscriptionOrder(ctx context.Context, target string, months int, showSender bool) (*models.FulfillmentOrder, error)
	PlacePointsOrder(ctx context.Context, target string, quantity int, showSender bool) (*models.FulfillmentOrder, error)
	Ping(ctx context.Context) error
}

var _ Provider = (*fragment.Client)(nil)

// Request describes one side effect to perform for a payment.
// InvoiceId is empty for purchases paid from balance.
type Request struct {
	OwnerId   int64
	AmountUsd decimal.Decimal
	Intent    intent.Intent
	Reference string
	InvoiceId string
}

func (r Request) paidFromBalance() bool {
	return r.InvoiceId == ""
}

// Fulfillment notes stored on the invoice. Provider text stays in the logs.
const (
	noteFundsExhausted = "fulfillment wallet funds exhausted"
	noteProviderError  = "fulfillment provider rejected the order"
	noteLedgerError    = "balance credit failed"
	noteStalled        = "dispatch stalled, manual review required"
)

type Dispatcher struct {
	ledger     store.Ledger
	invoices   store.InvoiceStore
	provider   Provider
	notifier   notify.Notifier
	metrics    *metrics.EngineMetrics
	showSender bool
}

func NewDispatcher(
	ledger store.Ledger,
	invoices store.InvoiceStore,
	provider Provider,
	notifier notify.Notifier,
	m *metrics.EngineMetrics,
	showSender bool,
) *Dispatcher {
	if notifier == nil {
		notifier = notify.NoOp{}
	}
	return &Dispatcher{
		ledger:     ledger,
		invoices:   invoices,
		provider:   provider,
		notifier:   notifier,
		metrics:    m,
		showSender: showSender,
	}
}

// Dispatch performs the side effect for req.Intent and notifies the owner.
// The returned error is the side-effect failure; notification failures are only logged.
// For purchases paid from balance the caller refunds on failure and tells the owner itself.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	switch in := req.Intent.(type) {
	case intent.TopUp:
		return d.creditTopUp(ctx, req)
	case intent.Subscription:
		return d.placeOrder(ctx, req, in.Target, in.Months, func() (*models.FulfillmentOrder, error) {
			return d.provider.PlaceSubscriptionOrder(ctx, in.Target, in.Months, d.showSender)
		})
	case intent.Points:
		return d.placeOrder(ctx, req, in.Target, in.Quantity, func() (*models.FulfillmentOrder, error) {
			return d.provider.PlacePointsOrder(ctx, in.Target, in.Quantity, d.showSender)
		})
	default:
		return fmt.Errorf("unsupported intent %T", req.Intent)
	}
}

func (d *Dispatcher) creditTopUp(ctx context.Context, req Request) error {
	kind := string(intent.KindTopUp)
	reference := req.Reference
	if reference == "" && req.InvoiceId != "" {
		reference = "invoice:" + req.InvoiceId
	}

	balance, err := d.ledger.Credit(ctx, req.OwnerId, req.AmountUsd, reference)
	if errors.Is(err, store.ErrDuplicateTransaction) {
		zap.L().Info("Top-up already credited",
			zap.String("invoice_id", req.InvoiceId),
			zap.Int64("owner_id", req.OwnerId),
			zap.String("reference", reference))
		d.metrics.IncDispatch(kind, metrics.DispatchResultDuplicate)
		d.setStatus(ctx, req.InvoiceId, models.FulfillmentDispatched, "")
		return nil
	}
	if err != nil {
		zap.L().Error("Failed to credit top-up",
			zap.String("invoice_id", req.InvoiceId),
			zap.Int64("owner_id", req.OwnerId),
			zap.String("amount", req.AmountUsd.String()),
			zap.Error(err))
		d.metrics.IncDispatch(kind, metrics.DispatchResultFailed)
		d.setStatus(ctx, req.InvoiceId, models.FulfillmentFailed, noteLedgerError)
		d.notifyOwner(ctx, req.OwnerId, notify.GenericFailure, notify.Message{
			OwnerId:   req.OwnerId,
			InvoiceId: req.InvoiceId,
			Reference: reference,
			Amount:    req.AmountUsd,
		})
		return fmt.Errorf("failed to credit top-up for invoice %s: %w", req.InvoiceId, err)
	}

	zap.L().Info("Top-up credited",
		zap.String("invoice_id", req.InvoiceId),
		zap.Int64("owner_id", req.OwnerId),
		zap.String("amount", req.AmountUsd.String()),
		zap.String("balance", balance.String()))
	d.metrics.IncDispatch(kind, metrics.DispatchResultOK)
	d.setStatus(ctx, req.InvoiceId, models.FulfillmentDispatched, "")
	d.notifyOwner(ctx, req.OwnerId, notify.TopUpCredited, notify.Message{
		OwnerId:   req.OwnerId,
		InvoiceId: req.InvoiceId,
		Amount:    req.AmountUsd,
		Balance:   balance,
	})
	return nil
}

func (d *Dispatcher) placeOrder(ctx context.Context, req Request, target string, quantity int, place func() (*models.FulfillmentOrder, error)) error {
	kind := string(req.Intent.Kind())
	msg := notify.Message{
		OwnerId:   req.OwnerId,
		InvoiceId: req.InvoiceId,
		Reference: req.Reference,
		Product:   kind,
		Target:    target,
		Quantity:  quantity,
		Amount:    req.AmountUsd,
	}

	order, err := place()
	if err != nil {
		return d.orderFailed(ctx, req, msg, err)
	}

	msg.OrderId = order.Id
	zap.L().Info("Fulfillment order placed",
		zap.String("invoice_id", req.InvoiceId),
		zap.String("reference", req.Reference),
		zap.Int64("owner_id", req.OwnerId),
		zap.String("order_id", order.Id),
		zap.String("kind", kind),
		zap.String("target", target),
		zap.Int("quantity", quantity))
	d.metrics.IncDispatch(kind, metrics.DispatchResultOK)
	d.setStatus(ctx, req.InvoiceId, models.FulfillmentDispatched, "order "+order.Id)
	d.notifyOwner(ctx, req.OwnerId, notify.OrderPlaced, msg)
	d.notifyAdmins(ctx, notify.AdminOrderPlaced, msg)
	return nil
}

func (d *Dispatcher) orderFailed(ctx context.Context, req Request, msg notify.Message, err error) error {
	kind := string(req.Intent.Kind())

	if fragment.Classify(err) == fragment.KindFundsExhausted {
		zap.L().Error("Fulfillment wallet funds exhausted",
			zap.String("invoice_id", req.InvoiceId),
			zap.Int64("owner_id", req.OwnerId),
			zap.String("kind", kind),
			zap.Error(err))
		d.metrics.IncDispatch(kind, metrics.DispatchResultFundsExhausted)
		d.setStatus(ctx, req.InvoiceId, models.FulfillmentFailed, noteFundsExhausted)
		if !req.paidFromBalance() {
			d.notifyOwner(ctx, req.OwnerId, notify.ServicePaused, msg)
		}
		msg.Reason = err.Error()
		d.notifyAdmins(ctx, notify.AdminFundsExhausted, msg)
		return fmt.Errorf("fulfillment order for invoice %s: %w", req.InvoiceId, err)
	}

	zap.L().Error("Fulfillment order failed",
		zap.String("invoice_id", req.InvoiceId),
		zap.Int64("owner_id", req.OwnerId),
		zap.String("kind", kind),
		zap.String("target", msg.Target),
		zap.Error(err))
	d.metrics.IncDispatch(kind, metrics.DispatchResultFailed)
	d.setStatus(ctx, req.InvoiceId, models.FulfillmentFailed, noteProviderError)
	if !req.paidFromBalance() {
		d.notifyOwner(ctx, req.OwnerId, notify.GenericFailure, msg)
	}
	return fmt.Errorf("fulfillment order for invoice %s: %w", req.InvoiceId, err)
}

func (d *Dispatcher) setStatus(ctx context.Context, invoiceId string, status models.FulfillmentStatus, note string) {
	if invoiceId == "" || d.invoices == nil {
		return
	}
	if err := d.invoices.SetFulfillmentStatus(ctx, invoiceId, status, note); err != nil {
		zap.L().Error("Failed to record fulfillment status",
			zap.String("invoice_id", invoiceId),
			zap.String("fulfillment_status", string(status)),
			zap.Error(err))
	}
}

func (d *Dispatcher) notifyOwner(ctx context.Context, ownerId int64, tmpl notify.Template, msg notify.Message) {
	if err := d.notifier.NotifyOwner(ctx, ownerId, tmpl, msg); err != nil {
		zap.L().Warn("Failed to notify owner",
			zap.Int64("owner_id", ownerId),
			zap.String("template", string(tmpl)),
			zap.Error(err))
	}
}

func (d *Dispatcher) notifyAdmins(ctx context.Context, tmpl notify.Template, msg notify.Message) {
	if err := d.notifier.NotifyAdmins(ctx, tmpl, msg); err != nil {
		zap.L().Warn("Failed to notify admins",
			zap.String("template", string(tmpl)),
			zap.Error(err))
	}
}
