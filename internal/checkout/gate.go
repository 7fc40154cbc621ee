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

package checkout

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
	"cryptopay-fulfillment-go/internal/reconcile"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrCheckoutUnavailable means no invoice could be issued; the caller should try again later.
	ErrCheckoutUnavailable = errors.New("payment is temporarily unavailable, try again later")
	ErrInvalidTarget       = errors.New("invalid recipient username")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrUnsupportedKind     = errors.New("unsupported product kind")
)

type Mode string

const (
	ModePaidFromBalance Mode = "paid_from_balance"
	ModeInvoiceCreated  Mode = "invoice_created"
)

// Request is a purchase of Quantity units of Kind for Target.
type Request struct {
	OwnerId  int64
	Kind     models.ProductKind
	Quantity int
	Target   string
}

type Result struct {
	Mode      Mode
	Price     decimal.Decimal
	Reference string // ledger reference when paid from balance
	InvoiceId string
	PayUrl    string
}

type Config struct {
	Asset      string
	InvoiceTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Asset:      "USDT",
		InvoiceTTL: reconcile.DefaultInvoiceTTL,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Asset == "" {
		c.Asset = defaults.Asset
	}
	if c.InvoiceTTL <= 0 {
		c.InvoiceTTL = defaults.InvoiceTTL
	}
	return c
}

type Params struct {
	Ledger     store.Ledger
	Invoices   store.InvoiceStore
	Pricing    *Pricing
	Payments   reconcile.PaymentProvider
	Dispatcher reconcile.Dispatcher
	Notifier   notify.Notifier
	Clock      clock.Clock
	Metrics    *metrics.EngineMetrics
	Config     Config
}

// Gate settles purchases from the owner's balance when it covers the price,
// and issues a payment invoice otherwise.
type Gate struct {
	ledger     store.Ledger
	invoices   store.InvoiceStore
	pricing    *Pricing
	payments   reconcile.PaymentProvider
	dispatcher reconcile.Dispatcher
	notifier   notify.Notifier
	clock      clock.Clock
	metrics    *metrics.EngineMetrics
	cfg        Config
}

func NewGate(p Params) *Gate {
	if p.Clock == nil {
		p.Clock = clock.Real{}
	}
	if p.Pricing == nil {
		p.Pricing = NewPricing(nil)
	}
	if p.Notifier == nil {
		p.Notifier = notify.NoOp{}
	}
	return &Gate{
		ledger:     p.Ledger,
		invoices:   p.Invoices,
		pricing:    p.Pricing,
		payments:   p.Payments,
		dispatcher: p.Dispatcher,
		notifier:   p.Notifier,
		clock:      p.Clock,
		metrics:    p.Metrics,
		cfg:        p.Config.withDefaults(),
	}
}

// Checkout buys a product. The debit is the only check against the balance,
// so two concurrent checkouts can never overdraw it.
func (g *Gate) Checkout(ctx context.Context, req Request) (*Result, error) {
	in, err := buildIntent(req)
	if err != nil {
		return nil, err
	}

	price, err := g.pricing.Resolve(ctx, req.Kind, req.Quantity)
	if err != nil {
		return nil, err
	}

	balance, err := g.ledger.GetBalance(ctx, req.OwnerId)
	if err != nil {
		zap.L().Warn("Failed to read balance, issuing invoice",
			zap.Int64("owner_id", req.OwnerId),
			zap.Error(err))
		balance = decimal.Zero
	}

	if balance.GreaterThanOrEqual(price) {
		result, err := g.payFromBalance(ctx, req, in, price)
		if !errors.Is(err, store.ErrInsufficientFunds) {
			return result, err
		}
		zap.L().Info("Balance changed before debit, issuing invoice",
			zap.Int64("owner_id", req.OwnerId),
			zap.String("price", price.String()))
	}

	description := fmt.Sprintf("%s x%d for @%s", req.Kind, req.Quantity, intent.NormalizeTarget(req.Target))
	return g.issueInvoice(ctx, req.OwnerId, price, intent.Encode(req.OwnerId, in), description)
}

// TopUp issues an invoice that credits amount to the owner's balance once paid.
func (g *Gate) TopUp(ctx context.Context, ownerId int64, amount decimal.Decimal) (*Result, error) {
	if !store.ValidAmount(amount) {
		return nil, store.ErrInvalidAmount
	}
	return g.issueInvoice(ctx, ownerId, amount, intent.EncodeTopUp(ownerId, amount), "Balance top-up")
}

func (g *Gate) payFromBalance(ctx context.Context, req Request, in intent.Intent, price decimal.Decimal) (*Result, error) {
	reference := "checkout:" + uuid.NewString()

	if _, err := g.ledger.Debit(ctx, req.OwnerId, price, reference); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	err := g.dispatcher.Dispatch(ctx, fulfillment.Request{
		OwnerId:   req.OwnerId,
		AmountUsd: price,
		Intent:    in,
		Reference: reference,
	})
	if err != nil {
		msg := notify.Message{
			OwnerId:   req.OwnerId,
			Reference: reference,
			Product:   string(req.Kind),
			Target:    intent.NormalizeTarget(req.Target),
			Quantity:  req.Quantity,
			Amount:    price,
		}
		tmpl := notify.OrderRefunded
		if refundErr := g.refund(ctx, req.OwnerId, price, reference); refundErr != nil {
			tmpl = notify.GenericFailure
		}
		if nerr := g.notifier.NotifyOwner(context.WithoutCancel(ctx), req.OwnerId, tmpl, msg); nerr != nil {
			zap.L().Warn("Failed to notify owner",
				zap.Int64("owner_id", req.OwnerId),
				zap.String("template", string(tmpl)),
				zap.Error(nerr))
		}
		return nil, fmt.Errorf("order paid from balance failed: %w", err)
	}

	g.metrics.IncCheckout(string(ModePaidFromBalance))
	zap.L().Info("Checkout paid from balance",
		zap.Int64("owner_id", req.OwnerId),
		zap.String("kind", string(req.Kind)),
		zap.Int("quantity", req.Quantity),
		zap.String("price", price.String()),
		zap.String("reference", reference))

	return &Result{Mode: ModePaidFromBalance, Price: price, Reference: reference}, nil
}

// refund returns a debited amount. A replayed refund counts as done.
func (g *Gate) refund(ctx context.Context, ownerId int64, amount decimal.Decimal, reference string) error {
	balance, err := g.ledger.Credit(context.WithoutCancel(ctx), ownerId, amount, "refund:"+reference)
	if err != nil && !errors.Is(err, store.ErrDuplicateTransaction) {
		zap.L().Error("Failed to refund balance after fulfillment failure",
			zap.Int64("owner_id", ownerId),
			zap.String("amount", amount.String()),
			zap.String("reference", reference),
			zap.Error(err))
		return err
	}
	zap.L().Info("Balance refunded after fulfillment failure",
		zap.Int64("owner_id", ownerId),
		zap.String("amount", amount.String()),
		zap.String("reference", reference),
		zap.String("balance", balance.String()))
	return nil
}

func (g *Gate) issueInvoice(ctx context.Context, ownerId int64, amount decimal.Decimal, payload, description string) (*Result, error) {
	remote, err := g.payments.CreateInvoice(ctx, models.CreateInvoiceRequest{
		AmountUsd:    amount,
		Asset:        g.cfg.Asset,
		CurrencyType: "fiat",
		Description:  description,
		Payload:      payload,
	})
	if err != nil {
		zap.L().Error("Failed to create payment invoice",
			zap.Int64("owner_id", ownerId),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrCheckoutUnavailable, err)
	}

	asset := remote.Asset
	if asset == "" {
		asset = g.cfg.Asset
	}
	now := g.clock.Now()
	inv, err := g.invoices.CreateInvoice(ctx, store.CreateInvoiceParams{
		Id:        remote.Id,
		OwnerId:   ownerId,
		AmountUsd: amount,
		Asset:     asset,
		Payload:   payload,
		PayUrl:    remote.PayUrl,
		CreatedAt: now,
		ExpiresAt: now.Add(g.cfg.InvoiceTTL),
	})
	if err != nil {
		zap.L().Error("Failed to persist payment invoice",
			zap.String("invoice_id", remote.Id),
			zap.Int64("owner_id", ownerId),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrCheckoutUnavailable, err)
	}

	g.metrics.IncCheckout(string(ModeInvoiceCreated))
	zap.L().Info("Payment invoice created",
		zap.String("invoice_id", inv.Id),
		zap.Int64("owner_id", ownerId),
		zap.String("amount_usd", amount.String()),
		zap.String("payload", payload))

	return &Result{Mode: ModeInvoiceCreated, Price: amount, InvoiceId: inv.Id, PayUrl: inv.PayUrl}, nil
}

func buildIntent(req Request) (intent.Intent, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	target := intent.NormalizeTarget(req.Target)
	if !intent.ValidTarget(target) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, req.Target)
	}
	switch req.Kind {
	case models.ProductSubscription:
		return intent.Subscription{OwnerId: req.OwnerId, Months: req.Quantity, Target: target}, nil
	case models.ProductPoints:
		return intent.Points{OwnerId: req.OwnerId, Quantity: req.Quantity, Target: target}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, req.Kind)
	}
}
