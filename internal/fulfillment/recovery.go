package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptopay-fulfillment-go/internal/intent"
	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/notify"

	"go.uber.org/zap"
)

// RecoveryReport summarizes one pass over stalled dispatches.
type RecoveryReport struct {
	Stalled int
	Retried int
	Flagged int
}

// Recover finishes dispatches left pending_dispatch by a crash between MarkPaid and Dispatch.
// Top-ups are retried; the ledger reference makes a second credit impossible.
// Provider orders may already have been placed, so they are flagged for manual review instead.
func (d *Dispatcher) Recover(ctx context.Context, before time.Time) (RecoveryReport, error) {
	var report RecoveryReport

	stalled, err := d.invoices.ListStalledDispatches(ctx, before)
	if err != nil {
		return report, fmt.Errorf("failed to list stalled dispatches: %w", err)
	}
	report.Stalled = len(stalled)
	if len(stalled) == 0 {
		return report, nil
	}

	zap.L().Warn("Recovering stalled dispatches",
		zap.Int("count", len(stalled)),
		zap.Time("before", before))

	var errs []error
	for _, inv := range stalled {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		in, err := intent.Parse(inv.Payload)
		if err != nil {
			d.setStatus(ctx, inv.Id, models.FulfillmentQuarantined, err.Error())
			errs = append(errs, fmt.Errorf("invoice %s: %w", inv.Id, err))
			continue
		}

		if _, ok := in.(intent.TopUp); ok {
			report.Retried++
			err := d.Dispatch(ctx, Request{
				OwnerId:   inv.OwnerId,
				AmountUsd: inv.AmountUsd,
				Intent:    in,
				InvoiceId: inv.Id,
			})
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}

		report.Flagged++
		d.setStatus(ctx, inv.Id, models.FulfillmentFailed, noteStalled)
		msg := notify.Message{
			OwnerId:   inv.OwnerId,
			InvoiceId: inv.Id,
			Product:   string(in.Kind()),
			Amount:    inv.AmountUsd,
			Reason:    noteStalled,
		}
		switch v := in.(type) {
		case intent.Subscription:
			msg.Target, msg.Quantity = v.Target, v.Months
		case intent.Points:
			msg.Target, msg.Quantity = v.Target, v.Quantity
		}
		zap.L().Error("Stalled fulfillment order flagged for review",
			zap.String("invoice_id", inv.Id),
			zap.Int64("owner_id", inv.OwnerId),
			zap.String("kind", msg.Product),
			zap.String("target", msg.Target))
		d.notifyAdmins(ctx, notify.AdminDispatchStalled, msg)
	}

	zap.L().Info("Stalled dispatch recovery completed",
		zap.Int("stalled", report.Stalled),
		zap.Int("retried", report.Retried),
		zap.Int("flagged", report.Flagged))

	return report, errors.Join(errs...)
}
