package api

import (
	"context"
	"errors"
	"fmt"

	"cryptopay-fulfillment-go/internal/intent"
	"cryptopay-fulfillment-go/internal/models"

	"go.uber.org/zap"
)

func (s *Service) GetInvoice(ctx context.Context, invoiceId string) (*models.Invoice, error) {
	if invoiceId == "" {
		return nil, fmt.Errorf("%w: invoice id is required", ErrInvalidRequest)
	}
	return s.invoices.GetInvoice(ctx, invoiceId)
}

// ReconcileInvoice is the manual "check payment" path: it runs the same state
// machine as the scheduler for one invoice.
func (s *Service) ReconcileInvoice(ctx context.Context, invoiceId string) (*models.ReconcileResult, error) {
	if invoiceId == "" {
		return nil, fmt.Errorf("%w: invoice id is required", ErrInvalidRequest)
	}

	out, err := s.reconciler.Force(ctx, invoiceId)
	if errors.Is(err, intent.ErrMalformedPayload) {
		return &models.ReconcileResult{
			Success:   false,
			InvoiceId: invoiceId,
			Outcome:   string(out.Kind),
			Error:     "invoice quarantined for manual review",
		}, nil
	}
	if err != nil {
		zap.L().Error("Forced reconcile failed", zap.String("invoice_id", invoiceId), zap.Error(err))
		return nil, err
	}

	result := &models.ReconcileResult{
		Success:   out.DispatchErr == nil,
		InvoiceId: invoiceId,
		Outcome:   string(out.Kind),
	}
	if out.DispatchErr != nil {
		result.Error = "payment received, fulfillment failed"
	}
	return result, nil
}
