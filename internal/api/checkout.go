package api

import (
	"context"
	"errors"
	"fmt"

	"cryptopay-fulfillment-go/internal/checkout"
	"cryptopay-fulfillment-go/internal/models"

	"go.uber.org/zap"
)

// Checkout buys a product from balance or through a payment invoice.
func (s *Service) Checkout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutResult, error) {
	zap.L().Info("Processing checkout",
		zap.Int64("owner_id", req.OwnerId),
		zap.String("kind", req.Kind),
		zap.Int("quantity", req.Quantity),
		zap.String("target", req.Target))

	if req.OwnerId <= 0 {
		return nil, fmt.Errorf("%w: owner_id must be positive", ErrInvalidRequest)
	}

	result, err := s.checkout.Checkout(ctx, checkout.Request{
		OwnerId:  req.OwnerId,
		Kind:     models.ProductKind(req.Kind),
		Quantity: req.Quantity,
		Target:   req.Target,
	})
	if err != nil {
		if !errors.Is(err, checkout.ErrCheckoutUnavailable) {
			zap.L().Warn("Checkout rejected", zap.Int64("owner_id", req.OwnerId), zap.Error(err))
		}
		return nil, err
	}

	return toCheckoutResult(result), nil
}

// TopUp issues an invoice that credits the owner's balance.
func (s *Service) TopUp(ctx context.Context, req models.TopUpRequest) (*models.CheckoutResult, error) {
	if req.OwnerId <= 0 {
		return nil, fmt.Errorf("%w: owner_id must be positive", ErrInvalidRequest)
	}

	result, err := s.checkout.TopUp(ctx, req.OwnerId, req.AmountUsd)
	if err != nil {
		return nil, err
	}
	return toCheckoutResult(result), nil
}

func toCheckoutResult(r *checkout.Result) *models.CheckoutResult {
	return &models.CheckoutResult{
		Success:   true,
		Mode:      string(r.Mode),
		InvoiceId: r.InvoiceId,
		PayUrl:    r.PayUrl,
		PriceUsd:  r.Price,
	}
}
