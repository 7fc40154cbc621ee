package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanPriceTier(row rowScanner) (*models.PriceTier, error) {
	var (
		tier     models.PriceTier
		kind     string
		priceStr string
	)
	if err := row.Scan(&kind, &tier.Quantity, &priceStr, &tier.Active, &tier.UpdatedAt); err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price '%s': %w", priceStr, err)
	}
	tier.Kind = models.ProductKind(kind)
	tier.PriceUsd = price
	tier.UpdatedAt = tier.UpdatedAt.UTC()
	return &tier, nil
}

// GetPriceTier returns the tier for kind and quantity, active or not
func (s *Service) GetPriceTier(ctx context.Context, kind models.ProductKind, quantity int) (*models.PriceTier, error) {
	tier, err := scanPriceTier(s.db.QueryRowContext(ctx, queryGetPriceTier, string(kind), quantity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%d", store.ErrPriceNotFound, kind, quantity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price tier: %w", err)
	}
	return tier, nil
}

// ListPriceTiers returns every tier of a kind, or all tiers when kind is empty
func (s *Service) ListPriceTiers(ctx context.Context, kind models.ProductKind) ([]models.PriceTier, error) {
	rows, err := s.db.QueryContext(ctx, queryListPriceTiers, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list price tiers: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var tiers []models.PriceTier
	for rows.Next() {
		tier, err := scanPriceTier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price tier: %w", err)
		}
		tiers = append(tiers, *tier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price tier rows: %w", err)
	}
	return tiers, nil
}

func (s *Service) UpsertPriceTier(ctx context.Context, tier models.PriceTier) error {
	if tier.Kind != models.ProductSubscription && tier.Kind != models.ProductPoints {
		return fmt.Errorf("unknown product kind %q", tier.Kind)
	}
	if tier.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", tier.Quantity)
	}
	if !store.ValidAmount(tier.PriceUsd) {
		return fmt.Errorf("%w: got %s", store.ErrInvalidAmount, tier.PriceUsd.String())
	}

	_, err := s.db.ExecContext(ctx, queryUpsertPriceTier,
		string(tier.Kind), tier.Quantity, tier.PriceUsd.StringFixed(2), tier.Active, s.now())
	if err != nil {
		return fmt.Errorf("failed to upsert price tier: %w", err)
	}

	zap.L().Info("Price tier saved",
		zap.String("kind", string(tier.Kind)),
		zap.Int("quantity", tier.Quantity),
		zap.String("price_usd", tier.PriceUsd.StringFixed(2)),
		zap.Bool("active", tier.Active))
	return nil
}

func (s *Service) SetPriceTierActive(ctx context.Context, kind models.ProductKind, quantity int, active bool) error {
	result, err := s.db.ExecContext(ctx, querySetPriceTierActive, active, s.now(), string(kind), quantity)
	if err != nil {
		return fmt.Errorf("failed to update price tier: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s/%d", store.ErrPriceNotFound, kind, quantity)
	}
	return nil
}
