package database

import (
	"context"
	"errors"
	"testing"

	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestPriceTiers(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	tiers := []models.PriceTier{
		{Kind: models.ProductSubscription, Quantity: 12, PriceUsd: decimal.RequireFromString("39.99"), Active: true},
		{Kind: models.ProductSubscription, Quantity: 3, PriceUsd: decimal.RequireFromString("12.99"), Active: true},
		{Kind: models.ProductPoints, Quantity: 100, PriceUsd: decimal.RequireFromString("1.79"), Active: true},
	}
	for _, tier := range tiers {
		if err := service.UpsertPriceTier(ctx, tier); err != nil {
			t.Fatalf("UpsertPriceTier failed: %v", err)
		}
	}

	tier, err := service.GetPriceTier(ctx, models.ProductSubscription, 3)
	if err != nil {
		t.Fatalf("GetPriceTier failed: %v", err)
	}
	if !tier.PriceUsd.Equal(decimal.RequireFromString("12.99")) || !tier.Active {
		t.Errorf("Unexpected tier %+v", tier)
	}

	subs, err := service.ListPriceTiers(ctx, models.ProductSubscription)
	if err != nil {
		t.Fatalf("ListPriceTiers failed: %v", err)
	}
	if len(subs) != 2 || subs[0].Quantity != 3 || subs[1].Quantity != 12 {
		t.Errorf("Expected subscription tiers [3 12], got %+v", subs)
	}

	all, _ := service.ListPriceTiers(ctx, "")
	if len(all) != 3 {
		t.Errorf("Expected 3 tiers total, got %d", len(all))
	}

	// Upsert overwrites the price
	if err := service.UpsertPriceTier(ctx, models.PriceTier{
		Kind: models.ProductSubscription, Quantity: 3, PriceUsd: decimal.RequireFromString("11.49"), Active: true,
	}); err != nil {
		t.Fatalf("UpsertPriceTier failed: %v", err)
	}
	tier, _ = service.GetPriceTier(ctx, models.ProductSubscription, 3)
	if !tier.PriceUsd.Equal(decimal.RequireFromString("11.49")) {
		t.Errorf("Expected updated price 11.49, got %s", tier.PriceUsd)
	}

	if err := service.SetPriceTierActive(ctx, models.ProductSubscription, 3, false); err != nil {
		t.Fatalf("SetPriceTierActive failed: %v", err)
	}
	tier, _ = service.GetPriceTier(ctx, models.ProductSubscription, 3)
	if tier.Active {
		t.Errorf("Expected tier to be inactive")
	}
}

func TestPriceTiers_Errors(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.GetPriceTier(ctx, models.ProductPoints, 77); !errors.Is(err, store.ErrPriceNotFound) {
		t.Errorf("Expected ErrPriceNotFound, got %v", err)
	}
	if err := service.SetPriceTierActive(ctx, models.ProductPoints, 77, true); !errors.Is(err, store.ErrPriceNotFound) {
		t.Errorf("Expected ErrPriceNotFound, got %v", err)
	}
	if err := service.UpsertPriceTier(ctx, models.PriceTier{Kind: "gift", Quantity: 1, PriceUsd: decimal.NewFromInt(1)}); err == nil {
		t.Errorf("Expected error for unknown kind")
	}
	if err := service.UpsertPriceTier(ctx, models.PriceTier{Kind: models.ProductPoints, Quantity: 50, PriceUsd: decimal.RequireFromString("0.999")}); !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
}
