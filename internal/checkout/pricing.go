package checkout

import (
	"context"
	"errors"
	"fmt"

	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrUnknownTier = errors.New("no price for requested tier")

// fallbackPrices apply when the pricing table has no active row for a tier.
var fallbackPrices = map[models.ProductKind]map[int]decimal.Decimal{
	models.ProductSubscription: {
		3:  decimal.RequireFromString("12.99"),
		9:  decimal.RequireFromString("29.99"),
		12: decimal.RequireFromString("39.99"),
	},
	models.ProductPoints: {
		50:   decimal.RequireFromString("0.99"),
		100:  decimal.RequireFromString("1.79"),
		250:  decimal.RequireFromString("4.29"),
		500:  decimal.RequireFromString("8.49"),
		1000: decimal.RequireFromString("16.99"),
	},
}

// FallbackPrice returns the built-in price for a tier.
func FallbackPrice(kind models.ProductKind, quantity int) (decimal.Decimal, bool) {
	price, ok := fallbackPrices[kind][quantity]
	return price, ok
}

// FallbackTiers lists the built-in table, used to seed an empty pricing table.
func FallbackTiers() []models.PriceTier {
	var tiers []models.PriceTier
	for kind, prices := range fallbackPrices {
		for quantity, price := range prices {
			tiers = append(tiers, models.PriceTier{Kind: kind, Quantity: quantity, PriceUsd: price, Active: true})
		}
	}
	return tiers
}

// Pricing resolves tier prices from the store with a built-in fallback.
type Pricing struct {
	store store.PricingStore
}

func NewPricing(s store.PricingStore) *Pricing {
	return &Pricing{store: s}
}

// Resolve returns the active stored price, else the fallback price, else ErrUnknownTier.
func (p *Pricing) Resolve(ctx context.Context, kind models.ProductKind, quantity int) (decimal.Decimal, error) {
	if p.store != nil {
		tier, err := p.store.GetPriceTier(ctx, kind, quantity)
		switch {
		case err == nil && tier.Active:
			return tier.PriceUsd, nil
		case err != nil && !errors.Is(err, store.ErrPriceNotFound):
			zap.L().Warn("Pricing lookup failed, using fallback price",
				zap.String("kind", string(kind)),
				zap.Int("quantity", quantity),
				zap.Error(err))
		}
	}

	if price, ok := FallbackPrice(kind, quantity); ok {
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s x%d", ErrUnknownTier, kind, quantity)
}
