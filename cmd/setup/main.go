package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"sort"

	"cryptopay-fulfillment-go/internal/checkout"
	"cryptopay-fulfillment-go/internal/common"
	"cryptopay-fulfillment-go/internal/config"
	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/store"

	"go.uber.org/zap"
)

// loadTiers reads the pricing file, falling back to the built-in table when it does not exist.
func loadTiers(pricingFile string) ([]models.PriceTier, error) {
	tiers, err := common.LoadPricingConfig(pricingFile)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("Pricing file not found, seeding built-in prices", zap.String("file", pricingFile))
		return checkout.FallbackTiers(), nil
	}
	return tiers, err
}

func seedPricing(ctx context.Context, pricing store.PricingStore, tiers []models.PriceTier) (int, []string) {
	var seeded int
	var failed []string
	for _, tier := range tiers {
		if err := pricing.UpsertPriceTier(ctx, tier); err != nil {
			zap.L().Error("Failed to store price tier",
				zap.String("kind", string(tier.Kind)),
				zap.Int("quantity", tier.Quantity),
				zap.Error(err))
			failed = append(failed, fmt.Sprintf("%s/%d", tier.Kind, tier.Quantity))
			continue
		}
		seeded++
	}
	return seeded, failed
}

func printPricing(ctx context.Context, pricing store.PricingStore) error {
	common.PrintHeader("PRICE TABLE", common.DefaultWidth)
	for _, kind := range []models.ProductKind{models.ProductSubscription, models.ProductPoints} {
		tiers, err := pricing.ListPriceTiers(ctx, kind)
		if err != nil {
			return err
		}
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].Quantity < tiers[j].Quantity })

		fmt.Printf("\n┌─ %s\n", kind)
		common.PrintBoxSeparator(40)
		for i, tier := range tiers {
			state := "active"
			if !tier.Active {
				state = "inactive"
			}
			fmt.Printf("%s x%-6d %10s  %s\n", common.BoxPrefix(i == len(tiers)-1), tier.Quantity, common.FormatUsd(tier.PriceUsd), state)
		}
	}
	return nil
}

func main() {
	ctx := context.Background()

	listFlag := flag.Bool("list", false, "Print the stored price table and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	// Opening the database creates the schema
	zap.L().Info("Setting up SQLite database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	if !*listFlag {
		tiers, err := loadTiers(cfg.PricingFile)
		if err != nil {
			zap.L().Fatal("Failed to load pricing", zap.Error(err))
		}

		seeded, failed := seedPricing(ctx, dbService, tiers)
		if len(failed) > 0 {
			zap.L().Warn("Pricing seeded with some failures",
				zap.Int("seeded", seeded),
				zap.Strings("failed_tiers", failed))
		} else {
			zap.L().Info("Pricing seeded", zap.Int("seeded", seeded))
		}
	}

	if err := printPricing(ctx, dbService); err != nil {
		zap.L().Fatal("Failed to list pricing", zap.Error(err))
	}
}
