package common

import (
	"fmt"
	"os"
	"path/filepath"

	"cryptopay-fulfillment-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type PriceTierConfig struct {
	Kind     string `yaml:"kind"`
	Quantity int    `yaml:"quantity"`
	Price    string `yaml:"price_usd"`
	Active   *bool  `yaml:"active"`
}

type PricingConfig struct {
	Tiers []PriceTierConfig `yaml:"tiers"`
}

// LoadPricingConfig reads the price table. Tiers are active unless marked otherwise.
func LoadPricingConfig(pricingFile string) ([]models.PriceTier, error) {
	var pricingPath string
	if filepath.IsAbs(pricingFile) {
		pricingPath = pricingFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		pricingPath = filepath.Join(wd, pricingFile)
	}

	data, err := os.ReadFile(pricingPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", pricingFile, err)
	}

	var config PricingConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", pricingFile, err)
	}

	tiers := make([]models.PriceTier, 0, len(config.Tiers))
	for i, t := range config.Tiers {
		kind := models.ProductKind(t.Kind)
		if kind != models.ProductSubscription && kind != models.ProductPoints {
			return nil, fmt.Errorf("tier at index %d has unknown kind %q", i, t.Kind)
		}
		if t.Quantity <= 0 {
			return nil, fmt.Errorf("tier at index %d missing quantity", i)
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil || !price.IsPositive() || !price.Equal(price.Truncate(2)) {
			return nil, fmt.Errorf("tier at index %d has invalid price %q", i, t.Price)
		}
		active := true
		if t.Active != nil {
			active = *t.Active
		}
		tiers = append(tiers, models.PriceTier{
			Kind:     kind,
			Quantity: t.Quantity,
			PriceUsd: price,
			Active:   active,
		})
	}

	return tiers, nil
}
