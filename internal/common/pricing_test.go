package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cryptopay-fulfillment-go/internal/models"
)

func writePricing(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write pricing file: %v", err)
	}
	return path
}

func TestLoadPricingConfig(t *testing.T) {
	path := writePricing(t, `
tiers:
  - kind: subscription
    quantity: 3
    price_usd: "13.99"
  - kind: points
    quantity: 100
    price_usd: "1.79"
    active: false
`)

	tiers, err := LoadPricingConfig(path)
	if err != nil {
		t.Fatalf("LoadPricingConfig: %v", err)
	}
	if len(tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(tiers))
	}
	if tiers[0].Kind != models.ProductSubscription || tiers[0].Quantity != 3 || tiers[0].PriceUsd.String() != "13.99" || !tiers[0].Active {
		t.Fatalf("unexpected first tier: %+v", tiers[0])
	}
	if tiers[1].Active {
		t.Fatalf("second tier should be inactive")
	}
}

func TestLoadPricingConfigRejectsBadTiers(t *testing.T) {
	cases := map[string]string{
		"unknown kind":   "tiers:\n  - kind: gems\n    quantity: 1\n    price_usd: \"1.00\"\n",
		"zero quantity":  "tiers:\n  - kind: points\n    quantity: 0\n    price_usd: \"1.00\"\n",
		"sub-cent price": "tiers:\n  - kind: points\n    quantity: 50\n    price_usd: \"0.899\"\n",
		"negative price": "tiers:\n  - kind: points\n    quantity: 50\n    price_usd: \"-1\"\n",
	}
	for name, body := range cases {
		if _, err := LoadPricingConfig(writePricing(t, body)); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestLoadPricingConfigMissingFile(t *testing.T) {
	_, err := LoadPricingConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "unable to read") {
		t.Fatalf("expected read error, got %v", err)
	}
}
