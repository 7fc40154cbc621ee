package common

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatUsd(t *testing.T) {
	cases := map[string]string{
		"0":     "$0.00",
		"1.5":   "$1.50",
		"12.34": "$12.34",
		"-2.1":  "-$2.10",
	}
	for in, want := range cases {
		if got := FormatUsd(decimal.RequireFromString(in)); got != want {
			t.Fatalf("FormatUsd(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestShortRef(t *testing.T) {
	if got := ShortRef("", 10); got != "none" {
		t.Fatalf("expected none, got %q", got)
	}
	if got := ShortRef("invoice:42", 20); got != "invoice:42" {
		t.Fatalf("short reference should be unchanged, got %q", got)
	}
	if got := ShortRef("checkout:6f1c2a8e-3b1d-4f00-9e2a-5d0c1b7a9e11", 16); got != "checkout:6f1c..." {
		t.Fatalf("unexpected truncation %q", got)
	}
}
