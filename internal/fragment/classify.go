package fragment

import (
	"errors"
	"strings"
)

// Kind is the operator-relevant class of a fulfillment failure.
type Kind string

const (
	KindGeneric        Kind = "generic"
	KindFundsExhausted Kind = "funds_exhausted"
)

var fundsExhaustedPhrases = []string{
	"not enough funds",
	"insufficient funds",
	"balance: '0 ton",
	"balance: 0 ton",
}

// Classify maps a provider failure to a Kind. Only the wallet running dry is
// singled out; every other failure is generic.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	if errors.Is(err, ErrFundsExhausted) {
		return KindFundsExhausted
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return KindGeneric
	}
	if isFundsExhaustedMessage(err.Error()) {
		return KindFundsExhausted
	}
	return KindGeneric
}

// IsFundsExhausted reports whether err is a funds-exhausted failure.
func IsFundsExhausted(err error) bool {
	return Classify(err) == KindFundsExhausted
}

func isFundsExhaustedMessage(message string) bool {
	m := strings.ToLower(message)
	for _, phrase := range fundsExhaustedPhrases {
		if strings.Contains(m, phrase) {
			return true
		}
	}
	return strings.Contains(m, "transaction total:") && strings.Contains(m, "balance:")
}
