/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package intent encodes and decodes the purpose carried in an invoice payload.
//
// Wire formats (stable, shared with invoices already issued):
//
//	user_<owner_id>_premium_<months>m_<target>
//	user_<owner_id>_points_<quantity>_<target>
//	user_<owner_id>_stars_<quantity>_<target>   (legacy points marker)
//	user_<owner_id>_deposit_<amount>
//
// Any other payload is a balance top-up.
package intent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedPayload marks a payload that claims an order intent but cannot be decoded.
var ErrMalformedPayload = errors.New("malformed intent payload")

const (
	markerSubscription = "premium"
	markerPoints       = "points"
	markerLegacyPoints = "stars"
	markerDeposit      = "deposit"
)

type Kind string

const (
	KindTopUp        Kind = "topup"
	KindSubscription Kind = "subscription"
	KindPoints       Kind = "points"
)

// Intent is one of TopUp, Subscription or Points.
type Intent interface {
	Kind() Kind
	sealed()
}

// TopUp credits the paid amount to the owner's balance.
// Amount is informational; the credited value is always the invoice amount.
type TopUp struct {
	Amount decimal.Decimal
}

// Subscription orders a subscription of Months for Target.
type Subscription struct {
	OwnerId int64
	Months  int
	Target  string
}

// Points orders Quantity points for Target.
type Points struct {
	OwnerId  int64
	Quantity int
	Target   string
}

func (TopUp) Kind() Kind        { return KindTopUp }
func (Subscription) Kind() Kind { return KindSubscription }
func (Points) Kind() Kind       { return KindPoints }

func (TopUp) sealed()        {}
func (Subscription) sealed() {}
func (Points) sealed()       {}

// Parse decodes payload into exactly one intent.
func Parse(payload string) (Intent, error) {
	parts := strings.SplitN(payload, "_", 5)
	if len(parts) >= 3 && parts[0] == "user" && isOrderMarker(parts[2]) {
		return parseOrder(payload, parts)
	}
	for _, marker := range []string{markerSubscription, markerPoints, markerLegacyPoints} {
		if strings.Contains(payload, "_"+marker+"_") {
			return nil, fmt.Errorf("%w: %q carries order marker %q outside the order layout", ErrMalformedPayload, payload, marker)
		}
	}
	return parseTopUp(parts), nil
}

func parseTopUp(parts []string) TopUp {
	if len(parts) == 4 && parts[0] == "user" && parts[2] == markerDeposit {
		if amount, err := decimal.NewFromString(parts[3]); err == nil {
			return TopUp{Amount: amount}
		}
	}
	return TopUp{}
}

func parseOrder(payload string, parts []string) (Intent, error) {
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: %q has %d segments, want 5", ErrMalformedPayload, payload, len(parts))
	}

	ownerId, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ownerId <= 0 {
		return nil, fmt.Errorf("%w: %q has invalid owner id %q", ErrMalformedPayload, payload, parts[1])
	}

	target := parts[4]
	if !validTarget(target) {
		return nil, fmt.Errorf("%w: %q has invalid target %q", ErrMalformedPayload, payload, target)
	}

	switch parts[2] {
	case markerSubscription:
		raw, ok := strings.CutSuffix(parts[3], "m")
		if !ok {
			return nil, fmt.Errorf("%w: %q duration %q lacks the m suffix", ErrMalformedPayload, payload, parts[3])
		}
		months, err := strconv.Atoi(raw)
		if err != nil || months <= 0 {
			return nil, fmt.Errorf("%w: %q has invalid duration %q", ErrMalformedPayload, payload, parts[3])
		}
		return Subscription{OwnerId: ownerId, Months: months, Target: target}, nil
	default:
		quantity, err := strconv.Atoi(parts[3])
		if err != nil || quantity <= 0 {
			return nil, fmt.Errorf("%w: %q has invalid quantity %q", ErrMalformedPayload, payload, parts[3])
		}
		return Points{OwnerId: ownerId, Quantity: quantity, Target: target}, nil
	}
}

// EncodeSubscription returns the payload for a subscription order.
func EncodeSubscription(ownerId int64, months int, target string) string {
	return fmt.Sprintf("user_%d_%s_%dm_%s", ownerId, markerSubscription, months, target)
}

// EncodePoints returns the payload for a points order.
func EncodePoints(ownerId int64, quantity int, target string) string {
	return fmt.Sprintf("user_%d_%s_%d_%s", ownerId, markerPoints, quantity, target)
}

// EncodeTopUp returns the payload for a balance top-up of amount.
func EncodeTopUp(ownerId int64, amount decimal.Decimal) string {
	return fmt.Sprintf("user_%d_%s_%s", ownerId, markerDeposit, amount.String())
}

// Encode returns the wire form of an intent for ownerId.
func Encode(ownerId int64, in Intent) string {
	switch v := in.(type) {
	case Subscription:
		return EncodeSubscription(ownerId, v.Months, v.Target)
	case Points:
		return EncodePoints(ownerId, v.Quantity, v.Target)
	case TopUp:
		return EncodeTopUp(ownerId, v.Amount)
	default:
		return EncodeTopUp(ownerId, decimal.Zero)
	}
}

// NormalizeTarget strips a leading @ and surrounding spaces from a username.
func NormalizeTarget(target string) string {
	return strings.TrimPrefix(strings.TrimSpace(target), "@")
}

// ValidTarget reports whether target can travel inside a payload.
func ValidTarget(target string) bool {
	return validTarget(target)
}

func validTarget(target string) bool {
	if len(target) < 3 || len(target) > 64 {
		return false
	}
	for _, r := range target {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func isOrderMarker(s string) bool {
	return s == markerSubscription || s == markerPoints || s == markerLegacyPoints
}
