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

package api

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cryptopay-fulfillment-go/internal/checkout"
	"cryptopay-fulfillment-go/internal/reconcile"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/shopspring/decimal"
)

// Checkouter is the purchase entry point.
type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	TopUp(ctx context.Context, ownerId int64, amount decimal.Decimal) (*checkout.Result, error)
}

// Reconciler forces a single invoice through the state machine.
type Reconciler interface {
	Force(ctx context.Context, invoiceId string) (reconcile.Outcome, error)
}

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

type ServiceParams struct {
	Ledger     store.Ledger
	History    store.LedgerHistory // optional
	Invoices   store.InvoiceStore
	Checkout   Checkouter
	Reconciler Reconciler
	Probes     map[string]Probe
}

// Service is the operator API behind the HTTP handlers.
type Service struct {
	ledger     store.Ledger
	history    store.LedgerHistory
	invoices   store.InvoiceStore
	checkout   Checkouter
	reconciler Reconciler
	probes     map[string]Probe
}

func NewService(p ServiceParams) *Service {
	return &Service{
		ledger:     p.Ledger,
		history:    p.History,
		invoices:   p.Invoices,
		checkout:   p.Checkout,
		reconciler: p.Reconciler,
		probes:     p.Probes,
	}
}

// HealthCheck runs every probe and reports all failures.
func (s *Service) HealthCheck(ctx context.Context) error {
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := s.probes[name](ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s health check failed: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
