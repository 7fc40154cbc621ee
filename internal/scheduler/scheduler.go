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

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptopay-fulfillment-go/internal/clock"
	"cryptopay-fulfillment-go/internal/fulfillment"
	"cryptopay-fulfillment-go/internal/metrics"
	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/reconcile"

	"go.uber.org/zap"
)

var (
	ErrSweepInProgress = errors.New("reconciliation sweep already in progress")
	ErrInvalidConfig   = errors.New("scheduler: missing required dependency")
)

// PendingLister lists invoices awaiting reconciliation, oldest first.
type PendingLister interface {
	ListPendingInvoices(ctx context.Context) ([]models.Invoice, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, inv *models.Invoice) (reconcile.Outcome, error)
}

type Recoverer interface {
	Recover(ctx context.Context, before time.Time) (fulfillment.RecoveryReport, error)
}

// Prober checks that the payment provider is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

type Params struct {
	Invoices   PendingLister
	Payments   Prober
	Reconciler Reconciler
	Recoverer  Recoverer // optional
	Locker     Locker    // optional, nil keeps the guard in-process
	Clock      clock.Clock
	Metrics    *metrics.EngineMetrics
	Config     Config
}

// SweepReport counts the outcomes of one sweep.
type SweepReport struct {
	Total     int
	Paid      int
	Expired   int
	Cancelled int
	Skipped   int
	Failed    int
}

// Scheduler drives the reconciliation machine over all pending invoices.
type Scheduler struct {
	cfg        Config
	invoices   PendingLister
	payments   Prober
	reconciler Reconciler
	recoverer  Recoverer
	locker     Locker
	clock      clock.Clock
	metrics    *metrics.EngineMetrics
	gate       *Gate

	sweepMu  sync.Mutex
	stateMu  sync.Mutex
	started  bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(p Params) (*Scheduler, error) {
	if p.Invoices == nil || p.Payments == nil || p.Reconciler == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if p.Clock == nil {
		p.Clock = clock.Real{}
	}
	return &Scheduler{
		cfg:        cfg,
		invoices:   p.Invoices,
		payments:   p.Payments,
		reconciler: p.Reconciler,
		recoverer:  p.Recoverer,
		locker:     p.Locker,
		clock:      p.Clock,
		metrics:    p.Metrics,
		gate:       NewGate(cfg.CallDelay),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// Start launches the reconciliation loop in the background.
// Only the first Start or Run takes effect; later calls are ignored.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.markStarted() {
		zap.L().Warn("Reconciliation scheduler already started")
		return
	}
	zap.L().Info("Starting reconciliation scheduler",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("call_delay", s.cfg.CallDelay),
		zap.Bool("distributed_lock", s.locker != nil),
		zap.Bool("recovery_enabled", s.cfg.RecoveryEnabled && s.recoverer != nil))

	go func() {
		defer close(s.doneChan)
		s.loop(ctx)
	}()
}

// Run executes the loop in the calling goroutine until ctx is done or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.markStarted() {
		zap.L().Warn("Reconciliation scheduler already started")
		return
	}
	defer close(s.doneChan)
	s.loop(ctx)
}

// Stop asks the loop to exit and waits for an in-flight sweep to finish.
// Stopping a scheduler that never started returns at once and keeps it from starting later.
func (s *Scheduler) Stop() {
	zap.L().Info("Stopping reconciliation scheduler")
	s.stopOnce.Do(func() { close(s.stopChan) })

	s.stateMu.Lock()
	started := s.started
	s.started = true
	s.stateMu.Unlock()
	if !started {
		close(s.doneChan)
	}

	<-s.doneChan
	zap.L().Info("Reconciliation scheduler stopped")
}

func (s *Scheduler) markStarted() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	return true
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
			zap.L().Warn("Reconciliation sweep ended with error", zap.Error(err))
		}

		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-timer.C:
		case <-s.stopChan:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// SweepOnce reconciles every pending invoice once, oldest first.
// Per-invoice failures are counted and logged; only sweep-level failures are returned.
func (s *Scheduler) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	start := time.Now()

	if !s.sweepMu.TryLock() {
		s.metrics.ObserveSweep(metrics.SweepResultBusy, 0)
		return report, ErrSweepInProgress
	}
	defer s.sweepMu.Unlock()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			return report, fmt.Errorf("failed to acquire sweep lock: %w", err)
		}
		if !ok {
			s.metrics.ObserveSweep(metrics.SweepResultBusy, 0)
			return report, ErrSweepInProgress
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), s.cfg.LockKey, token); err != nil {
				zap.L().Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	if err := s.gate.Wait(ctx); err != nil {
		return report, err
	}
	if err := s.payments.Ping(ctx); err != nil {
		zap.L().Error("Payment provider unreachable, skipping sweep", zap.Error(err))
		s.metrics.ObserveSweep(metrics.SweepResultProbeFailed, time.Since(start))
		return report, fmt.Errorf("payment provider probe failed: %w", err)
	}

	pending, err := s.invoices.ListPendingInvoices(ctx)
	if err != nil {
		zap.L().Error("Failed to list pending invoices", zap.Error(err))
		s.metrics.ObserveSweep(metrics.SweepResultListFailed, time.Since(start))
		return report, fmt.Errorf("failed to list pending invoices: %w", err)
	}
	report.Total = len(pending)

	for i := range pending {
		if err := s.gate.Wait(ctx); err != nil {
			zap.L().Warn("Sweep interrupted", zap.Int("remaining", len(pending)-i), zap.Error(err))
			break
		}
		s.reconcileOne(ctx, &pending[i], &report)
	}

	if s.cfg.RecoveryEnabled && s.recoverer != nil && ctx.Err() == nil {
		before := s.clock.Now().Add(-s.cfg.RecoveryGrace)
		if _, err := s.recoverer.Recover(ctx, before); err != nil {
			zap.L().Error("Stalled dispatch recovery failed", zap.Error(err))
		}
	}

	duration := time.Since(start)
	s.metrics.ObserveSweep(metrics.SweepResultOK, duration)
	zap.L().Info("Reconciliation sweep completed",
		zap.Int("total", report.Total),
		zap.Int("paid", report.Paid),
		zap.Int("expired", report.Expired),
		zap.Int("cancelled", report.Cancelled),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", duration))

	return report, nil
}

func (s *Scheduler) reconcileOne(ctx context.Context, inv *models.Invoice, report *SweepReport) {
	defer func() {
		if r := recover(); r != nil {
			report.Failed++
			zap.L().Error("Panic while reconciling invoice",
				zap.String("invoice_id", inv.Id),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	out, err := s.reconciler.Reconcile(ctx, inv)
	if err != nil {
		report.Failed++
		zap.L().Error("Failed to reconcile invoice",
			zap.String("invoice_id", inv.Id),
			zap.Int64("owner_id", inv.OwnerId),
			zap.Error(err))
		return
	}

	switch out.Kind {
	case reconcile.OutcomePaid:
		report.Paid++
		if out.DispatchErr != nil {
			zap.L().Warn("Invoice paid but fulfillment failed",
				zap.String("invoice_id", inv.Id),
				zap.Error(out.DispatchErr))
		}
	case reconcile.OutcomeExpired:
		report.Expired++
	case reconcile.OutcomeCancelled:
		report.Cancelled++
	case reconcile.OutcomeSkipped:
		report.Skipped++
	}
}
