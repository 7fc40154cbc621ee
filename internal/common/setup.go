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

package common

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"cryptopay-fulfillment-go/internal/api"
	"cryptopay-fulfillment-go/internal/checkout"
	"cryptopay-fulfillment-go/internal/clock"
	"cryptopay-fulfillment-go/internal/cryptopay"
	"cryptopay-fulfillment-go/internal/database"
	"cryptopay-fulfillment-go/internal/formance"
	"cryptopay-fulfillment-go/internal/fragment"
	"cryptopay-fulfillment-go/internal/fulfillment"
	"cryptopay-fulfillment-go/internal/metrics"
	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/notify"
	"cryptopay-fulfillment-go/internal/reconcile"
	"cryptopay-fulfillment-go/internal/scheduler"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/http2"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also come from the shell or the container runtime.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService  *database.Service
	Ledger     store.Ledger
	History    store.LedgerHistory
	Payments   *cryptopay.Client
	Fragment   *fragment.Client
	Notifier   notify.Notifier
	Metrics    *metrics.EngineMetrics
	Dispatcher *fulfillment.Dispatcher
	Machine    *reconcile.Machine
	Checkout   *checkout.Gate
	Scheduler  *scheduler.Scheduler
	Api        *api.Service

	redisClient *redis.Client
	ledgerClose func()
}

// InitializeLogger installs a production zap logger at level as the global logger.
func InitializeLogger(level string) (*zap.Logger, func()) {
	zapCfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// NewHttpClient returns the client shared by the provider integrations.
func NewHttpClient() (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			DualStack: true,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("failed to configure http2 transport: %w", err)
	}

	return &http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// NewRedisClient connects to url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// InitializeServices wires the full engine: storage, providers, state machine,
// checkout gate, scheduler and operator API.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Services{DbService: dbService}
	if err := s.wire(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) wire(ctx context.Context, cfg *models.Config) error {
	if err := s.initLedger(ctx, cfg); err != nil {
		return err
	}

	httpClient, err := NewHttpClient()
	if err != nil {
		return err
	}

	if cfg.CryptoPay.Token == "" {
		return fmt.Errorf("missing required payment provider credentials: CRYPTO_PAY_TOKEN")
	}
	s.Payments = cryptopay.NewClient(httpClient, cfg.CryptoPay)
	s.Fragment = fragment.NewClient(httpClient, cfg.Fragment)
	if s.Fragment.DemoMode() {
		zap.L().Warn("TOKEN_FRAGMENT not set, fulfillment provider running in demo mode")
	}

	if cfg.Notifier.BotToken != "" {
		tg, err := notify.NewTelegram(httpClient, cfg.Notifier.BotToken, cfg.Notifier.AdminIds)
		if err != nil {
			return err
		}
		s.Notifier = tg
	} else {
		zap.L().Warn("BOT_TOKEN not set, notifications disabled")
		s.Notifier = notify.NoOp{}
	}

	s.Metrics = metrics.Engine()

	s.Dispatcher = fulfillment.NewDispatcher(s.Ledger, s.DbService, s.Fragment, s.Notifier, s.Metrics, cfg.Fragment.ShowSender)

	s.Machine = reconcile.NewMachine(reconcile.Deps{
		Invoices:   s.DbService,
		Payments:   s.Payments,
		Dispatcher: s.Dispatcher,
		Notifier:   s.Notifier,
		Clock:      clock.Real{},
		Metrics:    s.Metrics,
	}, cfg.Reconciler.InvoiceTTL)

	s.Checkout = checkout.NewGate(checkout.Params{
		Ledger:     s.Ledger,
		Invoices:   s.DbService,
		Pricing:    checkout.NewPricing(s.DbService),
		Payments:   s.Payments,
		Dispatcher: s.Dispatcher,
		Notifier:   s.Notifier,
		Metrics:    s.Metrics,
		Config: checkout.Config{
			Asset:      cfg.CryptoPay.Asset,
			InvoiceTTL: cfg.Reconciler.InvoiceTTL,
		},
	})

	var locker scheduler.Locker
	if cfg.Redis.URL != "" {
		s.redisClient, err = NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		locker = scheduler.NewRedisLocker(s.redisClient)
		zap.L().Info("Using Redis sweep lock")
	}

	s.Scheduler, err = scheduler.New(scheduler.Params{
		Invoices:   s.DbService,
		Payments:   s.Payments,
		Reconciler: s.Machine,
		Recoverer:  s.Dispatcher,
		Locker:     locker,
		Metrics:    s.Metrics,
		Config: scheduler.Config{
			Interval:        cfg.Reconciler.Interval,
			CallDelay:       cfg.Reconciler.CallDelay,
			RecoveryEnabled: cfg.Reconciler.RecoveryEnabled,
			RecoveryGrace:   cfg.Reconciler.RecoveryGrace,
			LockTTL:         cfg.Reconciler.SweepLockTTL,
		},
	})
	if err != nil {
		return err
	}

	probes := map[string]api.Probe{
		"database":             s.DbService.Ping,
		"payment_provider":     s.Payments.Ping,
		"fulfillment_provider": s.Fragment.Ping,
	}
	if s.redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return s.redisClient.Ping(ctx).Err() }
	}

	s.Api = api.NewService(api.ServiceParams{
		Ledger:     s.Ledger,
		History:    s.History,
		Invoices:   s.DbService,
		Checkout:   s.Checkout,
		Reconciler: s.Machine,
		Probes:     probes,
	})

	zap.L().Info("Services initialized",
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.Bool("testnet", cfg.CryptoPay.Testnet),
		zap.Bool("fulfillment_demo", s.Fragment.DemoMode()),
		zap.Int("admins", len(cfg.Notifier.AdminIds)))
	return nil
}

func (s *Services) initLedger(ctx context.Context, cfg *models.Config) error {
	if cfg.Ledger.Backend != "formance" {
		s.Ledger = s.DbService
		s.History = s.DbService
		return nil
	}

	zap.L().Info("Connecting to Formance ledger", zap.String("ledger", cfg.Formance.LedgerName))
	fSvc, err := formance.NewService(ctx, cfg.Formance)
	if err != nil {
		return err
	}
	s.Ledger = fSvc
	s.History = fSvc
	s.ledgerClose = fSvc.Close
	return nil
}

// InitializeDatabaseOnly initializes just the database service without provider clients.
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database)
}

func (s *Services) Close() {
	if s.ledgerClose != nil {
		s.ledgerClose()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if s.DbService != nil {
		s.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
