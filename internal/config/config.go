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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cryptopay-fulfillment-go/internal/models"
)

// minCallDelay is the floor for the pause between payment provider status calls.
const minCallDelay = 500 * time.Millisecond

func Load() (*models.Config, error) {
	var (
		connMaxLifetime, connMaxIdleTime, pingTimeout, busyTimeout time.Duration
		invoiceExpiresIn                                           time.Duration
		interval, callDelay, invoiceTTL, recoveryGrace, lockTTL    time.Duration
	)
	defaults := []struct {
		key  string
		dst  *time.Duration
		dflt time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", &connMaxLifetime, 5 * time.Minute},
		{"DB_CONN_MAX_IDLE_TIME", &connMaxIdleTime, 30 * time.Second},
		{"DB_PING_TIMEOUT", &pingTimeout, 5 * time.Second},
		{"DB_BUSY_TIMEOUT", &busyTimeout, 5 * time.Second},
		{"CRYPTO_PAY_INVOICE_EXPIRES_IN", &invoiceExpiresIn, time.Hour},
		{"RECONCILE_INTERVAL", &interval, 60 * time.Second},
		{"RECONCILE_CALL_DELAY", &callDelay, minCallDelay},
		{"INVOICE_TTL", &invoiceTTL, 3 * time.Minute},
		{"RECOVERY_GRACE_PERIOD", &recoveryGrace, 10 * time.Minute},
		{"SWEEP_LOCK_TTL", &lockTTL, 5 * time.Minute},
	}
	for _, d := range defaults {
		value, err := getEnvDuration(d.key, d.dflt)
		if err != nil {
			return nil, err
		}
		*d.dst = value
	}

	if callDelay < minCallDelay {
		callDelay = minCallDelay
	}

	adminIds, err := parseIdList(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}

	backend := strings.ToLower(getEnvString("LEDGER_BACKEND", "sqlite"))
	if backend != "sqlite" && backend != "formance" {
		return nil, fmt.Errorf("invalid LEDGER_BACKEND: %q (want sqlite or formance)", backend)
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "engine.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
		},
		Ledger: models.LedgerConfig{
			Backend: backend,
		},
		Formance: models.FormanceConfig{
			StackURL:     os.Getenv("FORMANCE_STACK_URL"),
			ClientID:     os.Getenv("FORMANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("FORMANCE_CLIENT_SECRET"),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "cryptopay-fulfillment"),
		},
		CryptoPay: models.CryptoPayConfig{
			Token:          os.Getenv("CRYPTO_PAY_TOKEN"),
			Testnet:        getEnvBool("CRYPTO_PAY_TESTNET", false),
			Asset:          getEnvString("CRYPTO_PAY_ASSET", "USDT"),
			AcceptedAssets: getEnvString("CRYPTO_PAY_ACCEPTED_ASSETS", "USDT,TON,BTC,ETH"),
			ExpiresIn:      invoiceExpiresIn,
		},
		Fragment: models.FragmentConfig{
			Token:      strings.TrimSpace(os.Getenv("TOKEN_FRAGMENT")),
			BaseURL:    getEnvString("FRAGMENT_BASE_URL", "https://api.fragment-api.com/v1"),
			ShowSender: getEnvBool("FRAGMENT_SHOW_SENDER", false),
		},
		Notifier: models.NotifierConfig{
			BotToken: os.Getenv("BOT_TOKEN"),
			AdminIds: adminIds,
		},
		Reconciler: models.ReconcilerConfig{
			Interval:        interval,
			CallDelay:       callDelay,
			InvoiceTTL:      invoiceTTL,
			RecoveryEnabled: getEnvBool("RECOVERY_ENABLED", true),
			RecoveryGrace:   recoveryGrace,
			SweepLockTTL:    lockTTL,
		},
		Redis: models.RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Server: models.ServerConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		PricingFile: getEnvString("PRICING_FILE", "pricing.yaml"),
		LogLevel:    strings.ToLower(getEnvString("LOG_LEVEL", "info")),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// parseIdList parses a comma separated list of chat ids, skipping blanks.
func parseIdList(value string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a numeric id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
