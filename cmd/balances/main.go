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

package main

import (
	"context"
	"flag"
	"fmt"

	"cryptopay-fulfillment-go/internal/common"
	"cryptopay-fulfillment-go/internal/config"
	"cryptopay-fulfillment-go/internal/database"
	"cryptopay-fulfillment-go/internal/models"

	"go.uber.org/zap"
)

func printEntry(entry models.LedgerEntry, isLast bool) {
	amount := entry.Amount
	if entry.Kind == models.LedgerEntryDebit {
		amount = amount.Neg()
	}
	fmt.Printf("%s %-6s %10s  -> %10s  %-28s %s\n",
		common.BoxPrefix(isLast),
		entry.Kind,
		common.FormatUsd(amount),
		common.FormatUsd(entry.BalanceAfter),
		common.ShortRef(entry.Reference, 28),
		entry.CreatedAt.Format("2006-01-02 15:04:05"))
}

func printInvoice(inv models.Invoice, isLast bool) {
	fulfillment := string(inv.FulfillmentStatus)
	if fulfillment == "" {
		fulfillment = "-"
	}
	fmt.Printf("%s %-12s %-9s %10s  %-16s %s\n",
		common.BoxPrefix(isLast),
		common.ShortRef(inv.Id, 12),
		inv.Status,
		common.FormatUsd(inv.AmountUsd),
		fulfillment,
		inv.CreatedAt.Format("2006-01-02 15:04:05"))
}

func report(ctx context.Context, dbService *database.Service, ownerId int64, limit int) error {
	balance, err := dbService.GetBalance(ctx, ownerId)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	entries, err := dbService.ListEntries(ctx, ownerId, limit)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	invoices, err := dbService.ListOwnerInvoices(ctx, ownerId, limit)
	if err != nil {
		return fmt.Errorf("failed to list invoices: %w", err)
	}

	common.PrintHeader(fmt.Sprintf("OWNER %d BALANCE: %s", ownerId, common.FormatUsd(balance)), common.DefaultWidth)

	fmt.Printf("\n┌─ Ledger entries: %d\n", len(entries))
	common.PrintBoxSeparator(78)
	for i, entry := range entries {
		printEntry(entry, i == len(entries)-1)
	}

	fmt.Printf("\n┌─ Invoices: %d\n", len(invoices))
	common.PrintBoxSeparator(78)
	for i, inv := range invoices {
		printInvoice(inv, i == len(invoices)-1)
	}
	return nil
}

func main() {
	ctx := context.Background()

	ownerFlag := flag.Int64("owner", 0, "Owner id to report on")
	limitFlag := flag.Int("limit", 20, "Maximum ledger entries and invoices to show")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	if *ownerFlag <= 0 {
		logger.Fatal("An owner id is required", zap.Int64("owner", *ownerFlag))
	}
	if cfg.Ledger.Backend != "sqlite" {
		logger.Warn("Report reads the local database; balances held in the external ledger are not shown",
			zap.String("ledger_backend", cfg.Ledger.Backend))
	}

	// No provider clients are needed for read-only reports
	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	if err := report(ctx, dbService, *ownerFlag, *limitFlag); err != nil {
		logger.Fatal("Balance report failed", zap.Int64("owner_id", *ownerFlag), zap.Error(err))
	}
	common.PrintFooter("END OF REPORT", common.DefaultWidth)
}
