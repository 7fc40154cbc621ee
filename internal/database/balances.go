package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptopay-fulfillment-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetBalance returns the current balance for an owner (O(1) lookup)
func (s *Service) GetBalance(ctx context.Context, ownerId int64) (decimal.Decimal, error) {
	zap.L().Debug("Getting balance", zap.Int64("owner_id", ownerId))

	var cents int64
	err := s.db.QueryRowContext(ctx, queryGetBalance, ownerId).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		// No balance record means zero balance
		return decimal.Zero, nil
	}
	if err != nil {
		zap.L().Error("Failed to get balance", zap.Int64("owner_id", ownerId), zap.Error(err))
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	balance := fromCents(cents)
	zap.L().Debug("Retrieved balance", zap.Int64("owner_id", ownerId), zap.String("balance", balance.StringFixed(2)))
	return balance, nil
}

// ListEntries returns the most recent ledger entries for an owner, newest first
func (s *Service) ListEntries(ctx context.Context, ownerId int64, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, queryListLedgerEntries, ownerId, limit)
	if err != nil {
		zap.L().Error("Failed to list ledger entries", zap.Int64("owner_id", ownerId), zap.Error(err))
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		var (
			entry             models.LedgerEntry
			kind              string
			amountCents       int64
			balanceAfterCents int64
			createdAt         time.Time
		)
		if err := rows.Scan(&entry.Id, &entry.OwnerId, &kind, &amountCents, &balanceAfterCents, &entry.Reference, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.Kind = models.LedgerEntryKind(kind)
		entry.Amount = fromCents(amountCents)
		entry.BalanceAfter = fromCents(balanceAfterCents)
		entry.CreatedAt = createdAt.UTC()
		entries = append(entries, entry)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during ledger entry row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}

	return entries, nil
}
