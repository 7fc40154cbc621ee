package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Credit increases an owner's balance, creating the balance row on first use.
func (s *Service) Credit(ctx context.Context, ownerId int64, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	return s.applyEntry(ctx, ownerId, amount, reference, models.LedgerEntryCredit)
}

// Debit decreases an owner's balance with a single guarded update, so two
// concurrent debits can never both observe the same funds.
func (s *Service) Debit(ctx context.Context, ownerId int64, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	return s.applyEntry(ctx, ownerId, amount, reference, models.LedgerEntryDebit)
}

// applyEntry atomically updates the balance and records the ledger entry
func (s *Service) applyEntry(ctx context.Context, ownerId int64, amount decimal.Decimal, reference string, kind models.LedgerEntryKind) (decimal.Decimal, error) {
	if !store.ValidAmount(amount) {
		return decimal.Zero, fmt.Errorf("%w: got %s", store.ErrInvalidAmount, amount.String())
	}
	cents := toCents(amount)

	zap.L().Info("Processing ledger entry",
		zap.Int64("owner_id", ownerId),
		zap.String("kind", string(kind)),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("reference", reference))

	// Start database transaction for atomicity
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Check for duplicate reference
	if reference != "" {
		var existingId string
		err := tx.QueryRowContext(ctx, queryCheckDuplicateReference, reference).Scan(&existingId)
		if err == nil {
			zap.L().Warn("Duplicate ledger reference detected, skipping",
				zap.String("reference", reference),
				zap.String("existing_entry_id", existingId))
			return decimal.Zero, fmt.Errorf("%w: reference %s already exists", store.ErrDuplicateTransaction, reference)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("failed to check for duplicate reference: %w", err)
		}
	}

	now := s.now()
	switch kind {
	case models.LedgerEntryCredit:
		if _, err := tx.ExecContext(ctx, queryEnsureBalance, ownerId, now, now); err != nil {
			return decimal.Zero, fmt.Errorf("failed to create balance: %w", err)
		}
		if _, err := tx.ExecContext(ctx, queryCreditBalance, cents, now, ownerId); err != nil {
			return decimal.Zero, fmt.Errorf("failed to credit balance: %w", err)
		}
	case models.LedgerEntryDebit:
		result, err := tx.ExecContext(ctx, queryDebitBalance, cents, now, ownerId, cents)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to debit balance: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return decimal.Zero, fmt.Errorf("%w: owner %d cannot cover %s", store.ErrInsufficientFunds, ownerId, amount.StringFixed(2))
		}
	default:
		return decimal.Zero, fmt.Errorf("unknown ledger entry kind %q", kind)
	}

	var balanceCents int64
	if err := tx.QueryRowContext(ctx, queryGetBalance, ownerId).Scan(&balanceCents); err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}

	entryId := uuid.New().String()
	_, err = tx.ExecContext(ctx, queryInsertLedgerEntry, entryId, ownerId, string(kind), cents, balanceCents, reference, now)
	if err != nil {
		if isUniqueViolation(err) {
			return decimal.Zero, fmt.Errorf("%w: reference %s already exists", store.ErrDuplicateTransaction, reference)
		}
		return decimal.Zero, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	newBalance := fromCents(balanceCents)
	zap.L().Info("Ledger entry processed successfully",
		zap.String("entry_id", entryId),
		zap.Int64("owner_id", ownerId),
		zap.String("kind", string(kind)),
		zap.String("new_balance", newBalance.StringFixed(2)))

	return newBalance, nil
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}
