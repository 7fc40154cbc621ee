package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	service := newService(db)

	// Use the actual schema initialization
	if err := service.initSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func TestCredit_CreatesBalance(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	amount := decimal.RequireFromString("5.00")

	balance, err := service.Credit(ctx, 7, amount, "invoice:inv-1")
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if !balance.Equal(amount) {
		t.Errorf("Expected balance %s, got %s", amount, balance)
	}

	stored, err := service.GetBalance(ctx, 7)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !stored.Equal(amount) {
		t.Errorf("Expected stored balance %s, got %s", amount, stored)
	}
}

func TestDebit_ExactBalanceReachesZero(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.Credit(ctx, 7, decimal.RequireFromString("12.99"), ""); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	balance, err := service.Debit(ctx, 7, decimal.RequireFromString("12.99"), "checkout:1")
	if err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", balance)
	}
}

func TestDebit_InsufficientFunds(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.Credit(ctx, 7, decimal.RequireFromString("12.98"), ""); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	_, err := service.Debit(ctx, 7, decimal.RequireFromString("12.99"), "checkout:1")
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	balance, _ := service.GetBalance(ctx, 7)
	if !balance.Equal(decimal.RequireFromString("12.98")) {
		t.Errorf("Balance must be unchanged after failed debit, got %s", balance)
	}
}

func TestDebit_UnknownOwner(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.Debit(context.Background(), 99, decimal.RequireFromString("1.00"), "")
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
}

func TestLedger_InvalidAmounts(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	for _, raw := range []string{"0", "-1.00", "0.001"} {
		amount := decimal.RequireFromString(raw)
		if _, err := service.Credit(ctx, 7, amount, ""); !errors.Is(err, store.ErrInvalidAmount) {
			t.Errorf("Credit(%s): expected ErrInvalidAmount, got %v", raw, err)
		}
		if _, err := service.Debit(ctx, 7, amount, ""); !errors.Is(err, store.ErrInvalidAmount) {
			t.Errorf("Debit(%s): expected ErrInvalidAmount, got %v", raw, err)
		}
	}
}

func TestCredit_DuplicateReference(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	amount := decimal.RequireFromString("5.00")

	if _, err := service.Credit(ctx, 7, amount, "invoice:inv-1"); err != nil {
		t.Fatalf("First credit failed: %v", err)
	}

	_, err := service.Credit(ctx, 7, amount, "invoice:inv-1")
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected ErrDuplicateTransaction, got %v", err)
	}

	balance, _ := service.GetBalance(ctx, 7)
	if !balance.Equal(amount) {
		t.Errorf("Replay must not credit twice: expected %s, got %s", amount, balance)
	}
}

func TestLedger_EntriesRecorded(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.Credit(ctx, 7, decimal.RequireFromString("10.00"), "invoice:a"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if _, err := service.Debit(ctx, 7, decimal.RequireFromString("3.50"), "checkout:b"); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	entries, err := service.ListEntries(ctx, 7, 10)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != models.LedgerEntryDebit || entries[0].Reference != "checkout:b" {
		t.Errorf("Expected newest entry to be the debit, got %+v", entries[0])
	}
	if !entries[0].BalanceAfter.Equal(decimal.RequireFromString("6.50")) {
		t.Errorf("Expected balance after 6.50, got %s", entries[0].BalanceAfter)
	}
	if !entries[1].Amount.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("Expected credit amount 10.00, got %s", entries[1].Amount)
	}
}

func TestDebit_ConcurrentNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	service, err := NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 4,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer service.Close()

	if _, err := service.Credit(ctx, 7, decimal.RequireFromString("10.00"), ""); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Debit(ctx, 7, decimal.RequireFromString("1.00"), "")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, store.ErrInsufficientFunds) {
				t.Errorf("Unexpected debit error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("Expected exactly 10 successful debits, got %d", succeeded)
	}
	balance, err := service.GetBalance(ctx, 7)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", balance)
	}
}
