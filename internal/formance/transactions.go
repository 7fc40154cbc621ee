package formance

import (
	"context"
	"fmt"
	"strconv"

	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Numscript templates. Metadata is set inside the script via set_tx_meta()
// so every Formance transaction is self-describing.
// ---------------------------------------------------------------------------

const numscriptCredit = `vars {
  asset $asset
  number $amount
  account $owner_id
  string $reference
}

send [$asset $amount] (
  source = @world
  destination = @owners:$owner_id
)

set_tx_meta("event_type", "credit")
set_tx_meta("reference", $reference)
`

// Owner accounts never overdraft; Formance rejects the post with INSUFFICIENT_FUND.
const numscriptDebit = `vars {
  asset $asset
  number $amount
  account $owner_id
  string $reference
}

send [$asset $amount] (
  source = @owners:$owner_id
  destination = @platform:revenue
)

set_tx_meta("event_type", "debit")
set_tx_meta("reference", $reference)
`

// Credit moves funds from @world into the owner's account.
func (s *Service) Credit(ctx context.Context, ownerId int64, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	return s.post(ctx, numscriptCredit, models.LedgerEntryCredit, ownerId, amount, reference)
}

// Debit moves funds from the owner's account to platform revenue.
func (s *Service) Debit(ctx context.Context, ownerId int64, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	return s.post(ctx, numscriptDebit, models.LedgerEntryDebit, ownerId, amount, reference)
}

func (s *Service) post(ctx context.Context, script string, kind models.LedgerEntryKind, ownerId int64, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	if !store.ValidAmount(amount) {
		return decimal.Zero, fmt.Errorf("%w: got %s", store.ErrInvalidAmount, amount.String())
	}
	smallAmt := amount.Shift(balancePrecision).BigInt().String()

	req := shared.V2PostTransaction{
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars: map[string]string{
				"asset":     balanceAsset,
				"amount":    smallAmt,
				"owner_id":  strconv.FormatInt(ownerId, 10),
				"reference": reference,
			},
		},
	}
	if reference != "" {
		req.Reference = strPtr(reference)
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: req,
	})
	if err != nil {
		if isConflictError(err) {
			return decimal.Zero, fmt.Errorf("%w: reference %s already exists", store.ErrDuplicateTransaction, reference)
		}
		if isInsufficientFundError(err) {
			return decimal.Zero, fmt.Errorf("%w: owner %d cannot cover %s", store.ErrInsufficientFunds, ownerId, amount.StringFixed(2))
		}
		return decimal.Zero, fmt.Errorf("error posting %s transaction: %w", kind, err)
	}

	balance, err := s.GetBalance(ctx, ownerId)
	if err != nil {
		return decimal.Zero, err
	}

	zap.L().Info("Ledger entry posted to Formance",
		zap.Int64("owner_id", ownerId),
		zap.String("kind", string(kind)),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("reference", reference),
		zap.String("new_balance", balance.StringFixed(2)))
	return balance, nil
}

// ListEntries returns the most recent transactions touching the owner's account.
// BalanceAfter is not tracked per transaction by Formance and is left zero.
func (s *Service) ListEntries(ctx context.Context, ownerId int64, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	addr := ownerAccount(ownerId)
	pageSize := int64(limit)

	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$or": []any{
				map[string]any{"$match": map[string]any{"source": addr}},
				map[string]any{"$match": map[string]any{"destination": addr}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	var result []models.LedgerEntry
	for _, tx := range resp.V2TransactionsCursorResponse.Cursor.Data {
		entry := models.LedgerEntry{
			Id:        fmt.Sprintf("%d", tx.ID),
			OwnerId:   ownerId,
			CreatedAt: tx.Timestamp,
		}
		if tx.Reference != nil {
			entry.Reference = *tx.Reference
		}
		for _, p := range tx.Postings {
			if p.Asset != balanceAsset {
				continue
			}
			switch addr {
			case p.Destination:
				entry.Kind = models.LedgerEntryCredit
				entry.Amount = bigIntToDecimal(p.Amount)
			case p.Source:
				entry.Kind = models.LedgerEntryDebit
				entry.Amount = bigIntToDecimal(p.Amount)
			}
		}
		if entry.Kind == "" {
			continue
		}
		result = append(result, entry)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}
