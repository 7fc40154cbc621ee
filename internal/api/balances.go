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
	"fmt"

	"cryptopay-fulfillment-go/internal/models"

	"go.uber.org/zap"
)

// GetOwnerBalance returns the current balance for an owner with recent ledger entries
func (s *Service) GetOwnerBalance(ctx context.Context, ownerId int64, limit int) (*models.OwnerBalance, error) {
	if ownerId <= 0 {
		return nil, fmt.Errorf("%w: owner_id must be positive", ErrInvalidRequest)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	balance, err := s.ledger.GetBalance(ctx, ownerId)
	if err != nil {
		zap.L().Error("Failed to get owner balance", zap.Int64("owner_id", ownerId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balance: %w", err)
	}

	result := &models.OwnerBalance{OwnerId: ownerId, Balance: balance}
	if s.history == nil {
		return result, nil
	}

	entries, err := s.history.ListEntries(ctx, ownerId, limit)
	if err != nil {
		zap.L().Error("Failed to get ledger entries", zap.Int64("owner_id", ownerId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve ledger entries: %w", err)
	}

	result.Entries = make([]models.LedgerEntryDTO, len(entries))
	for i, entry := range entries {
		result.Entries[i] = models.LedgerEntryDTO{
			Id:           entry.Id,
			Kind:         string(entry.Kind),
			Amount:       entry.Amount,
			BalanceAfter: entry.BalanceAfter,
			Reference:    entry.Reference,
			CreatedAt:    entry.CreatedAt,
		}
	}

	return result, nil
}
