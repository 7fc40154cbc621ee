package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var (
		inv               models.Invoice
		amountUsd         string
		amountCrypto      string
		status            string
		fulfillmentStatus string
		paidAt            sql.NullTime
	)
	err := row.Scan(&inv.Id, &inv.OwnerId, &amountUsd, &amountCrypto, &inv.Asset, &status, &inv.Payload, &inv.PayUrl,
		&fulfillmentStatus, &inv.FulfillmentNote, &inv.CreatedAt, &inv.UpdatedAt, &paidAt, &inv.ExpiresAt)
	if err != nil {
		return nil, err
	}

	inv.AmountUsd, err = decimal.NewFromString(amountUsd)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount_usd '%s': %w", amountUsd, err)
	}
	inv.AmountCrypto, err = decimal.NewFromString(amountCrypto)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount_crypto '%s': %w", amountCrypto, err)
	}
	inv.Status = models.InvoiceStatus(status)
	inv.FulfillmentStatus = models.FulfillmentStatus(fulfillmentStatus)
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	inv.ExpiresAt = inv.ExpiresAt.UTC()
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		inv.PaidAt = &t
	}
	return &inv, nil
}

func (s *Service) queryInvoices(ctx context.Context, query string, args ...any) ([]models.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice rows: %w", err)
	}
	return invoices, nil
}

// CreateInvoice persists a new pending invoice
func (s *Service) CreateInvoice(ctx context.Context, params store.CreateInvoiceParams) (*models.Invoice, error) {
	if params.Id == "" {
		return nil, fmt.Errorf("invoice id cannot be empty")
	}
	if !store.ValidAmount(params.AmountUsd) {
		return nil, fmt.Errorf("%w: got %s", store.ErrInvalidAmount, params.AmountUsd.String())
	}

	now := s.now()
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	createdAt = createdAt.UTC()
	expiresAt := params.ExpiresAt.UTC()
	if params.ExpiresAt.IsZero() {
		expiresAt = createdAt
	}

	_, err := s.db.ExecContext(ctx, queryInsertInvoice,
		params.Id, params.OwnerId, params.AmountUsd.StringFixed(2), params.AmountCrypto.String(), params.Asset,
		params.Payload, params.PayUrl, createdAt, now, expiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrInvoiceExists, params.Id)
		}
		zap.L().Error("Failed to create invoice", zap.String("invoice_id", params.Id), zap.Error(err))
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	zap.L().Info("Invoice stored",
		zap.String("invoice_id", params.Id),
		zap.Int64("owner_id", params.OwnerId),
		zap.String("amount_usd", params.AmountUsd.StringFixed(2)))

	return s.GetInvoice(ctx, params.Id)
}

// GetInvoice returns the invoice with the given id or store.ErrInvoiceNotFound
func (s *Service) GetInvoice(ctx context.Context, invoiceId string) (*models.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, queryGetInvoice, invoiceId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrInvoiceNotFound, invoiceId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

func (s *Service) ListPendingInvoices(ctx context.Context) ([]models.Invoice, error) {
	return s.queryInvoices(ctx, queryListPendingInvoices)
}

func (s *Service) ListOwnerInvoices(ctx context.Context, ownerId int64, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryInvoices(ctx, queryListOwnerInvoices, ownerId, limit)
}

func (s *Service) ListStalledDispatches(ctx context.Context, cutoff time.Time) ([]models.Invoice, error) {
	return s.queryInvoices(ctx, queryListStalledDispatches, cutoff.UTC())
}

// MarkPaid flips a pending invoice to paid. The WHERE clause on status is the
// single point that guarantees a payment is acted on at most once.
func (s *Service) MarkPaid(ctx context.Context, invoiceId string, paidAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, queryMarkInvoicePaid, paidAt.UTC(), s.now(), invoiceId)
	if err != nil {
		return false, fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	return s.checkTransition(ctx, result, invoiceId)
}

// MarkStatus moves a pending invoice to expired or cancelled
func (s *Service) MarkStatus(ctx context.Context, invoiceId string, status models.InvoiceStatus) (bool, error) {
	if status != models.InvoiceStatusExpired && status != models.InvoiceStatusCancelled {
		return false, fmt.Errorf("invalid target status %q", status)
	}
	result, err := s.db.ExecContext(ctx, queryMarkInvoiceStatus, string(status), s.now(), invoiceId)
	if err != nil {
		return false, fmt.Errorf("failed to mark invoice %s: %w", status, err)
	}
	return s.checkTransition(ctx, result, invoiceId)
}

func (s *Service) checkTransition(ctx context.Context, result sql.Result, invoiceId string) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return true, nil
	}
	if err := s.invoiceExists(ctx, invoiceId); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Service) SetFulfillmentStatus(ctx context.Context, invoiceId string, status models.FulfillmentStatus, note string) error {
	result, err := s.db.ExecContext(ctx, querySetFulfillmentStatus, string(status), note, s.now(), invoiceId)
	if err != nil {
		return fmt.Errorf("failed to set fulfillment status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrInvoiceNotFound, invoiceId)
	}
	return nil
}

func (s *Service) invoiceExists(ctx context.Context, invoiceId string) error {
	var one int
	err := s.db.QueryRowContext(ctx, queryInvoiceExists, invoiceId).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrInvoiceNotFound, invoiceId)
	}
	if err != nil {
		return fmt.Errorf("failed to check invoice: %w", err)
	}
	return nil
}
