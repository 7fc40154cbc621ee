package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cryptopay-fulfillment-go/internal/checkout"
	"cryptopay-fulfillment-go/internal/database"
	"cryptopay-fulfillment-go/internal/intent"
	"cryptopay-fulfillment-go/internal/metrics"
	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/reconcile"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCheckout struct {
	mock.Mock
}

func (m *mockCheckout) Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Result), args.Error(1)
}

func (m *mockCheckout) TopUp(ctx context.Context, ownerId int64, amount decimal.Decimal) (*checkout.Result, error) {
	args := m.Called(ctx, ownerId, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Result), args.Error(1)
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Force(ctx context.Context, invoiceId string) (reconcile.Outcome, error) {
	args := m.Called(ctx, invoiceId)
	return args.Get(0).(reconcile.Outcome), args.Error(1)
}

type fixture struct {
	db         *database.Service
	checkout   *mockCheckout
	reconciler *mockReconciler
	probeErr   error
	router     *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "engine.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	f := &fixture{db: db, checkout: &mockCheckout{}, reconciler: &mockReconciler{}}
	svc := NewService(ServiceParams{
		Ledger:     db,
		History:    db,
		Invoices:   db,
		Checkout:   f.checkout,
		Reconciler: f.reconciler,
		Probes: map[string]Probe{
			"database":         db.Ping,
			"payment_provider": func(ctx context.Context) error { return f.probeErr },
		},
	})

	registry := prometheus.NewRegistry()
	metrics.New(registry).IncCheckout("invoice_created")
	f.router = NewRouter(svc, registry)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f.probeErr = errors.New("getMe failed: token revoked")
	w = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "token revoked")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "engine_checkout_total")
}

func TestGetBalance(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.Credit(context.Background(), 42, decimal.RequireFromString("12.50"), "invoice:1")
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/balances/42", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body models.OwnerBalance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(42), body.OwnerId)
	assert.True(t, body.Balance.Equal(decimal.RequireFromString("12.5")))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "invoice:1", body.Entries[0].Reference)

	w = f.do(t, http.MethodGet, "/balances/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetInvoice(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	_, err := f.db.CreateInvoice(context.Background(), store.CreateInvoiceParams{
		Id:        "inv-1",
		OwnerId:   7,
		AmountUsd: decimal.RequireFromString("1.79"),
		Asset:     "USDT",
		Payload:   intent.EncodePoints(7, 100, "bob"),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/invoices/inv-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", decode(t, w)["status"])

	w = f.do(t, http.MethodGet, "/invoices/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "invoice not found", decode(t, w)["error"])
}

func TestReconcileInvoice(t *testing.T) {
	f := newFixture(t)
	f.reconciler.On("Force", mock.Anything, "inv-paid").
		Return(reconcile.Outcome{InvoiceId: "inv-paid", Kind: reconcile.OutcomePaid}, nil).Once()
	f.reconciler.On("Force", mock.Anything, "inv-bad").
		Return(reconcile.Outcome{InvoiceId: "inv-bad", Kind: reconcile.OutcomeSkipped}, fmt.Errorf("%w: bad", intent.ErrMalformedPayload)).Once()
	f.reconciler.On("Force", mock.Anything, "inv-down").
		Return(reconcile.Outcome{InvoiceId: "inv-down"}, errors.New("dial tcp: connection refused")).Once()
	f.reconciler.On("Force", mock.Anything, "inv-missing").
		Return(reconcile.Outcome{InvoiceId: "inv-missing"}, store.ErrInvoiceNotFound).Once()

	w := f.do(t, http.MethodPost, "/invoices/inv-paid/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "paid", body["outcome"])

	w = f.do(t, http.MethodPost, "/invoices/inv-bad/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	w = f.do(t, http.MethodPost, "/invoices/inv-down/reconcile", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")

	w = f.do(t, http.MethodPost, "/invoices/inv-missing/reconcile", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	f.reconciler.AssertExpectations(t)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	f.checkout.On("Checkout", mock.Anything, checkout.Request{OwnerId: 1, Kind: models.ProductPoints, Quantity: 100, Target: "bob"}).
		Return(&checkout.Result{Mode: checkout.ModeInvoiceCreated, Price: decimal.RequireFromString("1.79"), InvoiceId: "9", PayUrl: "https://pay"}, nil).Once()
	f.checkout.On("Checkout", mock.Anything, checkout.Request{OwnerId: 1, Kind: models.ProductPoints, Quantity: 75, Target: "bob"}).
		Return(nil, fmt.Errorf("%w: points x75", checkout.ErrUnknownTier)).Once()
	f.checkout.On("Checkout", mock.Anything, checkout.Request{OwnerId: 1, Kind: models.ProductPoints, Quantity: 50, Target: "bob"}).
		Return(nil, fmt.Errorf("%w: %w", checkout.ErrCheckoutUnavailable, errors.New("ASSET_INVALID raw provider text"))).Once()

	w := f.do(t, http.MethodPost, "/checkout", models.CheckoutRequest{OwnerId: 1, Kind: "points", Quantity: 100, Target: "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "invoice_created", body["mode"])
	assert.Equal(t, "https://pay", body["pay_url"])

	w = f.do(t, http.MethodPost, "/checkout", models.CheckoutRequest{OwnerId: 1, Kind: "points", Quantity: 75, Target: "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/checkout", models.CheckoutRequest{OwnerId: 1, Kind: "points", Quantity: 50, Target: "bob"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "ASSET_INVALID")

	w = f.do(t, http.MethodPost, "/checkout", map[string]any{"owner_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.checkout.AssertExpectations(t)
}

func TestTopUp(t *testing.T) {
	f := newFixture(t)
	f.checkout.On("TopUp", mock.Anything, int64(5), mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.RequireFromString("10"))
	})).Return(&checkout.Result{Mode: checkout.ModeInvoiceCreated, InvoiceId: "11", PayUrl: "https://pay/11", Price: decimal.RequireFromString("10")}, nil).Once()

	w := f.do(t, http.MethodPost, "/topups", map[string]any{"owner_id": 5, "amount_usd": "10.00"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "11", decode(t, w)["invoice_id"])

	w = f.do(t, http.MethodPost, "/topups", map[string]any{"owner_id": -1, "amount_usd": "10.00"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
