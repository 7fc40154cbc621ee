package fulfillment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cryptopay-fulfillment-go/internal/database"
	"cryptopay-fulfillment-go/internal/fragment"
	"cryptopay-fulfillment-go/internal/intent"
	"cryptopay-fulfillment-go/internal/metrics"
	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/notify"
	"cryptopay-fulfillment-go/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) PlaceSubscriptionOrder(ctx context.Context, target string, months int, showSender bool) (*models.FulfillmentOrder, error) {
	args := m.Called(ctx, target, months, showSender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FulfillmentOrder), args.Error(1)
}

func (m *mockProvider) PlacePointsOrder(ctx context.Context, target string, quantity int, showSender bool) (*models.FulfillmentOrder, error) {
	args := m.Called(ctx, target, quantity, showSender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FulfillmentOrder), args.Error(1)
}

func (m *mockProvider) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyOwner(ctx context.Context, ownerId int64, tmpl notify.Template, msg notify.Message) error {
	return m.Called(ctx, ownerId, tmpl, msg).Error(0)
}

func (m *mockNotifier) NotifyAdmins(ctx context.Context, tmpl notify.Template, msg notify.Message) error {
	return m.Called(ctx, tmpl, msg).Error(0)
}

type fixture struct {
	db         *database.Service
	provider   *mockProvider
	notifier   *mockNotifier
	metrics    *metrics.EngineMetrics
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "engine.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	f := &fixture{
		db:       db,
		provider: &mockProvider{},
		notifier: &mockNotifier{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.dispatcher = NewDispatcher(db, db, f.provider, f.notifier, f.metrics, false)
	return f
}

func (f *fixture) paidInvoice(t *testing.T, id string, ownerId int64, amount string, payload string, paidAt time.Time) {
	ctx := context.Background()
	_, err := f.db.CreateInvoice(ctx, store.CreateInvoiceParams{
		Id:        id,
		OwnerId:   ownerId,
		AmountUsd: decimal.RequireFromString(amount),
		Asset:     "USDT",
		Payload:   payload,
		CreatedAt: paidAt.Add(-time.Minute),
		ExpiresAt: paidAt.Add(time.Hour),
	})
	require.NoError(t, err)
	changed, err := f.db.MarkPaid(ctx, id, paidAt)
	require.NoError(t, err)
	require.True(t, changed)
}

func TestDispatch_TopUpCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.paidInvoice(t, "inv-1", 42, "25.00", intent.EncodeTopUp(42, decimal.RequireFromString("25.00")), time.Now().UTC())

	f.notifier.On("NotifyOwner", mock.Anything, int64(42), notify.TopUpCredited, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Balance.Equal(decimal.RequireFromString("25")) && msg.InvoiceId == "inv-1"
	})).Return(nil).Once()

	req := Request{OwnerId: 42, AmountUsd: decimal.RequireFromString("25.00"), Intent: intent.TopUp{}, InvoiceId: "inv-1"}
	require.NoError(t, f.dispatcher.Dispatch(ctx, req))
	// A replay of the same invoice hits the ledger reference and is a silent success.
	require.NoError(t, f.dispatcher.Dispatch(ctx, req))

	balance, err := f.db.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("25")), "balance %s", balance)

	inv, err := f.db.GetInvoice(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, models.FulfillmentDispatched, inv.FulfillmentStatus)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DispatchCounter("topup", metrics.DispatchResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DispatchCounter("topup", metrics.DispatchResultDuplicate)))
	f.notifier.AssertExpectations(t)
}

func TestDispatch_PointsOrderPlaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.paidInvoice(t, "inv-2", 7, "1.79", intent.EncodePoints(7, 100, "bob"), time.Now().UTC())

	f.provider.On("PlacePointsOrder", mock.Anything, "bob", 100, false).
		Return(&models.FulfillmentOrder{Id: "ord-9", Kind: models.ProductPoints, Target: "bob", Quantity: 100}, nil).Once()
	f.notifier.On("NotifyOwner", mock.Anything, int64(7), notify.OrderPlaced, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.OrderId == "ord-9" && msg.Quantity == 100 && msg.Target == "bob"
	})).Return(nil).Once()
	f.notifier.On("NotifyAdmins", mock.Anything, notify.AdminOrderPlaced, mock.Anything).Return(nil).Once()

	err := f.dispatcher.Dispatch(ctx, Request{
		OwnerId:   7,
		AmountUsd: decimal.RequireFromString("1.79"),
		Intent:    intent.Points{OwnerId: 7, Quantity: 100, Target: "bob"},
		InvoiceId: "inv-2",
	})
	require.NoError(t, err)

	inv, err := f.db.GetInvoice(ctx, "inv-2")
	require.NoError(t, err)
	assert.Equal(t, models.FulfillmentDispatched, inv.FulfillmentStatus)
	assert.Equal(t, "order ord-9", inv.FulfillmentNote)

	f.provider.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestDispatch_FundsExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.paidInvoice(t, "inv-3", 7, "29.99", intent.EncodeSubscription(7, 9, "alice"), time.Now().UTC())

	providerErr := errors.New("Not enough funds for wallet, balance: '0 TON'")
	f.provider.On("PlaceSubscriptionOrder", mock.Anything, "alice", 9, false).Return(nil, providerErr).Once()
	f.notifier.On("NotifyOwner", mock.Anything, int64(7), notify.ServicePaused, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Reason == ""
	})).Return(nil).Once()
	f.notifier.On("NotifyAdmins", mock.Anything, notify.AdminFundsExhausted, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.InvoiceId == "inv-3" && msg.Reason != ""
	})).Return(nil).Once()

	err := f.dispatcher.Dispatch(ctx, Request{
		OwnerId:   7,
		AmountUsd: decimal.RequireFromString("29.99"),
		Intent:    intent.Subscription{OwnerId: 7, Months: 9, Target: "alice"},
		InvoiceId: "inv-3",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, providerErr))

	inv, err := f.db.GetInvoice(ctx, "inv-3")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, models.FulfillmentFailed, inv.FulfillmentStatus)
	assert.NotContains(t, inv.FulfillmentNote, "TON")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DispatchCounter("subscription", metrics.DispatchResultFundsExhausted)))
	f.notifier.AssertExpectations(t)
}

func TestDispatch_GenericProviderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.paidInvoice(t, "inv-4", 9, "0.99", intent.EncodePoints(9, 50, "bob"), time.Now().UTC())

	f.provider.On("PlacePointsOrder", mock.Anything, "bob", 50, false).
		Return(nil, &fragment.APIError{StatusCode: 400, Errors: []fragment.ErrorDetail{{Code: fragment.CodeRecipientNotFound, Message: "user not found"}}}).Once()
	f.notifier.On("NotifyOwner", mock.Anything, int64(9), notify.GenericFailure, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Ref() == "inv-4"
	})).Return(nil).Once()

	err := f.dispatcher.Dispatch(ctx, Request{
		OwnerId:   9,
		AmountUsd: decimal.RequireFromString("0.99"),
		Intent:    intent.Points{OwnerId: 9, Quantity: 50, Target: "bob"},
		InvoiceId: "inv-4",
	})
	require.Error(t, err)

	inv, err := f.db.GetInvoice(ctx, "inv-4")
	require.NoError(t, err)
	assert.Equal(t, models.FulfillmentFailed, inv.FulfillmentStatus)
	f.notifier.AssertNotCalled(t, "NotifyAdmins", mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertExpectations(t)
}

func TestDispatch_BalancePurchaseFailureLeavesOwnerMessageToCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.On("PlaceSubscriptionOrder", mock.Anything, "alice", 3, false).
		Return(nil, errors.New("Not enough funds, balance: '0 TON'")).Once()
	f.notifier.On("NotifyAdmins", mock.Anything, notify.AdminFundsExhausted, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Ref() == "checkout:abc"
	})).Return(nil).Once()

	err := f.dispatcher.Dispatch(ctx, Request{
		OwnerId:   9,
		AmountUsd: decimal.RequireFromString("12.99"),
		Intent:    intent.Subscription{OwnerId: 9, Months: 3, Target: "alice"},
		Reference: "checkout:abc",
	})
	require.Error(t, err)
	f.notifier.AssertNotCalled(t, "NotifyOwner", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertExpectations(t)
}

// failingLedger rejects every balance change.
type failingLedger struct {
	mock.Mock
}

func (m *failingLedger) Credit(ctx context.Context, ownerId int64, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	args := m.Called(ctx, ownerId, amount, reference)
	return decimal.Zero, args.Error(0)
}

func (m *failingLedger) Debit(ctx context.Context, ownerId int64, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	args := m.Called(ctx, ownerId, amount, reference)
	return decimal.Zero, args.Error(0)
}

func (m *failingLedger) GetBalance(ctx context.Context, ownerId int64) (decimal.Decimal, error) {
	return decimal.Zero, m.Called(ctx, ownerId).Error(0)
}

func TestDispatch_TopUpLedgerFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.paidInvoice(t, "inv-5", 11, "15.00", intent.EncodeTopUp(11, decimal.RequireFromString("15.00")), time.Now().UTC().Add(-time.Hour))

	ledger := &failingLedger{}
	ledgerErr := errors.New("database is locked")
	ledger.On("Credit", mock.Anything, int64(11), mock.Anything, "invoice:inv-5").Return(ledgerErr).Once()
	dispatcher := NewDispatcher(ledger, f.db, f.provider, f.notifier, f.metrics, false)

	f.notifier.On("NotifyOwner", mock.Anything, int64(11), notify.GenericFailure, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.InvoiceId == "inv-5"
	})).Return(nil).Once()

	err := dispatcher.Dispatch(ctx, Request{
		OwnerId:   11,
		AmountUsd: decimal.RequireFromString("15.00"),
		Intent:    intent.TopUp{},
		InvoiceId: "inv-5",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledgerErr)

	inv, err := f.db.GetInvoice(ctx, "inv-5")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, models.FulfillmentFailed, inv.FulfillmentStatus)
	assert.Equal(t, noteLedgerError, inv.FulfillmentNote)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DispatchCounter("topup", metrics.DispatchResultFailed)))

	// A failed credit is left for the operator; recovery only picks up pending dispatches.
	report, err := dispatcher.Recover(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{}, report)

	ledger.AssertNumberOfCalls(t, "Credit", 1)
	f.notifier.AssertExpectations(t)
}

func TestDispatch_NotifierFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.notifier.On("NotifyOwner", mock.Anything, int64(5), notify.TopUpCredited, mock.Anything).Return(errors.New("chat blocked")).Once()

	err := f.dispatcher.Dispatch(ctx, Request{OwnerId: 5, AmountUsd: decimal.RequireFromString("3.00"), Intent: intent.TopUp{}, Reference: "manual:1"})
	require.NoError(t, err)

	balance, err := f.db.GetBalance(ctx, 5)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("3")))
}

func TestRecover_StalledDispatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paidAt := time.Now().UTC().Add(-time.Hour)

	f.paidInvoice(t, "inv-topup", 1, "10.00", intent.EncodeTopUp(1, decimal.RequireFromString("10.00")), paidAt)
	f.paidInvoice(t, "inv-order", 2, "12.99", intent.EncodeSubscription(2, 3, "carol"), paidAt)
	f.paidInvoice(t, "inv-fresh", 3, "5.00", intent.EncodeTopUp(3, decimal.RequireFromString("5.00")), time.Now().UTC())

	// The top-up credit landed before the crash; recovery must not add it again.
	_, err := f.db.Credit(ctx, 1, decimal.RequireFromString("10.00"), "invoice:inv-topup")
	require.NoError(t, err)

	f.notifier.On("NotifyAdmins", mock.Anything, notify.AdminDispatchStalled, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.InvoiceId == "inv-order" && msg.Target == "carol" && msg.Quantity == 3
	})).Return(nil).Once()

	report, err := f.dispatcher.Recover(ctx, time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, RecoveryReport{Stalled: 2, Retried: 1, Flagged: 1}, report)

	balance, err := f.db.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("10")), "balance %s", balance)

	topup, err := f.db.GetInvoice(ctx, "inv-topup")
	require.NoError(t, err)
	assert.Equal(t, models.FulfillmentDispatched, topup.FulfillmentStatus)

	order, err := f.db.GetInvoice(ctx, "inv-order")
	require.NoError(t, err)
	assert.Equal(t, models.FulfillmentFailed, order.FulfillmentStatus)

	fresh, err := f.db.GetInvoice(ctx, "inv-fresh")
	require.NoError(t, err)
	assert.Equal(t, models.FulfillmentPendingDispatch, fresh.FulfillmentStatus)

	f.provider.AssertNotCalled(t, "PlaceSubscriptionOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertExpectations(t)
}
