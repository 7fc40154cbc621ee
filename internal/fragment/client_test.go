package fragment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cryptopay-fulfillment-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.Client(), models.FragmentConfig{Token: "jwt-token", BaseURL: server.URL})
}

func TestPlaceSubscriptionOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order/premium/", r.URL.Path)
		assert.Equal(t, "JWT jwt-token", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])
		assert.EqualValues(t, 9, body["months"])
		assert.Equal(t, false, body["show_sender"])

		_, _ = w.Write([]byte(`{"id":"ord-1","username":"alice","months":9,"status":"pending","price":"29.99","currency":"USD"}`))
	})

	order, err := client.PlaceSubscriptionOrder(context.Background(), "alice", 9, false)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.Id)
	assert.Equal(t, models.ProductSubscription, order.Kind)
	assert.Equal(t, 9, order.Quantity)
	assert.True(t, order.Price.Equal(decimal.RequireFromString("29.99")))
}

func TestPlacePointsOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order/stars/", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 100, body["quantity"])
		assert.Equal(t, true, body["show_sender"])
		_, _ = w.Write([]byte(`{"id":"ord-2","status":"completed"}`))
	})

	order, err := client.PlacePointsOrder(context.Background(), "bob", 100, true)
	require.NoError(t, err)
	assert.Equal(t, "ord-2", order.Id)
	assert.Equal(t, "bob", order.Target)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, "completed", order.Status)
}

func TestPlacePointsOrder_FundsExhausted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"code":0,"error":"Not enough funds for wallet, balance: '0 TON'"}]}`))
	})

	_, err := client.PlacePointsOrder(context.Background(), "bob", 100, false)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, KindFundsExhausted, Classify(err))
}

func TestPing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		if r.Header.Get("Authorization") != "JWT jwt-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	assert.NoError(t, client.Ping(context.Background()))
}

func TestPing_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid token"}`))
	})
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindGeneric, Classify(err))
}

func TestDemoMode(t *testing.T) {
	client := NewClient(http.DefaultClient, models.FragmentConfig{Token: "  "})
	require.True(t, client.DemoMode())

	order, err := client.PlaceSubscriptionOrder(context.Background(), "alice", 3, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(order.Id, "demo_premium_order_alice_"))
	assert.Equal(t, 3, order.Quantity)

	order, err = client.PlacePointsOrder(context.Background(), "bob", 50, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(order.Id, "demo_stars_order_bob_"))
	assert.Equal(t, models.ProductPoints, order.Kind)

	assert.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, DefaultBaseURL, client.baseURL)
}
