package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDriver(t *testing.T, handler http.Handler, proxy string) (*Driver, *atomic.Int32) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var rotations atomic.Int32
	factory := func() *http.Client {
		rotations.Add(1)
		return srv.Client()
	}
	d := NewDriverWithTransport(Config{
		BaseURL:    srv.URL,
		ProxyURL:   proxy,
		MaxRetries: 5,
		Timeout:    5 * time.Second,
		RetryPause: time.Millisecond,
	}, factory, zap.NewNop())
	return d, &rotations
}

func orderOK(orderID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(orderResponse{OrderID: orderID, Status: "live", Success: true})
	}
}

func TestBuyGTC_Succeeds(t *testing.T) {
	var got orderArgs
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		orderOK("ord-1")(w, r)
	}), "")

	orderID, err := d.BuyGTC(context.Background(), "tok-yes", 83.3, 0.567)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", orderID)
	assert.Equal(t, "BUY", got.Side)
	assert.Equal(t, "GTC", got.OrderType)
	assert.InDelta(t, 0.57, got.Price, 1e-9) // rounded to the venue tick
}

func TestSellFOK_HaircutPrice(t *testing.T) {
	var got orderArgs
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		orderOK("")(w, r)
	}), "")

	orderID, filled, err := d.SellFOK(context.Background(), "tok-yes", 100, 0.55)
	require.NoError(t, err)
	assert.True(t, filled)
	assert.Equal(t, "filled", orderID) // venue acked without an id
	assert.Equal(t, "SELL", got.Side)
	assert.Equal(t, "FOK", got.OrderType)
	assert.InDelta(t, 0.50, got.Price, 1e-9) // 0.55 * 0.90, rounded
}

func TestSellFOK_PriceFloor(t *testing.T) {
	var got orderArgs
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		orderOK("ord-2")(w, r)
	}), "")

	_, _, err := d.SellFOK(context.Background(), "tok-no", 10, 0.005)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, got.Price, 1e-9)
}

func TestSubmit_RetriesBlockWithProxy(t *testing.T) {
	var calls atomic.Int32
	d, rotations := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "Attention Required! | Cloudflare", http.StatusForbidden)
			return
		}
		orderOK("ord-3")(w, r)
	}), "http://rotating-proxy.local:8080")

	orderID, err := d.BuyGTC(context.Background(), "tok", 10, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "ord-3", orderID)
	assert.Equal(t, int32(3), calls.Load())
	// one client at construction plus one per retry
	assert.Equal(t, int32(3), rotations.Load())
}

func TestSubmit_BlockWithoutProxyIsTerminal(t *testing.T) {
	var calls atomic.Int32
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "Attention Required! | Cloudflare", http.StatusForbidden)
	}), "")

	_, err := d.BuyGTC(context.Background(), "tok", 10, 0.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportBlocked)
	assert.Equal(t, int32(1), calls.Load(), "no retries without a rotating identity")
}

func TestSubmit_TerminalErrorAbortsImmediately(t *testing.T) {
	var calls atomic.Int32
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(orderResponse{ErrorMsg: "insufficient balance"})
	}), "http://rotating-proxy.local:8080")

	_, err := d.BuyGTC(context.Background(), "tok", 10, 0.5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransportBlocked)
	assert.Contains(t, err.Error(), "insufficient balance")
	assert.Equal(t, int32(1), calls.Load(), "terminal errors must not be retried")
}

func TestSubmit_ExhaustedRetriesSurfaceBlockError(t *testing.T) {
	var calls atomic.Int32
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "error 403: blocked by security provider", http.StatusForbidden)
	}), "http://rotating-proxy.local:8080")

	_, err := d.BuyGTC(context.Background(), "tok", 10, 0.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportBlocked)
	assert.Equal(t, int32(5), calls.Load(), "must use the full retry budget")
}

func TestSellFOK_NoLiquidity(t *testing.T) {
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(orderResponse{ErrorMsg: "no match for order"})
	}), "")

	_, filled, err := d.SellFOK(context.Background(), "tok", 10, 0.5)
	require.Error(t, err)
	assert.False(t, filled)
	assert.ErrorIs(t, err, ErrNoLiquidity)
	assert.Contains(t, err.Error(), "$0.45")
}

func TestOrders(t *testing.T) {
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		w.Write([]byte(`[{"order_id":"o1","token_id":"t1","side":"buy","price":0.4,"size":10,"status":"live"}]`))
	}), "")

	orders, err := d.Orders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].OrderID)
}

func TestIsTransportBlock(t *testing.T) {
	assert.True(t, isTransportBlock(&APIError{Status: 403, Body: "checking your browser - Cloudflare"}))
	assert.True(t, isTransportBlock(&APIError{Status: 403, Body: "request blocked"}))
	assert.False(t, isTransportBlock(&APIError{Status: 403, Body: "forbidden"}))
	assert.False(t, isTransportBlock(&APIError{Status: 500, Body: "blocked pipe"}))
	assert.False(t, isTransportBlock(nil))
}
