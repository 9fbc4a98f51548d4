package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polyagents/executor/pkg/models"
)

func newTestValidator(limits Limits, threshold int) (*Validator, *CircuitBreaker) {
	cb := NewCircuitBreaker(threshold, zap.NewNop())
	return NewValidator(limits, cb), cb
}

func validOrder() *models.OrderRequest {
	return &models.OrderRequest{
		MarketID:  "0xabc",
		OutcomeID: models.OutcomeYes,
		Side:      models.SideBuy,
		SizeUSD:   50,
		MaxPrice:  0.6,
	}
}

func TestValidate_Accepts(t *testing.T) {
	v, _ := newTestValidator(Limits{MaxTradeUSD: 100}, 3)
	assert.NoError(t, v.Validate(validOrder()))
}

func TestValidate_SizeExceeded(t *testing.T) {
	v, _ := newTestValidator(Limits{MaxTradeUSD: 100}, 3)
	for _, size := range []float64{100.01, 500, 1e9} {
		order := validOrder()
		order.SizeUSD = size
		err := v.Validate(order)
		require.Error(t, err)
		var rej *RejectionError
		require.ErrorAs(t, err, &rej)
		assert.Contains(t, rej.Reason, "exceeds max")
	}
}

func TestValidate_HaltedRejectsEverything(t *testing.T) {
	v, cb := newTestValidator(Limits{MaxTradeUSD: 100}, 2)
	cb.RecordFailure()
	cb.RecordFailure()
	require.True(t, cb.Halted())

	err := v.Validate(validOrder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "halted after 2 consecutive failures")
}

func TestValidate_Allowlist(t *testing.T) {
	v, _ := newTestValidator(Limits{MaxTradeUSD: 100, AllowedMarkets: []string{"0xabc"}}, 3)
	assert.NoError(t, v.Validate(validOrder()))

	order := validOrder()
	order.MarketID = "0xdef"
	err := v.Validate(order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in allowlist")
}

func TestValidate_PriceBounds(t *testing.T) {
	v, _ := newTestValidator(Limits{MaxTradeUSD: 100}, 3)
	for _, price := range []float64{0.009, 0.991, -0.5, 1.5} {
		order := validOrder()
		order.MaxPrice = price
		err := v.Validate(order)
		require.Error(t, err, "price %v should be rejected", price)
		assert.Contains(t, err.Error(), "out of bounds")
	}
	for _, price := range []float64{0.01, 0.5, 0.99} {
		order := validOrder()
		order.MaxPrice = price
		assert.NoError(t, v.Validate(order), "price %v should be accepted", price)
	}
}

func TestValidate_CheckOrder(t *testing.T) {
	// Size check runs before allowlist and price bounds.
	v, _ := newTestValidator(Limits{MaxTradeUSD: 100, AllowedMarkets: []string{"other"}}, 3)
	order := validOrder()
	order.SizeUSD = 1000
	order.MaxPrice = 5
	err := v.Validate(order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
}

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, zap.NewNop())
	cb.RecordFailure()
	cb.RecordFailure()
	assert.False(t, cb.Halted())
	cb.RecordFailure()
	assert.True(t, cb.Halted())
	assert.Equal(t, 3, cb.Failures())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(3, zap.NewNop())
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.Failures())
	cb.RecordFailure()
	cb.RecordFailure()
	assert.False(t, cb.Halted())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(1, zap.NewNop())
	cb.RecordFailure()
	require.True(t, cb.Halted())
	cb.Reset()
	assert.False(t, cb.Halted())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_ConcurrentUpdates(t *testing.T) {
	cb := NewCircuitBreaker(1000, zap.NewNop())
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cb.RecordFailure()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Equal(t, 400, cb.Failures())
}
