package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_WeightedAverage(t *testing.T) {
	pool := NewPool()
	pool.AddShares(100, 10)
	pool.AddShares(50, 16)

	assert.InDelta(t, 150.0, pool.TotalShares(), 1e-9)
	assert.InDelta(t, 12.0, pool.AvgCostGBP(), 1e-9) // (1000+800)/150
}

func TestPool_RemovalKeepsAverage(t *testing.T) {
	pool := NewPool()
	pool.AddShares(100, 10)

	cost, err := pool.RemoveShares(40)
	require.NoError(t, err)
	assert.InDelta(t, 400.0, cost, 1e-9)
	assert.InDelta(t, 60.0, pool.TotalShares(), 1e-9)
	assert.InDelta(t, 10.0, pool.AvgCostGBP(), 1e-9)
}

func TestPool_InsufficientShares(t *testing.T) {
	pool := NewPool()
	pool.AddShares(10, 10)

	cost, err := pool.RemoveShares(10.5)
	assert.ErrorIs(t, err, ErrInsufficientPoolShares)
	assert.Zero(t, cost)

	// The failed removal must not have touched the pool.
	assert.InDelta(t, 10.0, pool.TotalShares(), 1e-9)
	assert.InDelta(t, 10.0, pool.AvgCostGBP(), 1e-9)
}

func TestPool_NonPositiveAddIsNoOp(t *testing.T) {
	pool := NewPool()
	pool.AddShares(100, 10)
	pool.AddShares(0, 50)
	pool.AddShares(-5, 50)

	assert.InDelta(t, 100.0, pool.TotalShares(), 1e-9)
	assert.InDelta(t, 10.0, pool.AvgCostGBP(), 1e-9)
}

func TestPool_CostBasisIdentity(t *testing.T) {
	// totalShares * avgCost must track the summed cost through a sequence of
	// adds and removals.
	pool := NewPool()
	pool.AddShares(100, 10)
	pool.AddShares(25, 14)
	_, err := pool.RemoveShares(50)
	require.NoError(t, err)
	pool.AddShares(10, 20)

	expectedCost := 100*10.0 + 25*14.0 - 50*((100*10.0+25*14.0)/125.0) + 10*20.0
	assert.InDelta(t, expectedCost, pool.TotalShares()*pool.AvgCostGBP(), 1e-9)
}

func TestPool_DrainToEmpty(t *testing.T) {
	pool := NewPool()
	pool.AddShares(40, 12.5)

	cost, err := pool.RemoveShares(40)
	require.NoError(t, err)
	assert.InDelta(t, 500.0, cost, 1e-9)
	assert.InDelta(t, 0.0, pool.TotalShares(), 1e-9)
}
