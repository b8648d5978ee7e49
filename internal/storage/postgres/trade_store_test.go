package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func createTestTrade(tradeID, runID, strategyID string, leg, entry int) *domain.Trade {
	return &domain.Trade{
		TradeID:    tradeID,
		RunID:      runID,
		StrategyID: strategyID,
		Symbol:     "KO",
		Leg:        leg,
		Direction:  domain.DirectionShort,
		EntryIndex: entry,
		EntryTime:  t0.AddDate(0, 0, entry),
		EntryPrice: 60.5,
		Quantity:   100,
		EntryCost:  6.05,
		ExitIndex:  entry + 5,
		ExitTime:   t0.AddDate(0, 0, entry+5),
		ExitPrice:  58.25,
		ExitCost:   5.825,
		Forced:     true,
		GrossPnL:   225,
		NetPnL:     213.125,
		Return:     0.0352,
	}
}

func TestTradeStore_InsertAndGetByRunID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	trades := []*domain.Trade{
		createTestTrade("trade-2", "run-1", "PAIRS_60_20_2.00_0.50", 1, 10),
		createTestTrade("trade-1", "run-1", "PAIRS_60_20_2.00_0.50", 0, 10),
		createTestTrade("trade-3", "run-2", "MOMENTUM_20_20_1.00", 0, 3),
	}
	require.NoError(t, store.InsertBulk(ctx, trades))

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "trade-1", got[0].TradeID)
	assert.Equal(t, "trade-2", got[1].TradeID)

	want := trades[1]
	r := got[0]
	assert.Equal(t, want.RunID, r.RunID)
	assert.Equal(t, want.StrategyID, r.StrategyID)
	assert.Equal(t, want.Symbol, r.Symbol)
	assert.Equal(t, domain.DirectionShort, r.Direction)
	assert.Equal(t, want.EntryIndex, r.EntryIndex)
	assert.True(t, want.EntryTime.Equal(r.EntryTime))
	assert.True(t, want.ExitTime.Equal(r.ExitTime))
	assert.InDelta(t, want.EntryPrice, r.EntryPrice, 1e-9)
	assert.InDelta(t, want.Quantity, r.Quantity, 1e-9)
	assert.InDelta(t, want.NetPnL, r.NetPnL, 1e-9)
	assert.True(t, r.Forced)

	byStrategy, err := store.GetByStrategy(ctx, "MOMENTUM_20_20_1.00")
	require.NoError(t, err)
	require.Len(t, byStrategy, 1)
	assert.Equal(t, "trade-3", byStrategy[0].TradeID)
}

func TestTradeStore_InsertBulkDuplicateRollsBack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.Trade{createTestTrade("trade-1", "run-1", "S", 0, 0)}))

	err := store.InsertBulk(ctx, []*domain.Trade{
		createTestTrade("trade-2", "run-1", "S", 0, 1),
		createTestTrade("trade-1", "run-1", "S", 0, 2),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 1, "failed batch must not leave partial rows")

	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.Trade{{TradeID: "x"}}), storage.ErrInvalidInput)
}
