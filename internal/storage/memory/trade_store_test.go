package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func TestTradeStore_InsertAndGet(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trades := []*domain.Trade{
		{TradeID: "t2", RunID: "run1", StrategyID: "S1", Leg: 1, EntryTime: t0, NetPnL: -1},
		{TradeID: "t1", RunID: "run1", StrategyID: "S1", Leg: 0, EntryTime: t0, NetPnL: 5},
		{TradeID: "t3", RunID: "run2", StrategyID: "S2", EntryTime: t0.AddDate(0, 0, 1)},
	}
	if err := store.InsertBulk(ctx, trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(got))
	}
	if got[0].TradeID != "t1" || got[1].TradeID != "t2" {
		t.Errorf("expected leg order t1, t2; got %s, %s", got[0].TradeID, got[1].TradeID)
	}

	// returned values are copies
	got[0].NetPnL = 1000
	again, _ := store.GetByRunID(ctx, "run1")
	if again[0].NetPnL != 5 {
		t.Error("store data modified through returned trade")
	}

	byStrategy, err := store.GetByStrategy(ctx, "S2")
	if err != nil {
		t.Fatalf("GetByStrategy failed: %v", err)
	}
	if len(byStrategy) != 1 || byStrategy[0].TradeID != "t3" {
		t.Errorf("unexpected trades for S2: %v", byStrategy)
	}
}

func TestTradeStore_InsertBulkAtomic(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.Trade{{TradeID: "t1", RunID: "run1"}}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.Trade{
		{TradeID: "t2", RunID: "run1"},
		{TradeID: "t1", RunID: "run1"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	err = store.InsertBulk(ctx, []*domain.Trade{
		{TradeID: "t4", RunID: "run1"},
		{TradeID: "t4", RunID: "run1"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	got, _ := store.GetByRunID(ctx, "run1")
	if len(got) != 1 {
		t.Errorf("failed batches must not insert anything, got %d trades", len(got))
	}

	if err := store.InsertBulk(ctx, []*domain.Trade{{TradeID: ""}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
