package memory

import (
	"context"
	"errors"
	"testing"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/storage"
)

func TestPairStore_UpsertAndGet(t *testing.T) {
	store := NewPairStore()
	ctx := context.Background()

	vol := 1000.0
	pairs := []domain.Pair{
		{ID: 2, ExchangeID: 1, BaseTokenSymbol: "PEPE", QuoteTokenSymbol: "WETH"},
		{ID: 1, ExchangeID: 1, BaseTokenSymbol: "WETH", QuoteTokenSymbol: "USDC", BuyVolume30d: &vol},
		{ID: 3, ExchangeID: 2, BaseTokenSymbol: "WETH", QuoteTokenSymbol: "USDT"},
	}
	if err := store.Upsert(ctx, pairs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	p, err := store.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if p.Ticker() != "WETH-USDC" {
		t.Errorf("ticker = %s", p.Ticker())
	}

	// Stored rows must not alias caller memory.
	vol = 0
	p, _ = store.GetByID(ctx, 1)
	if *p.BuyVolume30d != 1000 {
		t.Errorf("stored volume changed through caller pointer: %v", *p.BuyVolume30d)
	}

	onExchange, err := store.GetByExchange(ctx, 1)
	if err != nil {
		t.Fatalf("GetByExchange failed: %v", err)
	}
	if len(onExchange) != 2 || onExchange[0].ID != 1 || onExchange[1].ID != 2 {
		t.Errorf("GetByExchange = %+v", onExchange)
	}
}

func TestPairStore_UpsertReplaces(t *testing.T) {
	store := NewPairStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, []domain.Pair{{ID: 1, ExchangeID: 1}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, []domain.Pair{{ID: 1, ExchangeID: 1, FlagInactive: true}}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	p, err := store.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !p.FlagInactive {
		t.Error("Expected the second upsert to replace the row")
	}
}

func TestPairStore_NotFoundAndInvalid(t *testing.T) {
	store := NewPairStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	err := store.Upsert(ctx, []domain.Pair{{ID: 5}, {ID: 0}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, err := store.GetByID(ctx, 5); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected nothing written on invalid batch, got %v", err)
	}
}

func TestExchangeStore_UpsertAndGet(t *testing.T) {
	store := NewExchangeStore()
	ctx := context.Background()

	exchanges := []domain.Exchange{
		{ID: 2, ChainID: domain.ChainEthereum, Slug: "sushi"},
		{ID: 1, ChainID: domain.ChainEthereum, Slug: "uniswap-v2"},
		{ID: 3, ChainID: domain.ChainBSC, Slug: "pancakeswap-v2"},
	}
	if err := store.Upsert(ctx, exchanges); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	e, err := store.GetByID(ctx, 3)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if e.Slug != "pancakeswap-v2" {
		t.Errorf("slug = %s", e.Slug)
	}

	eth, err := store.GetByChain(ctx, domain.ChainEthereum)
	if err != nil {
		t.Fatalf("GetByChain failed: %v", err)
	}
	if len(eth) != 2 || eth[0].Slug != "uniswap-v2" {
		t.Errorf("GetByChain = %+v", eth)
	}

	if _, err := store.GetByID(ctx, 99); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
