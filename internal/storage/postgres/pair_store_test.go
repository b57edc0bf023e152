package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/storage"
)

func TestPairStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPairStore(pool)
	ctx := context.Background()

	pairs := []domain.Pair{
		{
			ID: 1, ChainID: domain.ChainEthereum, ExchangeID: 1, Address: "0xb4e1",
			DEXType: domain.PairTypeUniswapV2, ExchangeSlug: "uniswap-v2", PairSlug: "eth-usdc",
			Token0Symbol: "USDC", Token1Symbol: "WETH", Token0Address: "0xa0b8", Token1Address: "0xc02a",
			BaseTokenSymbol: "WETH", QuoteTokenSymbol: "USDC", Fee: ptr(uint32(30)),
			BuyVolume30d: ptr(1000.5),
		},
		{
			ID: 2, ChainID: domain.ChainEthereum, ExchangeID: 1, Address: "0xa43f",
			Token0Symbol: "FOO", Token1Symbol: "BAR", FlagUnsupportedQuoteToken: true,
		},
	}
	require.NoError(t, store.Upsert(ctx, pairs))

	got, err := store.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, pairs[0], *got)

	got, err = store.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got.Fee)
	assert.Nil(t, got.BuyVolume30d)
	assert.True(t, got.FlagUnsupportedQuoteToken)

	_, err = store.GetByID(ctx, 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPairStore_UpsertReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPairStore(pool)
	ctx := context.Background()

	p := domain.Pair{ID: 7, ChainID: domain.ChainBSC, ExchangeID: 3, Address: "0x1"}
	require.NoError(t, store.Upsert(ctx, []domain.Pair{p}))

	p.FlagInactive = true
	p.SellVolume30d = ptr(12.0)
	require.NoError(t, store.Upsert(ctx, []domain.Pair{p}))

	got, err := store.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.True(t, got.FlagInactive)
	require.NotNil(t, got.SellVolume30d)
	assert.Equal(t, 12.0, *got.SellVolume30d)
}

func TestPairStore_GetByExchange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPairStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []domain.Pair{
		{ID: 3, ChainID: domain.ChainEthereum, ExchangeID: 1, Address: "0x3"},
		{ID: 1, ChainID: domain.ChainEthereum, ExchangeID: 1, Address: "0x1"},
		{ID: 2, ChainID: domain.ChainEthereum, ExchangeID: 2, Address: "0x2"},
	}))

	pairs, err := store.GetByExchange(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, domain.PairID(1), pairs[0].ID)
	assert.Equal(t, domain.PairID(3), pairs[1].ID)

	pairs, err = store.GetByExchange(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestPairStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPairStore(pool)
	err := store.Upsert(context.Background(), []domain.Pair{{ID: 0}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
