package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/storage"
)

func TestExchangeStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewExchangeStore(pool)
	ctx := context.Background()

	exchanges := []domain.Exchange{
		{
			ID: 1, ChainID: domain.ChainEthereum, ChainSlug: "ethereum", Slug: "uniswap-v2",
			Address: "0x5c69", Type: domain.ExchangeTypeUniswapV2, Name: "Uniswap v2",
			Homepage: "https://uniswap.org", PairCount: 120000, ActivePairs: ptr(4000),
			BuyVolume30d: ptr(1e9), SellVolume30d: ptr(9e8),
		},
		{ID: 2, ChainID: domain.ChainEthereum, Slug: "sushi", PairCount: 3000},
		{ID: 3, ChainID: domain.ChainBSC, Slug: "pancakeswap-v2"},
	}
	require.NoError(t, store.Upsert(ctx, exchanges))

	got, err := store.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, exchanges[0], *got)

	_, err = store.GetByID(ctx, 9)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	eth, err := store.GetByChain(ctx, domain.ChainEthereum)
	require.NoError(t, err)
	require.Len(t, eth, 2)
	assert.Equal(t, "uniswap-v2", eth[0].Slug)
	assert.Nil(t, eth[1].ActivePairs)

	exchanges[1].PairCount = 3100
	require.NoError(t, store.Upsert(ctx, exchanges[1:2]))
	got, err = store.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3100, got.PairCount)
}
