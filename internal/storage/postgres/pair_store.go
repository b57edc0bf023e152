package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/storage"
)

// PairStore implements storage.PairStore using PostgreSQL.
type PairStore struct {
	pool *Pool
}

// NewPairStore creates a new PairStore.
func NewPairStore(pool *Pool) *PairStore {
	return &PairStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PairStore = (*PairStore)(nil)

const upsertPair = `
	INSERT INTO pairs (
		pair_id, chain_id, exchange_id, address, dex_type, exchange_slug, pair_slug,
		token0_symbol, token1_symbol, token0_address, token1_address,
		base_token_symbol, quote_token_symbol, fee,
		flag_inactive, flag_unsupported_quote_token, buy_volume_30d, sell_volume_30d
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	ON CONFLICT (pair_id) DO UPDATE SET
		chain_id = EXCLUDED.chain_id,
		exchange_id = EXCLUDED.exchange_id,
		address = EXCLUDED.address,
		dex_type = EXCLUDED.dex_type,
		exchange_slug = EXCLUDED.exchange_slug,
		pair_slug = EXCLUDED.pair_slug,
		token0_symbol = EXCLUDED.token0_symbol,
		token1_symbol = EXCLUDED.token1_symbol,
		token0_address = EXCLUDED.token0_address,
		token1_address = EXCLUDED.token1_address,
		base_token_symbol = EXCLUDED.base_token_symbol,
		quote_token_symbol = EXCLUDED.quote_token_symbol,
		fee = EXCLUDED.fee,
		flag_inactive = EXCLUDED.flag_inactive,
		flag_unsupported_quote_token = EXCLUDED.flag_unsupported_quote_token,
		buy_volume_30d = EXCLUDED.buy_volume_30d,
		sell_volume_30d = EXCLUDED.sell_volume_30d,
		updated_at = now()
`

const selectPairs = `
	SELECT pair_id, chain_id, exchange_id, address, dex_type, exchange_slug, pair_slug,
		token0_symbol, token1_symbol, token0_address, token1_address,
		base_token_symbol, quote_token_symbol, fee,
		flag_inactive, flag_unsupported_quote_token, buy_volume_30d, sell_volume_30d
	FROM pairs
`

// Upsert inserts or replaces pairs in one transaction.
func (s *PairStore) Upsert(ctx context.Context, pairs []domain.Pair) (err error) {
	if len(pairs) == 0 {
		return nil
	}
	for _, p := range pairs {
		if p.ID == 0 {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() { s.pool.observe("upsert_pairs", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range pairs {
		batch.Queue(upsertPair,
			int64(p.ID),
			int32(p.ChainID),
			int64(p.ExchangeID),
			p.Address,
			string(p.DEXType),
			p.ExchangeSlug,
			p.PairSlug,
			p.Token0Symbol,
			p.Token1Symbol,
			p.Token0Address,
			p.Token1Address,
			p.BaseTokenSymbol,
			p.QuoteTokenSymbol,
			feeParam(p.Fee),
			p.FlagInactive,
			p.FlagUnsupportedQuoteToken,
			p.BuyVolume30d,
			p.SellVolume30d,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range pairs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert pair: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a pair. Returns ErrNotFound if not exists.
func (s *PairStore) GetByID(ctx context.Context, id domain.PairID) (*domain.Pair, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, selectPairs+` WHERE pair_id = $1`, int64(id))
	s.pool.observe("get_pair", start, err)
	if err != nil {
		return nil, fmt.Errorf("get pair by id: %w", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPair)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pair by id: %w", err)
	}
	return &p, nil
}

// GetByExchange retrieves all pairs of an exchange, ordered by pair id.
func (s *PairStore) GetByExchange(ctx context.Context, exchange domain.ExchangeID) ([]domain.Pair, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, selectPairs+` WHERE exchange_id = $1 ORDER BY pair_id ASC`, int64(exchange))
	s.pool.observe("get_pairs", start, err)
	if err != nil {
		return nil, fmt.Errorf("get pairs by exchange: %w", err)
	}

	pairs, err := pgx.CollectRows(rows, scanPair)
	if err != nil {
		return nil, fmt.Errorf("iterate pair rows: %w", err)
	}
	return pairs, nil
}

// scanPair scans one row of selectPairs.
func scanPair(row pgx.CollectableRow) (domain.Pair, error) {
	var (
		p            domain.Pair
		id, exchange int64
		chain        int32
		dexType      string
		fee          *int32
	)
	err := row.Scan(
		&id, &chain, &exchange,
		&p.Address, &dexType, &p.ExchangeSlug, &p.PairSlug,
		&p.Token0Symbol, &p.Token1Symbol, &p.Token0Address, &p.Token1Address,
		&p.BaseTokenSymbol, &p.QuoteTokenSymbol, &fee,
		&p.FlagInactive, &p.FlagUnsupportedQuoteToken,
		&p.BuyVolume30d, &p.SellVolume30d,
	)
	if err != nil {
		return domain.Pair{}, fmt.Errorf("scan pair row: %w", err)
	}

	p.ID = domain.PairID(id)
	p.ChainID = domain.ChainID(chain)
	p.ExchangeID = domain.ExchangeID(exchange)
	p.DEXType = domain.PairType(dexType)
	if fee != nil {
		v := uint32(*fee)
		p.Fee = &v
	}
	return p, nil
}

func feeParam(fee *uint32) *int32 {
	if fee == nil {
		return nil
	}
	v := int32(*fee)
	return &v
}
