package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/storage"
)

// ExchangeStore implements storage.ExchangeStore using PostgreSQL.
type ExchangeStore struct {
	pool *Pool
}

// NewExchangeStore creates a new ExchangeStore.
func NewExchangeStore(pool *Pool) *ExchangeStore {
	return &ExchangeStore{pool: pool}
}

var _ storage.ExchangeStore = (*ExchangeStore)(nil)

const upsertExchange = `
	INSERT INTO exchanges (
		exchange_id, chain_id, chain_slug, slug, address, exchange_type, name, homepage,
		pair_count, active_pairs, buy_volume_30d, sell_volume_30d
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (exchange_id) DO UPDATE SET
		chain_id = EXCLUDED.chain_id,
		chain_slug = EXCLUDED.chain_slug,
		slug = EXCLUDED.slug,
		address = EXCLUDED.address,
		exchange_type = EXCLUDED.exchange_type,
		name = EXCLUDED.name,
		homepage = EXCLUDED.homepage,
		pair_count = EXCLUDED.pair_count,
		active_pairs = EXCLUDED.active_pairs,
		buy_volume_30d = EXCLUDED.buy_volume_30d,
		sell_volume_30d = EXCLUDED.sell_volume_30d,
		updated_at = now()
`

const selectExchanges = `
	SELECT exchange_id, chain_id, chain_slug, slug, address, exchange_type, name, homepage,
		pair_count, active_pairs, buy_volume_30d, sell_volume_30d
	FROM exchanges
`

// Upsert inserts or replaces exchanges in one transaction.
func (s *ExchangeStore) Upsert(ctx context.Context, exchanges []domain.Exchange) (err error) {
	if len(exchanges) == 0 {
		return nil
	}
	for _, e := range exchanges {
		if e.ID == 0 {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() { s.pool.observe("upsert_exchanges", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range exchanges {
		_, err := tx.Exec(ctx, upsertExchange,
			int64(e.ID),
			int32(e.ChainID),
			e.ChainSlug,
			e.Slug,
			e.Address,
			string(e.Type),
			e.Name,
			e.Homepage,
			int32(e.PairCount),
			e.ActivePairs,
			e.BuyVolume30d,
			e.SellVolume30d,
		)
		if err != nil {
			return fmt.Errorf("upsert exchange %d: %w", e.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves an exchange. Returns ErrNotFound if not exists.
func (s *ExchangeStore) GetByID(ctx context.Context, id domain.ExchangeID) (*domain.Exchange, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, selectExchanges+` WHERE exchange_id = $1`, int64(id))
	s.pool.observe("get_exchange", start, err)
	if err != nil {
		return nil, fmt.Errorf("get exchange by id: %w", err)
	}

	e, err := pgx.CollectExactlyOneRow(rows, scanExchange)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get exchange by id: %w", err)
	}
	return &e, nil
}

// GetByChain retrieves all exchanges of a chain, ordered by exchange id.
func (s *ExchangeStore) GetByChain(ctx context.Context, chain domain.ChainID) ([]domain.Exchange, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, selectExchanges+` WHERE chain_id = $1 ORDER BY exchange_id ASC`, int32(chain))
	s.pool.observe("get_exchanges", start, err)
	if err != nil {
		return nil, fmt.Errorf("get exchanges by chain: %w", err)
	}

	exchanges, err := pgx.CollectRows(rows, scanExchange)
	if err != nil {
		return nil, fmt.Errorf("iterate exchange rows: %w", err)
	}
	return exchanges, nil
}

func scanExchange(row pgx.CollectableRow) (domain.Exchange, error) {
	var (
		e            domain.Exchange
		id           int64
		chain        int32
		exchangeType string
		pairCount    int32
		activePairs  *int32
	)
	err := row.Scan(
		&id, &chain, &e.ChainSlug, &e.Slug, &e.Address, &exchangeType, &e.Name, &e.Homepage,
		&pairCount, &activePairs, &e.BuyVolume30d, &e.SellVolume30d,
	)
	if err != nil {
		return domain.Exchange{}, fmt.Errorf("scan exchange row: %w", err)
	}

	e.ID = domain.ExchangeID(id)
	e.ChainID = domain.ChainID(chain)
	e.Type = domain.ExchangeType(exchangeType)
	e.PairCount = int(pairCount)
	if activePairs != nil {
		v := int(*activePairs)
		e.ActivePairs = &v
	}
	return e, nil
}
