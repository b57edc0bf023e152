package memory

import (
	"context"
	"sort"
	"sync"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/storage"
)

// PairStore is an in-memory implementation of storage.PairStore.
type PairStore struct {
	mu   sync.RWMutex
	byID map[domain.PairID]domain.Pair
}

// NewPairStore creates a new in-memory pair store.
func NewPairStore() *PairStore {
	return &PairStore{byID: make(map[domain.PairID]domain.Pair)}
}

// Upsert inserts or replaces pairs. Nothing is written if any pair is invalid.
func (s *PairStore) Upsert(_ context.Context, pairs []domain.Pair) error {
	for _, p := range pairs {
		if p.ID == 0 {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range pairs {
		s.byID[p.ID] = clonePair(p)
	}
	return nil
}

// GetByID retrieves a pair. Returns ErrNotFound if not exists.
func (s *PairStore) GetByID(_ context.Context, id domain.PairID) (*domain.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	p = clonePair(p)
	return &p, nil
}

// GetByExchange retrieves all pairs of an exchange, ordered by pair id.
func (s *PairStore) GetByExchange(_ context.Context, exchange domain.ExchangeID) ([]domain.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Pair
	for _, p := range s.byID {
		if p.ExchangeID == exchange {
			result = append(result, clonePair(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// clonePair copies the pointer fields so callers cannot alias stored rows.
func clonePair(p domain.Pair) domain.Pair {
	p.Fee = clonePtr(p.Fee)
	p.BuyVolume30d = clonePtr(p.BuyVolume30d)
	p.SellVolume30d = clonePtr(p.SellVolume30d)
	return p
}

// ExchangeStore is an in-memory implementation of storage.ExchangeStore.
type ExchangeStore struct {
	mu   sync.RWMutex
	byID map[domain.ExchangeID]domain.Exchange
}

// NewExchangeStore creates a new in-memory exchange store.
func NewExchangeStore() *ExchangeStore {
	return &ExchangeStore{byID: make(map[domain.ExchangeID]domain.Exchange)}
}

// Upsert inserts or replaces exchanges. Nothing is written if any exchange is invalid.
func (s *ExchangeStore) Upsert(_ context.Context, exchanges []domain.Exchange) error {
	for _, e := range exchanges {
		if e.ID == 0 {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range exchanges {
		s.byID[e.ID] = cloneExchange(e)
	}
	return nil
}

// GetByID retrieves an exchange. Returns ErrNotFound if not exists.
func (s *ExchangeStore) GetByID(_ context.Context, id domain.ExchangeID) (*domain.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	e = cloneExchange(e)
	return &e, nil
}

// GetByChain retrieves all exchanges of a chain, ordered by exchange id.
func (s *ExchangeStore) GetByChain(_ context.Context, chain domain.ChainID) ([]domain.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Exchange
	for _, e := range s.byID {
		if e.ChainID == chain {
			result = append(result, cloneExchange(e))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func cloneExchange(e domain.Exchange) domain.Exchange {
	e.ActivePairs = clonePtr(e.ActivePairs)
	e.BuyVolume30d = clonePtr(e.BuyVolume30d)
	e.SellVolume30d = clonePtr(e.SellVolume30d)
	return e
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

var (
	_ storage.PairStore     = (*PairStore)(nil)
	_ storage.ExchangeStore = (*ExchangeStore)(nil)
)
