package universe

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"dex-market-data/internal/domain"
)

// ErrDuplicatePair is returned by ticker lookups that match more than one
// pair. Scam tokens often reuse well-known symbols.
var ErrDuplicatePair = errors.New("multiple pairs match")

// ExchangeUniverse indexes the exchange universe dataset.
type ExchangeUniverse struct {
	byID    map[domain.ExchangeID]domain.Exchange
	ordered []domain.Exchange
}

// NewExchangeUniverse indexes exchanges by id.
func NewExchangeUniverse(exchanges []domain.Exchange) *ExchangeUniverse {
	u := &ExchangeUniverse{
		byID:    make(map[domain.ExchangeID]domain.Exchange, len(exchanges)),
		ordered: make([]domain.Exchange, 0, len(exchanges)),
	}
	for _, e := range exchanges {
		if _, dup := u.byID[e.ID]; dup {
			continue
		}
		u.byID[e.ID] = e
		u.ordered = append(u.ordered, e)
	}
	sort.Slice(u.ordered, func(i, j int) bool { return u.ordered[i].ID < u.ordered[j].ID })
	return u
}

func (u *ExchangeUniverse) Len() int { return len(u.ordered) }

// All returns every exchange ordered by id.
func (u *ExchangeUniverse) All() []domain.Exchange {
	return clone(u.ordered)
}

// ByID returns the exchange with id.
func (u *ExchangeUniverse) ByID(id domain.ExchangeID) (domain.Exchange, error) {
	e, ok := u.byID[id]
	if !ok {
		return domain.Exchange{}, fmt.Errorf("exchange %d: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

// BySlug finds an exchange by chain and slug, ignoring case.
func (u *ExchangeUniverse) BySlug(chain domain.ChainID, slug string) (domain.Exchange, error) {
	for _, e := range u.ordered {
		if e.ChainID == chain && strings.EqualFold(e.Slug, slug) {
			return e, nil
		}
	}
	return domain.Exchange{}, fmt.Errorf("exchange %q on %s: %w", slug, chain.Slug(), domain.ErrNotFound)
}

// ByFactory finds an exchange by chain and factory contract address.
func (u *ExchangeUniverse) ByFactory(chain domain.ChainID, address string) (domain.Exchange, error) {
	for _, e := range u.ordered {
		if e.ChainID == chain && strings.EqualFold(e.Address, address) {
			return e, nil
		}
	}
	return domain.Exchange{}, fmt.Errorf("exchange factory %s on %s: %w", address, chain.Slug(), domain.ErrNotFound)
}

// TopByVolume returns exchanges ordered by 30 day volume, highest first.
func (u *ExchangeUniverse) TopByVolume() []domain.Exchange {
	out := clone(u.ordered)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Volume30d() > out[j].Volume30d() })
	return out
}

// PairUniverse indexes the pair universe dataset.
type PairUniverse struct {
	byID      map[domain.PairID]domain.Pair
	byAddress map[string]domain.PairID
	ordered   []domain.Pair
}

// NewPairUniverse indexes pairs by id and pool address. If exchanges is
// not nil, missing exchange slugs are filled from it.
func NewPairUniverse(pairs []domain.Pair, exchanges *ExchangeUniverse) *PairUniverse {
	u := &PairUniverse{
		byID:      make(map[domain.PairID]domain.Pair, len(pairs)),
		byAddress: make(map[string]domain.PairID, len(pairs)),
		ordered:   make([]domain.Pair, 0, len(pairs)),
	}
	for _, p := range pairs {
		if _, dup := u.byID[p.ID]; dup {
			continue
		}
		if p.ExchangeSlug == "" && exchanges != nil {
			if e, err := exchanges.ByID(p.ExchangeID); err == nil {
				p.ExchangeSlug = e.Slug
			}
		}
		u.byID[p.ID] = p
		u.byAddress[addressKey(p.ChainID, p.Address)] = p.ID
		u.ordered = append(u.ordered, p)
	}
	sort.Slice(u.ordered, func(i, j int) bool { return u.ordered[i].ID < u.ordered[j].ID })
	return u
}

func addressKey(chain domain.ChainID, address string) string {
	return fmt.Sprintf("%d:%s", chain, strings.ToLower(address))
}

func (u *PairUniverse) Len() int { return len(u.ordered) }

// All returns every pair ordered by id.
func (u *PairUniverse) All() []domain.Pair {
	return clone(u.ordered)
}

// ByID returns the pair with id.
func (u *PairUniverse) ByID(id domain.PairID) (domain.Pair, error) {
	p, ok := u.byID[id]
	if !ok {
		return domain.Pair{}, fmt.Errorf("pair %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// ByAddress returns the pair trading at a pool contract.
func (u *PairUniverse) ByAddress(chain domain.ChainID, address string) (domain.Pair, error) {
	id, ok := u.byAddress[addressKey(chain, address)]
	if !ok {
		return domain.Pair{}, fmt.Errorf("pair at %s on %s: %w", address, chain.Slug(), domain.ErrNotFound)
	}
	return u.byID[id], nil
}

// ByTicker finds the pair base-quote on one exchange. Symbols are compared
// ignoring case. When several pairs match, pickHighestVolume selects the
// one with the highest 30 day volume; otherwise ErrDuplicatePair is returned.
func (u *PairUniverse) ByTicker(exchange domain.ExchangeID, base, quote string, pickHighestVolume bool) (domain.Pair, error) {
	var matches []domain.Pair
	for _, p := range u.ordered {
		if p.ExchangeID == exchange &&
			strings.EqualFold(p.BaseTokenSymbol, base) &&
			strings.EqualFold(p.QuoteTokenSymbol, quote) {
			matches = append(matches, p)
		}
	}

	switch {
	case len(matches) == 0:
		return domain.Pair{}, fmt.Errorf("pair %s-%s on exchange %d: %w", base, quote, exchange, domain.ErrNotFound)
	case len(matches) == 1:
		return matches[0], nil
	case !pickHighestVolume:
		return domain.Pair{}, fmt.Errorf("%w: %d pairs %s-%s on exchange %d", ErrDuplicatePair, len(matches), base, quote, exchange)
	}

	best := matches[0]
	for _, p := range matches[1:] {
		if p.Volume30d() > best.Volume30d() {
			best = p
		}
	}
	return best, nil
}

// OnExchange returns the pairs trading on one exchange, ordered by id.
func (u *PairUniverse) OnExchange(exchange domain.ExchangeID) []domain.Pair {
	var out []domain.Pair
	for _, p := range u.ordered {
		if p.ExchangeID == exchange {
			out = append(out, p)
		}
	}
	return out
}

// Active returns the pairs not flagged inactive.
func (u *PairUniverse) Active() []domain.Pair {
	var out []domain.Pair
	for _, p := range u.ordered {
		if !p.FlagInactive {
			out = append(out, p)
		}
	}
	return out
}

// Single returns the only pair of a single-pair universe.
func (u *PairUniverse) Single() (domain.Pair, error) {
	if len(u.ordered) != 1 {
		return domain.Pair{}, fmt.Errorf("not a single pair universe: %d pairs", len(u.ordered))
	}
	return u.ordered[0], nil
}
