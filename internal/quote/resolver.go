// Package quote decides which token of a pair is the quote token.
//
// The quote is the token with a direct USD reference price, chosen from a
// fixed priority list. Pairs where neither token is listed have no USD
// price and are excluded from USD aggregation. Prices are never derived
// through an intermediate token.
package quote

import (
	"errors"
	"fmt"
	"strings"

	"dex-market-data/internal/domain"
)

var (
	// ErrNoReferencePrice is returned when neither token is on the priority list.
	ErrNoReferencePrice = errors.New("no token of the pair has a USD reference price")
	ErrSameToken        = errors.New("base and quote are the same token")
)

// Tier is one priority level. Symbols earlier in the list win ties
// against later symbols of the same tier.
type Tier struct {
	Name    string
	Symbols []string
}

// Default tiers, highest priority first.
var (
	Stablecoins = Tier{Name: "stablecoin", Symbols: []string{
		"USDC", "USDT", "DAI", "BUSD", "USDC.e", "FRAX", "TUSD", "USDP",
		"LUSD", "GUSD", "USDbC", "USD+", "crvUSD", "GHO", "PYUSD",
	}}

	Bitcoin = Tier{Name: "btc", Symbols: []string{"WBTC", "BTC", "BTCB", "cbBTC", "tBTC"}}
	Ether   = Tier{Name: "eth", Symbols: []string{"WETH", "ETH", "stETH", "wstETH", "cbETH"}}

	Majors = Tier{Name: "major", Symbols: []string{
		"WBNB", "BNB", "WMATIC", "MATIC", "WPOL", "POL", "WAVAX", "AVAX", "ARB", "OP", "WSOL", "SOL",
	}}
)

type rank struct {
	tier int
	pos  int
}

// Resolver ranks tokens by a priority list. It is immutable and safe for
// concurrent use.
type Resolver struct {
	tiers []Tier
	ranks map[string]rank
}

// NewResolver creates a resolver from tiers, highest priority first.
// A symbol listed twice keeps its first position.
func NewResolver(priority ...Tier) *Resolver {
	r := &Resolver{
		tiers: priority,
		ranks: make(map[string]rank),
	}
	for ti, tier := range priority {
		for pi, sym := range tier.Symbols {
			key := normalize(sym)
			if _, dup := r.ranks[key]; dup {
				continue
			}
			r.ranks[key] = rank{tier: ti, pos: pi}
		}
	}
	return r
}

// DefaultResolver ranks stablecoins over BTC over ETH over other
// high-liquidity chain tokens.
func DefaultResolver() *Resolver {
	return NewResolver(Stablecoins, Bitcoin, Ether, Majors)
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Base  string
	Quote string
	// Tier is the name of the quote token's tier.
	Tier string
	// QuoteFirst is true when the quote was the first argument of Resolve.
	QuoteFirst bool
}

// TierOf returns the tier name of symbol.
func (r *Resolver) TierOf(symbol string) (string, bool) {
	rk, ok := r.ranks[normalize(symbol)]
	if !ok {
		return "", false
	}
	return r.tiers[rk.tier].Name, true
}

// Resolve picks base and quote from an unordered token pair. Symbols are
// compared ignoring case; the returned symbols keep the caller's spelling.
func (r *Resolver) Resolve(tokenA, tokenB string) (Resolution, error) {
	if normalize(tokenA) == normalize(tokenB) {
		return Resolution{}, fmt.Errorf("%w: %s", ErrSameToken, tokenA)
	}

	ra, okA := r.ranks[normalize(tokenA)]
	rb, okB := r.ranks[normalize(tokenB)]

	var quoteFirst bool
	switch {
	case !okA && !okB:
		return Resolution{}, fmt.Errorf("%w: %s-%s", ErrNoReferencePrice, tokenA, tokenB)
	case okA && !okB:
		quoteFirst = true
	case okB && !okA:
		quoteFirst = false
	default:
		quoteFirst = ra.tier < rb.tier || (ra.tier == rb.tier && ra.pos < rb.pos)
	}

	if quoteFirst {
		return Resolution{Base: tokenB, Quote: tokenA, Tier: r.tiers[ra.tier].Name, QuoteFirst: true}, nil
	}
	return Resolution{Base: tokenA, Quote: tokenB, Tier: r.tiers[rb.tier].Name}, nil
}

// Normalize sets the base and quote symbols of p from its raw token order.
//
// When no token has a reference price the pair is returned with
// FlagUnsupportedQuoteToken set, base and quote cleared and an error
// matching ErrNoReferencePrice.
func (r *Resolver) Normalize(p domain.Pair) (domain.Pair, error) {
	res, err := r.Resolve(p.Token0Symbol, p.Token1Symbol)
	if err != nil {
		p.BaseTokenSymbol = ""
		p.QuoteTokenSymbol = ""
		p.FlagUnsupportedQuoteToken = true
		return p, fmt.Errorf("pair %d: %w", p.ID, err)
	}
	p.BaseTokenSymbol = res.Base
	p.QuoteTokenSymbol = res.Quote
	p.FlagUnsupportedQuoteToken = false
	return p, nil
}

// PartitionUSDPriced splits pairs into those that can be aggregated in
// USD, normalised, and those that cannot. Input order is preserved.
func (r *Resolver) PartitionUSDPriced(pairs []domain.Pair) (priced, excluded []domain.Pair) {
	for _, p := range pairs {
		n, err := r.Normalize(p)
		if err != nil {
			excluded = append(excluded, n)
			continue
		}
		priced = append(priced, n)
	}
	return priced, excluded
}
