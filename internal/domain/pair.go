package domain

import "fmt"

// PairID is the dataset server's numeric id for a trading pair.
// It is only stable within one dataset snapshot: never persist it as a
// long-term key or compare ids taken from different downloads.
type PairID uint32

// ExchangeID is the dataset server's numeric id for an exchange.
type ExchangeID uint32

// PairType is the AMM family of the venue a pair trades on.
type PairType string

const (
	PairTypeUniswapV2 PairType = "uniswap_v2"
	PairTypeUniswapV3 PairType = "uniswap_v3"
)

// Pair is one trading pair record from the pair universe dataset.
//
// Token0/Token1 are in raw on-chain order. Base/Quote are the
// naturalised order, where the quote is the token with a USD reference
// price (see package quote).
type Pair struct {
	ID           PairID
	ChainID      ChainID
	ExchangeID   ExchangeID
	Address      string // pool contract, lowercased
	DEXType      PairType
	ExchangeSlug string
	PairSlug     string

	Token0Symbol  string
	Token1Symbol  string
	Token0Address string
	Token1Address string

	BaseTokenSymbol  string
	QuoteTokenSymbol string

	// Fee is the swap fee in basis points, when known.
	Fee *uint32

	FlagInactive bool
	// FlagUnsupportedQuoteToken is set when no token of the pair has a
	// direct USD reference price. Such pairs are excluded from USD aggregation.
	FlagUnsupportedQuoteToken bool

	BuyVolume30d  *float64
	SellVolume30d *float64
}

// Ticker returns "BASE-QUOTE".
func (p Pair) Ticker() string {
	return fmt.Sprintf("%s-%s", p.BaseTokenSymbol, p.QuoteTokenSymbol)
}

// BaseTokenAddress returns the contract address of the base token.
func (p Pair) BaseTokenAddress() string {
	if p.Token0Symbol == p.BaseTokenSymbol {
		return p.Token0Address
	}
	return p.Token1Address
}

// QuoteTokenAddress returns the contract address of the quote token.
func (p Pair) QuoteTokenAddress() string {
	if p.Token0Symbol == p.QuoteTokenSymbol {
		return p.Token0Address
	}
	return p.Token1Address
}

// Volume30d returns the 30 day USD volume, zero when not known.
func (p Pair) Volume30d() float64 {
	var v float64
	if p.BuyVolume30d != nil {
		v += *p.BuyVolume30d
	}
	if p.SellVolume30d != nil {
		v += *p.SellVolume30d
	}
	return v
}

func (p Pair) String() string {
	return fmt.Sprintf("<Pair #%d %s (%s) at exchange #%d on %s>",
		p.ID, p.Ticker(), p.Address, p.ExchangeID, p.ChainID.Slug())
}
