package domain

// ExchangeType is the AMM family of a decentralised exchange.
type ExchangeType string

const (
	ExchangeTypeUniswapV2 ExchangeType = "uniswap_v2"
	ExchangeTypeUniswapV3 ExchangeType = "uniswap_v3"
)

// Exchange is one record of the exchange universe dataset (JSON).
type Exchange struct {
	ChainID       ChainID      `json:"chain_id"`
	ChainSlug     string       `json:"chain_slug"`
	ID            ExchangeID   `json:"exchange_id"`
	Slug          string       `json:"exchange_slug"`
	Address       string       `json:"address"`
	Type          ExchangeType `json:"exchange_type"`
	PairCount     int          `json:"pair_count"`
	ActivePairs   *int         `json:"active_pair_count,omitempty"`
	Name          string       `json:"name,omitempty"`
	Homepage      string       `json:"homepage,omitempty"`
	BuyVolume30d  *float64     `json:"buy_volume_30d,omitempty"`
	SellVolume30d *float64     `json:"sell_volume_30d,omitempty"`
}

// Volume30d returns the 30 day USD volume, zero when not known.
func (e Exchange) Volume30d() float64 {
	var v float64
	if e.BuyVolume30d != nil {
		v += *e.BuyVolume30d
	}
	if e.SellVolume30d != nil {
		v += *e.SellVolume30d
	}
	return v
}
