package domain

import "strconv"

// ChainID is the EVM chain id a pair or exchange lives on.
type ChainID uint16

const (
	ChainEthereum  ChainID = 1
	ChainOptimism  ChainID = 10
	ChainBSC       ChainID = 56
	ChainPolygon   ChainID = 137
	ChainBase      ChainID = 8453
	ChainArbitrum  ChainID = 42161
	ChainAvalanche ChainID = 43114
)

var chainSlugs = map[ChainID]string{
	ChainEthereum:  "ethereum",
	ChainOptimism:  "optimism",
	ChainBSC:       "binance",
	ChainPolygon:   "polygon",
	ChainBase:      "base",
	ChainArbitrum:  "arbitrum",
	ChainAvalanche: "avalanche",
}

// Slug returns the URL slug used by the dataset server, or the numeric id
// for chains without a known slug.
func (c ChainID) Slug() string {
	if s, ok := chainSlugs[c]; ok {
		return s
	}
	return strconv.Itoa(int(c))
}

// ChainBySlug resolves a slug back to a chain id.
func ChainBySlug(slug string) (ChainID, bool) {
	for id, s := range chainSlugs {
		if s == slug {
			return id, true
		}
	}
	return 0, false
}
