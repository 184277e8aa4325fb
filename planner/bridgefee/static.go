// Package bridgefee implements the per-protocol fee quoters the quote engine
// consults for bridge legs. Flat and percentage fees come straight from the
// mapping configuration; destination-gas fees are quoted live from the
// protocol's relayer API.
package bridgefee

import (
	"context"
	"fmt"
	"math/big"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
)

// ChainLookup resolves chain metadata. *router.Registry satisfies it.
type ChainLookup interface {
	ChainInfo(id router.ChainID) (*router.Chain, error)
}

// StaticQuoter resolves fees that are fully determined by the bridge mapping
// configuration: flat native-asset fees and percentage-of-amount fees. It
// never performs I/O.
type StaticQuoter struct {
	chains ChainLookup
}

// NewStaticQuoter creates a quoter over the given chain metadata.
func NewStaticQuoter(chains ChainLookup) *StaticQuoter {
	return &StaticQuoter{chains: chains}
}

// QuoteFee resolves the mapping's configured fee against the given amount.
func (q *StaticQuoter) QuoteFee(_ context.Context, mapping router.BridgeMapping, amount *big.Int) (*router.BridgeFeeQuote, error) {
	switch mapping.FeeModel {
	case router.FeeFlat:
		if mapping.FlatFee == nil {
			return nil, fmt.Errorf("%w: mapping %s via %s has no flat fee configured",
				router.ErrMissingBridgeFeeQuote, mapping.Source, mapping.Protocol)
		}
		chain, err := q.chains.ChainInfo(mapping.Source.Chain)
		if err != nil {
			return nil, err
		}
		return &router.BridgeFeeQuote{
			Amount:     new(big.Int).Set(mapping.FlatFee),
			Currency:   chain.Native,
			ETASeconds: mapping.ETASeconds,
			Model:      router.FeeFlat,
		}, nil

	case router.FeePercentage:
		fee := new(big.Int).Mul(amount, big.NewInt(int64(mapping.FeeBps)))
		fee.Div(fee, big.NewInt(10000))
		return &router.BridgeFeeQuote{
			Amount:     fee,
			Currency:   mapping.Source,
			ETASeconds: mapping.ETASeconds,
			Model:      router.FeePercentage,
		}, nil
	}

	return nil, fmt.Errorf("%w: fee model %q is not statically quotable",
		router.ErrMissingBridgeFeeQuote, mapping.FeeModel)
}
