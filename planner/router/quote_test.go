package router_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/assert"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
)

func errorsIs(err, target error) bool { return errors.Is(err, target) }

func errorsAs(err error, target any) bool { return errors.As(err, target) }

var (
	wethAddr  = common.HexToAddress("0x00000000000000000000000000000000000000E1")
	tkaAddr   = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	tkbAddr   = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	weth2Addr = common.HexToAddress("0x00000000000000000000000000000000000000E2")
	tkb2Addr  = common.HexToAddress("0x00000000000000000000000000000000000000B2")

	router1Addr = common.HexToAddress("0x0000000000000000000000000000000000000101")
	router2Addr = common.HexToAddress("0x0000000000000000000000000000000000000102")

	userAddr = common.HexToAddress("0x00000000000000000000000000000000000000FF")
)

const (
	poolAB  = "0x1111111111111111111111111111111111111111111111111111111111111111"
	poolAB2 = "0x2222222222222222222222222222222222222222222222222222222222222222"
	poolWA  = "0x3333333333333333333333333333333333333333333333333333333333333333"
)

// testChains sets up two chains: chain 1 with TKA/TKB pools (two competing
// direct pools) plus a WETH/TKA pool, chain 2 with just a wrapped native and
// TKB2, connected by a percentage-fee bridge mapping on TKA -> TKB2.
func testChains() ([]router.Chain, []router.BridgeMapping) {
	tka := router.NewToken(1, tkaAddr, "TKA", 18)
	tkb := router.NewToken(1, tkbAddr, "TKB", 18)
	weth := router.NewToken(1, wethAddr, "WETH", 18)
	tkb2 := router.NewToken(2, tkb2Addr, "TKB", 18)

	chains := []router.Chain{
		{
			ID:            1,
			Name:          "ethereum",
			Native:        router.Native(1, "ETH", 18),
			WrappedNative: weth,
			Router:        router1Addr,
			PermitTokens:  map[common.Address]bool{tkaAddr: true},
			Pools: []router.Pool{
				{ID: poolAB, Chain: 1, Type: router.PoolConstantProduct, Token0: tka, Token1: tkb},
				{ID: poolAB2, Chain: 1, Type: router.PoolConstantProduct, Token0: tka, Token1: tkb},
				{ID: poolWA, Chain: 1, Type: router.PoolConstantProduct, Token0: weth, Token1: tka, FeeBps: 30},
			},
		},
		{
			ID:            2,
			Name:          "base",
			Native:        router.Native(2, "ETH", 18),
			WrappedNative: router.NewToken(2, weth2Addr, "WETH", 18),
			Router:        router2Addr,
			Pools:         []router.Pool{},
		},
	}

	mappings := []router.BridgeMapping{
		{
			Protocol:   "pro",
			Source:     tka,
			Dest:       tkb2,
			ETASeconds: 60,
			FeeModel:   router.FeePercentage,
			FeeBps:     100,
		},
	}
	return chains, mappings
}

func testRegistry(t *testing.T) *router.Registry {
	chains, mappings := testChains()
	registry := router.NewRegistry()
	assert.NoError(t, registry.BuildIndex(chains, mappings))
	return registry
}

// mockPoolState is a PoolStateQuerier with an injectable response function.
type mockPoolState struct {
	getPoolState func(ctx context.Context, chain router.ChainID, poolID string) (*router.PoolState, error)
}

func (m *mockPoolState) GetPoolState(ctx context.Context, chain router.ChainID, poolID string) (*router.PoolState, error) {
	return m.getPoolState(ctx, chain, poolID)
}

// reservePools answers with fixed reserves per pool id.
func reservePools(states map[string]*router.PoolState) *mockPoolState {
	return &mockPoolState{
		getPoolState: func(_ context.Context, _ router.ChainID, poolID string) (*router.PoolState, error) {
			state, ok := states[poolID]
			if !ok {
				return nil, fmt.Errorf("no state for pool %s", poolID)
			}
			return state, nil
		},
	}
}

// mockFeeQuoter is a FeeQuoter with an injectable response function.
type mockFeeQuoter struct {
	quoteFee func(ctx context.Context, mapping router.BridgeMapping, amount *big.Int) (*router.BridgeFeeQuote, error)
}

func (m *mockFeeQuoter) QuoteFee(ctx context.Context, mapping router.BridgeMapping, amount *big.Int) (*router.BridgeFeeQuote, error) {
	return m.quoteFee(ctx, mapping, amount)
}

func directPath(t *testing.T, registry *router.Registry) router.PoolPath {
	tka := router.NewToken(1, tkaAddr, "TKA", 18)
	tkb := router.NewToken(1, tkbAddr, "TKB", 18)
	paths := registry.EnumerateLocalPaths(1, tka, tkb, 1)
	assert.Equal(t, len(paths), 2)
	return paths[0]
}

func TestQuoteLocalSwap_ConstantProduct(t *testing.T) {
	registry := testRegistry(t)
	// out = inAfterFee*reserveOut / (reserveIn*10000 + inAfterFee), fee 30 bps
	pools := reservePools(map[string]*router.PoolState{
		poolAB:  {Reserve0: big.NewInt(1_000_000), Reserve1: big.NewInt(1_000_000), FeeBps: 30},
		poolAB2: {Reserve0: big.NewInt(1_000_000), Reserve1: big.NewInt(1_000_000), FeeBps: 30},
	})
	engine := router.NewQuoteEngine(registry, pools, nil)

	quote, err := engine.QuoteLocalSwap(context.Background(), directPath(t, registry), big.NewInt(1000))
	assert.NoError(t, err)
	// 1000 * 0.997 against 1M/1M reserves
	assert.Equal(t, quote.AmountOut.String(), "996")
	assert.Equal(t, quote.AmountIn.String(), "1000")
}

func TestQuoteLocalSwap_RejectsZeroAmount(t *testing.T) {
	registry := testRegistry(t)
	engine := router.NewQuoteEngine(registry, reservePools(nil), nil)

	_, err := engine.QuoteLocalSwap(context.Background(), directPath(t, registry), big.NewInt(0))
	assert.Error(t, err)
	assert.True(t, errorsIs(err, router.ErrInvalidAmount))
}

func TestQuoteBridge_PercentageFeeDeducted(t *testing.T) {
	registry := testRegistry(t)
	tka := router.NewToken(1, tkaAddr, "TKA", 18)
	quoters := map[string]router.FeeQuoter{
		"pro": &mockFeeQuoter{
			quoteFee: func(_ context.Context, mapping router.BridgeMapping, amount *big.Int) (*router.BridgeFeeQuote, error) {
				fee := new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(int64(mapping.FeeBps))), big.NewInt(10000))
				return &router.BridgeFeeQuote{
					Amount:     fee,
					Currency:   mapping.Source,
					ETASeconds: mapping.ETASeconds,
					Model:      router.FeePercentage,
				}, nil
			},
		},
	}
	engine := router.NewQuoteEngine(registry, reservePools(nil), quoters)

	mapping, ok := registry.Mapping("pro", tka, 2)
	assert.True(t, ok)

	quote, err := engine.QuoteBridge(context.Background(), *mapping, big.NewInt(1000))
	assert.NoError(t, err)
	assert.Equal(t, quote.DestAmount.String(), "990")
	assert.Equal(t, quote.Fee.Amount.String(), "10")
}

func TestQuoteBridge_NativeFeeRidesAlongside(t *testing.T) {
	registry := testRegistry(t)
	tka := router.NewToken(1, tkaAddr, "TKA", 18)
	quoters := map[string]router.FeeQuoter{
		"pro": &mockFeeQuoter{
			quoteFee: func(_ context.Context, mapping router.BridgeMapping, _ *big.Int) (*router.BridgeFeeQuote, error) {
				return &router.BridgeFeeQuote{
					Amount:     big.NewInt(5000),
					Currency:   router.Native(1, "ETH", 18),
					ETASeconds: mapping.ETASeconds,
					Model:      router.FeeFlat,
				}, nil
			},
		},
	}
	engine := router.NewQuoteEngine(registry, reservePools(nil), quoters)

	mapping, ok := registry.Mapping("pro", tka, 2)
	assert.True(t, ok)

	quote, err := engine.QuoteBridge(context.Background(), *mapping, big.NewInt(1000))
	assert.NoError(t, err)
	// the fee is paid in native, the bridged amount passes through whole
	assert.Equal(t, quote.DestAmount.String(), "1000")
	assert.Equal(t, quote.Fee.Amount.String(), "5000")
}

func TestQuoteLocalSwap_RejectsAbsurdPoolFee(t *testing.T) {
	registry := testRegistry(t)
	// a misbehaving indexer can report any fee; above 100% the input math
	// would wrap around
	pools := reservePools(map[string]*router.PoolState{
		poolAB:  {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(1000), FeeBps: 10030},
		poolAB2: {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(1000), FeeBps: 10030},
	})
	engine := router.NewQuoteEngine(registry, pools, nil)

	_, err := engine.QuoteLocalSwap(context.Background(), directPath(t, registry), big.NewInt(10))
	assert.Error(t, err)
}

func TestQuoteLocalSwap_Concentrated(t *testing.T) {
	registry := testRegistry(t)
	tka := router.NewToken(1, tkaAddr, "TKA", 18)
	tkb := router.NewToken(1, tkbAddr, "TKB", 18)
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	// price 1.0, in-range liquidity 1e6, no tick crossing for this size
	state := func(feeBps uint32) *router.PoolState {
		return &router.PoolState{
			SqrtPriceX96: new(big.Int).Set(q96),
			Liquidity:    big.NewInt(1_000_000),
			FeeBps:       feeBps,
		}
	}
	path := func(in, out router.Currency) router.PoolPath {
		return router.PoolPath{{
			PoolID:   poolAB,
			Type:     router.PoolConcentrated,
			TokenIn:  in,
			TokenOut: out,
		}}
	}

	cases := []struct {
		name   string
		feeBps uint32
		in     router.Currency
		out    router.Currency
		want   string
	}{
		{"zeroForOne no fee", 0, tka, tkb, "999"},
		{"zeroForOne 30 bps", 30, tka, tkb, "996"},
		{"oneForZero no fee", 0, tkb, tka, "999"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pools := reservePools(map[string]*router.PoolState{poolAB: state(tc.feeBps)})
			engine := router.NewQuoteEngine(registry, pools, nil)

			quote, err := engine.QuoteLocalSwap(context.Background(), path(tc.in, tc.out), big.NewInt(1000))
			assert.NoError(t, err)
			assert.Equal(t, quote.AmountOut.String(), tc.want)
		})
	}
}

func TestQuoteBridge_FlatFeeOnNativeSourceNotDeducted(t *testing.T) {
	registry := testRegistry(t)
	quoters := map[string]router.FeeQuoter{
		"gas": &mockFeeQuoter{
			quoteFee: func(_ context.Context, mapping router.BridgeMapping, _ *big.Int) (*router.BridgeFeeQuote, error) {
				return &router.BridgeFeeQuote{
					Amount:     big.NewInt(5000),
					Currency:   router.Native(1, "ETH", 18),
					ETASeconds: mapping.ETASeconds,
					Model:      router.FeeFlat,
				}, nil
			},
		},
	}
	engine := router.NewQuoteEngine(registry, reservePools(nil), quoters)

	// bridging native itself: the fee currency matches the bridged currency,
	// but a flat fee still rides on top rather than coming out of the amount
	mapping := router.BridgeMapping{
		Protocol:   "gas",
		Source:     router.Native(1, "ETH", 18),
		Dest:       router.Native(2, "ETH", 18),
		ETASeconds: 60,
		FeeModel:   router.FeeFlat,
	}

	quote, err := engine.QuoteBridge(context.Background(), mapping, big.NewInt(100000))
	assert.NoError(t, err)
	assert.Equal(t, quote.DestAmount.String(), "100000")
	assert.Equal(t, quote.Fee.Amount.String(), "5000")
}

func TestQuoteBridge_MissingQuoter(t *testing.T) {
	registry := testRegistry(t)
	tka := router.NewToken(1, tkaAddr, "TKA", 18)
	engine := router.NewQuoteEngine(registry, reservePools(nil), nil)

	mapping, ok := registry.Mapping("pro", tka, 2)
	assert.True(t, ok)

	_, err := engine.QuoteBridge(context.Background(), *mapping, big.NewInt(1000))
	assert.Error(t, err)
	assert.True(t, errorsIs(err, router.ErrMissingBridgeFeeQuote))
}
