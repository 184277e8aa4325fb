package router_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
)

func percentageQuoter() router.FeeQuoter {
	return &mockFeeQuoter{
		quoteFee: func(_ context.Context, mapping router.BridgeMapping, amount *big.Int) (*router.BridgeFeeQuote, error) {
			fee := new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(int64(mapping.FeeBps))), big.NewInt(10000))
			return &router.BridgeFeeQuote{
				Amount:     fee,
				Currency:   mapping.Source,
				ETASeconds: mapping.ETASeconds,
				Model:      router.FeePercentage,
			}, nil
		},
	}
}

// setupResolver builds the full planning stack over the test registry.
func setupResolver(t *testing.T, pools router.PoolStateQuerier) (*router.Resolver, *router.Registry) {
	registry := testRegistry(t)
	engine := router.NewQuoteEngine(registry, pools, map[string]router.FeeQuoter{
		"pro": percentageQuoter(),
	})
	resolver := router.NewResolver(registry, engine, router.Config{})
	return resolver, registry
}

func TestPlanRoute_PicksBetterPool(t *testing.T) {
	// two direct TKA/TKB pools: one quotes 500 out, the other 498
	pools := reservePools(map[string]*router.PoolState{
		poolAB:  {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(1000)},
		poolAB2: {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(996)},
	})
	resolver, _ := setupResolver(t, pools)

	route, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:    router.NewToken(1, tkaAddr, "TKA", 18),
		Dest:      router.NewToken(1, tkbAddr, "TKB", 18),
		AmountIn:  big.NewInt(1000),
		Recipient: userAddr,
	})
	assert.NoError(t, err)
	assert.Equal(t, len(route.Hops), 1)
	assert.Equal(t, route.ExpectedOut.String(), "500")
	assert.Equal(t, route.Hops[0].Swap.Path[0].PoolID, poolAB)
}

func TestPlanRoute_MinOutFormula(t *testing.T) {
	pools := reservePools(map[string]*router.PoolState{
		poolAB:  {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(1000)},
		poolAB2: {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(996)},
	})
	resolver, _ := setupResolver(t, pools)

	route, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:      router.NewToken(1, tkaAddr, "TKA", 18),
		Dest:        router.NewToken(1, tkbAddr, "TKB", 18),
		AmountIn:    big.NewInt(1000),
		SlippageBps: 250,
		Recipient:   userAddr,
	})
	assert.NoError(t, err)
	// floor(500 * (10000-250) / 10000) = floor(487.5)
	assert.Equal(t, route.MinAmountOut.String(), "487")
	assert.Equal(t, route.Hops[0].Swap.MinAmountOut.String(), "487")
}

func TestPlanRoute_ZeroHopIdentity(t *testing.T) {
	resolver, _ := setupResolver(t, reservePools(nil))

	src := router.NewToken(1, tkaAddr, "TKA", 18)
	route, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:    src,
		Dest:      src,
		AmountIn:  big.NewInt(5000),
		Recipient: userAddr,
	})
	assert.NoError(t, err)
	assert.Equal(t, len(route.Hops), 0)
	assert.Equal(t, route.ExpectedOut.String(), "5000")
	assert.Equal(t, route.MinAmountOut.String(), "5000")
	assert.NoError(t, route.Validate())
}

func TestPlanRoute_InvalidAmount(t *testing.T) {
	resolver, _ := setupResolver(t, reservePools(nil))

	_, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:    router.NewToken(1, tkaAddr, "TKA", 18),
		Dest:      router.NewToken(1, tkbAddr, "TKB", 18),
		AmountIn:  big.NewInt(0),
		Recipient: userAddr,
	})
	assert.Error(t, err)
	assert.True(t, errorsIs(err, router.ErrInvalidAmount))
}

func TestPlanRoute_BridgeWithPercentageFee(t *testing.T) {
	resolver, _ := setupResolver(t, reservePools(nil))

	route, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:    router.NewToken(1, tkaAddr, "TKA", 18),
		Dest:      router.NewToken(2, tkb2Addr, "TKB", 18),
		AmountIn:  big.NewInt(1000),
		Recipient: userAddr,
	})
	assert.NoError(t, err)
	assert.Equal(t, len(route.Hops), 1)
	assert.True(t, route.Hops[0].IsBridge())

	bridge := route.Hops[0].Bridge
	assert.Equal(t, bridge.Protocol, "pro")
	assert.Equal(t, bridge.AmountIn.String(), "1000")
	assert.Equal(t, bridge.ExpectedOut.String(), "990")
	assert.Equal(t, bridge.Fee.Amount.String(), "10")
	assert.Equal(t, route.ExpectedOut.String(), "990")
	assert.Equal(t, route.ETASeconds, int64(60))
}

func TestPlanRoute_NoRouteFound(t *testing.T) {
	resolver, _ := setupResolver(t, reservePools(nil))

	// no mapping connects chain 2 back to chain 1
	_, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:    router.NewToken(2, tkb2Addr, "TKB", 18),
		Dest:      router.NewToken(1, tkaAddr, "TKA", 18),
		AmountIn:  big.NewInt(1000),
		Recipient: userAddr,
	})
	assert.Error(t, err)
	assert.True(t, errorsIs(err, router.ErrNoRouteFound))
}

func TestPlanRoute_DisallowedProtocol(t *testing.T) {
	resolver, _ := setupResolver(t, reservePools(nil))

	_, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:           router.NewToken(1, tkaAddr, "TKA", 18),
		Dest:             router.NewToken(2, tkb2Addr, "TKB", 18),
		AmountIn:         big.NewInt(1000),
		AllowedProtocols: []string{"somethingelse"},
		Recipient:        userAddr,
	})
	assert.Error(t, err)
	assert.True(t, errorsIs(err, router.ErrNoRouteFound))
}

func TestPlanRoute_DroppedCandidateFallsBack(t *testing.T) {
	// the better pool errors at quote time, the worse one still resolves
	pools := reservePools(map[string]*router.PoolState{
		poolAB2: {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(996)},
	})
	resolver, _ := setupResolver(t, pools)

	route, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:    router.NewToken(1, tkaAddr, "TKA", 18),
		Dest:      router.NewToken(1, tkbAddr, "TKB", 18),
		AmountIn:  big.NewInt(1000),
		Recipient: userAddr,
	})
	assert.NoError(t, err)
	assert.Equal(t, route.ExpectedOut.String(), "498")
	assert.Equal(t, route.Hops[0].Swap.Path[0].PoolID, poolAB2)
}

func TestPlanRoute_AllCandidatesDropped(t *testing.T) {
	resolver, _ := setupResolver(t, reservePools(nil))

	_, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:    router.NewToken(1, tkaAddr, "TKA", 18),
		Dest:      router.NewToken(1, tkbAddr, "TKB", 18),
		AmountIn:  big.NewInt(1000),
		Recipient: userAddr,
	})
	assert.Error(t, err)
	assert.True(t, errorsIs(err, router.ErrNoRouteFound))

	var planErr *router.PlanError
	assert.True(t, errorsAs(err, &planErr))
	assert.NotNil(t, planErr.LastQuoteErr)
}

func TestPlanRoute_HopCeiling(t *testing.T) {
	pools := reservePools(map[string]*router.PoolState{
		poolAB:  {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(1000)},
		poolAB2: {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(996)},
	})
	resolver, _ := setupResolver(t, pools)

	// TKB must first swap into TKA before the bridge, so every decomposition
	// needs two hops
	_, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:    router.NewToken(1, tkbAddr, "TKB", 18),
		Dest:      router.NewToken(2, tkb2Addr, "TKB", 18),
		AmountIn:  big.NewInt(1000),
		MaxHops:   1,
		Recipient: userAddr,
	})
	assert.Error(t, err)
	assert.True(t, errorsIs(err, router.ErrRouteExceedsMaxHops))
}

func TestPlanRoute_QuoteTimeoutClassified(t *testing.T) {
	pools := &mockPoolState{
		getPoolState: func(ctx context.Context, _ router.ChainID, _ string) (*router.PoolState, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	registry := testRegistry(t)
	engine := router.NewQuoteEngine(registry, pools, nil)
	resolver := router.NewResolver(registry, engine, router.Config{QuoteTimeout: time.Millisecond})

	_, err := resolver.PlanRoute(context.Background(), router.PlanRequest{
		Source:    router.NewToken(1, tkaAddr, "TKA", 18),
		Dest:      router.NewToken(1, tkbAddr, "TKB", 18),
		AmountIn:  big.NewInt(1000),
		Recipient: userAddr,
	})
	assert.Error(t, err)
	assert.True(t, errorsIs(err, router.ErrNoRouteFound))

	// the deadline inside a candidate is reported as a timeout, not a generic
	// quote failure
	var planErr *router.PlanError
	assert.True(t, errorsAs(err, &planErr))
	assert.True(t, errorsIs(planErr.LastQuoteErr, router.ErrQuoteTimeout))
}

func TestPlanRoute_Idempotent(t *testing.T) {
	pools := reservePools(map[string]*router.PoolState{
		poolAB:  {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(1000)},
		poolAB2: {Reserve0: big.NewInt(1000), Reserve1: big.NewInt(996)},
	})
	resolver, _ := setupResolver(t, pools)

	req := router.PlanRequest{
		Source:    router.NewToken(1, tkaAddr, "TKA", 18),
		Dest:      router.NewToken(1, tkbAddr, "TKB", 18),
		AmountIn:  big.NewInt(1000),
		Recipient: userAddr,
	}
	first, err := resolver.PlanRoute(context.Background(), req)
	assert.NoError(t, err)
	second, err := resolver.PlanRoute(context.Background(), req)
	assert.NoError(t, err)
	assert.DeepEqual(t, first, second)
}

func TestPlanRoute_Cancellation(t *testing.T) {
	pools := &mockPoolState{
		getPoolState: func(ctx context.Context, _ router.ChainID, _ string) (*router.PoolState, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	resolver, _ := setupResolver(t, pools)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := resolver.PlanRoute(ctx, router.PlanRequest{
		Source:    router.NewToken(1, tkaAddr, "TKA", 18),
		Dest:      router.NewToken(1, tkbAddr, "TKB", 18),
		AmountIn:  big.NewInt(1000),
		Recipient: userAddr,
	})
	assert.Error(t, err)
	assert.True(t, errorsIs(err, context.Canceled))
}

func TestRouteValidate_RejectsBrokenChaining(t *testing.T) {
	tka := router.NewToken(1, tkaAddr, "TKA", 18)
	tkb := router.NewToken(1, tkbAddr, "TKB", 18)
	tkb2 := router.NewToken(2, tkb2Addr, "TKB", 18)

	// bridge hop consumes TKA but the preceding swap produces TKB
	route := &router.Route{
		Source:       tka,
		Dest:         tkb2,
		AmountIn:     big.NewInt(1000),
		ExpectedOut:  big.NewInt(990),
		MinAmountOut: big.NewInt(980),
		Hops: []router.Hop{
			router.NewSwapHop(&router.SwapHop{
				Chain: 1,
				Path: router.PoolPath{{
					PoolID: poolAB, Type: router.PoolConstantProduct, TokenIn: tka, TokenOut: tkb,
				}},
				AmountIn:     big.NewInt(1000),
				ExpectedOut:  big.NewInt(1000),
				MinAmountOut: big.NewInt(990),
				Recipient:    router1Addr,
			}),
			router.NewBridgeHop(&router.BridgeHop{
				SourceChain: 1,
				DestChain:   2,
				Protocol:    "pro",
				CurrencyIn:  tka,
				AmountIn:    big.NewInt(1000),
				CurrencyOut: tkb2,
				ExpectedOut: big.NewInt(990),
				Recipient:   userAddr,
			}),
		},
	}
	err := route.Validate()
	assert.Error(t, err)
	assert.True(t, errorsIs(err, router.ErrMalformedRoute))
}
