package router

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// PoolStateQuerier is the pool-state collaborator. Synchronous per call; the
// caller is responsible for freshness.
type PoolStateQuerier interface {
	GetPoolState(ctx context.Context, chain ChainID, poolID string) (*PoolState, error)
}

// PoolState is a snapshot of one pool's pricing inputs. Constant-product pools
// fill the reserves; concentrated pools fill sqrt price and in-range liquidity.
type PoolState struct {
	Reserve0     *big.Int
	Reserve1     *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	FeeBps       uint32
}

// FeeQuoter quotes the fee of one bridge protocol. Implementations live in the
// bridgefee package; the engine only sees the normalized shape.
type FeeQuoter interface {
	QuoteFee(ctx context.Context, mapping BridgeMapping, amount *big.Int) (*BridgeFeeQuote, error)
}

// SwapQuote is the scored outcome of a candidate local swap path.
type SwapQuote struct {
	AmountIn  *big.Int
	AmountOut *big.Int
	// PriceImpactBps is display-oriented and never feeds back into amount
	// arithmetic.
	PriceImpactBps int32
}

// BridgeQuote normalizes all bridge fee models into a comparable shape: amount
// arriving on the destination after the protocol's cut, plus the fee itself.
type BridgeQuote struct {
	DestAmount *big.Int
	Fee        *BridgeFeeQuote
}

// QuoteEngine prices candidate swap paths and bridge legs. It is a pure
// function of the supplied collaborator state and holds no caches.
type QuoteEngine struct {
	registry *Registry
	pools    PoolStateQuerier
	fees     map[string]FeeQuoter
}

// NewQuoteEngine creates a quote engine over the given registry and
// collaborators. feeQuoters is keyed by bridge protocol identifier.
func NewQuoteEngine(registry *Registry, pools PoolStateQuerier, feeQuoters map[string]FeeQuoter) *QuoteEngine {
	return &QuoteEngine{registry: registry, pools: pools, fees: feeQuoters}
}

var bpsScale = big.NewInt(10000)

// q96 is the fixed-point scale of concentrated pool sqrt prices.
var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// QuoteLocalSwap propagates amountIn through the path pool by pool and returns
// the expected output with the path's aggregate price impact.
func (e *QuoteEngine) QuoteLocalSwap(ctx context.Context, path PoolPath, amountIn *big.Int) (*SwapQuote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amountIn)
	}
	if err := path.Validate(); err != nil {
		return nil, err
	}

	amount := new(big.Int).Set(amountIn)
	marginal := decimal.NewFromInt(1)
	for i := range path {
		hop := &path[i]
		pool := e.registry.PoolByID(hop.TokenIn.Chain, hop.PoolID)
		if pool == nil {
			return nil, fmt.Errorf("pool %s not found on chain %d", hop.PoolID, hop.TokenIn.Chain)
		}
		state, err := e.pools.GetPoolState(ctx, pool.Chain, pool.ID)
		if err != nil {
			return nil, fmt.Errorf("pool state for %s: %w", pool.ID, err)
		}

		feeBps := state.FeeBps
		if feeBps == 0 {
			feeBps = hop.FeeBps
		}
		// Config pools are validated at load time; indexer state is not.
		if feeBps >= 10000 {
			return nil, fmt.Errorf("pool %s reports fee %d bps, not below 100%%", pool.ID, feeBps)
		}
		zeroForOne := pool.Token0.Equal(hop.TokenIn)

		var out *big.Int
		var spot decimal.Decimal
		switch hop.Type {
		case PoolConstantProduct:
			out, spot, err = quoteConstantProduct(state, amount, feeBps, zeroForOne)
		case PoolConcentrated:
			out, spot, err = quoteConcentrated(state, amount, feeBps, zeroForOne)
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupportedPoolType, hop.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", pool.ID, err)
		}
		if out.Sign() <= 0 {
			return nil, fmt.Errorf("pool %s drained the amount to zero", pool.ID)
		}

		marginal = marginal.Mul(spot)
		amount = out
	}

	return &SwapQuote{
		AmountIn:       new(big.Int).Set(amountIn),
		AmountOut:      amount,
		PriceImpactBps: priceImpactBps(amountIn, amount, marginal),
	}, nil
}

// QuoteBridge resolves the fee of a bridge transfer over the given mapping and
// normalizes it against the bridged amount.
func (e *QuoteEngine) QuoteBridge(ctx context.Context, mapping BridgeMapping, amount *big.Int) (*BridgeQuote, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	quoter, ok := e.fees[mapping.Protocol]
	if !ok {
		return nil, fmt.Errorf("%w: no fee quoter for protocol %q", ErrMissingBridgeFeeQuote, mapping.Protocol)
	}
	fee, err := quoter.QuoteFee(ctx, mapping, amount)
	if err != nil {
		return nil, fmt.Errorf("fee quote for %q: %w", mapping.Protocol, err)
	}

	dest := new(big.Int).Set(amount)
	// Only a percentage fee comes out of the bridged amount itself; flat and
	// destination-gas fees are paid alongside it and leave the amount whole.
	if fee.Model == FeePercentage {
		dest.Sub(dest, fee.Amount)
		if dest.Sign() <= 0 {
			return nil, fmt.Errorf("bridge fee %s consumes the whole amount", fee.Amount)
		}
	}
	return &BridgeQuote{DestAmount: dest, Fee: fee}, nil
}

// quoteConstantProduct prices an exact-in swap against x*y=k reserves with the
// fee taken from the input. Returns the output amount and the pool's marginal
// (out per in) price before the trade.
func quoteConstantProduct(state *PoolState, amountIn *big.Int, feeBps uint32, zeroForOne bool) (*big.Int, decimal.Decimal, error) {
	if state.Reserve0 == nil || state.Reserve1 == nil || state.Reserve0.Sign() <= 0 || state.Reserve1.Sign() <= 0 {
		return nil, decimal.Zero, fmt.Errorf("constant-product pool state missing reserves")
	}
	reserveIn, reserveOut := state.Reserve0, state.Reserve1
	if !zeroForOne {
		reserveIn, reserveOut = state.Reserve1, state.Reserve0
	}

	// out = inAfterFee * reserveOut / (reserveIn * 10000 + inAfterFee)
	// with inAfterFee = in * (10000 - feeBps)
	inAfterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(10000-feeBps)))
	numerator := new(big.Int).Mul(inAfterFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, bpsScale)
	denominator.Add(denominator, inAfterFee)
	out := numerator.Div(numerator, denominator)

	spot := decimal.NewFromBigInt(reserveOut, 0).Div(decimal.NewFromBigInt(reserveIn, 0))
	return out, spot, nil
}

// quoteConcentrated prices an exact-in swap against a tick pool assuming no
// tick crossing for the quoted size; the min-out bound covers the difference
// at execution time.
func quoteConcentrated(state *PoolState, amountIn *big.Int, feeBps uint32, zeroForOne bool) (*big.Int, decimal.Decimal, error) {
	if state.SqrtPriceX96 == nil || state.Liquidity == nil || state.SqrtPriceX96.Sign() <= 0 || state.Liquidity.Sign() <= 0 {
		return nil, decimal.Zero, fmt.Errorf("concentrated pool state missing sqrt price or liquidity")
	}
	sqrtP := state.SqrtPriceX96
	liquidity := state.Liquidity

	inAfterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(10000-feeBps)))
	inAfterFee.Div(inAfterFee, bpsScale)

	out := new(big.Int)
	if zeroForOne {
		// sqrtPNext = L * sqrtP * Q96 / (L * Q96 + in * sqrtP)
		num := new(big.Int).Mul(liquidity, sqrtP)
		num.Mul(num, q96)
		den := new(big.Int).Mul(liquidity, q96)
		den.Add(den, new(big.Int).Mul(inAfterFee, sqrtP))
		sqrtPNext := num.Div(num, den)

		// out (token1) = L * (sqrtP - sqrtPNext) / Q96
		out.Sub(sqrtP, sqrtPNext)
		out.Mul(out, liquidity)
		out.Div(out, q96)
	} else {
		// sqrtPNext = sqrtP + in * Q96 / L
		delta := new(big.Int).Mul(inAfterFee, q96)
		delta.Div(delta, liquidity)
		sqrtPNext := new(big.Int).Add(sqrtP, delta)

		// out (token0) = L * Q96 * (sqrtPNext - sqrtP) / (sqrtPNext * sqrtP)
		out.Sub(sqrtPNext, sqrtP)
		out.Mul(out, liquidity)
		out.Mul(out, q96)
		out.Div(out, new(big.Int).Mul(sqrtPNext, sqrtP))
	}

	// Marginal token1-per-token0 price is (sqrtP / Q96)^2.
	ratio := decimal.NewFromBigInt(sqrtP, 0).Div(decimal.NewFromBigInt(q96, 0))
	spot := ratio.Mul(ratio)
	if !zeroForOne {
		if spot.IsZero() {
			return nil, decimal.Zero, fmt.Errorf("concentrated pool has zero price")
		}
		spot = decimal.NewFromInt(1).Div(spot)
	}
	return out, spot, nil
}

// priceImpactBps computes how far the effective price fell short of the
// compounded marginal price, in basis points. Display math only.
func priceImpactBps(amountIn, amountOut *big.Int, marginal decimal.Decimal) int32 {
	if marginal.IsZero() || amountIn.Sign() == 0 {
		return 0
	}
	effective := decimal.NewFromBigInt(amountOut, 0).Div(decimal.NewFromBigInt(amountIn, 0))
	impact := decimal.NewFromInt(1).Sub(effective.Div(marginal)).Mul(decimal.NewFromInt(10000))
	bps := impact.Round(0).IntPart()
	if bps < 0 {
		bps = 0
	}
	if bps > 10000 {
		bps = 10000
	}
	return int32(bps)
}
