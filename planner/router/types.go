package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID identifies an EVM chain.
type ChainID uint64

// CurrencyKind distinguishes a chain's gas asset from a contract token.
type CurrencyKind string

const (
	CurrencyNative CurrencyKind = "native"
	CurrencyToken  CurrencyKind = "token"
)

// Currency is an asset bound to exactly one chain. Two tokens with the same
// symbol on different chains are distinct currencies related only through a
// bridge mapping.
type Currency struct {
	Chain    ChainID        `json:"chain_id"`
	Kind     CurrencyKind   `json:"kind"`
	Address  common.Address `json:"address,omitempty"` // zero for native
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Native creates the gas asset of a chain.
func Native(chain ChainID, symbol string, decimals uint8) Currency {
	return Currency{Chain: chain, Kind: CurrencyNative, Symbol: symbol, Decimals: decimals}
}

// NewToken creates a contract-address-identified asset on a chain.
func NewToken(chain ChainID, address common.Address, symbol string, decimals uint8) Currency {
	return Currency{Chain: chain, Kind: CurrencyToken, Address: address, Symbol: symbol, Decimals: decimals}
}

// IsNative reports whether the currency is the chain's gas asset.
func (c Currency) IsNative() bool {
	return c.Kind == CurrencyNative
}

// Equal compares by chain and identity, never across chains.
func (c Currency) Equal(o Currency) bool {
	if c.Chain != o.Chain || c.Kind != o.Kind {
		return false
	}
	if c.Kind == CurrencyNative {
		return true
	}
	return c.Address == o.Address
}

func (c Currency) String() string {
	if c.IsNative() {
		return fmt.Sprintf("%s@%d", c.Symbol, c.Chain)
	}
	return fmt.Sprintf("%s(%s)@%d", c.Symbol, c.Address.Hex(), c.Chain)
}

// PoolType is the pricing model of a liquidity pool.
type PoolType string

const (
	PoolConstantProduct PoolType = "constant-product"
	PoolConcentrated    PoolType = "concentrated"
)

// Pool describes a liquidity pool on a single chain. Reserves and tick state
// are not stored here; they come from the pool-state collaborator at quote time.
type Pool struct {
	ID     string // 0x-prefixed 32-byte identifier
	Chain  ChainID
	Type   PoolType
	Token0 Currency
	Token1 Currency
	FeeBps uint32
}

// Other returns the pool token paired with the given currency, and whether the
// currency is one of the pool's two tokens at all.
func (p *Pool) Other(c Currency) (Currency, bool) {
	switch {
	case p.Token0.Equal(c):
		return p.Token1, true
	case p.Token1.Equal(c):
		return p.Token0, true
	}
	return Currency{}, false
}

// PoolHop is one pool traversal inside a PoolPath.
type PoolHop struct {
	PoolID   string
	Type     PoolType
	FeeBps   uint32
	TokenIn  Currency
	TokenOut Currency
}

// PoolPath is an ordered pool sequence connecting an input currency to an
// output currency on one chain. Consecutive hops share an intermediate
// currency; length is at least 1.
type PoolPath []PoolHop

// Validate checks the chaining invariant of the path.
func (p PoolPath) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty pool path", ErrMalformedRoute)
	}
	for i := 1; i < len(p); i++ {
		if !p[i-1].TokenOut.Equal(p[i].TokenIn) {
			return fmt.Errorf("%w: pool path breaks at hop %d (%s -> %s)",
				ErrMalformedRoute, i, p[i-1].TokenOut, p[i].TokenIn)
		}
	}
	return nil
}

// Input returns the path's input currency.
func (p PoolPath) Input() Currency { return p[0].TokenIn }

// Output returns the path's output currency.
func (p PoolPath) Output() Currency { return p[len(p)-1].TokenOut }

// FeeModel is how a bridge protocol charges for a transfer.
type FeeModel string

const (
	// FeeFlat is a fixed fee paid in the source chain's native asset.
	FeeFlat FeeModel = "flat"
	// FeePercentage is a bps cut taken out of the bridged amount.
	FeePercentage FeeModel = "percentage"
	// FeeDestinationGas pays for destination-side delivery gas in the source
	// chain's native asset; the bridged amount passes through whole.
	FeeDestinationGas FeeModel = "destination-gas"
)

// BridgeMapping relates a currency on a source chain to its representation on
// a destination chain under one bridge protocol. For a given (source currency,
// destination chain, protocol) triple at most one destination currency exists.
type BridgeMapping struct {
	Protocol   string
	Source     Currency
	Dest       Currency
	ETASeconds int64
	FeeModel   FeeModel
	// FeeBps applies for FeePercentage; FlatFee for FeeFlat. Destination-gas
	// fees are quoted live by the protocol's fee quoter.
	FeeBps  uint32
	FlatFee *big.Int
}

// BridgeFeeQuote is a resolved, normalized fee for one bridge transfer.
type BridgeFeeQuote struct {
	Amount     *big.Int
	Currency   Currency
	ETASeconds int64
	Model      FeeModel
}

// SwapHop is a local DEX swap on one chain.
type SwapHop struct {
	Chain        ChainID
	Path         PoolPath
	AmountIn     *big.Int
	ExpectedOut  *big.Int
	MinAmountOut *big.Int
	Recipient    common.Address
}

// BridgeHop is one cross-chain transfer leg.
type BridgeHop struct {
	SourceChain ChainID
	DestChain   ChainID
	Protocol    string
	CurrencyIn  Currency
	AmountIn    *big.Int
	CurrencyOut Currency
	ExpectedOut *big.Int
	Recipient   common.Address
	// Fee must be resolved before the hop can be encoded.
	Fee *BridgeFeeQuote
}

// Hop is one atomic leg of a Route: a local swap or a bridge transfer.
// Exactly one of Swap and Bridge is set.
type Hop struct {
	Swap   *SwapHop
	Bridge *BridgeHop
}

// NewSwapHop wraps a SwapHop as a Hop.
func NewSwapHop(s *SwapHop) Hop { return Hop{Swap: s} }

// NewBridgeHop wraps a BridgeHop as a Hop.
func NewBridgeHop(b *BridgeHop) Hop { return Hop{Bridge: b} }

// IsBridge reports whether the hop crosses chains.
func (h Hop) IsBridge() bool { return h.Bridge != nil }

// InputCurrency returns the currency the hop consumes.
func (h Hop) InputCurrency() Currency {
	if h.Bridge != nil {
		return h.Bridge.CurrencyIn
	}
	return h.Swap.Path.Input()
}

// OutputCurrency returns the currency the hop produces.
func (h Hop) OutputCurrency() Currency {
	if h.Bridge != nil {
		return h.Bridge.CurrencyOut
	}
	return h.Swap.Path.Output()
}

// SourceChain returns the chain the hop executes on.
func (h Hop) SourceChain() ChainID {
	if h.Bridge != nil {
		return h.Bridge.SourceChain
	}
	return h.Swap.Chain
}

// DestChain returns the chain the hop's output lands on.
func (h Hop) DestChain() ChainID {
	if h.Bridge != nil {
		return h.Bridge.DestChain
	}
	return h.Swap.Chain
}

// OutputRecipient returns the address the hop's output is delivered to.
func (h Hop) OutputRecipient() common.Address {
	if h.Bridge != nil {
		return h.Bridge.Recipient
	}
	return h.Swap.Recipient
}

// Route is an ordered hop sequence from a source (chain, currency, amount) to
// a destination (chain, currency, minimum amount). It is produced once by the
// resolver and read-only afterwards; hops are never shared across routes.
type Route struct {
	Source         Currency
	Dest           Currency
	AmountIn       *big.Int
	ExpectedOut    *big.Int
	MinAmountOut   *big.Int
	SlippageBps    uint32
	Hops           []Hop
	PriceImpactBps int32
	// ETASeconds is the summed finality estimate of all bridge hops.
	ETASeconds int64
}

// wrapBoundary reports whether a and b sit on the wrap/unwrap seam: same
// chain, one native and one token. Pools and some bridge mappings hold the
// wrapped form while route endpoints may name the native asset; the command
// builder inserts the wrap or unwrap at these seams.
func wrapBoundary(a, b Currency) bool {
	return a.Chain == b.Chain && a.IsNative() != b.IsNative()
}

// chainable reports whether currency b can directly follow currency a in a
// route, either as the same currency or across a wrap boundary.
func chainable(a, b Currency) bool {
	return a.Equal(b) || wrapBoundary(a, b)
}

// Validate checks the hop chaining invariants: the output currency of hop i is
// the input currency of hop i+1 (modulo wrapping), and chains line up across
// bridge hops. A zero-hop route (identity conversion) is valid.
func (r *Route) Validate() error {
	if r.AmountIn == nil || r.AmountIn.Sign() <= 0 {
		return fmt.Errorf("%w: route amount in must be positive", ErrInvalidAmount)
	}
	if len(r.Hops) == 0 {
		if !r.Source.Equal(r.Dest) {
			return fmt.Errorf("%w: zero-hop route with distinct endpoints", ErrMalformedRoute)
		}
		return nil
	}
	if !chainable(r.Source, r.Hops[0].InputCurrency()) {
		return fmt.Errorf("%w: first hop does not consume the source currency", ErrMalformedRoute)
	}
	if !chainable(r.Hops[len(r.Hops)-1].OutputCurrency(), r.Dest) {
		return fmt.Errorf("%w: last hop does not produce the destination currency", ErrMalformedRoute)
	}
	for i, hop := range r.Hops {
		if (hop.Swap == nil) == (hop.Bridge == nil) {
			return fmt.Errorf("%w: hop %d must be exactly one of swap or bridge", ErrMalformedRoute, i)
		}
		if hop.Swap != nil {
			if err := hop.Swap.Path.Validate(); err != nil {
				return err
			}
		}
		if i == 0 {
			continue
		}
		prev := r.Hops[i-1]
		if !chainable(prev.OutputCurrency(), hop.InputCurrency()) {
			return fmt.Errorf("%w: hop %d input %s does not match hop %d output %s",
				ErrMalformedRoute, i, hop.InputCurrency(), i-1, prev.OutputCurrency())
		}
		if prev.DestChain() != hop.SourceChain() {
			return fmt.Errorf("%w: hop %d starts on chain %d but hop %d ends on chain %d",
				ErrMalformedRoute, i, hop.SourceChain(), i-1, prev.DestChain())
		}
	}
	return nil
}

// Chain is one unit of the planning graph.
type Chain struct {
	ID     ChainID
	Name   string
	Native Currency
	// WrappedNative is the canonical wrapped form of the gas asset; local
	// swaps route through it whenever a native endpoint is requested.
	WrappedNative Currency
	// Router is the command interpreter contract the planner encodes for.
	Router common.Address
	// PermitTokens lists tokens supporting gasless (signature-based) transfer
	// authorization on this chain.
	PermitTokens map[common.Address]bool
	Pools        []Pool
}

// PoolAsset maps a currency to the asset pools actually hold: the gas asset
// trades as its wrapped token, everything else as itself.
func (c *Chain) PoolAsset(cur Currency) Currency {
	if cur.IsNative() {
		return c.WrappedNative
	}
	return cur
}
