package commands

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
)

// ChainLookup resolves chain metadata for the builder. *router.Registry
// satisfies it.
type ChainLookup interface {
	ChainInfo(id router.ChainID) (*router.Chain, error)
}

// PermitOptions carries an off-chain signed transfer authorization for the
// route's input token. Supplied by the caller; the planner never signs.
type PermitOptions struct {
	Nonce     *big.Int
	Deadline  *big.Int
	Signature []byte
}

// Options tunes command building for a whole route.
type Options struct {
	// Permit, when set and the source chain marks the input token as
	// permit-capable, pulls the input via PERMIT_TRANSFER instead of relying
	// on a prior approval.
	Permit *PermitOptions
	// RefundTo receives residue sweeps. Zero value falls back to the hop
	// recipient.
	RefundTo common.Address
}

// Batch is the ordered command list for one chain of a route. Cross-chain
// routes produce one batch per chain; each batch executes as a single atomic
// transaction on its chain.
type Batch struct {
	Chain    router.ChainID
	Commands []Command
}

// HopContext tells the builder what surrounds one hop inside its route.
type HopContext struct {
	// First marks the route's opening hop: its input amount is known exactly
	// and funds still sit with the caller, not the interpreter.
	First bool
	// InputCurrency and OutputCurrency are the hop's route-level endpoints,
	// which may be native where the pool path holds the wrapped form.
	InputCurrency  router.Currency
	OutputCurrency router.Currency
	// DestRouter is the destination chain's interpreter, set for bridge hops
	// whose delivered token must be unwrapped there before it reaches the
	// recipient.
	DestRouter common.Address
	Permit     *PermitOptions
}

// BuildHopCommands emits the ordered commands for a single hop. It never
// returns a partial list: on any error the result is nil.
func BuildHopCommands(chain *router.Chain, hop router.Hop, hctx HopContext) ([]Command, error) {
	if hop.IsBridge() {
		return buildBridgeHop(chain, hop.Bridge, hctx)
	}
	return buildSwapHop(chain, hop.Swap, hctx)
}

func buildSwapHop(chain *router.Chain, hop *router.SwapHop, hctx HopContext) ([]Command, error) {
	var cmds []Command

	amountIn := UseCurrentBalance()
	if hctx.First {
		exact, err := NewExactAmount(hop.AmountIn)
		if err != nil {
			return nil, err
		}
		amountIn = exact
	}

	if hctx.First && hctx.Permit != nil && !hctx.InputCurrency.IsNative() &&
		chain.PermitTokens[hctx.InputCurrency.Address] {
		permit, err := NewPermitTransfer(
			hctx.InputCurrency.Address,
			hop.AmountIn,
			hctx.Permit.Nonce,
			hctx.Permit.Deadline,
			hctx.Permit.Signature,
		)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, permit)
	}

	// A native input is wrapped before it can enter a pool; the swap then
	// consumes the interpreter's fresh wrapped balance.
	if hctx.InputCurrency.IsNative() {
		cmds = append(cmds, NewWrapNative(amountIn, chain.Router))
		amountIn = UseCurrentBalance()
	}

	swapRecipient := hop.Recipient
	unwrap := hctx.OutputCurrency.IsNative()
	if unwrap {
		swapRecipient = chain.Router
	}

	swap, err := NewSwapExactIn(
		hop.Path.Input().Address,
		hop.Path,
		amountIn,
		hop.MinAmountOut,
		swapRecipient,
	)
	if err != nil {
		return nil, err
	}
	cmds = append(cmds, swap)

	if unwrap {
		cmds = append(cmds, NewUnwrapNative(UseCurrentBalance(), hop.Recipient))
	}
	return cmds, nil
}

func buildBridgeHop(chain *router.Chain, hop *router.BridgeHop, hctx HopContext) ([]Command, error) {
	if hop.Fee == nil {
		return nil, fmt.Errorf("%w: bridge hop %s -> chain %d via %s",
			router.ErrMissingBridgeFeeQuote, hop.CurrencyIn, hop.DestChain, hop.Protocol)
	}

	var cmds []Command

	amount := UseCurrentBalance()
	if hctx.First {
		exact, err := NewExactAmount(hop.AmountIn)
		if err != nil {
			return nil, err
		}
		amount = exact

		if hctx.Permit != nil && !hctx.InputCurrency.IsNative() && chain.PermitTokens[hctx.InputCurrency.Address] {
			permit, err := NewPermitTransfer(
				hctx.InputCurrency.Address,
				hop.AmountIn,
				hctx.Permit.Nonce,
				hctx.Permit.Deadline,
				hctx.Permit.Signature,
			)
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, permit)
		}
	}

	// A mapping that bridges the wrapped token can still serve a native input;
	// the wrap happens here, just as it does ahead of a swap.
	if hctx.InputCurrency.IsNative() && !hop.CurrencyIn.IsNative() {
		cmds = append(cmds, NewWrapNative(amount, chain.Router))
		amount = UseCurrentBalance()
	}

	// Flat and destination-gas fees are paid in native on top of the bridged
	// amount; a percentage fee was already deducted from the quoted output and
	// must not be paid a second time.
	feeValue := big.NewInt(0)
	if hop.Fee.Model != router.FeePercentage && hop.Fee.Currency.IsNative() && hop.Fee.Amount != nil {
		feeValue = hop.Fee.Amount
	}

	// A wrapped delivery into a native-dest route detours through the
	// destination interpreter for the unwrap.
	recipient := hop.Recipient
	if hctx.OutputCurrency.IsNative() && !hop.CurrencyOut.IsNative() {
		recipient = hctx.DestRouter
	}

	send, err := NewBridgeSend(
		hop.Protocol,
		hop.CurrencyIn.Address,
		amount,
		hop.DestChain,
		recipient,
		feeValue,
	)
	if err != nil {
		return nil, err
	}
	return append(cmds, send), nil
}

// BuildRoute compiles a resolved route into per-chain command batches. The
// route is validated first; a zero-hop identity route compiles to no batches.
// Residue sweeps close out every batch so no value strands in the interpreter.
func BuildRoute(chains ChainLookup, route *router.Route, opts Options) ([]Batch, error) {
	if err := route.Validate(); err != nil {
		return nil, err
	}
	if len(route.Hops) == 0 {
		return nil, nil
	}

	var batches []Batch
	var current *Batch

	for i, hop := range route.Hops {
		chainID := hop.SourceChain()
		chain, err := chains.ChainInfo(chainID)
		if err != nil {
			return nil, err
		}
		if current == nil || current.Chain != chainID {
			batches = append(batches, Batch{Chain: chainID})
			current = &batches[len(batches)-1]
		}

		hctx := HopContext{
			First:          i == 0,
			InputCurrency:  route.Source,
			OutputCurrency: route.Dest,
			Permit:         opts.Permit,
		}
		if i > 0 {
			hctx.InputCurrency = route.Hops[i-1].OutputCurrency()
		}
		if i < len(route.Hops)-1 {
			hctx.OutputCurrency = route.Hops[i+1].InputCurrency()
		}
		if hop.IsBridge() && hctx.OutputCurrency.IsNative() && !hop.Bridge.CurrencyOut.IsNative() {
			destChain, err := chains.ChainInfo(hop.Bridge.DestChain)
			if err != nil {
				return nil, err
			}
			hctx.DestRouter = destChain.Router
		}

		cmds, err := BuildHopCommands(chain, hop, hctx)
		if err != nil {
			return nil, err
		}
		current.Commands = append(current.Commands, cmds...)
	}

	// A terminal bridge that delivers the wrapped token to a native-dest route
	// needs a destination batch to unwrap for the recipient.
	if last := route.Hops[len(route.Hops)-1]; last.IsBridge() &&
		route.Dest.IsNative() && !last.Bridge.CurrencyOut.IsNative() {
		batches = append(batches, Batch{
			Chain:    last.Bridge.DestChain,
			Commands: []Command{NewUnwrapNative(UseCurrentBalance(), last.Bridge.Recipient)},
		})
	}

	appendSweeps(route, opts, batches)
	return batches, nil
}

// appendSweeps closes every batch with residue recovery: each chain's batch
// sweeps the tokens its swaps touched, and the final batch sweeps the route's
// destination token as well.
func appendSweeps(route *router.Route, opts Options, batches []Batch) {
	refund := func(fallback common.Address) common.Address {
		if opts.RefundTo != (common.Address{}) {
			return opts.RefundTo
		}
		return fallback
	}

	for b := range batches {
		batch := &batches[b]
		seen := make(map[common.Address]bool)
		for _, hop := range route.Hops {
			if hop.IsBridge() || hop.Swap.Chain != batch.Chain {
				continue
			}
			in := hop.Swap.Path.Input().Address
			if !seen[in] {
				seen[in] = true
				batch.Commands = append(batch.Commands, NewSweep(in, refund(hop.Swap.Recipient), nil))
			}
		}
	}

	// A route ending in a bridge hop has no batch on the destination chain;
	// the bridge delivers straight to the recipient there.
	last := &batches[len(batches)-1]
	if last.Chain == route.Dest.Chain {
		dest := route.Dest.Address // zero address sweeps native
		finalRecipient := route.Hops[len(route.Hops)-1].OutputRecipient()
		last.Commands = append(last.Commands, NewSweep(dest, refund(finalRecipient), nil))
	}
}
