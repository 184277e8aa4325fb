// Package models holds the JSON wire types of the planner HTTP API and their
// conversions to and from the router's internal types.
package models

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
	"github.com/owlprotocol/veraswap-sub005/planner/router/commands"
)

// PlanRouteRequest asks the planner for the best route between two assets.
// Token references are "native" or a 0x-prefixed address.
type PlanRouteRequest struct {
	SourceChain      uint64   `json:"sourceChain"`
	SourceToken      string   `json:"sourceToken"`
	DestChain        uint64   `json:"destChain"`
	DestToken        string   `json:"destToken"`
	AmountIn         string   `json:"amountIn"`
	SlippageBps      uint32   `json:"slippageBps,omitempty"`
	AllowedProtocols []string `json:"allowedProtocols,omitempty"`
	MaxHops          int      `json:"maxHops,omitempty"`
	Recipient        string   `json:"recipient"`
	IncludeCommands  bool     `json:"includeCommands,omitempty"`
}

// SwapHopDTO is the wire form of a local swap leg.
type SwapHopDTO struct {
	Chain        uint64       `json:"chain"`
	Path         []PoolHopDTO `json:"path"`
	AmountIn     string       `json:"amountIn"`
	ExpectedOut  string       `json:"expectedOut"`
	MinAmountOut string       `json:"minAmountOut"`
	Recipient    string       `json:"recipient"`
}

// PoolHopDTO is one pool traversal of a swap path.
type PoolHopDTO struct {
	PoolID   string          `json:"poolId"`
	Type     string          `json:"type"`
	FeeBps   uint32          `json:"feeBps"`
	TokenIn  router.Currency `json:"tokenIn"`
	TokenOut router.Currency `json:"tokenOut"`
}

// BridgeHopDTO is the wire form of a bridge leg.
type BridgeHopDTO struct {
	SourceChain uint64          `json:"sourceChain"`
	DestChain   uint64          `json:"destChain"`
	Protocol    string          `json:"protocol"`
	CurrencyIn  router.Currency `json:"currencyIn"`
	AmountIn    string          `json:"amountIn"`
	CurrencyOut router.Currency `json:"currencyOut"`
	ExpectedOut string          `json:"expectedOut"`
	Recipient   string          `json:"recipient"`
	FeeAmount   string          `json:"feeAmount"`
	FeeCurrency router.Currency `json:"feeCurrency"`
	FeeModel    string          `json:"feeModel"`
	ETASeconds  int64           `json:"etaSeconds"`
}

// HopDTO is a tagged union: exactly one of Swap and Bridge is set.
type HopDTO struct {
	Swap   *SwapHopDTO   `json:"swap,omitempty"`
	Bridge *BridgeHopDTO `json:"bridge,omitempty"`
}

// RouteDTO is the wire form of a resolved route.
type RouteDTO struct {
	Source         router.Currency `json:"source"`
	Dest           router.Currency `json:"dest"`
	AmountIn       string          `json:"amountIn"`
	ExpectedOut    string          `json:"expectedOut"`
	MinAmountOut   string          `json:"minAmountOut"`
	SlippageBps    uint32          `json:"slippageBps"`
	Hops           []HopDTO        `json:"hops"`
	PriceImpactBps int32           `json:"priceImpactBps"`
	ETASeconds     int64           `json:"etaSeconds,omitempty"`
}

// PlanRouteResponse carries the resolved route, plus the encoded command
// batches when the request asked for them.
type PlanRouteResponse struct {
	Route   RouteDTO   `json:"route"`
	Batches []BatchDTO `json:"batches,omitempty"`
}

// PermitDTO carries a signed transfer authorization for command building.
type PermitDTO struct {
	Nonce     string `json:"nonce"`
	Deadline  string `json:"deadline"`
	Signature string `json:"signature"`
}

// BuildCommandsRequest compiles a previously planned route into executable
// command batches.
type BuildCommandsRequest struct {
	Route    RouteDTO   `json:"route"`
	Permit   *PermitDTO `json:"permit,omitempty"`
	RefundTo string     `json:"refundTo,omitempty"`
}

// CommandDTO is one command of a batch, with its encoded input blob.
type CommandDTO struct {
	Kind  string `json:"kind"`
	Input string `json:"input"`
}

// BatchDTO is the command batch of one chain: a human-readable command list
// plus the packed program the interpreter contract consumes.
type BatchDTO struct {
	Chain    uint64       `json:"chain"`
	Commands []CommandDTO `json:"commands"`
	Program  ProgramDTO   `json:"program"`
}

// ProgramDTO is the hex form of an encoded program.
type ProgramDTO struct {
	Commands string   `json:"commands"`
	Inputs   []string `json:"inputs"`
}

// BuildCommandsResponse carries one batch per chain of the route.
type BuildCommandsResponse struct {
	Batches []BatchDTO `json:"batches"`
}

// ChainDTO is the wire form of one supported chain.
type ChainDTO struct {
	ID            uint64          `json:"id"`
	Name          string          `json:"name"`
	Native        router.Currency `json:"native"`
	WrappedNative router.Currency `json:"wrappedNative"`
	Router        string          `json:"router"`
	Pools         int             `json:"pools"`
}

// ChainsResponse lists the chains the planner knows.
type ChainsResponse struct {
	Chains []ChainDTO `json:"chains"`
}

// CurrenciesResponse lists the currencies known on one chain.
type CurrenciesResponse struct {
	Chain      uint64            `json:"chain"`
	Currencies []router.Currency `json:"currencies"`
}

// ErrorResponse is the JSON error envelope. Code is a stable machine-readable
// identifier such as "NO_ROUTE_FOUND".
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseAmount parses a decimal amount string.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: malformed amount %q", router.ErrInvalidAmount, s)
	}
	return v, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewRouteDTO converts a resolved route to its wire form.
func NewRouteDTO(route *router.Route) RouteDTO {
	dto := RouteDTO{
		Source:         route.Source,
		Dest:           route.Dest,
		AmountIn:       formatAmount(route.AmountIn),
		ExpectedOut:    formatAmount(route.ExpectedOut),
		MinAmountOut:   formatAmount(route.MinAmountOut),
		SlippageBps:    route.SlippageBps,
		PriceImpactBps: route.PriceImpactBps,
		ETASeconds:     route.ETASeconds,
		Hops:           make([]HopDTO, len(route.Hops)),
	}
	for i, hop := range route.Hops {
		if hop.IsBridge() {
			dto.Hops[i] = HopDTO{Bridge: newBridgeHopDTO(hop.Bridge)}
		} else {
			dto.Hops[i] = HopDTO{Swap: newSwapHopDTO(hop.Swap)}
		}
	}
	return dto
}

func newSwapHopDTO(hop *router.SwapHop) *SwapHopDTO {
	path := make([]PoolHopDTO, len(hop.Path))
	for i, ph := range hop.Path {
		path[i] = PoolHopDTO{
			PoolID:   ph.PoolID,
			Type:     string(ph.Type),
			FeeBps:   ph.FeeBps,
			TokenIn:  ph.TokenIn,
			TokenOut: ph.TokenOut,
		}
	}
	return &SwapHopDTO{
		Chain:        uint64(hop.Chain),
		Path:         path,
		AmountIn:     formatAmount(hop.AmountIn),
		ExpectedOut:  formatAmount(hop.ExpectedOut),
		MinAmountOut: formatAmount(hop.MinAmountOut),
		Recipient:    hop.Recipient.Hex(),
	}
}

func newBridgeHopDTO(hop *router.BridgeHop) *BridgeHopDTO {
	dto := &BridgeHopDTO{
		SourceChain: uint64(hop.SourceChain),
		DestChain:   uint64(hop.DestChain),
		Protocol:    hop.Protocol,
		CurrencyIn:  hop.CurrencyIn,
		AmountIn:    formatAmount(hop.AmountIn),
		CurrencyOut: hop.CurrencyOut,
		ExpectedOut: formatAmount(hop.ExpectedOut),
		Recipient:   hop.Recipient.Hex(),
	}
	if hop.Fee != nil {
		dto.FeeAmount = formatAmount(hop.Fee.Amount)
		dto.FeeCurrency = hop.Fee.Currency
		dto.FeeModel = string(hop.Fee.Model)
		dto.ETASeconds = hop.Fee.ETASeconds
	}
	return dto
}

// ToRoute converts a wire route back into the router representation, as
// submitted by a client to the command-build endpoint.
func (dto *RouteDTO) ToRoute() (*router.Route, error) {
	amountIn, err := ParseAmount(dto.AmountIn)
	if err != nil {
		return nil, err
	}
	expectedOut, err := ParseAmount(dto.ExpectedOut)
	if err != nil {
		return nil, err
	}
	minOut, err := ParseAmount(dto.MinAmountOut)
	if err != nil {
		return nil, err
	}

	route := &router.Route{
		Source:         dto.Source,
		Dest:           dto.Dest,
		AmountIn:       amountIn,
		ExpectedOut:    expectedOut,
		MinAmountOut:   minOut,
		SlippageBps:    dto.SlippageBps,
		PriceImpactBps: dto.PriceImpactBps,
		ETASeconds:     dto.ETASeconds,
		Hops:           make([]router.Hop, len(dto.Hops)),
	}
	for i, hop := range dto.Hops {
		switch {
		case hop.Swap != nil && hop.Bridge == nil:
			swap, err := hop.Swap.toSwapHop()
			if err != nil {
				return nil, fmt.Errorf("hop %d: %w", i, err)
			}
			route.Hops[i] = router.NewSwapHop(swap)
		case hop.Bridge != nil && hop.Swap == nil:
			bridge, err := hop.Bridge.toBridgeHop()
			if err != nil {
				return nil, fmt.Errorf("hop %d: %w", i, err)
			}
			route.Hops[i] = router.NewBridgeHop(bridge)
		default:
			return nil, fmt.Errorf("%w: hop %d must be exactly one of swap or bridge",
				router.ErrMalformedRoute, i)
		}
	}
	if err := route.Validate(); err != nil {
		return nil, err
	}
	return route, nil
}

func parseRecipient(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("recipient %q is not a hex address", s)
	}
	return common.HexToAddress(s), nil
}

func (dto *SwapHopDTO) toSwapHop() (*router.SwapHop, error) {
	amountIn, err := ParseAmount(dto.AmountIn)
	if err != nil {
		return nil, err
	}
	expectedOut, err := ParseAmount(dto.ExpectedOut)
	if err != nil {
		return nil, err
	}
	minOut, err := ParseAmount(dto.MinAmountOut)
	if err != nil {
		return nil, err
	}
	recipient, err := parseRecipient(dto.Recipient)
	if err != nil {
		return nil, err
	}

	path := make(router.PoolPath, len(dto.Path))
	for i, ph := range dto.Path {
		path[i] = router.PoolHop{
			PoolID:   ph.PoolID,
			Type:     router.PoolType(ph.Type),
			FeeBps:   ph.FeeBps,
			TokenIn:  ph.TokenIn,
			TokenOut: ph.TokenOut,
		}
	}
	return &router.SwapHop{
		Chain:        router.ChainID(dto.Chain),
		Path:         path,
		AmountIn:     amountIn,
		ExpectedOut:  expectedOut,
		MinAmountOut: minOut,
		Recipient:    recipient,
	}, nil
}

func (dto *BridgeHopDTO) toBridgeHop() (*router.BridgeHop, error) {
	amountIn, err := ParseAmount(dto.AmountIn)
	if err != nil {
		return nil, err
	}
	expectedOut, err := ParseAmount(dto.ExpectedOut)
	if err != nil {
		return nil, err
	}
	recipient, err := parseRecipient(dto.Recipient)
	if err != nil {
		return nil, err
	}

	hop := &router.BridgeHop{
		SourceChain: router.ChainID(dto.SourceChain),
		DestChain:   router.ChainID(dto.DestChain),
		Protocol:    dto.Protocol,
		CurrencyIn:  dto.CurrencyIn,
		AmountIn:    amountIn,
		CurrencyOut: dto.CurrencyOut,
		ExpectedOut: expectedOut,
		Recipient:   recipient,
	}
	if dto.FeeAmount != "" {
		fee, err := ParseAmount(dto.FeeAmount)
		if err != nil {
			return nil, err
		}
		hop.Fee = &router.BridgeFeeQuote{
			Amount:     fee,
			Currency:   dto.FeeCurrency,
			ETASeconds: dto.ETASeconds,
			Model:      router.FeeModel(dto.FeeModel),
		}
	}
	return hop, nil
}

// ToOptions converts the request's permit and refund fields into builder
// options.
func (r *BuildCommandsRequest) ToOptions() (commands.Options, error) {
	var opts commands.Options
	if r.RefundTo != "" {
		refund, err := parseRecipient(r.RefundTo)
		if err != nil {
			return opts, err
		}
		opts.RefundTo = refund
	}
	if r.Permit != nil {
		nonce, err := ParseAmount(r.Permit.Nonce)
		if err != nil {
			return opts, fmt.Errorf("permit nonce: %w", err)
		}
		deadline, err := ParseAmount(r.Permit.Deadline)
		if err != nil {
			return opts, fmt.Errorf("permit deadline: %w", err)
		}
		sig, err := hex.DecodeString(strings.TrimPrefix(r.Permit.Signature, "0x"))
		if err != nil {
			return opts, fmt.Errorf("permit signature: %w", err)
		}
		opts.Permit = &commands.PermitOptions{Nonce: nonce, Deadline: deadline, Signature: sig}
	}
	return opts, nil
}

// NewBatchDTO converts one built batch, encoding its program.
func NewBatchDTO(batch commands.Batch) (BatchDTO, error) {
	prog, err := commands.EncodeProgram(batch.Commands)
	if err != nil {
		return BatchDTO{}, err
	}

	dto := BatchDTO{
		Chain:    uint64(batch.Chain),
		Commands: make([]CommandDTO, len(batch.Commands)),
		Program: ProgramDTO{
			Commands: "0x" + hex.EncodeToString(prog.Commands),
			Inputs:   make([]string, len(prog.Inputs)),
		},
	}
	for i, cmd := range batch.Commands {
		dto.Commands[i] = CommandDTO{
			Kind:  cmd.Kind.String(),
			Input: "0x" + hex.EncodeToString(prog.Inputs[i]),
		}
	}
	for i, input := range prog.Inputs {
		dto.Program.Inputs[i] = "0x" + hex.EncodeToString(input)
	}
	return dto, nil
}

// NewChainDTO converts one chain's metadata.
func NewChainDTO(chain *router.Chain) ChainDTO {
	return ChainDTO{
		ID:            uint64(chain.ID),
		Name:          chain.Name,
		Native:        chain.Native,
		WrappedNative: chain.WrappedNative,
		Router:        chain.Router.Hex(),
		Pools:         len(chain.Pools),
	}
}
