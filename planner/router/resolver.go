package router

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var plannerLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	plannerLog = zerolog.New(out).With().Timestamp().Str("component", "resolver").Logger()
}

// SetLogger allows setting a custom logger for the resolver.
func SetLogger(l zerolog.Logger) {
	plannerLog = l.With().Str("component", "resolver").Logger()
}

// planState tracks where a resolution attempt is in its lifecycle.
type planState string

const (
	stateResolveLocalOnly         planState = "RESOLVE_LOCAL_ONLY"
	stateEnumerateBridgeCandidate planState = "ENUMERATE_BRIDGE_CANDIDATES"
	stateScoreAndSelect           planState = "SCORE_AND_SELECT"
	stateResolved                 planState = "RESOLVED"
	stateNoRouteFound             planState = "NO_ROUTE_FOUND"
)

// TieBreak is one criterion applied, in order, between equally scored routes.
type TieBreak string

const (
	TieBreakMaxOutput  TieBreak = "max-output"
	TieBreakFewestHops TieBreak = "fewest-hops"
	TieBreakLowestETA  TieBreak = "lowest-eta"
)

// Config is the planning policy. Zero values fall back to the defaults below.
type Config struct {
	// MaxHops caps the number of route hops (swap and bridge legs combined).
	MaxHops int
	// MaxPoolHops caps the pool depth of a single local swap path.
	MaxPoolHops int
	// QuoteTimeout bounds each candidate's quoting work.
	QuoteTimeout time.Duration
	// MaxConcurrentQuotes bounds parallel candidate scoring.
	MaxConcurrentQuotes int
	// DefaultSlippageBps applies when a request does not set one.
	DefaultSlippageBps uint32
	// TieBreaks orders the selection criteria among scored candidates.
	TieBreaks []TieBreak
}

// DefaultConfig returns the default planning policy.
func DefaultConfig() Config {
	return Config{
		MaxHops:             3,
		MaxPoolHops:         3,
		QuoteTimeout:        5 * time.Second,
		MaxConcurrentQuotes: 8,
		DefaultSlippageBps:  100,
		TieBreaks:           []TieBreak{TieBreakMaxOutput, TieBreakFewestHops, TieBreakLowestETA},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxHops <= 0 {
		c.MaxHops = def.MaxHops
	}
	if c.MaxPoolHops <= 0 {
		c.MaxPoolHops = def.MaxPoolHops
	}
	if c.QuoteTimeout <= 0 {
		c.QuoteTimeout = def.QuoteTimeout
	}
	if c.MaxConcurrentQuotes <= 0 {
		c.MaxConcurrentQuotes = def.MaxConcurrentQuotes
	}
	if c.DefaultSlippageBps == 0 {
		c.DefaultSlippageBps = def.DefaultSlippageBps
	}
	if len(c.TieBreaks) == 0 {
		c.TieBreaks = def.TieBreaks
	}
	return c
}

// PlanRequest asks for a conversion from a source currency to a destination
// currency, possibly across chains.
type PlanRequest struct {
	Source           Currency
	Dest             Currency
	AmountIn         *big.Int
	SlippageBps      uint32
	AllowedProtocols []string
	MaxHops          int
	Recipient        common.Address
}

// Resolver decomposes conversion requests into hops, scores candidates with
// the quote engine, and selects the best route. It holds no mutable state and
// is safe for concurrent use.
type Resolver struct {
	registry *Registry
	engine   *QuoteEngine
	cfg      Config
}

// NewResolver creates a resolver over the given registry and quote engine.
func NewResolver(registry *Registry, engine *QuoteEngine, cfg Config) *Resolver {
	return &Resolver{registry: registry, engine: engine, cfg: cfg.withDefaults()}
}

// scoredCandidate is a fully quoted route with its selection criteria.
type scoredCandidate struct {
	route *Route
	out   *big.Int
	hops  int
	eta   int64
	order int // enumeration position, the final determinism anchor
}

// PlanRoute resolves the best route for the request. Identical requests
// against identical collaborator state yield bit-identical routes.
func (r *Resolver) PlanRoute(ctx context.Context, req PlanRequest) (*Route, error) {
	slippage := req.SlippageBps
	if slippage == 0 {
		slippage = r.cfg.DefaultSlippageBps
	}
	maxHops := req.MaxHops
	if maxHops <= 0 || maxHops > r.cfg.MaxHops {
		maxHops = r.cfg.MaxHops
	}

	if err := r.validateRequest(req); err != nil {
		return nil, err
	}

	plannerLog.Info().
		Stringer("source", req.Source).
		Stringer("dest", req.Dest).
		Str("amount", req.AmountIn.String()).
		Uint32("slippageBps", slippage).
		Msg("Planning route")

	// Identity conversion resolves to a zero-hop route.
	if req.Source.Equal(req.Dest) {
		return &Route{
			Source:       req.Source,
			Dest:         req.Dest,
			AmountIn:     new(big.Int).Set(req.AmountIn),
			ExpectedOut:  new(big.Int).Set(req.AmountIn),
			MinAmountOut: new(big.Int).Set(req.AmountIn),
			SlippageBps:  slippage,
		}, nil
	}

	if req.Source.Chain == req.Dest.Chain {
		return r.resolveLocal(ctx, req, slippage)
	}
	return r.resolveCrossChain(ctx, req, slippage, maxHops)
}

func (r *Resolver) validateRequest(req PlanRequest) error {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return &PlanError{Err: ErrInvalidAmount, Source: req.Source, Dest: req.Dest}
	}
	if _, err := r.registry.ChainInfo(req.Source.Chain); err != nil {
		return &PlanError{Err: err, Source: req.Source, Dest: req.Dest}
	}
	if _, err := r.registry.ChainInfo(req.Dest.Chain); err != nil {
		return &PlanError{Err: err, Source: req.Source, Dest: req.Dest}
	}
	if !r.registry.KnowsCurrency(req.Source) {
		return &PlanError{Err: fmt.Errorf("%w: %s", ErrUnknownCurrency, req.Source), Source: req.Source, Dest: req.Dest}
	}
	if !r.registry.KnowsCurrency(req.Dest) {
		return &PlanError{Err: fmt.Errorf("%w: %s", ErrUnknownCurrency, req.Dest), Source: req.Source, Dest: req.Dest}
	}
	return nil
}

// resolveLocal handles same-chain requests: enumerate pool paths, score them
// concurrently, keep the best.
func (r *Resolver) resolveLocal(ctx context.Context, req PlanRequest, slippage uint32) (*Route, error) {
	plannerLog.Debug().Str("state", string(stateResolveLocalOnly)).Msg("State transition")

	paths := r.registry.EnumerateLocalPaths(req.Source.Chain, req.Source, req.Dest, r.cfg.MaxPoolHops)
	if len(paths) == 0 {
		plannerLog.Warn().Str("state", string(stateNoRouteFound)).Msg("No pool path between currencies")
		return nil, &PlanError{Err: ErrNoRouteFound, Source: req.Source, Dest: req.Dest}
	}

	scored, lastErr := r.scoreConcurrently(ctx, len(paths), func(quoteCtx context.Context, i int) (*scoredCandidate, error) {
		quote, err := r.engine.QuoteLocalSwap(quoteCtx, paths[i], req.AmountIn)
		if err != nil {
			return nil, err
		}
		route := r.buildLocalRoute(req, paths[i], quote, slippage)
		return &scoredCandidate{
			route: route,
			out:   quote.AmountOut,
			hops:  1,
			order: i,
		}, nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return r.selectBest(req, scored, len(paths), lastErr)
}

// resolveCrossChain enumerates bridge decompositions, quotes each end to end,
// and selects the best surviving candidate.
func (r *Resolver) resolveCrossChain(ctx context.Context, req PlanRequest, slippage uint32, maxHops int) (*Route, error) {
	plannerLog.Debug().Str("state", string(stateEnumerateBridgeCandidate)).Msg("State transition")

	allowed := make(map[string]bool, len(req.AllowedProtocols))
	for _, p := range req.AllowedProtocols {
		allowed[p] = true
	}

	candidates := r.registry.enumerateBridgeCandidates(req.Source, req.Dest, allowed, r.cfg.MaxPoolHops)
	if len(candidates) == 0 {
		plannerLog.Warn().Str("state", string(stateNoRouteFound)).Msg("No bridge mapping connects the chains")
		return nil, &PlanError{Err: ErrNoRouteFound, Source: req.Source, Dest: req.Dest}
	}

	inBudget := candidates[:0:0]
	exceeded := 0
	for _, cand := range candidates {
		if cand.hopCount() > maxHops {
			exceeded++
			continue
		}
		inBudget = append(inBudget, cand)
	}
	if len(inBudget) == 0 {
		plannerLog.Warn().
			Int("candidates", len(candidates)).
			Int("maxHops", maxHops).
			Msg("Every decomposition exceeds the hop ceiling")
		return nil, &PlanError{Err: ErrRouteExceedsMaxHops, Source: req.Source, Dest: req.Dest, HopsAttempted: maxHops}
	}

	plannerLog.Info().Int("candidates", len(inBudget)).Int("overBudget", exceeded).Msg("Scoring bridge candidates")

	scored, lastErr := r.scoreConcurrently(ctx, len(inBudget), func(quoteCtx context.Context, i int) (*scoredCandidate, error) {
		return r.scoreBridgeCandidate(quoteCtx, req, inBudget[i], slippage, i)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return r.selectBest(req, scored, len(inBudget), lastErr)
}

// scoreConcurrently quotes all candidates in parallel with a per-candidate
// timeout. A candidate whose quote errors or times out is dropped, not
// retried; cancellation of ctx propagates into every in-flight quote.
func (r *Resolver) scoreConcurrently(
	ctx context.Context,
	n int,
	score func(ctx context.Context, i int) (*scoredCandidate, error),
) ([]*scoredCandidate, error) {
	results := make([]*scoredCandidate, n)
	errs := make([]error, n)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.cfg.MaxConcurrentQuotes)
	for i := 0; i < n; i++ {
		group.Go(func() error {
			quoteCtx, cancel := context.WithTimeout(groupCtx, r.cfg.QuoteTimeout)
			defer cancel()

			cand, err := score(quoteCtx, i)
			if err != nil {
				if quoteCtx.Err() != nil && groupCtx.Err() == nil {
					err = fmt.Errorf("%w: %v", ErrQuoteTimeout, err)
				}
				plannerLog.Debug().Err(err).Int("candidate", i).Msg("Candidate dropped")
				errs[i] = err
				return nil // dropped, not fatal
			}
			results[i] = cand
			return nil
		})
	}
	_ = group.Wait()

	// Caller-initiated cancellation discards partial results.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scored := results[:0:0]
	var lastErr error
	for i := 0; i < n; i++ {
		if results[i] != nil {
			scored = append(scored, results[i])
		} else if errs[i] != nil {
			lastErr = errs[i]
		}
	}
	return scored, lastErr
}

// selectBest applies the tie-break policy over the surviving candidates.
func (r *Resolver) selectBest(req PlanRequest, scored []*scoredCandidate, attempted int, lastErr error) (*Route, error) {
	plannerLog.Debug().Str("state", string(stateScoreAndSelect)).Int("scored", len(scored)).Msg("State transition")

	if len(scored) == 0 {
		plannerLog.Warn().Err(lastErr).Int("attempted", attempted).Msg("All candidates dropped")
		return nil, &PlanError{
			Err:           ErrNoRouteFound,
			Source:        req.Source,
			Dest:          req.Dest,
			HopsAttempted: attempted,
			LastQuoteErr:  lastErr,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		for _, tb := range r.cfg.TieBreaks {
			switch tb {
			case TieBreakMaxOutput:
				if cmp := a.out.Cmp(b.out); cmp != 0 {
					return cmp > 0
				}
			case TieBreakFewestHops:
				if a.hops != b.hops {
					return a.hops < b.hops
				}
			case TieBreakLowestETA:
				if a.eta != b.eta {
					return a.eta < b.eta
				}
			}
		}
		return a.order < b.order
	})

	best := scored[0]
	plannerLog.Info().
		Str("state", string(stateResolved)).
		Str("expectedOut", best.out.String()).
		Int("hops", best.hops).
		Int64("etaSeconds", best.eta).
		Msg("Route resolved")
	return best.route, nil
}

// buildLocalRoute assembles a single-swap route from a scored path.
func (r *Resolver) buildLocalRoute(req PlanRequest, path PoolPath, quote *SwapQuote, slippage uint32) *Route {
	minOut := minOutWithSlippage(quote.AmountOut, slippage)
	hop := NewSwapHop(&SwapHop{
		Chain:        req.Source.Chain,
		Path:         path,
		AmountIn:     new(big.Int).Set(req.AmountIn),
		ExpectedOut:  quote.AmountOut,
		MinAmountOut: minOut,
		Recipient:    req.Recipient,
	})
	return &Route{
		Source:         req.Source,
		Dest:           req.Dest,
		AmountIn:       new(big.Int).Set(req.AmountIn),
		ExpectedOut:    quote.AmountOut,
		MinAmountOut:   minOut,
		SlippageBps:    slippage,
		Hops:           []Hop{hop},
		PriceImpactBps: quote.PriceImpactBps,
	}
}

// scoreBridgeCandidate quotes every leg of one decomposition in sequence and
// assembles the resulting route.
func (r *Resolver) scoreBridgeCandidate(
	ctx context.Context,
	req PlanRequest,
	cand *bridgeCandidate,
	slippage uint32,
	order int,
) (*scoredCandidate, error) {
	sourceChain, err := r.registry.ChainInfo(req.Source.Chain)
	if err != nil {
		return nil, err
	}
	destChain, err := r.registry.ChainInfo(req.Dest.Chain)
	if err != nil {
		return nil, err
	}

	var hops []Hop
	impactBps := int32(0)
	amount := new(big.Int).Set(req.AmountIn)

	if cand.preSwap != nil {
		quote, err := r.engine.QuoteLocalSwap(ctx, cand.preSwap, amount)
		if err != nil {
			return nil, fmt.Errorf("pre-bridge swap: %w", err)
		}
		hops = append(hops, NewSwapHop(&SwapHop{
			Chain:        req.Source.Chain,
			Path:         cand.preSwap,
			AmountIn:     amount,
			ExpectedOut:  quote.AmountOut,
			MinAmountOut: minOutWithSlippage(quote.AmountOut, slippage),
			// Funds stay with the router for the bridge send that follows.
			Recipient: sourceChain.Router,
		}))
		amount = new(big.Int).Set(quote.AmountOut)
		impactBps += quote.PriceImpactBps
	}

	bridgeQuote, err := r.engine.QuoteBridge(ctx, *cand.mapping, amount)
	if err != nil {
		return nil, fmt.Errorf("bridge leg: %w", err)
	}
	bridgeRecipient := req.Recipient
	if cand.postSwap != nil {
		bridgeRecipient = destChain.Router
	}
	hops = append(hops, NewBridgeHop(&BridgeHop{
		SourceChain: req.Source.Chain,
		DestChain:   req.Dest.Chain,
		Protocol:    cand.mapping.Protocol,
		CurrencyIn:  cand.mapping.Source,
		AmountIn:    amount,
		CurrencyOut: cand.mapping.Dest,
		ExpectedOut: bridgeQuote.DestAmount,
		Recipient:   bridgeRecipient,
		Fee:         bridgeQuote.Fee,
	}))
	amount = new(big.Int).Set(bridgeQuote.DestAmount)
	eta := bridgeQuote.Fee.ETASeconds

	if cand.postSwap != nil {
		quote, err := r.engine.QuoteLocalSwap(ctx, cand.postSwap, amount)
		if err != nil {
			return nil, fmt.Errorf("post-bridge swap: %w", err)
		}
		hops = append(hops, NewSwapHop(&SwapHop{
			Chain:        req.Dest.Chain,
			Path:         cand.postSwap,
			AmountIn:     amount,
			ExpectedOut:  quote.AmountOut,
			MinAmountOut: minOutWithSlippage(quote.AmountOut, slippage),
			Recipient:    req.Recipient,
		}))
		amount = new(big.Int).Set(quote.AmountOut)
		impactBps += quote.PriceImpactBps
	}

	route := &Route{
		Source:         req.Source,
		Dest:           req.Dest,
		AmountIn:       new(big.Int).Set(req.AmountIn),
		ExpectedOut:    amount,
		MinAmountOut:   minOutWithSlippage(amount, slippage),
		SlippageBps:    slippage,
		Hops:           hops,
		PriceImpactBps: impactBps,
		ETASeconds:     eta,
	}
	if err := route.Validate(); err != nil {
		return nil, err
	}
	return &scoredCandidate{
		route: route,
		out:   amount,
		hops:  len(hops),
		eta:   eta,
		order: order,
	}, nil
}

// minOutWithSlippage computes floor(expected * (10000 - slippageBps) / 10000).
func minOutWithSlippage(expected *big.Int, slippageBps uint32) *big.Int {
	if slippageBps >= 10000 {
		return big.NewInt(0)
	}
	min := new(big.Int).Mul(expected, big.NewInt(int64(10000-slippageBps)))
	return min.Div(min, bpsScale)
}
