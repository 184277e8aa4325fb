package router

import (
	"errors"
	"fmt"
)

// Planning failure taxonomy. Resolution-level failures surface directly to the
// caller; per-candidate quote failures are absorbed and only escalate when
// every candidate drops out.
var (
	ErrNoRouteFound          = errors.New("no route found")
	ErrRouteExceedsMaxHops   = errors.New("route exceeds max hops")
	ErrUnsupportedPoolType   = errors.New("unsupported pool type")
	ErrMissingBridgeFeeQuote = errors.New("bridge hop has no resolved fee quote")
	ErrQuoteTimeout          = errors.New("quote request timed out")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrMalformedRoute        = errors.New("malformed route")
	ErrUnknownChain          = errors.New("unknown chain")
	ErrUnknownCurrency       = errors.New("unknown currency")
)

// PlanError wraps a resolution failure with enough context to render an
// actionable message upstream.
type PlanError struct {
	Err           error
	Source        Currency
	Dest          Currency
	HopsAttempted int
	LastQuoteErr  error
}

func (e *PlanError) Error() string {
	msg := fmt.Sprintf("plan %s -> %s: %v", e.Source, e.Dest, e.Err)
	if e.HopsAttempted > 0 {
		msg += fmt.Sprintf(" (candidates tried up to %d hops)", e.HopsAttempted)
	}
	if e.LastQuoteErr != nil {
		msg += fmt.Sprintf(" (last quote error: %v)", e.LastQuoteErr)
	}
	return msg
}

func (e *PlanError) Unwrap() error { return e.Err }
