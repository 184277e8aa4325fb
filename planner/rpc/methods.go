package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/owlprotocol/veraswap-sub005/planner/models"
	"github.com/owlprotocol/veraswap-sub005/planner/router"
	"github.com/owlprotocol/veraswap-sub005/planner/router/commands"
)

// PlannerServer implements the JSON API handlers.
type PlannerServer struct {
	resolver *router.Resolver
	registry *router.Registry
}

// NewPlannerServer creates a new PlannerServer
func NewPlannerServer(resolver *router.Resolver, registry *router.Registry) *PlannerServer {
	return &PlannerServer{resolver: resolver, registry: registry}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps planner errors onto HTTP statuses with a stable error code.
func writeError(w http.ResponseWriter, err error) {
	code := "INTERNAL"
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, router.ErrInvalidAmount),
		errors.Is(err, router.ErrMalformedRoute),
		errors.Is(err, router.ErrUnknownChain),
		errors.Is(err, router.ErrUnknownCurrency):
		status = http.StatusBadRequest
	case errors.Is(err, router.ErrNoRouteFound):
		code, status = "NO_ROUTE_FOUND", http.StatusNotFound
	case errors.Is(err, router.ErrRouteExceedsMaxHops):
		code, status = "ROUTE_EXCEEDS_MAX_HOPS", http.StatusUnprocessableEntity
	case errors.Is(err, router.ErrUnsupportedPoolType):
		code, status = "UNSUPPORTED_POOL_TYPE", http.StatusUnprocessableEntity
	case errors.Is(err, router.ErrMissingBridgeFeeQuote):
		code, status = "MISSING_BRIDGE_FEE_QUOTE", http.StatusBadGateway
	case errors.Is(err, router.ErrQuoteTimeout):
		code, status = "QUOTE_TIMEOUT", http.StatusGatewayTimeout
	}

	if status == http.StatusBadRequest {
		switch {
		case errors.Is(err, router.ErrInvalidAmount):
			code = "INVALID_AMOUNT"
		case errors.Is(err, router.ErrMalformedRoute):
			code = "MALFORMED_ROUTE"
		case errors.Is(err, router.ErrUnknownChain):
			code = "UNKNOWN_CHAIN"
		case errors.Is(err, router.ErrUnknownCurrency):
			code = "UNKNOWN_CURRENCY"
		}
	}

	writeJSON(w, status, models.ErrorResponse{Code: code, Message: err.Error()})
}

// PlanRoute handles POST /v1/route/plan.
func (s *PlannerServer) PlanRoute(w http.ResponseWriter, r *http.Request) {
	var req models.PlanRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Code: "BAD_JSON", Message: err.Error()})
		return
	}

	planReq, err := s.toPlanRequest(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	route, err := s.resolver.PlanRoute(r.Context(), *planReq)
	planDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		plansTotal.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}
	plansTotal.WithLabelValues("ok").Inc()

	resp := models.PlanRouteResponse{Route: models.NewRouteDTO(route)}
	if req.IncludeCommands {
		batches, err := commands.BuildRoute(s.registry, route, commands.Options{})
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Batches = make([]models.BatchDTO, len(batches))
		for i, batch := range batches {
			dto, err := models.NewBatchDTO(batch)
			if err != nil {
				writeError(w, err)
				return
			}
			resp.Batches[i] = dto
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *PlannerServer) toPlanRequest(req *models.PlanRouteRequest) (*router.PlanRequest, error) {
	source, err := s.registry.CurrencyByRef(router.ChainID(req.SourceChain), req.SourceToken)
	if err != nil {
		return nil, err
	}
	dest, err := s.registry.CurrencyByRef(router.ChainID(req.DestChain), req.DestToken)
	if err != nil {
		return nil, err
	}
	amount, err := models.ParseAmount(req.AmountIn)
	if err != nil {
		return nil, err
	}
	var recipient common.Address
	if req.Recipient != "" {
		if !common.IsHexAddress(req.Recipient) {
			return nil, errors.New("recipient is not a hex address")
		}
		recipient = common.HexToAddress(req.Recipient)
	}

	return &router.PlanRequest{
		Source:           source,
		Dest:             dest,
		AmountIn:         amount,
		SlippageBps:      req.SlippageBps,
		AllowedProtocols: req.AllowedProtocols,
		MaxHops:          req.MaxHops,
		Recipient:        recipient,
	}, nil
}

// BuildCommands handles POST /v1/commands/build.
func (s *PlannerServer) BuildCommands(w http.ResponseWriter, r *http.Request) {
	var req models.BuildCommandsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Code: "BAD_JSON", Message: err.Error()})
		return
	}

	route, err := req.Route.ToRoute()
	if err != nil {
		buildsTotal.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}
	opts, err := req.ToOptions()
	if err != nil {
		buildsTotal.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}

	batches, err := commands.BuildRoute(s.registry, route, opts)
	if err != nil {
		buildsTotal.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}

	resp := models.BuildCommandsResponse{Batches: make([]models.BatchDTO, len(batches))}
	for i, batch := range batches {
		dto, err := models.NewBatchDTO(batch)
		if err != nil {
			buildsTotal.WithLabelValues("error").Inc()
			writeError(w, err)
			return
		}
		resp.Batches[i] = dto
	}
	buildsTotal.WithLabelValues("ok").Inc()

	writeJSON(w, http.StatusOK, resp)
}

// Chains handles GET /v1/chains.
func (s *PlannerServer) Chains(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.Chains()
	resp := models.ChainsResponse{Chains: make([]models.ChainDTO, 0, len(ids))}
	for _, id := range ids {
		chain, err := s.registry.ChainInfo(id)
		if err != nil {
			continue
		}
		resp.Chains = append(resp.Chains, models.NewChainDTO(chain))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChainCurrencies handles GET /v1/chains/{id}/currencies.
func (s *PlannerServer) ChainCurrencies(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Code: "UNKNOWN_CHAIN", Message: "chain id must be a decimal integer"})
		return
	}
	currencies, err := s.registry.Currencies(router.ChainID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CurrenciesResponse{Chain: id, Currencies: currencies})
}
