package bridgefee

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "bridgefee").Logger()
}

// GasQuoter fetches destination-gas fee quotes from a protocol relayer API.
// The fee pays for destination-side delivery in the source chain's native
// asset; the bridged amount itself passes through whole.
type GasQuoter struct {
	httpClient *http.Client
	baseURL    string
	chains     ChainLookup
	maxRetries int
	retryDelay time.Duration
}

// NewGasQuoter creates a quoter against the given relayer base URL.
func NewGasQuoter(baseURL string, chains ChainLookup) (*GasQuoter, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid relayer URL %q: %w", baseURL, err)
	}
	return &GasQuoter{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		chains:     chains,
		maxRetries: 2,
		retryDelay: 250 * time.Millisecond,
	}, nil
}

// gasFeeResponse is the relayer's wire form.
type gasFeeResponse struct {
	Fee        string `json:"fee"`
	ETASeconds int64  `json:"etaSeconds"`
}

// QuoteFee fetches the current delivery fee for a transfer over the mapping.
func (q *GasQuoter) QuoteFee(ctx context.Context, mapping router.BridgeMapping, amount *big.Int) (*router.BridgeFeeQuote, error) {
	if mapping.FeeModel != router.FeeDestinationGas {
		return nil, fmt.Errorf("%w: gas quoter cannot price fee model %q",
			router.ErrMissingBridgeFeeQuote, mapping.FeeModel)
	}

	path := fmt.Sprintf("/fees/%s?sourceChain=%d&destChain=%d&amount=%s",
		url.PathEscape(mapping.Protocol), mapping.Source.Chain, mapping.Dest.Chain, amount)

	body, err := q.doRequest(ctx, q.baseURL+path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", router.ErrMissingBridgeFeeQuote, err)
	}

	var resp gasFeeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse fee response: %w", err)
	}
	fee, ok := new(big.Int).SetString(resp.Fee, 10)
	if !ok {
		return nil, fmt.Errorf("malformed fee amount %q", resp.Fee)
	}

	chain, err := q.chains.ChainInfo(mapping.Source.Chain)
	if err != nil {
		return nil, err
	}

	eta := resp.ETASeconds
	if eta == 0 {
		eta = mapping.ETASeconds
	}
	return &router.BridgeFeeQuote{
		Amount:     fee,
		Currency:   chain.Native,
		ETASeconds: eta,
		Model:      router.FeeDestinationGas,
	}, nil
}

func (q *GasQuoter) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	delay := q.retryDelay

	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := q.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			log.Debug().Int("status", resp.StatusCode).Str("url", fullURL).Msg("Fee quote attempt failed")
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("fee quote failed after %d retries: %w", q.maxRetries+1, lastErr)
}

// QuoterSet builds the per-protocol quoter map the quote engine consumes.
// Protocols whose mappings are all statically quotable share one static
// quoter; destination-gas protocols get a gas quoter against their relayer.
// A protocol mixing destination-gas with static fee models is rejected here
// rather than failing its first mismatched quote.
func QuoterSet(chains ChainLookup, mappings []router.BridgeMapping, relayerURLs map[string]string) (map[string]router.FeeQuoter, error) {
	static := NewStaticQuoter(chains)
	quoters := make(map[string]router.FeeQuoter)

	for _, m := range mappings {
		if q, done := quoters[m.Protocol]; done {
			_, hasGas := q.(*GasQuoter)
			if hasGas != (m.FeeModel == router.FeeDestinationGas) {
				return nil, fmt.Errorf("protocol %q mixes destination-gas and static fee models", m.Protocol)
			}
			continue
		}
		if m.FeeModel != router.FeeDestinationGas {
			quoters[m.Protocol] = static
			continue
		}
		relayerURL, ok := relayerURLs[m.Protocol]
		if !ok {
			return nil, fmt.Errorf("protocol %q uses destination-gas fees but has no relayer URL configured", m.Protocol)
		}
		gas, err := NewGasQuoter(relayerURL, chains)
		if err != nil {
			return nil, err
		}
		quoters[m.Protocol] = gas
	}
	return quoters, nil
}
