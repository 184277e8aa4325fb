// Package poolstate queries on-chain liquidity state through an indexer HTTP
// API, with retry and endpoint failover. It is the planner's source of pool
// reserves and tick state at quote time.
package poolstate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "poolstate").Logger()
}

// Client fetches pool state from an indexer with failover support. It
// maintains a primary endpoint and switches to backups when the primary is
// unavailable; a background checker restores the primary once it recovers.
// Client implements router.PoolStateQuerier.
type Client struct {
	httpClient     *http.Client
	primaryURL     string
	backupURLs     []string
	currentURL     string
	mu             sync.RWMutex
	healthChecker  *healthChecker
	failoverConfig FailoverConfig
}

// FailoverConfig controls retry and failover behavior.
type FailoverConfig struct {
	// MaxRetries is the number of times to retry a failed request on the
	// current endpoint.
	MaxRetries int
	// RetryDelay is the initial delay between retries (doubles with each
	// retry).
	RetryDelay time.Duration
	// HealthCheckInterval is how often to check if the primary endpoint is
	// back up.
	HealthCheckInterval time.Duration
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// DefaultFailoverConfig returns sensible defaults for failover behavior.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:          2,
		RetryDelay:          250 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		Timeout:             10 * time.Second,
	}
}

type healthChecker struct {
	client    *Client
	stopCh    chan struct{}
	stoppedCh chan struct{}
	isRunning bool
	mu        sync.Mutex
}

// NewClient creates a client with a single endpoint.
func NewClient(apiURL string) (*Client, error) {
	return NewClientWithFailover(apiURL, nil, DefaultFailoverConfig())
}

// NewClientWithFailover creates a client with backup endpoints.
func NewClientWithFailover(primaryURL string, backupURLs []string, config FailoverConfig) (*Client, error) {
	if _, err := url.Parse(primaryURL); err != nil {
		return nil, fmt.Errorf("invalid primary indexer URL %q: %w", primaryURL, err)
	}

	validBackups := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if _, err := url.Parse(u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		validBackups = append(validBackups, u)
	}

	client := &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		primaryURL:     primaryURL,
		backupURLs:     validBackups,
		currentURL:     primaryURL,
		failoverConfig: config,
	}

	if len(validBackups) > 0 {
		client.startHealthChecker()
	}

	log.Info().
		Str("primary", primaryURL).
		Int("backups", len(validBackups)).
		Msg("Pool state client initialized")
	return client, nil
}

func (c *Client) startHealthChecker() {
	c.healthChecker = &healthChecker{
		client:    c,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	c.healthChecker.start()
}

func (h *healthChecker) start() {
	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	go func() {
		defer close(h.stoppedCh)
		ticker := time.NewTicker(h.client.failoverConfig.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.checkAndRestore()
			}
		}
	}()
}

func (h *healthChecker) stop() {
	h.mu.Lock()
	if !h.isRunning {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	close(h.stopCh)
	<-h.stoppedCh
}

func (h *healthChecker) checkAndRestore() {
	h.client.mu.RLock()
	currentURL := h.client.currentURL
	primaryURL := h.client.primaryURL
	h.client.mu.RUnlock()

	if currentURL == primaryURL {
		return
	}

	if h.client.isEndpointHealthy(primaryURL) {
		h.client.mu.Lock()
		h.client.currentURL = primaryURL
		h.client.mu.Unlock()
		log.Info().Str("url", primaryURL).Msg("Restored primary endpoint")
	}
}

func (c *Client) isEndpointHealthy(endpoint string) bool {
	resp, err := c.httpClient.Get(endpoint + "/health")
	if err != nil {
		log.Debug().Err(err).Str("url", endpoint).Msg("Health check failed")
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) getCurrentURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// failover switches to the next healthy endpoint.
func (c *Client) failover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	allURLs := append([]string{c.primaryURL}, c.backupURLs...)
	currentIdx := -1
	for i, u := range allURLs {
		if u == c.currentURL {
			currentIdx = i
			break
		}
	}

	for i := 1; i <= len(allURLs); i++ {
		nextIdx := (currentIdx + i) % len(allURLs)
		nextURL := allURLs[nextIdx]
		if nextURL == c.currentURL {
			continue
		}
		if c.isEndpointHealthy(nextURL) {
			c.currentURL = nextURL
			log.Info().Str("url", nextURL).Msg("Failover to endpoint")
			return true
		}
	}

	log.Warn().Str("url", c.currentURL).Msg("All endpoints unhealthy, staying on current")
	return false
}

// Close stops the health checker.
func (c *Client) Close() {
	if c.healthChecker != nil {
		c.healthChecker.stop()
	}
}

// doRequestWithFailover performs a GET with retry and failover. The context
// bounds every attempt including backoff sleeps.
func (c *Client) doRequestWithFailover(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	retryDelay := c.failoverConfig.RetryDelay

	for attempt := 0; attempt <= c.failoverConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		body, err := c.getOnce(ctx, c.getCurrentURL()+path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		return body, nil
	}

	if len(c.backupURLs) > 0 && c.failover() {
		body, err := c.getOnce(ctx, c.getCurrentURL()+path)
		if err != nil {
			return nil, fmt.Errorf("failover request failed: %w (original: %w)", err, lastErr)
		}
		return body, nil
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.failoverConfig.MaxRetries+1, lastErr)
}

func (c *Client) getOnce(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// poolStateResponse is the indexer's wire form. Amount fields are decimal
// strings to survive uint256 ranges.
type poolStateResponse struct {
	Reserve0     string `json:"reserve0,omitempty"`
	Reserve1     string `json:"reserve1,omitempty"`
	SqrtPriceX96 string `json:"sqrtPriceX96,omitempty"`
	Liquidity    string `json:"liquidity,omitempty"`
	FeeBps       uint32 `json:"feeBps"`
}

// GetPoolState fetches the current state of one pool.
func (c *Client) GetPoolState(ctx context.Context, chain router.ChainID, poolID string) (*router.PoolState, error) {
	path := fmt.Sprintf("/pools/%d/%s/state", chain, url.PathEscape(poolID))

	body, err := c.doRequestWithFailover(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("pool %s on chain %d: %w", poolID, chain, err)
	}

	var resp poolStateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse pool state response: %w", err)
	}

	state := &router.PoolState{FeeBps: resp.FeeBps}
	if state.Reserve0, err = parseAmount(resp.Reserve0); err != nil {
		return nil, fmt.Errorf("pool %s reserve0: %w", poolID, err)
	}
	if state.Reserve1, err = parseAmount(resp.Reserve1); err != nil {
		return nil, fmt.Errorf("pool %s reserve1: %w", poolID, err)
	}
	if state.SqrtPriceX96, err = parseAmount(resp.SqrtPriceX96); err != nil {
		return nil, fmt.Errorf("pool %s sqrtPriceX96: %w", poolID, err)
	}
	if state.Liquidity, err = parseAmount(resp.Liquidity); err != nil {
		return nil, fmt.Errorf("pool %s liquidity: %w", poolID, err)
	}
	return state, nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}
