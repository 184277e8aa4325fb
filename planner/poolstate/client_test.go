package poolstate_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/owlprotocol/veraswap-sub005/planner/poolstate"
)

const statePoolID = "0x1111111111111111111111111111111111111111111111111111111111111111"

func fastConfig() poolstate.FailoverConfig {
	return poolstate.FailoverConfig{
		MaxRetries:          1,
		RetryDelay:          time.Millisecond,
		HealthCheckInterval: time.Hour,
		Timeout:             time.Second,
	}
}

func TestGetPoolState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/pools/1/"+statePoolID+"/state")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"reserve0": "1000000",
			"reserve1": "2000000",
			"feeBps": 30
		}`))
	}))
	defer server.Close()

	client, err := poolstate.NewClientWithFailover(server.URL, nil, fastConfig())
	assert.NoError(t, err)
	defer client.Close()

	state, err := client.GetPoolState(context.Background(), 1, statePoolID)
	assert.NoError(t, err)
	assert.Equal(t, state.Reserve0.String(), "1000000")
	assert.Equal(t, state.Reserve1.String(), "2000000")
	assert.Equal(t, state.FeeBps, uint32(30))
	assert.Nil(t, state.SqrtPriceX96)
	assert.Nil(t, state.Liquidity)
}

func TestGetPoolState_ConcentratedFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"sqrtPriceX96": "79228162514264337593543950336",
			"liquidity": "500000000",
			"feeBps": 500
		}`))
	}))
	defer server.Close()

	client, err := poolstate.NewClientWithFailover(server.URL, nil, fastConfig())
	assert.NoError(t, err)
	defer client.Close()

	state, err := client.GetPoolState(context.Background(), 1, statePoolID)
	assert.NoError(t, err)
	assert.Equal(t, state.SqrtPriceX96.String(), "79228162514264337593543950336")
	assert.Equal(t, state.Liquidity.String(), "500000000")
}

func TestGetPoolState_MalformedAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"reserve0": "not-a-number", "feeBps": 30}`))
	}))
	defer server.Close()

	client, err := poolstate.NewClientWithFailover(server.URL, nil, fastConfig())
	assert.NoError(t, err)
	defer client.Close()

	_, err = client.GetPoolState(context.Background(), 1, statePoolID)
	assert.Error(t, err)
}

func TestGetPoolState_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"reserve0": "1", "reserve1": "2", "feeBps": 0}`))
	}))
	defer server.Close()

	client, err := poolstate.NewClientWithFailover(server.URL, nil, fastConfig())
	assert.NoError(t, err)
	defer client.Close()

	state, err := client.GetPoolState(context.Background(), 1, statePoolID)
	assert.NoError(t, err)
	assert.Equal(t, state.Reserve0.String(), "1")
	assert.Equal(t, calls.Load(), int32(2))
}

func TestGetPoolState_FailoverToBackup(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(`{"reserve0": "7", "reserve1": "8", "feeBps": 0}`))
	}))
	defer backup.Close()

	client, err := poolstate.NewClientWithFailover(primary.URL, []string{backup.URL}, fastConfig())
	assert.NoError(t, err)
	defer client.Close()

	state, err := client.GetPoolState(context.Background(), 1, statePoolID)
	assert.NoError(t, err)
	assert.Equal(t, state.Reserve0.String(), "7")
}

func TestGetPoolState_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := poolstate.NewClientWithFailover(server.URL, nil, fastConfig())
	assert.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.GetPoolState(ctx, 1, statePoolID)
	assert.Error(t, err)
}
