package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	getter "github.com/hashicorp/go-getter"
	"github.com/pelletier/go-toml/v2"

	"github.com/owlprotocol/veraswap-sub005/planner/router"
)

// ChainConfigLoader loads chain registry documents and converts them to the
// router types the planner consumes.
type ChainConfigLoader struct{}

// NewChainConfigLoader creates a new chain config loader.
func NewChainConfigLoader() *ChainConfigLoader {
	return &ChainConfigLoader{}
}

// LoadFromFile loads a chain registry from a local file. JSON and TOML are
// supported, selected by extension.
func (l *ChainConfigLoader) LoadFromFile(filePath string) ([]router.Chain, []router.BridgeMapping, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read chain config file: %w", err)
	}

	var file ChainsFile
	if strings.HasSuffix(filePath, ".json") {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}

	return l.ConvertToRouterTypes(&file)
}

// LoadFromSource loads a chain registry from a local path or any go-getter
// source (https, git, s3). Remote sources are fetched into a temp file first.
func (l *ChainConfigLoader) LoadFromSource(src string) ([]router.Chain, []router.BridgeMapping, error) {
	if !strings.Contains(src, "://") {
		return l.LoadFromFile(src)
	}

	tmpDir, err := os.MkdirTemp("", "veraswap-chains-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	dst := filepath.Join(tmpDir, filepath.Base(src))
	if err := getter.GetFile(dst, src); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch chain config from %s: %w", src, err)
	}
	return l.LoadFromFile(dst)
}

// ConvertToRouterTypes converts a parsed registry document to router types,
// validating every reference along the way.
func (l *ChainConfigLoader) ConvertToRouterTypes(file *ChainsFile) ([]router.Chain, []router.BridgeMapping, error) {
	if file == nil || len(file.Chains) == 0 {
		return nil, nil, fmt.Errorf("no chains in config")
	}

	chains := make([]router.Chain, len(file.Chains))
	tokenTables := make(map[router.ChainID]map[common.Address]router.Currency, len(file.Chains))
	for i, cc := range file.Chains {
		chain, tokens, err := convertChain(cc)
		if err != nil {
			return nil, nil, fmt.Errorf("chain %q: %w", cc.Name, err)
		}
		chains[i] = *chain
		tokenTables[chain.ID] = tokens
	}

	mappings := make([]router.BridgeMapping, len(file.Bridges))
	for i, bc := range file.Bridges {
		mapping, err := convertBridge(bc, chains, tokenTables)
		if err != nil {
			return nil, nil, fmt.Errorf("bridge %q %d -> %d: %w", bc.Protocol, bc.SourceChain, bc.DestChain, err)
		}
		mappings[i] = *mapping
	}

	return chains, mappings, nil
}

// InitializeRegistry loads a registry document and builds the route index.
func (l *ChainConfigLoader) InitializeRegistry(src string) (*router.Registry, error) {
	chains, mappings, err := l.LoadFromSource(src)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain config: %w", err)
	}

	registry := router.NewRegistry()
	if err := registry.BuildIndex(chains, mappings); err != nil {
		return nil, fmt.Errorf("failed to build route index: %w", err)
	}
	return registry, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s %q is not a hex address", field, s)
	}
	return common.HexToAddress(s), nil
}

func convertChain(cc ChainConfig) (*router.Chain, map[common.Address]router.Currency, error) {
	if cc.ID == 0 {
		return nil, nil, fmt.Errorf("chain id must be non-zero")
	}
	routerAddr, err := parseAddress("router", cc.Router)
	if err != nil {
		return nil, nil, err
	}
	wrappedAddr, err := parseAddress("wrapped_native", cc.WrappedNative)
	if err != nil {
		return nil, nil, err
	}

	id := router.ChainID(cc.ID)
	wrappedSymbol := cc.WrappedSymbol
	if wrappedSymbol == "" {
		wrappedSymbol = "W" + cc.NativeSymbol
	}
	chain := &router.Chain{
		ID:            id,
		Name:          cc.Name,
		Native:        router.Native(id, cc.NativeSymbol, cc.NativeDecimals),
		WrappedNative: router.NewToken(id, wrappedAddr, wrappedSymbol, cc.NativeDecimals),
		Router:        routerAddr,
		PermitTokens:  make(map[common.Address]bool, len(cc.PermitTokens)),
	}

	for _, p := range cc.PermitTokens {
		addr, err := parseAddress("permit_tokens entry", p)
		if err != nil {
			return nil, nil, err
		}
		chain.PermitTokens[addr] = true
	}

	tokens := map[common.Address]router.Currency{
		wrappedAddr: chain.WrappedNative,
	}
	for _, tc := range cc.Tokens {
		addr, err := parseAddress("token", tc.Address)
		if err != nil {
			return nil, nil, err
		}
		if tc.Symbol == "" {
			return nil, nil, fmt.Errorf("token %s has no symbol", tc.Address)
		}
		tokens[addr] = router.NewToken(id, addr, tc.Symbol, tc.Decimals)
	}

	chain.Pools = make([]router.Pool, len(cc.Pools))
	for i, pc := range cc.Pools {
		pool, err := convertPool(chain, tokens, pc)
		if err != nil {
			return nil, nil, fmt.Errorf("pool %q: %w", pc.ID, err)
		}
		chain.Pools[i] = *pool
	}
	return chain, tokens, nil
}

func convertPool(chain *router.Chain, tokens map[common.Address]router.Currency, pc PoolConfig) (*router.Pool, error) {
	var poolType router.PoolType
	switch pc.Type {
	case string(router.PoolConstantProduct):
		poolType = router.PoolConstantProduct
	case string(router.PoolConcentrated):
		poolType = router.PoolConcentrated
	default:
		return nil, fmt.Errorf("%w: %q", router.ErrUnsupportedPoolType, pc.Type)
	}

	token0, err := resolveTokenRef(chain, tokens, pc.Token0)
	if err != nil {
		return nil, err
	}
	token1, err := resolveTokenRef(chain, tokens, pc.Token1)
	if err != nil {
		return nil, err
	}
	if token0.Equal(token1) {
		return nil, fmt.Errorf("pool pairs a token with itself")
	}
	if pc.FeeBps >= 10000 {
		return nil, fmt.Errorf("fee %d bps is not below 100%%", pc.FeeBps)
	}

	return &router.Pool{
		ID:     pc.ID,
		Chain:  chain.ID,
		Type:   poolType,
		Token0: token0,
		Token1: token1,
		FeeBps: pc.FeeBps,
	}, nil
}

// resolveTokenRef turns a token reference ("wrapped", or an address from the
// chain's token table) into a currency. Pools never hold the raw native asset.
func resolveTokenRef(chain *router.Chain, tokens map[common.Address]router.Currency, ref string) (router.Currency, error) {
	if ref == "wrapped" || ref == "native" {
		return chain.WrappedNative, nil
	}
	addr, err := parseAddress("token reference", ref)
	if err != nil {
		return router.Currency{}, err
	}
	token, ok := tokens[addr]
	if !ok {
		return router.Currency{}, fmt.Errorf("%w: token %s is not declared on chain %d",
			router.ErrUnknownCurrency, ref, chain.ID)
	}
	return token, nil
}

func convertBridge(
	bc BridgeConfig,
	chains []router.Chain,
	tokenTables map[router.ChainID]map[common.Address]router.Currency,
) (*router.BridgeMapping, error) {
	if bc.Protocol == "" {
		return nil, fmt.Errorf("bridge protocol must be set")
	}

	source, err := resolveBridgeCurrency(chains, tokenTables, bc.SourceChain, bc.SourceToken)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	dest, err := resolveBridgeCurrency(chains, tokenTables, bc.DestChain, bc.DestToken)
	if err != nil {
		return nil, fmt.Errorf("dest: %w", err)
	}

	mapping := &router.BridgeMapping{
		Protocol:   bc.Protocol,
		Source:     source,
		Dest:       dest,
		ETASeconds: bc.ETASeconds,
		FeeBps:     bc.FeeBps,
	}

	switch bc.FeeModel {
	case string(router.FeeFlat):
		mapping.FeeModel = router.FeeFlat
		flat, ok := new(big.Int).SetString(bc.FlatFee, 10)
		if !ok || flat.Sign() < 0 {
			return nil, fmt.Errorf("flat fee %q is not a non-negative decimal", bc.FlatFee)
		}
		mapping.FlatFee = flat
	case string(router.FeePercentage):
		mapping.FeeModel = router.FeePercentage
		if bc.FeeBps >= 10000 {
			return nil, fmt.Errorf("percentage fee %d bps is not below 100%%", bc.FeeBps)
		}
	case string(router.FeeDestinationGas):
		mapping.FeeModel = router.FeeDestinationGas
	default:
		return nil, fmt.Errorf("unknown fee model %q", bc.FeeModel)
	}

	return mapping, nil
}

// resolveBridgeCurrency looks up a bridge endpoint currency on its chain.
// "native" refers to the chain's gas asset; addresses resolve against the
// chain's declared token table, which also covers the wrapped native. A
// bridge endpoint does not need a pool on its chain.
func resolveBridgeCurrency(
	chains []router.Chain,
	tokenTables map[router.ChainID]map[common.Address]router.Currency,
	chainID uint64,
	ref string,
) (router.Currency, error) {
	for i := range chains {
		chain := &chains[i]
		if chain.ID != router.ChainID(chainID) {
			continue
		}
		if ref == "native" {
			return chain.Native, nil
		}
		if ref == "wrapped" {
			return chain.WrappedNative, nil
		}
		addr, err := parseAddress("bridge token", ref)
		if err != nil {
			return router.Currency{}, err
		}
		if token, ok := tokenTables[chain.ID][addr]; ok {
			return token, nil
		}
		return router.Currency{}, fmt.Errorf("%w: token %s is not declared on chain %d",
			router.ErrUnknownCurrency, ref, chainID)
	}
	return router.Currency{}, fmt.Errorf("%w: %d", router.ErrUnknownChain, chainID)
}
