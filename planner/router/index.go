package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// assetKey identifies a currency within one chain for map lookups.
func assetKey(c Currency) string {
	if c.IsNative() {
		return "native"
	}
	return strings.ToLower(c.Address.Hex())
}

// mappingKey pins the uniqueness invariant: at most one destination currency
// per (protocol, source currency, destination chain) triple.
func mappingKey(protocol string, source Currency, dest ChainID) string {
	return fmt.Sprintf("%s|%d:%s->%d", protocol, source.Chain, assetKey(source), dest)
}

// Registry is the read-only planning graph: chains, their pools indexed by
// asset, and the bridge mappings connecting them. Built once from config and
// safe for concurrent readers.
type Registry struct {
	chains       map[ChainID]*Chain
	poolByID     map[ChainID]map[string]*Pool
	poolsByAsset map[ChainID]map[string][]*Pool
	mappings     map[string]*BridgeMapping
	mappingsFrom map[ChainID][]*BridgeMapping
	protocols    map[string]bool
}

// NewRegistry creates an empty registry with initialized maps.
func NewRegistry() *Registry {
	return &Registry{
		chains:       make(map[ChainID]*Chain),
		poolByID:     make(map[ChainID]map[string]*Pool),
		poolsByAsset: make(map[ChainID]map[string][]*Pool),
		mappings:     make(map[string]*BridgeMapping),
		mappingsFrom: make(map[ChainID][]*BridgeMapping),
		protocols:    make(map[string]bool),
	}
}

// BuildIndex indexes the chains and bridge mappings and validates their
// referential integrity.
func (r *Registry) BuildIndex(chains []Chain, mappings []BridgeMapping) error {
	if len(chains) == 0 {
		return fmt.Errorf("no chains to build index for")
	}

	for i := range chains {
		chain := chains[i]
		if _, exists := r.chains[chain.ID]; exists {
			return fmt.Errorf("duplicate chain id %d", chain.ID)
		}
		r.chains[chain.ID] = &chain
		r.poolByID[chain.ID] = make(map[string]*Pool)
		r.poolsByAsset[chain.ID] = make(map[string][]*Pool)

		for j := range chain.Pools {
			pool := &chain.Pools[j]
			if pool.Chain != chain.ID {
				return fmt.Errorf("pool %s declares chain %d inside chain %d", pool.ID, pool.Chain, chain.ID)
			}
			if pool.Type != PoolConstantProduct && pool.Type != PoolConcentrated {
				return fmt.Errorf("%w: pool %s has type %s", ErrUnsupportedPoolType, pool.ID, pool.Type)
			}
			if _, exists := r.poolByID[chain.ID][pool.ID]; exists {
				return fmt.Errorf("duplicate pool id %s on chain %d", pool.ID, chain.ID)
			}
			r.poolByID[chain.ID][pool.ID] = pool
			r.poolsByAsset[chain.ID][assetKey(pool.Token0)] = append(r.poolsByAsset[chain.ID][assetKey(pool.Token0)], pool)
			r.poolsByAsset[chain.ID][assetKey(pool.Token1)] = append(r.poolsByAsset[chain.ID][assetKey(pool.Token1)], pool)
		}
	}

	for i := range mappings {
		mapping := mappings[i]
		if _, ok := r.chains[mapping.Source.Chain]; !ok {
			return fmt.Errorf("%w: bridge mapping source chain %d", ErrUnknownChain, mapping.Source.Chain)
		}
		if _, ok := r.chains[mapping.Dest.Chain]; !ok {
			return fmt.Errorf("%w: bridge mapping dest chain %d", ErrUnknownChain, mapping.Dest.Chain)
		}
		key := mappingKey(mapping.Protocol, mapping.Source, mapping.Dest.Chain)
		if _, exists := r.mappings[key]; exists {
			return fmt.Errorf("duplicate bridge mapping %s", key)
		}
		r.mappings[key] = &mapping
		r.mappingsFrom[mapping.Source.Chain] = append(r.mappingsFrom[mapping.Source.Chain], &mapping)
		r.protocols[mapping.Protocol] = true
	}

	// Pin a deterministic enumeration order so identical requests yield
	// bit-identical routes.
	for chainID := range r.mappingsFrom {
		list := r.mappingsFrom[chainID]
		sort.Slice(list, func(i, j int) bool {
			ki := mappingKey(list[i].Protocol, list[i].Source, list[i].Dest.Chain)
			kj := mappingKey(list[j].Protocol, list[j].Source, list[j].Dest.Chain)
			return ki < kj
		})
	}
	for chainID := range r.poolsByAsset {
		for key := range r.poolsByAsset[chainID] {
			list := r.poolsByAsset[chainID][key]
			sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		}
	}

	return nil
}

// ChainInfo returns the chain with the given id.
func (r *Registry) ChainInfo(id ChainID) (*Chain, error) {
	chain, ok := r.chains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, id)
	}
	return chain, nil
}

// Chains returns all chain ids in ascending order.
func (r *Registry) Chains() []ChainID {
	ids := make([]ChainID, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PoolByID returns the pool with the given id on a chain, or nil.
func (r *Registry) PoolByID(chain ChainID, poolID string) *Pool {
	return r.poolByID[chain][poolID]
}

// PoolsFor returns the pools on a chain holding the given currency, with the
// native asset resolved to its wrapped token.
func (r *Registry) PoolsFor(chain ChainID, currency Currency) []*Pool {
	info, ok := r.chains[chain]
	if !ok {
		return nil
	}
	return r.poolsByAsset[chain][assetKey(info.PoolAsset(currency))]
}

// ResolveDestinationCurrency resolves a bridge mapping endpoint, the registry
// half of the Bridge Mapping Registry collaborator contract.
func (r *Registry) ResolveDestinationCurrency(protocol string, source Currency, dest ChainID) (Currency, bool) {
	mapping, ok := r.mappings[mappingKey(protocol, source, dest)]
	if !ok {
		return Currency{}, false
	}
	return mapping.Dest, true
}

// Mapping returns the full mapping for a (protocol, source, dest chain) triple.
func (r *Registry) Mapping(protocol string, source Currency, dest ChainID) (*BridgeMapping, bool) {
	mapping, ok := r.mappings[mappingKey(protocol, source, dest)]
	return mapping, ok
}

// MappingsFrom lists the bridge mappings leaving a chain in deterministic order.
func (r *Registry) MappingsFrom(chain ChainID) []*BridgeMapping {
	return r.mappingsFrom[chain]
}

// HasProtocol reports whether any mapping uses the given protocol.
func (r *Registry) HasProtocol(protocol string) bool {
	return r.protocols[protocol]
}

// KnowsCurrency reports whether the currency is the chain's native asset, its
// wrapped form, a pool token, or a bridge mapping endpoint on its chain.
func (r *Registry) KnowsCurrency(c Currency) bool {
	info, ok := r.chains[c.Chain]
	if !ok {
		return false
	}
	if c.IsNative() {
		return true
	}
	if info.WrappedNative.Equal(c) {
		return true
	}
	if len(r.poolsByAsset[c.Chain][assetKey(c)]) > 0 {
		return true
	}
	for _, mapping := range r.mappingsFrom[c.Chain] {
		if mapping.Source.Equal(c) {
			return true
		}
	}
	for _, list := range r.mappingsFrom {
		for _, mapping := range list {
			if mapping.Dest.Equal(c) {
				return true
			}
		}
	}
	return false
}

// Currencies lists every currency the registry knows on a chain: the native
// asset, its wrapped form, pool tokens, and bridge mapping endpoints. Order is
// deterministic: native first, then tokens by address.
func (r *Registry) Currencies(chain ChainID) ([]Currency, error) {
	info, ok := r.chains[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, chain)
	}

	seen := map[string]Currency{
		assetKey(info.Native):        info.Native,
		assetKey(info.WrappedNative): info.WrappedNative,
	}
	add := func(c Currency) {
		if c.Chain == chain && !c.IsNative() {
			seen[assetKey(c)] = c
		}
	}
	for _, pool := range info.Pools {
		add(pool.Token0)
		add(pool.Token1)
	}
	for _, mapping := range r.mappingsFrom[chain] {
		add(mapping.Source)
	}
	for _, list := range r.mappingsFrom {
		for _, mapping := range list {
			add(mapping.Dest)
		}
	}

	out := []Currency{info.Native}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		if key != "native" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		out = append(out, seen[key])
	}
	return out, nil
}

// CurrencyByRef resolves a textual asset reference on a chain: "native",
// "wrapped", or a token address the registry has seen in a pool or bridge
// mapping.
func (r *Registry) CurrencyByRef(chain ChainID, ref string) (Currency, error) {
	info, ok := r.chains[chain]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %d", ErrUnknownChain, chain)
	}
	switch ref {
	case "native":
		return info.Native, nil
	case "wrapped":
		return info.WrappedNative, nil
	}
	if !common.IsHexAddress(ref) {
		return Currency{}, fmt.Errorf("%w: %q is not an asset reference", ErrUnknownCurrency, ref)
	}
	addr := common.HexToAddress(ref)
	if info.WrappedNative.Address == addr {
		return info.WrappedNative, nil
	}
	for _, pool := range info.Pools {
		if pool.Token0.Address == addr && !pool.Token0.IsNative() {
			return pool.Token0, nil
		}
		if pool.Token1.Address == addr && !pool.Token1.IsNative() {
			return pool.Token1, nil
		}
	}
	for _, mapping := range r.mappingsFrom[chain] {
		if mapping.Source.Address == addr && !mapping.Source.IsNative() {
			return mapping.Source, nil
		}
	}
	for _, list := range r.mappingsFrom {
		for _, mapping := range list {
			if mapping.Dest.Chain == chain && mapping.Dest.Address == addr && !mapping.Dest.IsNative() {
				return mapping.Dest, nil
			}
		}
	}
	return Currency{}, fmt.Errorf("%w: %s on chain %d", ErrUnknownCurrency, ref, chain)
}
