package router

import (
	"sort"
	"strings"
)

// EnumerateLocalPaths finds every pool path from one currency to another on a
// single chain, up to maxPoolHops pools deep. No pool is reused within one
// path, which also rules out cycles. Native endpoints are resolved to the
// chain's wrapped token before matching; an empty slice means no path exists.
// Results come back in deterministic order: shortest first, then by pool ids.
func (r *Registry) EnumerateLocalPaths(chain ChainID, from, to Currency, maxPoolHops int) []PoolPath {
	info, ok := r.chains[chain]
	if !ok {
		return nil
	}
	if maxPoolHops <= 0 {
		maxPoolHops = 1
	}

	start := info.PoolAsset(from)
	target := info.PoolAsset(to)
	if start.Equal(target) {
		return nil
	}

	var paths []PoolPath
	used := make(map[string]bool)
	var current PoolPath

	var walk func(at Currency)
	walk = func(at Currency) {
		if len(current) >= maxPoolHops {
			return
		}
		for _, pool := range r.poolsByAsset[chain][assetKey(at)] {
			if used[pool.ID] {
				continue
			}
			next, ok := pool.Other(at)
			if !ok {
				continue
			}
			used[pool.ID] = true
			current = append(current, PoolHop{
				PoolID:   pool.ID,
				Type:     pool.Type,
				FeeBps:   pool.FeeBps,
				TokenIn:  at,
				TokenOut: next,
			})

			if next.Equal(target) {
				path := make(PoolPath, len(current))
				copy(path, current)
				paths = append(paths, path)
			} else {
				walk(next)
			}

			current = current[:len(current)-1]
			used[pool.ID] = false
		}
	}
	walk(start)

	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) < len(paths[j])
		}
		return pathKey(paths[i]) < pathKey(paths[j])
	})
	return paths
}

// pathKey is a stable ordering key over the pools of a path.
func pathKey(path PoolPath) string {
	ids := make([]string, len(path))
	for i, hop := range path {
		ids[i] = hop.PoolID
	}
	return strings.Join(ids, "/")
}
