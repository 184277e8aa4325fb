package router

import (
	"fmt"
	"sort"
)

// bridgeCandidate is one cross-chain decomposition before quoting: an optional
// local swap to reach the bridged currency, the bridge mapping itself, and an
// optional local swap on the destination side.
type bridgeCandidate struct {
	preSwap  PoolPath // nil when the source currency is bridged as-is
	mapping  *BridgeMapping
	postSwap PoolPath // nil when the bridged currency is the requested output
}

// hopCount is the number of route hops this candidate resolves into.
func (c *bridgeCandidate) hopCount() int {
	count := 1
	if c.preSwap != nil {
		count++
	}
	if c.postSwap != nil {
		count++
	}
	return count
}

// key is a stable identity used to pin scoring order.
func (c *bridgeCandidate) key() string {
	return fmt.Sprintf("%s|%s|%s",
		pathKey(c.preSwap),
		mappingKey(c.mapping.Protocol, c.mapping.Source, c.mapping.Dest.Chain),
		pathKey(c.postSwap))
}

// enumerateBridgeCandidates lists every decomposition of a cross-chain request
// into (zero or one local swap) -> bridge -> (zero or one local swap) over the
// allowed protocols, in deterministic order.
func (r *Registry) enumerateBridgeCandidates(
	source, dest Currency,
	allowed map[string]bool,
	maxPoolHops int,
) []*bridgeCandidate {
	sourceChain, ok := r.chains[source.Chain]
	if !ok {
		return nil
	}
	destChain, ok := r.chains[dest.Chain]
	if !ok {
		return nil
	}

	var candidates []*bridgeCandidate
	for _, mapping := range r.mappingsFrom[source.Chain] {
		if mapping.Dest.Chain != dest.Chain {
			continue
		}
		if len(allowed) > 0 && !allowed[mapping.Protocol] {
			continue
		}

		// Source side: bridge the input directly, or swap into the bridged
		// currency first.
		var preOptions []PoolPath
		if sourceChain.PoolAsset(source).Equal(sourceChain.PoolAsset(mapping.Source)) {
			preOptions = append(preOptions, nil)
		} else {
			for _, path := range r.EnumerateLocalPaths(source.Chain, source, mapping.Source, maxPoolHops) {
				preOptions = append(preOptions, path)
			}
		}
		if len(preOptions) == 0 {
			continue
		}

		// Destination side, symmetric.
		var postOptions []PoolPath
		if destChain.PoolAsset(mapping.Dest).Equal(destChain.PoolAsset(dest)) {
			postOptions = append(postOptions, nil)
		} else {
			for _, path := range r.EnumerateLocalPaths(dest.Chain, mapping.Dest, dest, maxPoolHops) {
				postOptions = append(postOptions, path)
			}
		}
		if len(postOptions) == 0 {
			continue
		}

		for _, pre := range preOptions {
			for _, post := range postOptions {
				candidates = append(candidates, &bridgeCandidate{
					preSwap:  pre,
					mapping:  mapping,
					postSwap: post,
				})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].key() < candidates[j].key() })
	return candidates
}
