package schema

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// PathFinder enumerates join chains between anchor tables over the
// foreign-key graph. It is pure computation: no I/O, no internal state
// beyond the logger.
type PathFinder struct {
	logger *zap.Logger
}

// NewPathFinder creates a PathFinder.
func NewPathFinder(logger *zap.Logger) *PathFinder {
	return &PathFinder{logger: logger.Named("pathfinder")}
}

// FindPaths walks the graph depth-first from every edge and returns
// each chain of 1..maxHops hops whose two endpoint tables are both
// anchors. Chains are deduplicated by structural signature. Keys are
// synthetic `start-end-index` strings so multiple distinct paths
// between the same endpoints coexist.
//
// An empty anchor set or empty graph yields an empty map; absence of a
// path between two anchors is information, not an error.
func (f *PathFinder) FindPaths(g *Graph, anchorTables []string, maxHops int) map[string]JoinPath {
	result := make(map[string]JoinPath)
	if g == nil || g.Size() == 0 || len(anchorTables) == 0 {
		return result
	}
	if maxHops < 1 {
		maxHops = 1
	}

	anchors := make(map[string]bool, len(anchorTables))
	for _, t := range anchorTables {
		anchors[t] = true
	}

	visited := make(map[string]bool) // chain signatures already explored
	pairCounts := make(map[string]int)

	for _, seed := range g.Edges() {
		stack := [][]FkEdge{{seed}}
		for len(stack) > 0 {
			chain := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			sig := JoinPath{Hops: chain}.Signature()
			if visited[sig] {
				continue
			}
			visited[sig] = true

			first := chain[0]
			last := chain[len(chain)-1]
			if len(chain) <= maxHops && anchors[first.FromTable] && anchors[last.ToTable] {
				pairKey := first.FromTable + "-" + last.ToTable
				key := fmt.Sprintf("%s-%d", pairKey, pairCounts[pairKey])
				pairCounts[pairKey]++
				hops := make([]FkEdge, len(chain))
				copy(hops, chain)
				result[key] = JoinPath{Hops: hops}
			}

			// Never extend past the hop budget.
			if len(chain) >= maxHops {
				continue
			}

			inChain := make(map[string]bool, len(chain)+1)
			for _, hop := range chain {
				inChain[hop.FromTable] = true
				inChain[hop.ToTable] = true
			}

			next := g.OutEdges(last.ToTable)
			// Push in reverse so the LIFO stack extends chains in edge
			// order, keeping synthetic keys stable across runs.
			for i := len(next) - 1; i >= 0; i-- {
				e := next[i]
				// Cycle guard: an extension whose endpoints are both
				// already in the chain would revisit covered ground.
				if inChain[e.FromTable] && inChain[e.ToTable] {
					continue
				}
				extended := make([]FkEdge, len(chain)+1)
				copy(extended, chain)
				extended[len(chain)] = e
				stack = append(stack, extended)
			}
		}
	}

	f.logger.Debug("join paths discovered",
		zap.Int("anchors", len(anchorTables)),
		zap.Int("max_hops", maxHops),
		zap.Int("paths", len(result)))
	return result
}

// FilterMaximal reduces a path set to maximal chains only: a path whose
// hop descriptor is a contiguous substring of a strictly longer path's
// descriptor is a sub-chain and is dropped. Identical descriptors
// reached under different keys collapse to one representative. Without
// this, the rendered prompt would show both A→B and A→B→C and leave the
// model guessing which join to use.
func (f *PathFinder) FilterMaximal(paths map[string]JoinPath) map[string]JoinPath {
	if len(paths) <= 1 {
		out := make(map[string]JoinPath, len(paths))
		for k, p := range paths {
			out[k] = p
		}
		return out
	}

	type candidate struct {
		key  string
		desc string
		path JoinPath
	}
	cands := make([]candidate, 0, len(paths))
	for k, p := range paths {
		cands = append(cands, candidate{key: k, desc: p.Descriptor(), path: p})
	}

	// Longest first; ties ordered lexically so the kept representative
	// is deterministic.
	sort.Slice(cands, func(i, j int) bool {
		if len(cands[i].desc) != len(cands[j].desc) {
			return len(cands[i].desc) > len(cands[j].desc)
		}
		if cands[i].desc != cands[j].desc {
			return cands[i].desc < cands[j].desc
		}
		return cands[i].key < cands[j].key
	})

	var kept []candidate
	seen := make(map[string]bool, len(cands))
	for _, c := range cands {
		if seen[c.desc] {
			continue
		}
		seen[c.desc] = true

		subChain := false
		for _, k := range kept {
			if len(k.desc) > len(c.desc) && strings.Contains(k.desc, c.desc) {
				subChain = true
				break
			}
		}
		if !subChain {
			kept = append(kept, c)
		}
	}

	out := make(map[string]JoinPath, len(kept))
	for _, c := range kept {
		out[c.key] = c.path
	}

	if dropped := len(paths) - len(out); dropped > 0 {
		f.logger.Debug("sub-chains filtered", zap.Int("dropped", dropped), zap.Int("kept", len(out)))
	}
	return out
}

// ExtractPathTables returns every table touched by any path, in
// deterministic order (sorted path keys, traversal order within each
// path, first occurrence wins).
func ExtractPathTables(paths map[string]JoinPath) []string {
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	var out []string
	for _, k := range keys {
		for _, table := range paths[k].Tables() {
			if !seen[table] {
				seen[table] = true
				out = append(out, table)
			}
		}
	}
	return out
}
