package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Graph is the directed foreign-key graph of a datasource. Immutable
// once built; Loader.Reload swaps in a fresh instance rather than
// mutating in place.
type Graph struct {
	edges []FkEdge
	// Adjacency index: from_table -> outgoing edges, in input order.
	adjacency map[string][]FkEdge
}

// NewGraph builds a graph from an edge list. Edge order is preserved so
// traversal is deterministic for a given snapshot.
func NewGraph(edges []FkEdge) *Graph {
	g := &Graph{
		edges:     make([]FkEdge, len(edges)),
		adjacency: make(map[string][]FkEdge),
	}
	copy(g.edges, edges)
	for _, e := range g.edges {
		g.adjacency[e.FromTable] = append(g.adjacency[e.FromTable], e)
	}
	return g
}

// Edges returns all edges in input order.
func (g *Graph) Edges() []FkEdge {
	return g.edges
}

// OutEdges returns the edges leaving a table, in input order.
func (g *Graph) OutEdges(fromTable string) []FkEdge {
	return g.adjacency[fromTable]
}

// EdgesFrom returns the edges whose source table matches; used to
// derive a table's foreign-key columns.
func (g *Graph) EdgesFrom(table string) []FkEdge {
	return g.adjacency[table]
}

// Tables returns every table that appears on either side of an edge,
// sorted.
func (g *Graph) Tables() []string {
	seen := make(map[string]bool)
	for _, e := range g.edges {
		seen[e.FromTable] = true
		seen[e.ToTable] = true
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Size returns the edge count.
func (g *Graph) Size() int {
	return len(g.edges)
}

// Snapshot is the on-disk graph format written by scripts/build-fk-graph.
type Snapshot struct {
	Database    string    `json:"database,omitempty"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
	Edges       []FkEdge  `json:"edges"`
}

// EdgeDiscoverer supplies edges when no snapshot file exists, typically
// backed by live catalog introspection.
type EdgeDiscoverer func(ctx context.Context) ([]FkEdge, error)

// Loader loads the foreign-key graph once and caches it for the process
// lifetime. Reload is the only invalidation path.
type Loader struct {
	snapshotPath string
	discover     EdgeDiscoverer
	logger       *zap.Logger

	mu    sync.RWMutex
	graph *Graph
}

// NewLoader creates a graph loader. snapshotPath may be empty to force
// live discovery; discover may be nil when a snapshot is guaranteed.
func NewLoader(snapshotPath string, discover EdgeDiscoverer, logger *zap.Logger) *Loader {
	return &Loader{
		snapshotPath: snapshotPath,
		discover:     discover,
		logger:       logger.Named("graph"),
	}
}

// Load returns the cached graph, loading it on first use.
func (l *Loader) Load(ctx context.Context) (*Graph, error) {
	l.mu.RLock()
	g := l.graph
	l.mu.RUnlock()
	if g != nil {
		return g, nil
	}
	return l.Reload(ctx)
}

// Reload discards the cached graph and loads a fresh one: snapshot file
// first, live discovery as fallback.
func (l *Loader) Reload(ctx context.Context) (*Graph, error) {
	edges, source, err := l.loadEdges(ctx)
	if err != nil {
		return nil, err
	}

	g := NewGraph(edges)
	l.mu.Lock()
	l.graph = g
	l.mu.Unlock()

	l.logger.Info("foreign-key graph loaded",
		zap.String("source", source),
		zap.Int("edges", g.Size()),
		zap.Int("tables", len(g.Tables())))
	return g, nil
}

func (l *Loader) loadEdges(ctx context.Context) ([]FkEdge, string, error) {
	if l.snapshotPath != "" {
		data, err := os.ReadFile(l.snapshotPath)
		switch {
		case err == nil:
			var snap Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return nil, "", fmt.Errorf("parse graph snapshot %s: %w", l.snapshotPath, err)
			}
			return snap.Edges, "snapshot:" + l.snapshotPath, nil
		case os.IsNotExist(err):
			l.logger.Warn("graph snapshot missing, falling back to live discovery",
				zap.String("path", l.snapshotPath))
		default:
			return nil, "", fmt.Errorf("read graph snapshot %s: %w", l.snapshotPath, err)
		}
	}

	if l.discover == nil {
		return nil, "", fmt.Errorf("no graph snapshot and no discoverer configured")
	}

	edges, err := l.discover(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("discover foreign keys: %w", err)
	}
	return edges, "catalog", nil
}

// WriteSnapshot serializes a snapshot to a file, used by the graph
// builder CLI.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}
