package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGraph_OutEdgesPreserveInputOrder(t *testing.T) {
	g := NewGraph([]FkEdge{
		edge("orders", "customer_id", "customers", "id"),
		edge("orders", "warehouse_id", "warehouses", "id"),
		edge("customers", "region_id", "regions", "id"),
	})

	out := g.OutEdges("orders")
	if len(out) != 2 {
		t.Fatalf("got %d edges from orders, want 2", len(out))
	}
	if out[0].FromColumn != "customer_id" || out[1].FromColumn != "warehouse_id" {
		t.Errorf("edge order changed: got %s then %s", out[0].FromColumn, out[1].FromColumn)
	}
	if got := g.OutEdges("regions"); len(got) != 0 {
		t.Errorf("leaf table has %d out-edges, want 0", len(got))
	}
}

func TestGraph_TablesSortedAndDeduplicated(t *testing.T) {
	g := NewGraph([]FkEdge{
		edge("orders", "customer_id", "customers", "id"),
		edge("customers", "region_id", "regions", "id"),
	})

	got := g.Tables()
	want := []string{"customers", "orders", "regions"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLoader_ReadsSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fk_graph.json")
	snap := Snapshot{
		Database:    "shop",
		GeneratedAt: time.Now().UTC(),
		Edges: []FkEdge{
			edge("orders", "customer_id", "customers", "id"),
		},
	}
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	discoverCalled := false
	loader := NewLoader(path, func(ctx context.Context) ([]FkEdge, error) {
		discoverCalled = true
		return nil, errors.New("should not be called")
	}, zap.NewNop())

	g, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.Size() != 1 {
		t.Errorf("got %d edges, want 1", g.Size())
	}
	if discoverCalled {
		t.Error("live discovery ran even though the snapshot exists")
	}
}

func TestLoader_FallsBackToDiscoveryWhenSnapshotMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	loader := NewLoader(path, func(ctx context.Context) ([]FkEdge, error) {
		return []FkEdge{edge("orders", "customer_id", "customers", "id")}, nil
	}, zap.NewNop())

	g, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.Size() != 1 {
		t.Errorf("got %d edges, want 1 from live discovery", g.Size())
	}
}

func TestLoader_ErrorsWithoutSnapshotOrDiscoverer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	loader := NewLoader(path, nil, zap.NewNop())

	if _, err := loader.Load(context.Background()); err == nil {
		t.Fatal("expected an error when no edge source is available")
	}
}

func TestLoader_RejectsMalformedSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fk_graph.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path, nil, zap.NewNop())
	if _, err := loader.Load(context.Background()); err == nil {
		t.Fatal("expected a parse error for a corrupt snapshot")
	}
}

func TestLoader_LoadCachesUntilReload(t *testing.T) {
	calls := 0
	path := filepath.Join(t.TempDir(), "missing.json")
	loader := NewLoader(path, func(ctx context.Context) ([]FkEdge, error) {
		calls++
		return []FkEdge{edge("orders", "customer_id", "customers", "id")}, nil
	}, zap.NewNop())

	if _, err := loader.Load(context.Background()); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if _, err := loader.Load(context.Background()); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if calls != 1 {
		t.Errorf("discovery ran %d times, want 1 (cached)", calls)
	}

	if _, err := loader.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if calls != 2 {
		t.Errorf("discovery ran %d times after Reload, want 2", calls)
	}
}
