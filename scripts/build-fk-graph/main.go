// build-fk-graph introspects the configured datasource and writes the
// foreign-key graph snapshot the engine loads at startup.
//
// A snapshot spares the engine a catalog round-trip on boot, and the
// file can be hand-edited before deployment: relationships the database
// never declared as constraints (common in legacy schemas) are added by
// appending edges to the list.
//
// Usage: go run ./scripts/build-fk-graph [-out fk_graph.json] [-quiet]
//
// Connection settings come from config.yaml and environment variables,
// same as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/sqlmend/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/sqlmend/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/sqlmend/pkg/config"
	"github.com/ekaya-inc/sqlmend/pkg/schema"
)

func main() {
	out := flag.String("out", "", "Output path (default: graph_snapshot_path from config)")
	quiet := flag.Bool("quiet", false, "Only print the summary line, not every edge")
	flag.Parse()

	cfg, err := config.Load("dev")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	path := *out
	if path == "" {
		path = cfg.GraphSnapshotPath
	}

	ctx := context.Background()

	factory, err := datasource.GetSchemaDiscovererFactory(cfg.Datasource.Type)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unknown datasource type: %v\n", err)
		os.Exit(1)
	}
	disc, err := factory(ctx, cfg.Datasource.Map(), zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to datasource: %v\n", err)
		os.Exit(1)
	}
	defer disc.Close()

	edges, err := datasource.FkEdges(disc)(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover foreign keys: %v\n", err)
		os.Exit(1)
	}

	snap := schema.Snapshot{
		Database:    cfg.Datasource.Database,
		GeneratedAt: time.Now().UTC(),
		Edges:       edges,
	}
	if err := schema.WriteSnapshot(path, snap); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write snapshot: %v\n", err)
		os.Exit(1)
	}

	tables := schema.NewGraph(edges).Tables()
	fmt.Printf("Wrote %s: %d edges across %d tables\n", path, len(edges), len(tables))
	if !*quiet {
		for _, e := range edges {
			fmt.Printf("  %s.%s -> %s.%s\n", e.FromTable, e.FromColumn, e.ToTable, e.ToColumn)
		}
	}
}
