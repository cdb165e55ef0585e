// Package schema implements foreign-key graph traversal and compact
// schema-pool construction: the pieces that decide which tables and
// columns a generated query is allowed to see.
package schema

import (
	"strings"
)

// FkEdge is one directed foreign-key edge:
// from_table.from_column references to_table.to_column.
type FkEdge struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// JoinPath is an ordered, non-empty chain of hops where each hop's
// target table is the next hop's source table.
type JoinPath struct {
	Hops []FkEdge `json:"hops"`
}

// StartTable returns the source table of the first hop.
func (p JoinPath) StartTable() string {
	if len(p.Hops) == 0 {
		return ""
	}
	return p.Hops[0].FromTable
}

// EndTable returns the target table of the last hop.
func (p JoinPath) EndTable() string {
	if len(p.Hops) == 0 {
		return ""
	}
	return p.Hops[len(p.Hops)-1].ToTable
}

// Tables returns every table the path touches, in traversal order,
// without duplicates.
func (p JoinPath) Tables() []string {
	seen := make(map[string]bool, len(p.Hops)+1)
	out := make([]string, 0, len(p.Hops)+1)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, hop := range p.Hops {
		add(hop.FromTable)
		add(hop.ToTable)
	}
	return out
}

// Signature is the structural identity of a path: one
// `from->to:fk_col->ref_col` segment per hop. Two chains with the same
// signature traverse the same edges in the same order.
func (p JoinPath) Signature() string {
	var sb strings.Builder
	for i, hop := range p.Hops {
		if i > 0 {
			sb.WriteString("||")
		}
		sb.WriteString(hop.FromTable)
		sb.WriteString("->")
		sb.WriteString(hop.ToTable)
		sb.WriteString(":")
		sb.WriteString(hop.FromColumn)
		sb.WriteString("->")
		sb.WriteString(hop.ToColumn)
	}
	return sb.String()
}

// Descriptor renders the path as `table.col->table.col` hop descriptors
// joined by a separator. FilterMaximal compares these strings: a path
// whose descriptor is a contiguous substring of a longer path's
// descriptor is a sub-chain of it.
func (p JoinPath) Descriptor() string {
	var sb strings.Builder
	for i, hop := range p.Hops {
		if i > 0 {
			sb.WriteString("|")
		}
		sb.WriteString(hop.FromTable)
		sb.WriteString(".")
		sb.WriteString(hop.FromColumn)
		sb.WriteString("->")
		sb.WriteString(hop.ToTable)
		sb.WriteString(".")
		sb.WriteString(hop.ToColumn)
	}
	return sb.String()
}

// FkRef names the referenced side of a foreign-key column.
type FkRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ColumnMeta describes one pooled column.
type ColumnMeta struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	// AssumedPrimaryKey marks the `id`-convention fallback used when the
	// catalog reports no PK constraint. Callers can tell a real
	// constraint from the naming heuristic.
	AssumedPrimaryKey bool    `json:"assumed_primary_key,omitempty"`
	IsForeignKey      bool    `json:"is_foreign_key"`
	FKReference       *FkRef  `json:"fk_reference,omitempty"`
	RelevanceScore    float64 `json:"relevance_score"`
}

// TableEntry is one table's pooled view: canonical name plus the
// ordered column list (all PKs, then all FKs, then ranked extras).
type TableEntry struct {
	Name    string       `json:"name"`
	Columns []ColumnMeta `json:"columns"`
}

// Column returns the entry's metadata for a column name
// (case-insensitive), or nil.
func (e *TableEntry) Column(name string) *ColumnMeta {
	for i := range e.Columns {
		if strings.EqualFold(e.Columns[i].Name, name) {
			return &e.Columns[i]
		}
	}
	return nil
}

// SchemaPool is the pruned set of tables and columns exposed for query
// generation and correction. Table order is insertion order (anchors
// first, then path-discovered tables) so downstream rendering is
// deterministic.
type SchemaPool struct {
	Tables  []string               `json:"tables"`
	Entries map[string]*TableEntry `json:"entries"`
}

// NewSchemaPool returns an empty pool.
func NewSchemaPool() *SchemaPool {
	return &SchemaPool{Entries: make(map[string]*TableEntry)}
}

// Add appends an entry, replacing any previous entry of the same name
// without disturbing table order.
func (p *SchemaPool) Add(entry *TableEntry) {
	if _, exists := p.Entries[entry.Name]; !exists {
		p.Tables = append(p.Tables, entry.Name)
	}
	p.Entries[entry.Name] = entry
}

// Get returns the entry for an exact table name, or nil.
func (p *SchemaPool) Get(table string) *TableEntry {
	return p.Entries[table]
}

// Len returns the number of pooled tables.
func (p *SchemaPool) Len() int {
	return len(p.Tables)
}

// ValueContext maps "table.column" to sample literal values known to
// exist in the data. It only hints the prompt; the auto-fixer never
// reads it.
type ValueContext map[string][]string

// Add records a value for a key, keeping first-seen order and dropping
// duplicates.
func (v ValueContext) Add(key, value string) {
	for _, existing := range v[key] {
		if existing == value {
			return
		}
	}
	v[key] = append(v[key], value)
}

// NormalizeTableName canonicalizes a table reference to `schema.table`,
// qualifying bare names with the default schema.
func NormalizeTableName(name, defaultSchema string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	if strings.Contains(name, ".") {
		return name
	}
	return defaultSchema + "." + name
}

// StripSchemaPrefix returns the bare table name without its schema
// qualifier.
func StripSchemaPrefix(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// charTypes and numericTypes partition the type names that matter for
// join-cast decisions. Matching is by uppercase prefix so length
// suffixes like VARCHAR(40) resolve correctly.
var charTypes = []string{"CHARACTER VARYING", "VARCHAR", "NVARCHAR", "TEXT", "CHAR", "NCHAR"}

var numericTypes = []string{"BIGINT", "INTEGER", "INT", "SMALLINT", "NUMERIC", "DECIMAL", "FLOAT", "DOUBLE PRECISION", "REAL"}

// IsCharType reports whether a declared type belongs to the
// character/text family.
func IsCharType(dataType string) bool {
	upper := strings.ToUpper(strings.TrimSpace(dataType))
	for _, t := range charTypes {
		if strings.HasPrefix(upper, t) {
			return true
		}
	}
	return false
}

// IsNumericType reports whether a declared type belongs to the numeric
// family.
func IsNumericType(dataType string) bool {
	upper := strings.ToUpper(strings.TrimSpace(dataType))
	for _, t := range numericTypes {
		if strings.HasPrefix(upper, t) {
			return true
		}
	}
	return false
}
