package sql

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/schema"
)

// fuzzyMatchThreshold is the minimum 0-100 similarity for a misspelled
// table or column to be corrected rather than surfaced as an issue.
const fuzzyMatchThreshold = 70

// AutoFixReport is the outcome of one correction pass over a statement.
type AutoFixReport struct {
	CorrectedSQL string   `json:"corrected_sql"`
	Changes      []string `json:"changes"`
	Issues       []string `json:"issues"`
}

// AutoFixer rewrites a generated statement so that every table and column
// reference resolves against a schema pool. References that cannot be
// resolved confidently are reported as issues and left untouched, so a
// human (or a repair round-trip) can decide.
type AutoFixer struct {
	logger *zap.Logger
}

// NewAutoFixer returns a fixer that logs under the "autofix" name.
func NewAutoFixer(logger *zap.Logger) *AutoFixer {
	return &AutoFixer{logger: logger.Named("autofix")}
}

// Fix runs the correction pass: resolve table references (exact,
// case-insensitive, schema-prefix-stripped, then fuzzy), resolve column
// references through the alias map, retarget qualified columns that live
// on exactly one other pooled table, and inject ::TEXT casts where a
// character column is compared against a numeric partner.
//
// All rewrites are collected against the original token stream and
// applied in a single rendering pass. The only fatal condition is input
// that cannot be tokenized; the report then carries the original text
// and the error wraps apperrors.ErrMalformedInput.
func (f *AutoFixer) Fix(sqlText string, pool *schema.SchemaPool) (AutoFixReport, error) {
	tokens, err := Tokenize(sqlText)
	if err != nil {
		f.logger.Warn("statement not tokenizable", zap.Error(err))
		report := AutoFixReport{
			CorrectedSQL: sqlText,
			Issues:       []string{fmt.Sprintf("could not parse statement: %v", err)},
		}
		return report, err
	}
	if pool == nil || pool.Len() == 0 {
		return AutoFixReport{CorrectedSQL: sqlText}, nil
	}

	pass := newFixPass(tokens, pool)
	pass.resolveTables()
	pass.resolveColumns()
	pass.injectCasts()

	report := AutoFixReport{
		CorrectedSQL: pass.render(),
		Changes:      pass.changes,
		Issues:       pass.issues,
	}
	if len(report.Changes) > 0 || len(report.Issues) > 0 {
		f.logger.Info("statement corrected",
			zap.Int("changes", len(report.Changes)),
			zap.Int("issues", len(report.Issues)))
	}
	return report, nil
}

// fixPass holds the working state of one correction run. Edits are
// recorded by token index (replacements, deletions, and appended casts)
// and only applied when the stream is rendered, so every resolution step
// sees stable positions.
type fixPass struct {
	tokens    []Token
	pool      *schema.SchemaPool
	updates   map[int]string
	deletes   map[int]bool
	inserts   map[int]string
	aliases   map[string]string
	known     map[string]bool
	tableSpan map[int]bool
	fromOrder []string

	changes     []string
	issues      []string
	seenChanges map[string]bool
	seenIssues  map[string]bool
}

func newFixPass(tokens []Token, pool *schema.SchemaPool) *fixPass {
	return &fixPass{
		tokens:      tokens,
		pool:        pool,
		updates:     make(map[int]string),
		deletes:     make(map[int]bool),
		inserts:     make(map[int]string),
		aliases:     make(map[string]string),
		known:       make(map[string]bool),
		tableSpan:   make(map[int]bool),
		seenChanges: make(map[string]bool),
		seenIssues:  make(map[string]bool),
	}
}

// resolveTables walks the FROM and JOIN clauses, resolves each table
// reference against the pool, and captures aliases. FROM keywords inside
// function arguments (EXTRACT(YEAR FROM ...)) are ignored.
func (p *fixPass) resolveTables() {
	var parens []bool // true when the open paren follows a function name
	for i := 0; i < len(p.tokens); i++ {
		t := p.tokens[i]
		if t.Kind == TokenSymbol {
			switch t.Text {
			case "(":
				parens = append(parens, p.isName(p.prevSig(i)))
			case ")":
				if len(parens) > 0 {
					parens = parens[:len(parens)-1]
				}
			}
			continue
		}
		if t.Kind != TokenIdentifier {
			continue
		}
		up := strings.ToUpper(t.Text)
		if up != "FROM" && up != "JOIN" {
			continue
		}
		if len(parens) > 0 && parens[len(parens)-1] {
			continue
		}
		j := p.nextSig(i)
		for p.isName(j) {
			last := p.consumeTableRef(j)
			c := p.nextSig(last)
			if !p.isSymbol(c, ",") {
				break
			}
			j = p.nextSig(c)
		}
	}
}

// consumeTableRef resolves one table reference starting at token j and
// returns the index of the last token it consumed (the alias, if any).
func (p *fixPass) consumeTableRef(j int) int {
	span, name := p.readQualifiedName(j)
	p.markSpan(span)
	canonical, ok := p.resolveTableName(name)
	if !ok {
		p.addIssue(fmt.Sprintf("table %q not found in schema; available tables: %s",
			name, strings.Join(p.pool.Tables, ", ")))
	} else {
		if canonical != name {
			p.rewriteSpan(span, canonical)
			p.addChange(fmt.Sprintf("table %q -> %q", name, canonical))
		}
		p.noteTable(canonical, name)
	}
	return p.captureAlias(span[len(span)-1], canonical)
}

// captureAlias records the alias that follows a table reference, with or
// without AS, and returns the last token index consumed.
func (p *fixPass) captureAlias(lastIdx int, canonical string) int {
	k := p.nextSig(lastIdx)
	if k >= 0 && p.tokens[k].Kind == TokenIdentifier && strings.EqualFold(p.tokens[k].Text, "AS") {
		k = p.nextSig(k)
	}
	if !p.isName(k) {
		return lastIdx
	}
	alias := strings.ToLower(p.nameText(k))
	p.markSpan([]int{k})
	if canonical != "" {
		p.aliases[alias] = canonical
	}
	p.known[alias] = true
	return k
}

// resolveTableName runs the resolution ladder against the pool: full-name
// match, schema-prefix-stripped match, then fuzzy similarity on the bare
// name. The first two rungs fold case.
func (p *fixPass) resolveTableName(name string) (string, bool) {
	for _, t := range p.pool.Tables {
		if strings.EqualFold(t, name) {
			return t, true
		}
	}
	bare := strings.ToLower(schema.StripSchemaPrefix(name))
	for _, t := range p.pool.Tables {
		if strings.ToLower(schema.StripSchemaPrefix(t)) == bare {
			return t, true
		}
	}
	best, bestScore := "", 0
	for _, t := range p.pool.Tables {
		if s := Ratio(bare, strings.ToLower(schema.StripSchemaPrefix(t))); s > bestScore {
			best, bestScore = t, s
		}
	}
	if bestScore >= fuzzyMatchThreshold {
		return best, true
	}
	return "", false
}

func (p *fixPass) noteTable(canonical, original string) {
	present := false
	for _, t := range p.fromOrder {
		if t == canonical {
			present = true
			break
		}
	}
	if !present {
		p.fromOrder = append(p.fromOrder, canonical)
	}
	p.known[strings.ToLower(canonical)] = true
	p.known[strings.ToLower(schema.StripSchemaPrefix(canonical))] = true
	p.known[strings.ToLower(original)] = true
}

// resolveColumns walks every name token that is not a table reference,
// alias, function name, keyword, or cast target, and resolves it as a
// column: qualified names through their alias or table, bare names
// against the FROM-clause tables in order.
func (p *fixPass) resolveColumns() {
	// SELECT output aliases are legitimate names that exist in no table;
	// collect them up front so their use sites are left alone.
	for i := 0; i < len(p.tokens); i++ {
		if p.tokens[i].Kind == TokenIdentifier && strings.EqualFold(p.tokens[i].Text, "AS") {
			if a := p.nextSig(i); p.isName(a) {
				p.known[strings.ToLower(p.nameText(a))] = true
			}
		}
	}

	for i := 0; i < len(p.tokens); i++ {
		if p.tableSpan[i] || p.deletes[i] || !p.isName(i) {
			continue
		}
		j := p.nextSig(i)
		if p.isSymbol(j, ".") || p.isSymbol(j, "(") {
			continue // qualifier segment or function name
		}
		d := p.prevSig(i)
		if p.isSymbol(d, "::") {
			continue // cast target type
		}
		if p.isSymbol(d, ".") {
			q := p.prevSig(d)
			if !p.isName(q) {
				continue
			}
			qspan, qname := p.readQualifiedNameBackward(q)
			p.resolveQualifiedColumn(i, qspan, qname)
			continue
		}
		if d >= 0 && p.tokens[d].Kind == TokenIdentifier && strings.EqualFold(p.tokens[d].Text, "AS") {
			continue // output alias definition
		}
		if p.known[strings.ToLower(p.nameText(i))] {
			continue // standalone table or alias mention
		}
		p.resolveUnqualifiedColumn(i)
	}
}

func (p *fixPass) resolveQualifiedColumn(colIdx int, qspan []int, qname string) {
	canonical, fromAlias := p.aliases[strings.ToLower(qname)]
	if !fromAlias {
		var ok bool
		canonical, ok = p.resolveTableName(qname)
		if !ok {
			return // unresolvable qualifier was already reported as a table issue
		}
		if qname != canonical {
			p.rewriteSpan(qspan, canonical)
			p.addChange(fmt.Sprintf("table %q -> %q", qname, canonical))
		}
	}
	entry := p.pool.Get(canonical)
	if entry == nil {
		return
	}

	colName := p.nameText(colIdx)
	if col := entry.Column(colName); col != nil {
		if col.Name != colName {
			p.updates[colIdx] = col.Name
			p.addChange(fmt.Sprintf("column %q -> %q on %s", colName, col.Name, canonical))
		}
		return
	}

	best, score := bestColumnMatch(entry, colName)
	if score >= fuzzyMatchThreshold {
		if best != colName {
			p.updates[colIdx] = best
			p.addChange(fmt.Sprintf("column %s.%s -> %s.%s", qname, colName, canonical, best))
		}
		return
	}

	// The column exists nowhere on the referenced table. When exactly one
	// other pooled table carries it, the table reference is what is wrong.
	var homes []string
	for _, t := range p.pool.Tables {
		if t == canonical {
			continue
		}
		if e := p.pool.Get(t); e != nil && e.Column(colName) != nil {
			homes = append(homes, t)
		}
	}
	switch {
	case len(homes) == 1:
		p.rewriteSpan(qspan, homes[0])
		if col := p.pool.Get(homes[0]).Column(colName); col.Name != colName {
			p.updates[colIdx] = col.Name
		}
		p.addChange(fmt.Sprintf("table reference %q -> %q for column %q", qname, homes[0], colName))
	case len(homes) > 1:
		p.addIssue(fmt.Sprintf("column %q is ambiguous: present on %s", colName, strings.Join(homes, ", ")))
	case best == "":
		p.addIssue(fmt.Sprintf("could not resolve column %s.%s", qname, colName))
	default:
		p.addIssue(fmt.Sprintf("could not resolve column %s.%s; best match: %s (score: %d)",
			qname, colName, best, score))
	}
}

func (p *fixPass) resolveUnqualifiedColumn(i int) {
	name := p.nameText(i)
	for _, t := range p.fromOrder {
		entry := p.pool.Get(t)
		if entry == nil {
			continue
		}
		if col := entry.Column(name); col != nil {
			if col.Name != name {
				p.updates[i] = col.Name
				p.addChange(fmt.Sprintf("column %q -> %q", name, col.Name))
			}
			return
		}
	}

	best, bestTable, bestScore := "", "", 0
	for _, t := range p.searchOrder() {
		entry := p.pool.Get(t)
		if entry == nil {
			continue
		}
		if col, score := bestColumnMatch(entry, name); score > bestScore {
			best, bestTable, bestScore = col, t, score
		}
	}
	switch {
	case bestScore >= fuzzyMatchThreshold:
		if best != name {
			p.updates[i] = best
			p.addChange(fmt.Sprintf("column %q -> %q (table %s)", name, best, bestTable))
		}
	case best == "":
		p.addIssue(fmt.Sprintf("could not resolve column %q", name))
	default:
		p.addIssue(fmt.Sprintf("could not resolve column %q; best match: %s.%s (score: %d)",
			name, bestTable, best, bestScore))
	}
}

// searchOrder lists pool tables with the FROM-clause tables first, so
// fuzzy column resolution prefers tables the statement actually uses.
func (p *fixPass) searchOrder() []string {
	order := make([]string, 0, p.pool.Len())
	seen := make(map[string]bool, p.pool.Len())
	for _, t := range p.fromOrder {
		order = append(order, t)
		seen[t] = true
	}
	for _, t := range p.pool.Tables {
		if !seen[t] {
			order = append(order, t)
		}
	}
	return order
}

func bestColumnMatch(entry *schema.TableEntry, name string) (string, int) {
	lower := strings.ToLower(name)
	best, bestScore := "", 0
	for _, col := range entry.Columns {
		if s := Ratio(lower, strings.ToLower(col.Name)); s > bestScore {
			best, bestScore = col.Name, s
		}
	}
	return best, bestScore
}

// typeFamily buckets a column or literal for cast decisions.
type typeFamily int

const (
	famUnknown typeFamily = iota
	famChar
	famNumeric
)

func castFamily(typeName string) typeFamily {
	switch {
	case schema.IsCharType(typeName):
		return famChar
	case schema.IsNumericType(typeName):
		return famNumeric
	default:
		return famUnknown
	}
}

// operand is one side of a comparison.
type operand struct {
	family typeFamily
	colIdx int // token index of the column name, -1 for literals
	ref    string
	cast   bool // already followed by ::
	column bool // resolves to a pooled column
}

var comparisonOps = map[string]bool{
	"=": true, "<": true, ">": true, "<=": true, ">=": true, "<>": true, "!=": true,
}

// injectCasts appends ::TEXT to character-family columns compared against
// numeric partners, so joins and filters across mismatched key types
// still execute. A numeric column partner is cast on both sides; an
// operand already carrying a cast is never touched again.
func (p *fixPass) injectCasts() {
	for i := 0; i < len(p.tokens); i++ {
		if p.deletes[i] || p.tokens[i].Kind != TokenSymbol || !comparisonOps[p.tokens[i].Text] {
			continue
		}
		left := p.operandBefore(i)
		right := p.operandAfter(i)
		if left.family == famUnknown || right.family == famUnknown || left.family == right.family {
			continue
		}
		charSide, numSide := left, right
		if right.family == famChar {
			charSide, numSide = right, left
		}
		if !charSide.column {
			continue
		}
		p.castColumn(charSide)
		if numSide.column {
			p.castColumn(numSide)
		}
	}
}

func (p *fixPass) castColumn(op operand) {
	if !op.column || op.cast || op.colIdx < 0 {
		return
	}
	if _, done := p.inserts[op.colIdx]; done {
		return
	}
	p.inserts[op.colIdx] = "::TEXT"
	p.addChange(fmt.Sprintf("type cast: %s -> %s::TEXT", op.ref, op.ref))
}

func (p *fixPass) operandBefore(i int) operand {
	j := p.prevSig(i)
	if j < 0 {
		return operand{}
	}
	switch p.tokens[j].Kind {
	case TokenNumber:
		return operand{family: famNumeric, colIdx: -1}
	case TokenString:
		return operand{family: famChar, colIdx: -1}
	}
	if !p.isName(j) {
		return operand{}
	}
	// A cast ends with its type name; the column sits before the "::".
	if d := p.prevSig(j); p.isSymbol(d, "::") {
		col := p.prevSig(d)
		if !p.isName(col) {
			return operand{}
		}
		op := p.columnOperand(col)
		op.cast = true
		op.family = castFamily(p.nameText(j))
		return op
	}
	return p.columnOperand(j)
}

func (p *fixPass) operandAfter(i int) operand {
	j := p.nextSig(i)
	if j < 0 {
		return operand{}
	}
	switch p.tokens[j].Kind {
	case TokenNumber:
		return operand{family: famNumeric, colIdx: -1}
	case TokenString:
		return operand{family: famChar, colIdx: -1}
	case TokenSymbol:
		if p.tokens[j].Text == "-" || p.tokens[j].Text == "+" {
			if k := p.nextSig(j); k >= 0 && p.tokens[k].Kind == TokenNumber {
				return operand{family: famNumeric, colIdx: -1}
			}
		}
		return operand{}
	}
	if !p.isName(j) {
		return operand{}
	}
	span, _ := p.readQualifiedName(j)
	last := span[len(span)-1]
	if p.isSymbol(p.nextSig(last), "(") {
		return operand{} // function call
	}
	op := p.columnOperand(last)
	if cc := p.nextSig(last); p.isSymbol(cc, "::") {
		op.cast = true
		if ty := p.nextSig(cc); p.isName(ty) {
			op.family = castFamily(p.nameText(ty))
		}
	}
	return op
}

// columnOperand classifies the name token at colIdx as a pooled column,
// resolving its qualifier chain (or the FROM-clause tables for a bare
// name) to find the declared type.
func (p *fixPass) columnOperand(colIdx int) operand {
	name := p.nameText(colIdx)
	op := operand{family: famUnknown, colIdx: colIdx, column: true, ref: name}

	var entry *schema.TableEntry
	if d := p.prevSig(colIdx); p.isSymbol(d, ".") {
		q := p.prevSig(d)
		if !p.isName(q) {
			return operand{}
		}
		_, qname := p.readQualifiedNameBackward(q)
		op.ref = qname + "." + name
		canonical, ok := p.aliases[strings.ToLower(qname)]
		if !ok {
			canonical, ok = p.resolveTableName(qname)
		}
		if ok {
			entry = p.pool.Get(canonical)
		}
	} else {
		for _, t := range p.fromOrder {
			if e := p.pool.Get(t); e != nil && e.Column(name) != nil {
				entry = e
				break
			}
		}
	}
	if entry == nil {
		return op
	}
	col := entry.Column(name)
	if col == nil {
		return op
	}
	op.family = castFamily(col.DataType)
	return op
}

// Token-stream plumbing. Navigation skips whitespace, comments, and
// tokens already deleted by an earlier rewrite, so later phases see the
// corrected stream.

func (p *fixPass) nextSig(i int) int {
	for j := i + 1; j < len(p.tokens); j++ {
		if p.deletes[j] {
			continue
		}
		if k := p.tokens[j].Kind; k != TokenWhitespace && k != TokenComment {
			return j
		}
	}
	return -1
}

func (p *fixPass) prevSig(i int) int {
	for j := i - 1; j >= 0; j-- {
		if p.deletes[j] {
			continue
		}
		if k := p.tokens[j].Kind; k != TokenWhitespace && k != TokenComment {
			return j
		}
	}
	return -1
}

func (p *fixPass) isSymbol(i int, s string) bool {
	return i >= 0 && p.tokens[i].Kind == TokenSymbol && p.tokens[i].Text == s
}

// isName reports whether token i is a usable name: a bare identifier that
// is not a reserved word, or a quoted identifier.
func (p *fixPass) isName(i int) bool {
	if i < 0 {
		return false
	}
	switch p.tokens[i].Kind {
	case TokenQuotedIdentifier:
		return true
	case TokenIdentifier:
		return !IsKeyword(p.tokens[i].Text)
	}
	return false
}

// nameText returns the effective text of a name token: any pending
// replacement first, otherwise the raw text with identifier quotes
// stripped.
func (p *fixPass) nameText(i int) string {
	if u, ok := p.updates[i]; ok {
		return u
	}
	t := p.tokens[i]
	if t.Kind == TokenQuotedIdentifier {
		return strings.Trim(t.Text, `"`)
	}
	return t.Text
}

// readQualifiedName collects the dotted name starting at token j and
// returns the covered token indexes plus the joined name.
func (p *fixPass) readQualifiedName(j int) ([]int, string) {
	span := []int{j}
	parts := []string{p.nameText(j)}
	for {
		d := p.nextSig(span[len(span)-1])
		if !p.isSymbol(d, ".") {
			break
		}
		nx := p.nextSig(d)
		if !p.isName(nx) {
			break
		}
		span = append(span, d, nx)
		parts = append(parts, p.nameText(nx))
	}
	return span, strings.Join(parts, ".")
}

// readQualifiedNameBackward collects the dotted chain that ends at token
// e, walking left, and returns it in source order.
func (p *fixPass) readQualifiedNameBackward(e int) ([]int, string) {
	span := []int{e}
	parts := []string{p.nameText(e)}
	for {
		d := p.prevSig(span[0])
		if !p.isSymbol(d, ".") {
			break
		}
		pv := p.prevSig(d)
		if !p.isName(pv) {
			break
		}
		span = append([]int{pv, d}, span...)
		parts = append([]string{p.nameText(pv)}, parts...)
	}
	return span, strings.Join(parts, ".")
}

func (p *fixPass) markSpan(span []int) {
	for _, idx := range span {
		p.tableSpan[idx] = true
	}
}

// rewriteSpan replaces a multi-token name with a single replacement text.
func (p *fixPass) rewriteSpan(span []int, text string) {
	p.updates[span[0]] = text
	for _, idx := range span[1:] {
		p.deletes[idx] = true
	}
}

func (p *fixPass) addChange(msg string) {
	if p.seenChanges[msg] {
		return
	}
	p.seenChanges[msg] = true
	p.changes = append(p.changes, msg)
}

func (p *fixPass) addIssue(msg string) {
	if p.seenIssues[msg] {
		return
	}
	p.seenIssues[msg] = true
	p.issues = append(p.issues, msg)
}

// render applies the collected edits in one pass over the token stream.
func (p *fixPass) render() string {
	var sb strings.Builder
	for i, t := range p.tokens {
		if p.deletes[i] {
			continue
		}
		if u, ok := p.updates[i]; ok {
			sb.WriteString(u)
		} else {
			sb.WriteString(t.Text)
		}
		if ins, ok := p.inserts[i]; ok {
			sb.WriteString(ins)
		}
	}
	return sb.String()
}
