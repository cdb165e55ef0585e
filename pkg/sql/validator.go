// Package sql corrects and validates generated SQL against a schema pool.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrNotReadOnly indicates the query is not a plain SELECT.
	ErrNotReadOnly = errors.New("only SELECT statements are permitted")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize gates a statement before execution:
//
//  1. Strip the trailing semicolon and surrounding whitespace.
//  2. Reject statements with any remaining semicolon outside string
//     literals (multiple statements).
//  3. Reject statements that do not start with SELECT or WITH.
//
// Tokenization handles quoting, so a semicolon inside a string literal
// never counts as a statement boundary.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	tokens, err := Tokenize(sqlQuery)
	if err != nil {
		return ValidationResult{Error: err}
	}

	tokens = stripTrailingSemicolon(tokens)

	first := -1
	for i, t := range tokens {
		if t.Kind == TokenWhitespace || t.Kind == TokenComment {
			continue
		}
		if first < 0 {
			first = i
		}
		if t.Kind == TokenSymbol && t.Text == ";" {
			return ValidationResult{Error: ErrMultipleStatements}
		}
	}
	if first < 0 {
		return ValidationResult{NormalizedSQL: ""}
	}
	if lead := tokens[first]; lead.Kind != TokenIdentifier ||
		(!strings.EqualFold(lead.Text, "SELECT") && !strings.EqualFold(lead.Text, "WITH")) {
		return ValidationResult{Error: ErrNotReadOnly}
	}

	return ValidationResult{NormalizedSQL: strings.TrimSpace(Render(tokens))}
}

// stripTrailingSemicolon drops a final semicolon token, leaving any
// trailing comment in place.
func stripTrailingSemicolon(tokens []Token) []Token {
	last := -1
	for i := len(tokens) - 1; i >= 0; i-- {
		if k := tokens[i].Kind; k != TokenWhitespace && k != TokenComment {
			last = i
			break
		}
	}
	if last >= 0 && tokens[last].Kind == TokenSymbol && tokens[last].Text == ";" {
		return append(tokens[:last:last], tokens[last+1:]...)
	}
	return tokens
}
