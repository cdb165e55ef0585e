package sql

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
)

// TokenKind classifies one lexical element of a SQL statement.
type TokenKind int

const (
	// TokenWhitespace covers runs of spaces, tabs, and newlines.
	TokenWhitespace TokenKind = iota
	// TokenIdentifier is a bare name or keyword (orders, SELECT, total).
	TokenIdentifier
	// TokenQuotedIdentifier is a double-quoted name; Text keeps the quotes.
	TokenQuotedIdentifier
	// TokenString is a single-quoted literal; Text keeps the quotes.
	TokenString
	// TokenNumber is an integer or decimal literal, optionally with an exponent.
	TokenNumber
	// TokenSymbol is one operator or punctuation mark. Multi-character
	// operators (::, <=, >=, <>, !=, ||) form a single token.
	TokenSymbol
	// TokenComment is a -- line comment or /* block comment */.
	TokenComment
)

// Token is one lexical element. Concatenating the Text of every token in
// order reproduces the input exactly, so a statement can be rewritten by
// editing tokens and rendering the slice back out.
type Token struct {
	Kind TokenKind
	Text string
}

// sqlKeywords lists the reserved words that structure a statement. Names
// that collide with keywords only matter when they appear bare; the
// tokenizer still emits them as TokenIdentifier and callers consult
// IsKeyword to tell the two apart.
var sqlKeywords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "JOIN": {}, "INNER": {},
	"LEFT": {}, "RIGHT": {}, "FULL": {}, "OUTER": {}, "CROSS": {},
	"ON": {}, "AS": {}, "AND": {}, "OR": {}, "NOT": {}, "IN": {},
	"IS": {}, "NULL": {}, "LIKE": {}, "ILIKE": {}, "BETWEEN": {},
	"EXISTS": {}, "GROUP": {}, "BY": {}, "ORDER": {}, "HAVING": {},
	"LIMIT": {}, "OFFSET": {}, "UNION": {}, "ALL": {}, "DISTINCT": {},
	"CASE": {}, "WHEN": {}, "THEN": {}, "ELSE": {}, "END": {},
	"ASC": {}, "DESC": {}, "WITH": {}, "USING": {}, "NATURAL": {},
	"TRUE": {}, "FALSE": {}, "CAST": {}, "INTERVAL": {},
}

// IsKeyword reports whether a bare identifier is a reserved SQL word.
func IsKeyword(word string) bool {
	_, ok := sqlKeywords[strings.ToUpper(word)]
	return ok
}

// twoByteSymbols are the operators that must not be split into two
// single-character tokens. "::" in particular carries cast semantics the
// fixer inspects.
var twoByteSymbols = []string{"::", "<=", ">=", "<>", "!=", "||"}

// Tokenize splits a SQL statement into a lossless token stream.
//
// The scanner is a small state machine over quote context: single quotes
// open string literals (with '' doubling and \' escapes), double quotes
// open identifiers, and -- and /* */ open comments. An unterminated
// string, quoted identifier, or block comment makes the statement
// untokenizable and returns an error wrapping apperrors.ErrMalformedInput.
func Tokenize(sqlText string) ([]Token, error) {
	var tokens []Token
	i := 0
	n := len(sqlText)

	for i < n {
		c := sqlText[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			j := i
			for j < n && (sqlText[j] == ' ' || sqlText[j] == '\t' || sqlText[j] == '\n' || sqlText[j] == '\r') {
				j++
			}
			tokens = append(tokens, Token{Kind: TokenWhitespace, Text: sqlText[i:j]})
			i = j

		case c == '\'':
			j, err := scanString(sqlText, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Kind: TokenString, Text: sqlText[i:j]})
			i = j

		case c == '"':
			j := i + 1
			for j < n && sqlText[j] != '"' {
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("%w: unterminated quoted identifier at offset %d", apperrors.ErrMalformedInput, i)
			}
			tokens = append(tokens, Token{Kind: TokenQuotedIdentifier, Text: sqlText[i : j+1]})
			i = j + 1

		case c == '-' && i+1 < n && sqlText[i+1] == '-':
			j := i
			for j < n && sqlText[j] != '\n' {
				j++
			}
			tokens = append(tokens, Token{Kind: TokenComment, Text: sqlText[i:j]})
			i = j

		case c == '/' && i+1 < n && sqlText[i+1] == '*':
			end := strings.Index(sqlText[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated block comment at offset %d", apperrors.ErrMalformedInput, i)
			}
			j := i + 2 + end + 2
			tokens = append(tokens, Token{Kind: TokenComment, Text: sqlText[i:j]})
			i = j

		case isDigit(c):
			j := scanNumber(sqlText, i)
			tokens = append(tokens, Token{Kind: TokenNumber, Text: sqlText[i:j]})
			i = j

		case isIdentStart(c):
			j := i
			for j < n && isIdentPart(sqlText[j]) {
				j++
			}
			tokens = append(tokens, Token{Kind: TokenIdentifier, Text: sqlText[i:j]})
			i = j

		default:
			matched := false
			for _, op := range twoByteSymbols {
				if strings.HasPrefix(sqlText[i:], op) {
					tokens = append(tokens, Token{Kind: TokenSymbol, Text: op})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				tokens = append(tokens, Token{Kind: TokenSymbol, Text: sqlText[i : i+1]})
				i++
			}
		}
	}

	return tokens, nil
}

// scanString returns the index just past a single-quoted literal opened
// at start, honoring both the SQL '' doubling and backslash escapes.
func scanString(sqlText string, start int) (int, error) {
	n := len(sqlText)
	j := start + 1
	for j < n {
		switch sqlText[j] {
		case '\\':
			j += 2
		case '\'':
			if j+1 < n && sqlText[j+1] == '\'' {
				j += 2
				continue
			}
			return j + 1, nil
		default:
			j++
		}
	}
	return 0, fmt.Errorf("%w: unterminated string literal at offset %d", apperrors.ErrMalformedInput, start)
}

// scanNumber returns the index just past an integer, decimal, or
// exponent-form numeric literal starting at start.
func scanNumber(sqlText string, start int) int {
	n := len(sqlText)
	j := start
	for j < n && isDigit(sqlText[j]) {
		j++
	}
	if j < n && sqlText[j] == '.' {
		j++
		for j < n && isDigit(sqlText[j]) {
			j++
		}
	}
	if j < n && (sqlText[j] == 'e' || sqlText[j] == 'E') {
		k := j + 1
		if k < n && (sqlText[k] == '+' || sqlText[k] == '-') {
			k++
		}
		if k < n && isDigit(sqlText[k]) {
			j = k
			for j < n && isDigit(sqlText[j]) {
				j++
			}
		}
	}
	return j
}

// Render concatenates a token stream back into SQL text.
func Render(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}
