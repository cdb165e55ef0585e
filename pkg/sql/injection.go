package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionFinding flags a string literal inside a generated statement
// that matches a known SQL injection fingerprint.
type InjectionFinding struct {
	Literal     string // the literal's content, without the outer quotes
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// ScreenStatementLiterals runs every string literal in a statement
// through libinjection. Generated SQL interpolates values that
// ultimately come from user text, so a literal that itself parses as an
// injection payload ('; DROP TABLE users--) is worth refusing before
// execution.
//
// A statement that cannot be tokenized yields no findings; the
// validator reports that case on its own.
func ScreenStatementLiterals(sqlText string) []InjectionFinding {
	tokens, err := Tokenize(sqlText)
	if err != nil {
		return nil
	}

	var findings []InjectionFinding
	for _, t := range tokens {
		if t.Kind != TokenString || len(t.Text) < 2 {
			continue
		}
		inner := t.Text[1 : len(t.Text)-1]
		if inner == "" {
			continue
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(inner); isSQLi {
			findings = append(findings, InjectionFinding{
				Literal:     inner,
				Fingerprint: string(fingerprint),
			})
		}
	}
	return findings
}
