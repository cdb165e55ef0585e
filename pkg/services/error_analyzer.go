package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrorCategory classifies why a generated statement failed to execute.
type ErrorCategory string

const (
	ErrorCategoryMissingTable    ErrorCategory = "missing_table"
	ErrorCategoryMissingColumn   ErrorCategory = "missing_column"
	ErrorCategoryAmbiguousColumn ErrorCategory = "ambiguous_column"
	ErrorCategorySyntax          ErrorCategory = "syntax"
	ErrorCategoryTypeMismatch    ErrorCategory = "type_mismatch"
	ErrorCategoryTimeout         ErrorCategory = "timeout"
	ErrorCategoryPermission      ErrorCategory = "permission"
	ErrorCategoryUnknown         ErrorCategory = "unknown"
)

// ExecutionDiagnosis is the analyzed outcome of a failed execution.
// Repairable diagnoses carry a Hint the repair loop feeds back to the
// model; the rest carry a Question to put to the user instead.
type ExecutionDiagnosis struct {
	Category   ErrorCategory `json:"category"`
	Message    string        `json:"message"`
	Hint       string        `json:"hint,omitempty"`
	Question   string        `json:"question,omitempty"`
	Repairable bool          `json:"repairable"`
}

// quotedIdentRe captures the first identifier a database error message
// quotes, covering Postgres double quotes, SQL Server single quotes
// and brackets.
var quotedIdentRe = regexp.MustCompile(`["'\[]([A-Za-z0-9_.$]+)["'\]]`)

func quotedIdentifier(msg string) string {
	m := quotedIdentRe.FindStringSubmatch(msg)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func containsAny(msg string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

// AnalyzeExecutionError classifies an executor failure by its driver
// message. The match order matters: Postgres phrases both missing
// relations and missing operators as "does not exist", so the more
// specific patterns run first.
func AnalyzeExecutionError(err error) ExecutionDiagnosis {
	msg := err.Error()
	lower := strings.ToLower(msg)
	ident := quotedIdentifier(msg)

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		containsAny(lower, "statement timeout", "canceling statement due to", "timeout expired", "query was canceled"):
		return ExecutionDiagnosis{
			Category: ErrorCategoryTimeout,
			Message:  msg,
			Question: "The query took too long to run. Can you narrow the time range or add a more specific filter?",
		}

	case containsAny(lower, "permission denied", "permission was denied", "access denied", "insufficient privilege"):
		return ExecutionDiagnosis{
			Category: ErrorCategoryPermission,
			Message:  msg,
			Question: "This connection is not allowed to read one of the referenced tables. Should I answer from different tables?",
		}

	case containsAny(lower, "is ambiguous", "ambiguous column name"):
		return ExecutionDiagnosis{
			Category:   ErrorCategoryAmbiguousColumn,
			Message:    msg,
			Hint:       identHint("the column %q appears in more than one joined table; qualify it with its table alias", ident, "an unqualified column appears in more than one joined table; qualify every column with its table alias"),
			Repairable: true,
		}

	case containsAny(lower, "operator does not exist", "invalid input syntax for type", "cannot be cast", "conversion failed", "operand type clash"):
		return ExecutionDiagnosis{
			Category:   ErrorCategoryTypeMismatch,
			Message:    msg,
			Hint:       "a comparison mixes incompatible types; cast the text side explicitly or compare values of matching types",
			Repairable: true,
		}

	case strings.Contains(lower, "relation ") && strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "invalid object name"):
		return ExecutionDiagnosis{
			Category:   ErrorCategoryMissingTable,
			Message:    msg,
			Hint:       identHint("the table %q does not exist in this database; use only the tables listed in the schema", ident, "a referenced table does not exist; use only the tables listed in the schema"),
			Repairable: true,
		}

	case strings.Contains(lower, "column ") && strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "invalid column name"):
		return ExecutionDiagnosis{
			Category:   ErrorCategoryMissingColumn,
			Message:    msg,
			Hint:       identHint("the column %q does not exist; use only the columns listed for each table", ident, "a referenced column does not exist; use only the columns listed for each table"),
			Repairable: true,
		}

	case containsAny(lower, "syntax error", "incorrect syntax near"):
		return ExecutionDiagnosis{
			Category:   ErrorCategorySyntax,
			Message:    msg,
			Hint:       "the statement has a syntax error; rewrite it as one valid SELECT statement",
			Repairable: true,
		}
	}

	return ExecutionDiagnosis{
		Category: ErrorCategoryUnknown,
		Message:  msg,
		Question: "The query failed for a reason I can't classify. Can you rephrase or simplify the question?",
	}
}

func identHint(withIdent, ident, without string) string {
	if ident == "" {
		return without
	}
	return fmt.Sprintf(withIdent, ident)
}
