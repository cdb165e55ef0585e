package apperrors

import "errors"

var (
	// ErrMalformedInput means a SQL statement could not be tokenized at
	// all. It is the only hard failure of a fix attempt; the original
	// text is returned alongside it.
	ErrMalformedInput = errors.New("malformed sql input")

	// ErrEmptyCatalogResult means a pooled table has no retrievable
	// columns; the table stays in the pool with an empty column list
	// and this condition becomes a diagnostic, not a failure.
	ErrEmptyCatalogResult = errors.New("empty catalog result")

	// ErrNoCandidateTables means no search source cleared its threshold
	// for a question; the caller should answer with suggestions.
	ErrNoCandidateTables = errors.New("no candidate tables")

	ErrSessionNotFound = errors.New("session not found")
	ErrQueryRejected   = errors.New("query rejected")
)
