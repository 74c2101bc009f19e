package chart

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by secondary sources that have no matching result.
	ErrNotFound = errors.New("no matching result")
	// ErrRateLimited is returned when the search source throttles the caller.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded is returned when the search source quota is spent.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// FetchError is a transport-level failure reaching a source: unreachable
// host, non-success status, or a bot-protection challenge in place of content.
type FetchError struct {
	URL        string
	StatusCode int
	// Blocker names the bot-protection vendor when the response was a challenge page.
	Blocker string
	Err     error
}

func (e *FetchError) Error() string {
	switch {
	case e.Blocker != "":
		return fmt.Sprintf("fetch %s: blocked by %s (status %d)", e.URL, e.Blocker, e.StatusCode)
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a structural mismatch between the expected and actual shape
// of the chart document. Row is the 1-based row index, or 0 when the problem
// is not tied to a single row.
type ParseError struct {
	Reason string
	Row    int
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("parse chart: row %d: %s", e.Row, e.Reason)
	}
	return "parse chart: " + e.Reason
}

// PipelineError is the only error a pipeline run returns. It records the
// state the run failed in and wraps the structural cause.
type PipelineError struct {
	State State
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed while %s: %v", e.State, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// OutcomeOf maps an enrichment error onto the outcome recorded for the field.
// timedOut should be true when the per-call deadline expired.
func OutcomeOf(err error, timedOut bool) Outcome {
	switch {
	case err == nil:
		return OutcomeResolved
	case timedOut:
		return OutcomeTimeout
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, ErrQuotaExceeded):
		return OutcomeQuotaExceeded
	default:
		return OutcomeError
	}
}
