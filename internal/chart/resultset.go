package chart

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"
)

// Meta describes the run that produced a ResultSet.
type Meta struct {
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	// Partial is set when the run deadline cut enrichment short.
	Partial bool `json:"partial"`
}

// ResultSet is the immutable, rank-ordered output of one pipeline run.
type ResultSet struct {
	meta    Meta
	entries []EnrichedEntry
}

// NewResultSet sorts entries by rank and validates the result-set
// invariants: ranks exactly cover [1, N] and summaries respect
// MaxSummaryRunes. The input slice is copied.
func NewResultSet(meta Meta, entries []EnrichedEntry) (*ResultSet, error) {
	sorted := make([]EnrichedEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	for i, e := range sorted {
		if e.Rank != i+1 {
			return nil, fmt.Errorf("rank %d at position %d: ranks must be contiguous from 1", e.Rank, i+1)
		}
		if e.Title == "" || e.Artist == "" {
			return nil, fmt.Errorf("rank %d: title and artist must be non-empty", e.Rank)
		}
		if n := utf8.RuneCountInString(e.Summary); n > MaxSummaryRunes {
			return nil, fmt.Errorf("rank %d: summary has %d runes, limit is %d", e.Rank, n, MaxSummaryRunes)
		}
	}

	return &ResultSet{meta: meta, entries: sorted}, nil
}

// Meta returns the run metadata.
func (r *ResultSet) Meta() Meta { return r.meta }

// Len returns the number of entries.
func (r *ResultSet) Len() int { return len(r.entries) }

// At returns the entry at position i (rank i+1).
func (r *ResultSet) At(i int) EnrichedEntry { return r.entries[i] }

// Entries returns a copy of the entries in rank order.
func (r *ResultSet) Entries() []EnrichedEntry {
	out := make([]EnrichedEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Records returns every entry flattened with EnrichedEntry.Record.
func (r *ResultSet) Records() [][]string {
	out := make([][]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Record())
	}
	return out
}

// ValidateRanks checks that entries carry unique ranks forming exactly
// [1, len(entries)], in any order, with non-empty title and artist.
// Violations are reported as *ParseError.
func ValidateRanks(entries []Entry) error {
	if len(entries) == 0 {
		return &ParseError{Reason: "no chart entries"}
	}
	seen := make(map[int]int, len(entries))
	for i, e := range entries {
		row := i + 1
		if e.Title == "" {
			return &ParseError{Reason: "empty title", Row: row}
		}
		if e.Artist == "" {
			return &ParseError{Reason: "empty artist", Row: row}
		}
		if e.Rank < 1 || e.Rank > len(entries) {
			return &ParseError{Reason: fmt.Sprintf("rank %d outside [1, %d]", e.Rank, len(entries)), Row: row}
		}
		if prev, dup := seen[e.Rank]; dup {
			return &ParseError{Reason: fmt.Sprintf("rank %d duplicated (first at row %d)", e.Rank, prev), Row: row}
		}
		seen[e.Rank] = row
	}
	return nil
}
