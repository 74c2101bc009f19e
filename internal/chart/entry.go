package chart

import "strconv"

// MaxSummaryRunes caps the length of an enriched summary, counted in runes.
const MaxSummaryRunes = 200

// Entry is one ranked item extracted from the primary chart source.
type Entry struct {
	Rank   int    `json:"rank"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Outcome records how an enrichment field was resolved. Anything other than
// OutcomeResolved means the field holds its degraded default.
type Outcome string

const (
	OutcomeResolved      Outcome = "resolved"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeRateLimited   Outcome = "rate_limited"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeError         Outcome = "error"
	// OutcomeSkipped means the enricher was never asked, either because it is
	// not configured or because the run deadline passed first.
	OutcomeSkipped Outcome = "skipped"
)

// Degraded reports whether the field fell back to its default value.
func (o Outcome) Degraded() bool {
	return o != OutcomeResolved
}

// EnrichedEntry is an Entry merged with the output of both enrichers.
// Summary is empty and MediaURL is empty when unresolved; the matching
// Outcome field says why.
type EnrichedEntry struct {
	Entry
	Summary        string  `json:"summary"`
	MediaURL       string  `json:"media_url,omitempty"`
	SummaryOutcome Outcome `json:"summary_outcome"`
	MediaOutcome   Outcome `json:"media_outcome"`
}

// HasMedia reports whether a media link was resolved for the entry.
func (e EnrichedEntry) HasMedia() bool {
	return e.MediaOutcome == OutcomeResolved && e.MediaURL != ""
}

// Record returns the entry as the flat field list handed to exporters, in
// the same order as RecordHeader.
func (e EnrichedEntry) Record() []string {
	return []string{
		strconv.Itoa(e.Rank),
		e.Title,
		e.Artist,
		e.Summary,
		e.MediaURL,
	}
}

// RecordHeader names the columns produced by EnrichedEntry.Record.
var RecordHeader = []string{"rank", "title", "artist", "summary", "media_url"}
