package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
)

// Summary contains aggregated figures about one pipeline run.
type Summary struct {
	RunID           string
	Source          string
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	Partial         bool
	TotalEntries    int
	SummaryResolved int
	MediaResolved   int
	SummaryOutcomes map[chart.Outcome]int
	MediaOutcomes   map[chart.Outcome]int

	// Entries are kept for the HTML table and omitted from JSON.
	Entries []chart.EnrichedEntry `json:"-"`
}

// GenerateSummary counts resolved and degraded fields in rs.
func GenerateSummary(rs *chart.ResultSet) Summary {
	s := Summary{
		SummaryOutcomes: make(map[chart.Outcome]int),
		MediaOutcomes:   make(map[chart.Outcome]int),
	}
	if rs == nil {
		return s
	}

	meta := rs.Meta()
	s.RunID = meta.RunID
	s.Source = meta.Source
	s.StartTime = meta.StartedAt
	s.EndTime = meta.CompletedAt
	s.Duration = meta.CompletedAt.Sub(meta.StartedAt)
	s.Partial = meta.Partial
	s.Entries = rs.Entries()
	s.TotalEntries = len(s.Entries)

	for _, e := range s.Entries {
		s.SummaryOutcomes[e.SummaryOutcome]++
		s.MediaOutcomes[e.MediaOutcome]++
		if e.SummaryOutcome == chart.OutcomeResolved {
			s.SummaryResolved++
		}
		if e.HasMedia() {
			s.MediaResolved++
		}
	}
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Chart Run Summary
-----------------
Run:        {{.RunID}}
Source:     {{.Source}}
Time:       {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:   {{.Duration}}
Entries:    {{.TotalEntries}}{{if .Partial}} (partial: run deadline reached){{end}}

Summaries:  {{.SummaryResolved}}/{{.TotalEntries}} resolved
{{- range $outcome, $count := .SummaryOutcomes}}
  {{$outcome}}: {{$count}}
{{- else}}
  None
{{- end}}

Media:      {{.MediaResolved}}/{{.TotalEntries}} resolved
{{- range $outcome, $count := .MediaOutcomes}}
  {{$outcome}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}

	return nil
}

var htmlReport = htmltemplate.Must(htmltemplate.New("htmlReport").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Chart Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; vertical-align: top; }
  th { background: #eaeaea; }
  .degraded { color: #999; font-style: italic; }
</style>
</head>
<body>
  <h1>Chart Report</h1>
  <p><strong>Source:</strong> {{.Source}}</p>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>
  {{- if .Partial}}
  <p><strong>Partial result:</strong> the run deadline was reached before every entry was enriched.</p>
  {{- end}}

  <div class="stat-card">
    <div>Entries</div>
    <div class="stat-val">{{.TotalEntries}}</div>
  </div>
  <div class="stat-card">
    <div>Summaries</div>
    <div class="stat-val">{{.SummaryResolved}}</div>
  </div>
  <div class="stat-card">
    <div>Media Links</div>
    <div class="stat-val">{{.MediaResolved}}</div>
  </div>

  <h3>Chart</h3>
  <table>
    <tr><th>Rank</th><th>Title</th><th>Artist</th><th>Summary</th><th>Video</th></tr>
    {{- range .Entries}}
    <tr>
      <td>{{.Rank}}</td><td>{{.Title}}</td><td>{{.Artist}}</td>
      <td>{{if .Summary}}{{.Summary}}{{else}}<span class="degraded">{{.SummaryOutcome}}</span>{{end}}</td>
      <td>{{if .HasMedia}}<a href="{{.MediaURL}}">watch</a>{{else}}<span class="degraded">{{.MediaOutcome}}</span>{{end}}</td>
    </tr>
    {{- else}}
    <tr><td colspan="5">No entries</td></tr>
    {{- end}}
  </table>
</body>
</html>
`))

// WriteHTML writes an HTML report, including the full chart table, to the
// provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	if err := htmlReport.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
