package scraper

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/PuerkitoBio/goquery"
)

// Selectors are the CSS selectors locating the chart structure. Rank,
// Title and Artist are evaluated inside each Row match and the first match
// is used.
type Selectors struct {
	Row    string `mapstructure:"row" toml:"row"`
	Rank   string `mapstructure:"rank" toml:"rank"`
	Title  string `mapstructure:"title" toml:"title"`
	Artist string `mapstructure:"artist" toml:"artist"`
}

// BillboardSelectors match the Billboard Hot 100 chart layout.
var BillboardSelectors = Selectors{
	Row:    ".o-chart-results-list-row",
	Rank:   ".c-label",
	Title:  ".c-title",
	Artist: ".c-label.a-no-trucate",
}

// Validate reports a missing selector.
func (s Selectors) Validate() error {
	for name, v := range map[string]string{"row": s.Row, "rank": s.Rank, "title": s.Title, "artist": s.Artist} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("selector %q is empty", name)
		}
	}
	return nil
}

// rawRow is the untyped intermediate form of one chart row: cell text as
// found in the document, plus the markers that were absent.
type rawRow struct {
	Index   int
	Rank    string
	Title   string
	Artist  string
	Missing []string
}

// ParseChart turns a chart document into entries sorted by rank. It runs in
// two phases: scanRows lifts the markup into rawRows, buildEntries types and
// validates them. Any structural drift surfaces as *chart.ParseError.
func ParseChart(body []byte, sel Selectors) ([]chart.Entry, error) {
	rows, err := scanRows(body, sel)
	if err != nil {
		return nil, err
	}
	return buildEntries(rows)
}

func scanRows(body []byte, sel Selectors) ([]rawRow, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &chart.ParseError{Reason: fmt.Sprintf("read document: %v", err)}
	}

	var rows []rawRow
	doc.Find(sel.Row).Each(func(i int, s *goquery.Selection) {
		row := rawRow{Index: i + 1}
		row.Rank = cellText(s, sel.Rank, "rank", &row.Missing)
		row.Title = cellText(s, sel.Title, "title", &row.Missing)
		row.Artist = cellText(s, sel.Artist, "artist", &row.Missing)
		rows = append(rows, row)
	})

	if len(rows) == 0 {
		return nil, &chart.ParseError{Reason: fmt.Sprintf("no rows match %q", sel.Row)}
	}
	return rows, nil
}

func cellText(row *goquery.Selection, selector, name string, missing *[]string) string {
	cell := row.Find(selector).First()
	if cell.Length() == 0 {
		*missing = append(*missing, name)
		return ""
	}
	return collapseSpace(cell.Text())
}

func buildEntries(rows []rawRow) ([]chart.Entry, error) {
	entries := make([]chart.Entry, 0, len(rows))
	for _, row := range rows {
		if len(row.Missing) > 0 {
			return nil, &chart.ParseError{
				Reason: "missing " + strings.Join(row.Missing, ", "),
				Row:    row.Index,
			}
		}
		rank, err := strconv.Atoi(row.Rank)
		if err != nil {
			return nil, &chart.ParseError{Reason: fmt.Sprintf("rank %q is not a number", row.Rank), Row: row.Index}
		}
		entries = append(entries, chart.Entry{Rank: rank, Title: row.Title, Artist: row.Artist})
	}

	if err := chart.ValidateRanks(entries); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
	return entries, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
