// Package pipeline runs a chart aggregation: extract the ranked chart, fan
// every entry out to the summary and media enrichers over a bounded worker
// pool, and assemble the results into a rank-ordered chart.ResultSet.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/FranksOps/chartagg/internal/metrics"
	"github.com/FranksOps/chartagg/internal/summary"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is wrapped by Run when another run has not finished.
var ErrRunInProgress = errors.New("run already in progress")

// Extractor produces the ranked chart entries.
type Extractor interface {
	Extract(ctx context.Context) ([]chart.Entry, error)
	Source() string
}

// Resolver enriches one song. Implementations absorb their own failures
// and report them through the outcome.
type Resolver interface {
	Resolve(ctx context.Context, title, artist string) (string, chart.Outcome)
}

// Config controls fan-out and deadlines.
type Config struct {
	// Workers bounds the number of enrichment calls in flight.
	Workers int
	// EnrichTimeout bounds each individual enrichment call.
	EnrichTimeout time.Duration
	// RunTimeout, when positive, bounds the whole enrichment stage. Work cut
	// off by it degrades and the result is marked partial.
	RunTimeout time.Duration
	// Limit keeps only the top Limit entries; zero keeps all.
	Limit int
}

// TransitionFunc observes state changes.
type TransitionFunc func(from, to chart.State)

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithTransitionHook registers fn to be called after every state change.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(p *Pipeline) { p.onTransition = fn }
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline coordinates one extractor and two enrichers. A nil enricher
// leaves its field skipped. Runs are sequential; a Pipeline may be run
// again once the previous run reached a terminal state.
type Pipeline struct {
	cfg       Config
	extractor Extractor
	summary   Resolver
	media     Resolver
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	state        chart.State
	onTransition TransitionFunc
}

// New builds a Pipeline.
func New(cfg Config, extractor Extractor, summaries, media Resolver, opts ...Option) (*Pipeline, error) {
	if extractor == nil {
		return nil, errors.New("pipeline: extractor is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = 10 * time.Second
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("pipeline: negative limit %d", cfg.Limit)
	}

	p := &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		summary:   summaries,
		media:     media,
		state:     chart.StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// State returns the current run state.
func (p *Pipeline) State() chart.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run executes one aggregation. Structural failures (fetching or parsing
// the chart, assembling the result) abort the run with a
// *chart.PipelineError; enrichment failures never do.
func (p *Pipeline) Run(ctx context.Context) (*chart.ResultSet, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}

	meta := chart.Meta{
		RunID:     uuid.NewString(),
		Source:    p.extractor.Source(),
		StartedAt: p.now().UTC(),
	}
	logger := p.logger.With("run_id", meta.RunID)
	logger.Info("run started", "source", meta.Source, "workers", p.cfg.Workers)

	entries, err := p.extractor.Extract(ctx)
	if err != nil {
		return nil, p.fail(logger, chart.StateExtracting, err)
	}
	entries = topEntries(entries, p.cfg.Limit)

	p.transition(chart.StateEnriching)
	enriched, partial := p.enrich(ctx, logger, entries)

	p.transition(chart.StateAssembling)
	meta.CompletedAt = p.now().UTC()
	meta.Partial = partial
	rs, err := chart.NewResultSet(meta, enriched)
	if err != nil {
		return nil, p.fail(logger, chart.StateAssembling, err)
	}

	p.transition(chart.StateCompleted)
	metrics.RecordRun(chart.StateCompleted, partial)
	logger.Info("run completed",
		"entries", rs.Len(),
		"partial", partial,
		"duration", meta.CompletedAt.Sub(meta.StartedAt),
	)
	return rs, nil
}

// begin claims the pipeline for one run, moving it straight to extracting
// under the lock so concurrent callers cannot both pass the idle check.
func (p *Pipeline) begin() error {
	p.mu.Lock()
	if p.state != chart.StateIdle && !p.state.Terminal() {
		state := p.state
		p.mu.Unlock()
		return &chart.PipelineError{State: state, Err: ErrRunInProgress}
	}
	p.state = chart.StateExtracting
	hook := p.onTransition
	p.mu.Unlock()

	if hook != nil {
		hook(chart.StateIdle, chart.StateExtracting)
	}
	return nil
}

func (p *Pipeline) transition(next chart.State) {
	p.mu.Lock()
	prev := p.state
	if !prev.CanTransition(next) {
		p.mu.Unlock()
		p.logger.Error("invalid state transition ignored", "from", prev, "to", next)
		return
	}
	p.state = next
	hook := p.onTransition
	p.mu.Unlock()

	if hook != nil {
		hook(prev, next)
	}
}

func (p *Pipeline) fail(logger *slog.Logger, during chart.State, err error) error {
	p.transition(chart.StateFailed)
	metrics.RecordRun(chart.StateFailed, false)
	logger.Error("run failed", "state", during, "err", err)
	return &chart.PipelineError{State: during, Err: err}
}

// topEntries returns the first limit entries by rank.
func topEntries(entries []chart.Entry, limit int) []chart.Entry {
	out := make([]chart.Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// enrich resolves both fields of every entry. Each task writes only its own
// slot, so results land by rank whatever order the tasks finish in.
func (p *Pipeline) enrich(ctx context.Context, logger *slog.Logger, entries []chart.Entry) ([]chart.EnrichedEntry, bool) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
	}
	defer cancel()

	out := make([]chart.EnrichedEntry, len(entries))
	for i, e := range entries {
		out[i] = chart.EnrichedEntry{
			Entry:          e,
			SummaryOutcome: chart.OutcomeSkipped,
			MediaOutcome:   chart.OutcomeSkipped,
		}
	}

	var cut atomic.Bool
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.cfg.Workers)

	for i := range out {
		slot := &out[i]
		g.Go(func() error {
			text, outcome, stopped := p.call(gctx, p.summary, slot.Entry)
			if outcome == chart.OutcomeResolved {
				text = summary.Truncate(text, chart.MaxSummaryRunes)
			}
			slot.Summary, slot.SummaryOutcome = text, outcome
			if stopped {
				cut.Store(true)
			}
			logger.Debug("summary enriched", "rank", slot.Rank, "outcome", outcome)
			return nil
		})
		g.Go(func() error {
			link, outcome, stopped := p.call(gctx, p.media, slot.Entry)
			slot.MediaURL, slot.MediaOutcome = link, outcome
			if stopped {
				cut.Store(true)
			}
			logger.Debug("media enriched", "rank", slot.Rank, "outcome", outcome)
			return nil
		})
	}
	_ = g.Wait()

	return out, cut.Load()
}

// call runs one enrichment under the per-call timeout. stopped reports that
// the run deadline (or the caller) ended the task rather than the enricher.
func (p *Pipeline) call(ctx context.Context, r Resolver, e chart.Entry) (value string, outcome chart.Outcome, stopped bool) {
	if r == nil {
		return "", chart.OutcomeSkipped, false
	}
	if ctx.Err() != nil {
		return "", chart.OutcomeSkipped, true
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.EnrichTimeout)
	defer cancel()

	value, outcome = r.Resolve(callCtx, e.Title, e.Artist)
	switch {
	case outcome == chart.OutcomeResolved && value == "":
		outcome = chart.OutcomeNotFound
	case outcome != chart.OutcomeResolved && callCtx.Err() != nil:
		outcome = chart.OutcomeTimeout
	}
	if outcome != chart.OutcomeResolved {
		value = ""
	}
	return value, outcome, ctx.Err() != nil
}
