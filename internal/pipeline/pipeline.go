// Package pipeline runs one ingestion cycle: it fetches result pages for
// every search term, resolves and filters the listings, persists the
// accepted ones per term and reports a run summary.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hwvalue/internal/config"
	"github.com/sells-group/hwvalue/internal/fetcher"
	"github.com/sells-group/hwvalue/internal/filter"
	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/resilience"
	"github.com/sells-group/hwvalue/internal/resolver"
	"github.com/sells-group/hwvalue/internal/stats"
	"github.com/sells-group/hwvalue/internal/store"
	"github.com/sells-group/hwvalue/internal/value"
)

// Error categories reported in summaries. Raw error text is only logged.
const (
	reasonConnectivity = "connectivity lost"
	reasonPersistence  = "persistence failed"
	reasonAborted      = "run aborted"
	reasonRejectedLog  = "rejection log not saved"
)

// Options controls one ingestion cycle.
type Options struct {
	Terms         []string
	MaxPages      int
	Workers       int
	PageDelay     time.Duration
	MaxEmptyPages int
}

// OptionsFromConfig maps application settings onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Terms:         cfg.Ingest.Terms,
		MaxPages:      cfg.Ingest.MaxPages,
		Workers:       cfg.Ingest.Workers,
		PageDelay:     time.Duration(cfg.Ingest.PageDelayMs) * time.Millisecond,
		MaxEmptyPages: cfg.Ingest.MaxEmptyPages,
	}
}

// Pipeline orchestrates ingestion cycles.
type Pipeline struct {
	opts     Options
	source   fetcher.PageSource
	store    store.Store
	resolver *resolver.Resolver
	filter   *filter.Filter
	engine   *value.Engine
	now      func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(
	opts Options,
	source fetcher.PageSource,
	st store.Store,
	res *resolver.Resolver,
	f *filter.Filter,
	engine *value.Engine,
) *Pipeline {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Pipeline{
		opts:     opts,
		source:   source,
		store:    st,
		resolver: res,
		filter:   f,
		engine:   engine,
		now:      time.Now,
	}
}

// cycle is the state of one run. Statistics, the seen-URL set and the
// rejection log are shared by every term of the run and discarded after it.
type cycle struct {
	p       *Pipeline
	runID   string
	log     *zap.Logger
	summary *model.RunSummary

	// tracker drives filtering; committed holds only prices whose term
	// batch was written, and feeds the reported statistics and ranking.
	tracker   *stats.Tracker
	committed *stats.Tracker

	// turns[i] is closed when term i is done; batches commit in term order.
	turns []chan struct{}

	seenMu sync.Mutex
	seen   map[string]bool

	rejectedMu sync.Mutex
	rejected   []model.RejectedListing

	// abort is cancelled when a fatal error ends the run.
	abort     context.CancelFunc
	fatalOnce sync.Once
	fatal     atomic.Bool
	// halted stops dispatch of terms that have not started.
	halted        atomic.Bool
	persistFailed atomic.Bool
}

// Run executes one ingestion cycle. Cancelling ctx drains the run: pages
// in flight complete, remaining pages are skipped and every term persists
// what it accumulated. A failed run is reported through the summary
// status; the error return is reserved for failures to record the run.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID))

	summary := &model.RunSummary{
		ID:        runID,
		Status:    model.RunStatusRunning,
		StartedAt: p.now().UTC(),
		Terms:     make([]model.TermSummary, len(p.opts.Terms)),
	}
	for i, term := range p.opts.Terms {
		summary.Terms[i] = model.TermSummary{Term: term, Status: model.TermStatusPending}
	}

	// Persistence outlives cancellation so a drained run still records its work.
	persistCtx := context.WithoutCancel(ctx)
	if err := p.store.SaveRun(persistCtx, summary); err != nil {
		return nil, eris.Wrap(err, "pipeline: save run")
	}
	log.Info("pipeline: run started",
		zap.Strings("terms", p.opts.Terms),
		zap.Int("workers", p.opts.Workers),
		zap.Int("max_pages", p.opts.MaxPages),
	)

	// Fetches are detached from ctx so an operator stop lets the current
	// page finish; only a fatal error cancels them.
	fetchCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	defer abort()

	c := &cycle{
		p:       p,
		runID:   runID,
		log:     log,
		summary: summary,
		tracker:   stats.New(),
		committed: stats.New(),
		turns:     make([]chan struct{}, len(p.opts.Terms)),
		seen:      make(map[string]bool),
		abort:     abort,
	}
	for i := range c.turns {
		c.turns[i] = make(chan struct{})
	}

	g := new(errgroup.Group)
	g.SetLimit(p.opts.Workers)
	for i := range p.opts.Terms {
		g.Go(func() error {
			c.runTerm(ctx, fetchCtx, persistCtx, i)
			return nil
		})
	}
	_ = g.Wait()

	return c.finish(ctx, persistCtx)
}

func (c *cycle) runTerm(ctx, fetchCtx, persistCtx context.Context, idx int) {
	ts := &c.summary.Terms[idx]
	defer close(c.turns[idx])
	if c.halted.Load() || c.fatal.Load() || ctx.Err() != nil {
		ts.Status = model.TermStatusSkipped
		return
	}

	ts.Status = model.TermStatusRunning
	start := time.Now()
	defer func() { ts.DurationMs = time.Since(start).Milliseconds() }()

	log := c.log.With(zap.String("term", ts.Term))
	log.Info("pipeline: term started")

	batch, ok := c.collect(ctx, fetchCtx, ts, log)
	if !ok {
		return
	}

	// Terms are dispatched in order, so the predecessor is already running.
	if idx > 0 {
		<-c.turns[idx-1]
	}
	if c.persistFailed.Load() {
		ts.Status = model.TermStatusSkipped
		log.Warn("pipeline: earlier term failed to persist, dropping batch", zap.Int("listings", len(batch)))
		return
	}

	phaseStart := time.Now()
	written, err := c.p.store.UpsertListings(persistCtx, c.runID, batch)
	if err != nil {
		ts.Status = model.TermStatusFailed
		ts.Error = reasonPersistence
		c.persistFailed.Store(true)
		c.halted.Store(true)
		log.Error("pipeline: term batch rolled back",
			zap.Int("listings", len(batch)),
			zap.Error(err),
		)
		return
	}
	logPhase(log, model.PhasePersisting, phaseStart)
	for _, l := range batch {
		c.committed.Update(l.Model, l.Price)
	}

	ts.Written = written
	ts.Status = model.TermStatusCompleted
	log.Info("pipeline: term complete",
		zap.Int("pages", ts.Pages),
		zap.Int("pages_skipped", ts.PagesSkipped),
		zap.Int("fetched", ts.Fetched),
		zap.Int("accepted", ts.Accepted),
		zap.Int("rejected", ts.Rejected),
		zap.Int("written", ts.Written),
	)
}

// collect fetches pages of one term sequentially and returns the accepted
// listings. ok is false when the term must not be persisted.
func (c *cycle) collect(ctx, fetchCtx context.Context, ts *model.TermSummary, log *zap.Logger) ([]model.AcceptedListing, bool) {
	var batch []model.AcceptedListing
	emptyRun := 0

	for page := 1; page <= c.p.opts.MaxPages; page++ {
		if fetchCtx.Err() != nil {
			break
		}
		if ctx.Err() != nil {
			log.Info("pipeline: stop requested, skipping remaining pages", zap.Int("next_page", page))
			break
		}
		if page > 1 && !c.pause(ctx, fetchCtx) {
			continue
		}

		phaseStart := time.Now()
		pg, err := c.p.source.Fetch(fetchCtx, ts.Term, page)
		logPhase(log.With(zap.Int("page", page)), model.PhaseFetching, phaseStart)
		if err != nil {
			switch {
			case resilience.IsFatal(err):
				c.failRun(err, log)
				ts.Status = model.TermStatusFailed
				ts.Error = reasonConnectivity
				return nil, false
			case fetchCtx.Err() != nil:
				ts.Status = model.TermStatusFailed
				ts.Error = reasonAborted
				return nil, false
			}

			ts.PagesSkipped++
			emptyRun++
			log.Warn("pipeline: page skipped",
				zap.Int("page", page),
				zap.String("kind", resilience.KindOf(err).String()),
				zap.Error(err),
			)
			if limit := c.p.opts.MaxEmptyPages; limit > 0 && emptyRun >= limit {
				log.Warn("pipeline: too many skipped pages, ending term", zap.Int("skipped", emptyRun))
				break
			}
			continue
		}
		emptyRun = 0
		ts.Pages++

		if len(pg.Listings) == 0 {
			log.Info("pipeline: no listings, source exhausted", zap.Int("page", page))
			break
		}
		batch = append(batch, c.process(ts, page, pg.Listings, log)...)

		if !pg.HasNext {
			break
		}
	}

	if c.fatal.Load() {
		ts.Status = model.TermStatusFailed
		ts.Error = reasonAborted
		return nil, false
	}
	return batch, true
}

// pause waits out the page delay. It returns false when the wait was cut
// short by a stop request, in which case the loop re-checks ctx.
func (c *cycle) pause(ctx, fetchCtx context.Context) bool {
	if c.p.opts.PageDelay <= 0 {
		return true
	}
	t := time.NewTimer(c.p.opts.PageDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-fetchCtx.Done():
		return true
	case <-t.C:
		return true
	}
}

// process resolves and filters the listings of one page in arrival order.
func (c *cycle) process(ts *model.TermSummary, page int, raws []model.RawListing, log *zap.Logger) []model.AcceptedListing {
	now := c.p.now().UTC()

	phaseStart := time.Now()
	candidates := make([]model.ResolvedListing, 0, len(raws))
	for _, raw := range raws {
		raw.Term = ts.Term
		raw.Page = page
		ts.Fetched++

		if !c.markSeen(raw.URL) {
			ts.Duplicates++
			continue
		}
		if v := c.p.filter.Precheck(raw.Title); !v.Accepted() {
			c.reject(ts, model.ResolvedListing{RawListing: raw}, v, now)
			continue
		}
		resolved, res := c.p.resolver.ResolveListing(raw)
		if !res.Resolved() {
			c.reject(ts, resolved, model.Reject(model.VerdictUnresolved, res.Category, res.Reason), now)
			continue
		}
		ts.Resolved++
		candidates = append(candidates, resolved)
	}
	logPhase(log, model.PhaseResolving, phaseStart)

	phaseStart = time.Now()
	accepted := make([]model.AcceptedListing, 0, len(candidates))
	for _, l := range candidates {
		v := c.p.filter.Admit(c.tracker, l)
		if !v.Accepted() {
			c.reject(ts, l, v, now)
			continue
		}
		ts.Accepted++
		accepted = append(accepted, model.AcceptedListing{
			Model:  l.Model,
			Price:  l.Price,
			URL:    l.URL,
			Title:  l.Title,
			Term:   l.Term,
			RunID:  c.runID,
			SeenAt: now,
		})
	}
	logPhase(log, model.PhaseFiltering, phaseStart)

	return accepted
}

// markSeen records url and reports whether it was new to this cycle.
func (c *cycle) markSeen(url string) bool {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	if c.seen[url] {
		return false
	}
	c.seen[url] = true
	return true
}

func (c *cycle) reject(ts *model.TermSummary, l model.ResolvedListing, v model.Verdict, at time.Time) {
	ts.Rejected++
	r := v.Rejection(l, at)
	r.RunID = c.runID

	c.rejectedMu.Lock()
	c.rejected = append(c.rejected, r)
	c.rejectedMu.Unlock()
}

func (c *cycle) failRun(err error, log *zap.Logger) {
	c.fatalOnce.Do(func() {
		c.fatal.Store(true)
		c.halted.Store(true)
		c.abort()
		log.Error("pipeline: fatal fetch error, aborting run", zap.Error(err))
	})
}

// finish writes the rejection log, derives statistics and the ranking and
// records the final run state.
func (c *cycle) finish(ctx, persistCtx context.Context) (*model.RunSummary, error) {
	s := c.summary
	s.Status = model.RunStatusPersisting
	c.log.Info("pipeline: persisting run results")

	c.rejectedMu.Lock()
	rejected := c.rejected
	c.rejectedMu.Unlock()

	if err := c.p.store.ReplaceRejectedLog(persistCtx, c.runID, rejected); err != nil {
		c.log.Error("pipeline: replace rejected log", zap.Error(err))
		s.Error = reasonRejectedLog
	}

	snap := c.committed.Snapshot()
	s.Rejections = store.RejectionCounts(rejected)
	s.Models = sortedStats(snap)
	s.Ranking = c.p.engine.Rank(snap)
	s.Tally()

	switch {
	case c.fatal.Load():
		s.Status = model.RunStatusFailed
		s.Error = reasonConnectivity
	case c.persistFailed.Load():
		s.Status = model.RunStatusFailed
		s.Error = reasonPersistence
	default:
		s.Status = model.RunStatusCompleted
		s.Interrupted = ctx.Err() != nil
	}

	s.FinishedAt = c.p.now().UTC()
	s.ElapsedMs = s.FinishedAt.Sub(s.StartedAt).Milliseconds()

	if err := c.p.store.SaveRun(persistCtx, s); err != nil {
		return s, eris.Wrap(err, "pipeline: save run")
	}

	c.log.Info("pipeline: run finished",
		zap.String("status", string(s.Status)),
		zap.Bool("interrupted", s.Interrupted),
		zap.Int("accepted", s.Totals.Accepted),
		zap.Int("rejected", s.Totals.Rejected),
		zap.Int("written", s.Totals.Written),
		zap.Int("failed_terms", s.FailedTerms()),
		zap.Int64("elapsed_ms", s.ElapsedMs),
	)
	return s, nil
}

func sortedStats(snap map[string]model.PriceStats) []model.PriceStats {
	out := make([]model.PriceStats, 0, len(snap))
	for _, st := range snap {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

func logPhase(log *zap.Logger, phase model.Phase, start time.Time) {
	log.Debug("pipeline: phase complete",
		zap.String("phase", string(phase)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}
