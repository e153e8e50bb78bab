package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/normalization"
	"shadow-index-lab/internal/observability"
	"shadow-index-lab/internal/replay"
	"shadow-index-lab/internal/storage"
)

// ActivityFetcher returns raw activity rows for one wallet, newest first.
type ActivityFetcher interface {
	FetchActivity(ctx context.Context, wallet string, max int) ([]gjson.Result, error)
}

// Poller runs incremental polling passes: fetch activity, normalize, store new
// events, then advance every run from its last snapshot and persist the outputs.
type Poller struct {
	runner      *Runner
	wallets     []string
	fetcher     ActivityFetcher
	maxActivity int
	normalizer  *normalization.Normalizer

	events    storage.EventStore
	snapshots storage.SnapshotStore
	closed    storage.ClosedPositionStore
	curves    storage.CurveStore
	stats     storage.RunStatsStore

	now     func() time.Time
	metrics *observability.Metrics
	log     zerolog.Logger

	mu     sync.Mutex
	warmed bool
}

// PollerOptions contains configuration for creating a Poller.
type PollerOptions struct {
	Runner      *Runner
	Wallets     []string
	Fetcher     ActivityFetcher
	MaxActivity int
	Normalizer  *normalization.Normalizer

	EventStore          storage.EventStore
	SnapshotStore       storage.SnapshotStore
	ClosedPositionStore storage.ClosedPositionStore
	CurveStore          storage.CurveStore
	RunStatsStore       storage.RunStatsStore

	Now     func() time.Time // defaults to time.Now
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// PassResult summarizes one polling pass.
type PassResult struct {
	PassID  string
	Fetched int
	Stored  int
	Stats   normalization.NormalizeStats
	Runs    []domain.RunResult
	Errors  []string
	Elapsed time.Duration
}

// NewPoller creates a poller.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Runner == nil || opts.Fetcher == nil || opts.Normalizer == nil {
		return nil, errors.New("poller requires a runner, a fetcher and a normalizer")
	}
	if opts.EventStore == nil || opts.SnapshotStore == nil || opts.ClosedPositionStore == nil ||
		opts.CurveStore == nil || opts.RunStatsStore == nil {
		return nil, errors.New("poller requires every store")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Poller{
		runner:      opts.Runner,
		wallets:     opts.Wallets,
		fetcher:     opts.Fetcher,
		maxActivity: opts.MaxActivity,
		normalizer:  opts.Normalizer,
		events:      opts.EventStore,
		snapshots:   opts.SnapshotStore,
		closed:      opts.ClosedPositionStore,
		curves:      opts.CurveStore,
		stats:       opts.RunStatsStore,
		now:         now,
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}, nil
}

// Pass runs one polling pass. Per-wallet fetch failures and per-run failures
// are collected in PassResult.Errors; only event storage failures abort the pass.
func (p *Poller) Pass(ctx context.Context) (*PassResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := p.now()
	res := &PassResult{PassID: uuid.NewString()}
	log := p.log.With().Str("pass_id", res.PassID).Logger()

	err := p.pass(ctx, res, log)
	res.Elapsed = p.now().Sub(started)
	p.metrics.RecordPollPass(err, res.Elapsed, p.now())

	if err != nil {
		log.Error().Err(err).Msg("poll pass failed")
		return res, err
	}
	log.Info().
		Int("fetched", res.Fetched).
		Int("stored", res.Stored).
		Int("runs", len(res.Runs)).
		Int("errors", len(res.Errors)).
		Dur("elapsed", res.Elapsed).
		Msg("poll pass finished")
	return res, nil
}

func (p *Poller) pass(ctx context.Context, res *PassResult, log zerolog.Logger) error {
	if err := p.warm(ctx); err != nil {
		return err
	}

	// Phase 1: fetch and normalize
	var fresh []domain.PositionEvent
	for _, wallet := range p.wallets {
		rows, err := p.fetcher.FetchActivity(ctx, wallet, p.maxActivity)
		if err != nil {
			p.metrics.RecordFetchError("activity")
			res.Errors = append(res.Errors, fmt.Sprintf("fetch %s: %v", wallet, err))
			log.Warn().Err(err).Str("wallet", wallet).Msg("activity fetch failed")
			continue
		}
		events, stats := p.normalizer.NormalizeRows(wallet, rows)
		res.Fetched += len(rows)
		res.Stats.Add(stats)
		fresh = append(fresh, events...)
	}

	// Phase 2: store
	start := time.Now()
	stored, err := p.events.InsertNew(ctx, fresh)
	p.metrics.RecordDBQuery("events", "insert", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("store events: %w", err)
	}
	res.Stored = stored
	p.metrics.RecordIngest(res.Fetched, stored, res.Stats.DropReasons())

	// Phase 3: advance every run
	history, err := p.events.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	end := p.now().Unix()

	// The live feed keeps writing quotes between passes.
	r := p.runner
	r.ResetQuotes()
	res.Runs = make([]domain.RunResult, len(r.strategies)*len(r.timeframes))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for si, cfg := range r.strategies {
		for ti, tf := range r.timeframes {
			idx := si*len(r.timeframes) + ti
			opts := r.Options(cfg, tf)
			opts.EndTimestamp = end
			g.Go(func() error {
				res.Runs[idx] = p.advance(ctx, opts, history)
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, run := range res.Runs {
		if run.Err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("run %s/%s: %v", run.StrategyID, run.Timeframe, run.Err))
		}
	}
	return nil
}

// warm seeds the normalizer with stored event ids once, so a restarted poller
// does not count stored events as new.
func (p *Poller) warm(ctx context.Context) error {
	if p.warmed {
		return nil
	}
	stored, err := p.events.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("warm normalizer: %w", err)
	}
	ids := make([]string, len(stored))
	for i := range stored {
		ids[i] = stored[i].ID
	}
	p.normalizer.MarkSeen(ids...)
	p.warmed = true
	return nil
}

// advance resumes one run from its snapshot and feeds it the stored events
// the snapshot has not seen. A run without a snapshot is rebuilt from the full
// stored history.
func (p *Poller) advance(ctx context.Context, opts replay.Options, history []domain.PositionEvent) domain.RunResult {
	fail := func(err error) domain.RunResult {
		p.log.Error().Err(err).
			Str("strategy", opts.Strategy.ID).
			Str("timeframe", opts.Timeframe.Name).
			Msg("run advance failed")
		return domain.RunResult{StrategyID: opts.Strategy.ID, Timeframe: opts.Timeframe.Name, Err: err}
	}

	started := time.Now()
	e, feed, err := p.resume(ctx, opts, history)
	if err != nil {
		return fail(err)
	}

	// Outputs may already be stored past the snapshot by a backtest or by a
	// pass whose snapshot save failed. Replays are deterministic, so the
	// stored rows are a prefix of what this engine produces.
	closedBefore, curveBefore, err := p.storedCounts(ctx, e.RunID())
	if err != nil {
		return fail(err)
	}

	if err := e.Feed(ctx, feed); err != nil {
		return fail(err)
	}
	e.AdvanceTo(ctx, opts.EndTimestamp)
	res := e.Result()

	if err := p.persist(ctx, e, res, closedBefore, curveBefore); err != nil {
		return fail(err)
	}
	p.metrics.RecordRun(res, time.Since(started))
	return res
}

// resume returns the engine for a run and the events to feed it. Without a
// snapshot the engine starts empty and gets the full history. A restored
// engine gets every stored event it has not processed, which covers events
// stored by a pass whose snapshot save failed.
func (p *Poller) resume(ctx context.Context, opts replay.Options, history []domain.PositionEvent) (*replay.Engine, []domain.PositionEvent, error) {
	base, err := replay.New(opts)
	if err != nil {
		return nil, nil, err
	}
	snap, err := p.snapshots.Load(ctx, base.RunID())
	if errors.Is(err, storage.ErrNotFound) {
		return base, history, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshot: %w", err)
	}
	e, err := replay.Restore(opts, snap.Data)
	if err != nil {
		return nil, nil, err
	}
	var pending []domain.PositionEvent
	for _, ev := range history {
		if !e.Processed(ev.ID) {
			pending = append(pending, ev)
		}
	}
	return e, pending, nil
}

func (p *Poller) storedCounts(ctx context.Context, runID string) (closed, curve int, err error) {
	storedClosed, err := p.closed.GetByRun(ctx, runID)
	if err != nil {
		return 0, 0, fmt.Errorf("load closed positions: %w", err)
	}
	storedCurve, err := p.curves.GetByRun(ctx, runID)
	if err != nil {
		return 0, 0, fmt.Errorf("load curve: %w", err)
	}
	return len(storedClosed), len(storedCurve), nil
}

// persist writes the closed trades and curve points past the given counts,
// the stats, then the snapshot. A duplicate batch can only be an identical
// replayed one, so its error is ignored.
func (p *Poller) persist(ctx context.Context, e *replay.Engine, res domain.RunResult, closedBefore, curveBefore int) error {
	runID := e.RunID()

	closedBefore = min(closedBefore, len(res.Closed))
	curveBefore = min(curveBefore, len(e.Curve()))

	if newClosed := res.Closed[closedBefore:]; len(newClosed) > 0 {
		if err := p.closed.InsertBulk(ctx, newClosed); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("store closed positions: %w", err)
		}
	}

	if points := e.Curve()[curveBefore:]; len(points) > 0 {
		if err := p.curves.InsertBulk(ctx, runID, points); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("store curve: %w", err)
		}
	}

	stats := res.Stats
	if err := p.stats.Upsert(ctx, &stats); err != nil {
		return fmt.Errorf("store stats: %w", err)
	}

	data, err := e.Snapshot()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	st := e.Export()
	start := time.Now()
	err = p.snapshots.Save(ctx, &domain.RunSnapshot{
		RunID:      runID,
		StrategyID: res.StrategyID,
		Timeframe:  res.Timeframe,
		Tick:       st.Tick,
		Events:     e.ProcessedIDs(),
		Data:       data,
		UpdatedAt:  p.now().Unix(),
	})
	p.metrics.RecordDBQuery("snapshots", "save", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Start schedules passes on a cron spec. Overlapping passes are skipped.
// Stop the returned scheduler to end polling.
func (p *Poller) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	logger := cronLogger{log: p.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		_, _ = p.Pass(ctx)
	}); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
