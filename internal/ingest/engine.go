// Package ingest coordinates one run: fetch every source in parallel,
// extract its records, and commit the whole batch to the sink at once.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pricehub/internal/extract"
	"pricehub/internal/fetch"
	"pricehub/internal/logger"
	"pricehub/internal/sink"
	"pricehub/internal/source"
	"pricehub/pkg/models"
)

var (
	ErrSinkCommit   = errors.New("sink commit failed")
	ErrRunCancelled = errors.New("run cancelled before commit")
)

const DefaultMaxConcurrent = 4

// Recorder stores finished run reports.
type Recorder interface {
	Save(ctx context.Context, r *RunResult) error
}

// Options tune an Engine. Zero values pick defaults.
type Options struct {
	MaxConcurrent int
	// RunTimeout bounds fetch and extraction. Zero means no limit.
	RunTimeout time.Duration
	Logger     *logger.Logger
	Now        func() time.Time
	Publisher  Publisher
	Recorder   Recorder
}

// Engine runs ingests. It is safe for concurrent use, though a Trigger is
// normally used to keep a single run in flight.
type Engine struct {
	fetcher fetch.Fetcher
	sink    sink.Sink

	maxConcurrent int
	runTimeout    time.Duration
	log           *logger.Logger
	now           func() time.Time
	pub           Publisher
	rec           Recorder
}

func New(f fetch.Fetcher, s sink.Sink, opts Options) *Engine {
	e := &Engine{
		fetcher:       f,
		sink:          s,
		maxConcurrent: opts.MaxConcurrent,
		runTimeout:    opts.RunTimeout,
		log:           opts.Logger,
		now:           opts.Now,
		pub:           opts.Publisher,
		rec:           opts.Recorder,
	}
	if e.maxConcurrent < 1 {
		e.maxConcurrent = DefaultMaxConcurrent
	}
	if e.log == nil {
		e.log = logger.Discard()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

type sourceOutcome struct {
	index   int
	report  SourceReport
	records []models.PriceRecord
}

// Run executes one run over specs with a fresh run ID.
func (e *Engine) Run(ctx context.Context, specs []source.Spec) (*RunResult, error) {
	return e.RunWithID(ctx, uuid.NewString(), specs)
}

// RunWithID executes one run. The returned RunResult is never nil. The error
// wraps ErrRunCancelled when ctx ended before the commit, or ErrSinkCommit
// together with the sink's error when the batch was rejected. Per-source
// failures are reported in the result only.
func (e *Engine) RunWithID(ctx context.Context, id string, specs []source.Spec) (*RunResult, error) {
	log := e.log.With("run_id", id)

	res := &RunResult{
		ID:               id,
		StartedAt:        e.now(),
		Status:           StatusRunning,
		SourcesAttempted: len(specs),
		Sources:          make([]SourceReport, len(specs)),
	}
	for i, s := range specs {
		res.Sources[i] = SourceReport{Source: s.Name, Zipcode: s.Zipcode, URL: s.URL, State: StateFetching}
	}

	log.Info("run started", "sources", len(specs), "max_concurrent", e.maxConcurrent)
	e.publish(Event{Type: EventRunStarted, RunID: id, At: res.StartedAt})

	runCtx := ctx
	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	perSource := e.collect(runCtx, log, id, specs, res)
	res.tally()

	if err := runCtx.Err(); err != nil {
		res.Status = StatusCancelled
		res.Error = err.Error()
		e.finish(ctx, log, res)
		return res, fmt.Errorf("%w: %w", ErrRunCancelled, err)
	}

	var batch []models.PriceRecord
	for _, recs := range perSource {
		batch = append(batch, recs...)
	}
	res.RecordsExtracted = len(batch)

	// Once entered, the commit runs to completion even if ctx is cancelled.
	n, err := e.sink.CommitBatch(context.WithoutCancel(ctx), sink.Batch{RunID: id, Records: batch})
	if err != nil {
		res.Status = StatusFailed
		res.RecordsPersisted = 0
		res.Error = err.Error()
		e.finish(ctx, log, res)
		return res, fmt.Errorf("%w: %w", ErrSinkCommit, err)
	}

	res.Status = StatusCommitted
	res.RecordsPersisted = n
	e.finish(ctx, log, res)
	return res, nil
}

// collect fans specs out to a bounded pool and is the only writer of res
// while workers run.
func (e *Engine) collect(ctx context.Context, log *logger.Logger, runID string, specs []source.Spec, res *RunResult) [][]models.PriceRecord {
	perSource := make([][]models.PriceRecord, len(specs))
	outcomes := make(chan sourceOutcome)

	go func() {
		var g errgroup.Group
		g.SetLimit(e.maxConcurrent)
		for i, spec := range specs {
			g.Go(func() error {
				outcomes <- e.runSource(ctx, log, i, spec)
				return nil
			})
		}
		_ = g.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		res.Sources[o.index] = o.report
		perSource[o.index] = o.records

		ev := Event{RunID: runID, At: e.now(), Source: &o.report}
		if o.report.Failed() {
			ev.Type = EventSourceFailed
			log.Warn("source failed",
				"source", o.report.Source,
				"zipcode", o.report.Zipcode,
				"kind", o.report.Kind,
				"reason", o.report.Reason,
			)
		} else {
			ev.Type = EventSourceDone
			log.Info("source done",
				"source", o.report.Source,
				"zipcode", o.report.Zipcode,
				"records", o.report.Records,
				"skipped", o.report.Skipped,
			)
		}
		e.publish(ev)
	}
	return perSource
}

// runSource drives one spec through Fetching, Parsing and ExtractingItems.
func (e *Engine) runSource(ctx context.Context, log *logger.Logger, i int, spec source.Spec) sourceOutcome {
	start := time.Now()
	out := sourceOutcome{
		index: i,
		report: SourceReport{
			Source:  spec.Name,
			Zipcode: spec.Zipcode,
			URL:     spec.URL,
			State:   StateFetching,
		},
	}
	fail := func(kind FailureKind, err error) sourceOutcome {
		out.report.State = StateFailed
		out.report.Kind = kind
		out.report.Reason = err.Error()
		out.report.Duration = time.Since(start)
		out.records = nil
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail(KindFetchError, err)
	}
	resp, err := e.fetcher.Fetch(ctx, spec.URL)
	if err != nil {
		return fail(KindFetchError, err)
	}
	out.report.StatusCode = resp.StatusCode
	if err := resp.CheckStatus(); err != nil {
		return fail(KindFetchError, err)
	}

	out.report.State = StateParsing
	doc, err := extract.Decode(resp.Body)
	if err != nil {
		return fail(KindMalformedResponse, err)
	}

	out.report.State = StateExtractingItems
	observedAt := e.now().UTC()
	result, err := extract.Items(doc, spec, observedAt)
	if err != nil {
		return fail(KindArrayPathError, err)
	}

	for _, skip := range result.Skipped {
		log.Debug("item skipped",
			"source", spec.Name,
			"index", skip.Index,
			"field", skip.Field,
			"reason", skip.Reason(),
			"err", skip.Err,
		)
	}

	out.records = result.Records
	out.report.State = StateDone
	out.report.Items = result.ItemCount
	out.report.Records = len(result.Records)
	out.report.Skipped = len(result.Skipped)
	out.report.Duration = time.Since(start)
	return out
}

func (e *Engine) finish(ctx context.Context, log *logger.Logger, res *RunResult) {
	res.FinishedAt = e.now()

	if e.rec != nil {
		if err := e.rec.Save(context.WithoutCancel(ctx), res); err != nil {
			log.Error("save run report", "err", err)
		}
	}

	attrs := []any{
		"status", res.Status,
		"sources_ok", res.SourcesSucceeded,
		"sources_failed", res.SourcesFailed,
		"records", res.RecordsExtracted,
		"persisted", res.RecordsPersisted,
		"skipped", res.ItemsSkipped,
		"duration", res.Duration(),
	}
	evType := EventRunCommitted
	if res.Committed() {
		log.Info("run finished", attrs...)
	} else {
		evType = EventRunFailed
		log.Error("run finished", append(attrs, "err", res.Error)...)
	}
	e.publish(Event{Type: evType, RunID: res.ID, At: res.FinishedAt, Run: res})
}

func (e *Engine) publish(ev Event) {
	if e.pub != nil {
		e.pub.Publish(ev)
	}
}
