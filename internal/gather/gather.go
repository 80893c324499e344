// Package gather fetches every raw source for one subject concurrently and
// assembles the immutable snapshot the engine builds from.
package gather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"carepulse/internal/logging"
	"carepulse/internal/metrics"
	"carepulse/internal/record"
)

// Policy decides what happens when one source cannot be fetched.
type Policy string

const (
	// Degrade substitutes an empty list and records the source as degraded.
	Degrade Policy = "degrade"
	// Abort cancels the remaining fetches and fails the gather.
	Abort Policy = "abort"
)

// DefaultTimeout bounds each source fetch when Options.Timeout is unset.
const DefaultTimeout = 5 * time.Second

// ErrUnknownPolicy is returned for a policy other than Degrade or Abort.
var ErrUnknownPolicy = errors.New("gather: unknown failure policy")

// FetchFunc returns the raw records of one source for a subject and window.
type FetchFunc[T any] func(ctx context.Context, subjectID string, w record.TimeWindow) ([]T, error)

// Sources holds one fetcher per domain. A nil fetcher is treated as a
// source with no records, not as a failure.
type Sources struct {
	Mood          FetchFunc[record.MoodEntry]
	Activities    FetchFunc[record.Activity]
	Journal       FetchFunc[record.JournalEntry]
	Conversations FetchFunc[record.Conversation]
	Assessments   FetchFunc[record.Assessment]
	Sleep         FetchFunc[record.SleepEntry]
	Goals         FetchFunc[record.Goal]
	MiniSessions  FetchFunc[record.MiniSession]
	Toolkit       FetchFunc[record.ToolkitSession]
	Badges        FetchFunc[record.Badge]
	Workshops     FetchFunc[record.WorkshopRegistration]
}

// Options configures a Gatherer.
type Options struct {
	Policy  Policy
	Timeout time.Duration
	Logger  *logging.Logger
	Audit   *logging.AuditLogger
	Metrics *metrics.EngineMetrics
}

// Gatherer runs source fetches under a failure policy.
type Gatherer struct {
	policy  Policy
	timeout time.Duration
	logger  *logging.Logger
	audit   *logging.AuditLogger
	metrics *metrics.EngineMetrics
}

// New returns a Gatherer. An empty policy means Degrade.
func New(opts Options) (*Gatherer, error) {
	policy := opts.Policy
	if policy == "" {
		policy = Degrade
	}
	if policy != Degrade && policy != Abort {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Gatherer{
		policy:  policy,
		timeout: timeout,
		logger:  logger.WithComponent("gather"),
		audit:   opts.Audit,
		metrics: opts.Metrics,
	}, nil
}

// Gather fetches every source with the given policy and default options.
func Gather(ctx context.Context, subjectID string, w record.TimeWindow, src Sources, policy Policy) (*record.Snapshot, error) {
	g, err := New(Options{Policy: policy})
	if err != nil {
		return nil, err
	}
	return g.Gather(ctx, subjectID, w, src)
}

// sourceError names the source a fetch failed for.
type sourceError struct {
	source string
	err    error
}

func (e *sourceError) Error() string { return fmt.Sprintf("fetch %s: %v", e.source, e.err) }
func (e *sourceError) Unwrap() error { return e.err }

// Gather runs all fetches concurrently, each under its own timeout, and
// returns once every fetch has finished. Degraded sources are listed in
// record.Domains order regardless of completion order.
func (g *Gatherer) Gather(ctx context.Context, subjectID string, w record.TimeWindow, src Sources) (*record.Snapshot, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	snap := &record.Snapshot{}
	run := &runner{g: g, subjectID: subjectID, window: w, failed: make(map[string]error)}

	eg, egCtx := errgroup.WithContext(ctx)
	run.ctx = egCtx
	run.eg = eg

	launch(run, record.DomainMood, src.Mood, &snap.Mood)
	launch(run, record.DomainActivities, src.Activities, &snap.Activities)
	launch(run, record.DomainJournal, src.Journal, &snap.Journal)
	launch(run, record.DomainConversation, src.Conversations, &snap.Conversations)
	launch(run, record.DomainAssessments, src.Assessments, &snap.Assessments)
	launch(run, record.DomainSleep, src.Sleep, &snap.Sleep)
	launch(run, record.DomainGoals, src.Goals, &snap.Goals)
	launch(run, record.DomainMiniSessions, src.MiniSessions, &snap.MiniSessions)
	launch(run, record.DomainToolkit, src.Toolkit, &snap.Toolkit)
	launch(run, record.DomainBadges, src.Badges, &snap.Badges)
	launch(run, record.DomainWorkshops, src.Workshops, &snap.Workshops)

	if err := eg.Wait(); err != nil {
		g.logger.Error("gather aborted", "subject_id", subjectID, "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, domain := range record.Domains {
		err, ok := run.failed[domain]
		if !ok {
			continue
		}
		snap.DegradedSources = append(snap.DegradedSources, domain)
		g.logger.Warn("source degraded", "subject_id", subjectID, "source", domain, "error", err)
		if g.audit != nil {
			_ = g.audit.LogSourceDegraded(ctx, subjectID, domain, err)
		}
	}

	if g.metrics != nil {
		g.metrics.RecordGather(time.Since(start), len(snap.DegradedSources))
	}
	g.logger.Debug("gather complete",
		"subject_id", subjectID,
		"degraded", len(snap.DegradedSources),
		"duration", time.Since(start),
	)
	return snap, nil
}

type runner struct {
	g         *Gatherer
	ctx       context.Context
	eg        *errgroup.Group
	subjectID string
	window    record.TimeWindow

	mu     sync.Mutex
	failed map[string]error
}

func (r *runner) fail(source string, err error) error {
	if r.g.policy == Abort {
		return &sourceError{source: source, err: err}
	}
	r.mu.Lock()
	r.failed[source] = err
	r.mu.Unlock()
	return nil
}

// launch starts one fetch. Each goroutine writes only its own slice, and
// Wait orders those writes before the caller reads the snapshot.
func launch[T any](r *runner, source string, fetch FetchFunc[T], dst *[]T) {
	if fetch == nil {
		return
	}
	r.eg.Go(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, r.g.timeout)
		defer cancel()

		done := make(chan struct {
			rows []T
			err  error
		}, 1)
		go func() {
			rows, err := fetch(ctx, r.subjectID, r.window)
			done <- struct {
				rows []T
				err  error
			}{rows, err}
		}()

		select {
		case res := <-done:
			if res.err != nil {
				return r.fail(source, res.err)
			}
			*dst = res.rows
			return nil
		case <-ctx.Done():
			// A fetcher that ignores its context is abandoned here.
			return r.fail(source, ctx.Err())
		}
	})
}
