// Package engine assembles a report from one subject's raw records.
//
// A build is a single synchronous computation over an immutable snapshot:
// normalize, aggregate, classify, scan, score, flag, summarize. The engine
// keeps no per-build state, so one Engine may serve concurrent builds.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"carepulse/internal/aggregate"
	"carepulse/internal/composite"
	"carepulse/internal/finding"
	"carepulse/internal/logging"
	"carepulse/internal/metrics"
	"carepulse/internal/record"
	"carepulse/internal/report"
	"carepulse/internal/riskflag"
	"carepulse/internal/rulebook"
	"carepulse/internal/textscan"
	"carepulse/internal/trend"
)

// Configuration errors. Content problems never produce an error; they are
// dropped and counted in the report diagnostics.
var (
	ErrNoSubject   = errors.New("engine: subject id is required")
	ErrNoRulebook  = errors.New("engine: rulebook is required")
	ErrBadTimezone = errors.New("engine: unknown timezone")
)

// Options are the engine collaborators. Zero values are usable.
type Options struct {
	// Timezone is the IANA name used for calendar days. Default UTC.
	Timezone string
	Logger   *logging.Logger
	Audit    *logging.AuditLogger
	Metrics  *metrics.EngineMetrics
}

// Engine builds reports with one fixed rulebook.
type Engine struct {
	rulebook   *rulebook.Rulebook
	timezone   string
	loc        *time.Location
	scanner    *textscan.Scanner
	classifier trend.Classifier
	risk       *riskflag.Engine
	weights    composite.Weights

	logger  *logging.Logger
	audit   *logging.AuditLogger
	metrics *metrics.EngineMetrics
}

// New validates the rulebook and timezone and compiles the taxonomies.
func New(rb *rulebook.Rulebook, opts Options) (*Engine, error) {
	if rb == nil {
		return nil, ErrNoRulebook
	}
	if err := rb.Validate(); err != nil {
		return nil, err
	}

	tz := opts.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTimezone, tz)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("engine")

	classifier, err := rb.Classifier()
	if err != nil {
		return nil, err
	}
	risk, err := riskflag.New(rb.Thresholds, logger.Logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		rulebook:   rb,
		timezone:   tz,
		loc:        loc,
		scanner:    rb.Scanner(),
		classifier: classifier,
		risk:       risk,
		weights:    rb.Weights,
		logger:     logger,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
	}, nil
}

// Rulebook returns the rulebook the engine was built with.
func (e *Engine) Rulebook() *rulebook.Rulebook { return e.rulebook }

// Location returns the reporting timezone.
func (e *Engine) Location() *time.Location { return e.loc }

// Build produces the report for subjectID over w. The only errors are
// configuration errors: a missing subject or an invalid window.
func (e *Engine) Build(ctx context.Context, subjectID string, w record.TimeWindow, snap *record.Snapshot) (*report.Report, error) {
	start := time.Now()
	if subjectID == "" {
		e.buildFailed()
		return nil, ErrNoSubject
	}
	if err := w.Validate(); err != nil {
		e.buildFailed()
		return nil, err
	}

	n, diag := record.Normalize(w, snap)
	r := e.assemble(subjectID, w, n)
	r.Diagnostics = diag
	if snap != nil && len(snap.DegradedSources) > 0 {
		r.DegradedSources = append([]string(nil), snap.DegradedSources...)
	}

	r.Summary = report.Summarize(report.SummaryInputOf(r))
	r.ID = report.NewID(subjectID, w, r.Summary)

	e.observe(ctx, r, time.Since(start))
	return r, nil
}

func (e *Engine) assemble(subjectID string, w record.TimeWindow, n *record.Normalized) *report.Report {
	mood := aggregate.Mood(n.Mood)
	moodTrend := e.classifier.Classify(mood.Values())
	activities := aggregate.Usage(n.Activities)
	toolkit := aggregate.Usage(n.Toolkit)
	assessments := aggregate.Assessments(n.Assessments)
	sleep := aggregate.Sleep(n.SleepEntries, n.SleepQuality, n.SleepHours)
	goals := aggregate.Goals(n.Goals)
	journal := aggregate.Journal(n.Journal)
	workshops := aggregate.Named(n.Workshops)
	streak := trend.Streaks(n.ActivityTimestamps(), w.End, w.Start, e.loc)

	texts := n.Texts()
	sdoh := e.scanner.ScanSDOH(texts)
	hrs := e.scanner.ScanHRS(texts)

	resilience := e.weights.Resilience(composite.ResilienceInputs{
		CurrentStreak:  streak.Current,
		DistinctTools:  toolkit.Distinct(),
		MoodCount:      mood.Count,
		MoodStdDev:     mood.StdDev,
		CompletionRate: goals.CompletionRate,
		SleepSamples:   sleep.QualityCount,
		MeanSleep:      sleep.MeanQuality,
	})
	triad := e.weights.Triad(composite.TriadInputs{
		MeanSleepHours:   sleep.MeanHours,
		SleepHoursCount:  sleep.HoursCount,
		MeanSleepQuality: sleep.MeanQuality,
		SleepQualCount:   sleep.QualityCount,
		ActivityMinutes:  activities.TotalMinutes,
		ActiveDays:       streak.ActiveDays,
		WindowDays:       w.Days(e.loc),
	})

	flags := e.risk.Evaluate(riskflag.Inputs{
		Mood:        mood,
		MoodTrend:   moodTrend,
		Streak:      streak,
		Assessments: assessments,
		Sleep:       sleep,
		HRS:         hrs,
	})
	recs := riskflag.Recommend(riskflag.Engagement{
		Goals:          goals.Total,
		JournalEntries: journal.EntryCount,
		ToolkitUses:    toolkit.Total,
		MoodEntries:    mood.Count,
		SleepEntries:   sleep.Entries,
		Assessments:    len(assessments.History),
		Workshops:      workshops.Count,
		CurrentStreak:  streak.Current,
	})

	return &report.Report{
		SubjectID:       subjectID,
		Window:          w,
		Timezone:        e.timezone,
		RulebookVersion: e.rulebook.Version,

		Mood:          mood,
		MoodTrend:     moodTrend,
		Activities:    activities,
		Toolkit:       toolkit,
		Journal:       journal,
		Conversations: len(n.Conversations),
		Assessments:   assessments,
		Sleep:         sleep,
		Goals:         goals,
		MiniSessions:  aggregate.MiniSessions(n.MiniSessions),
		Badges:        aggregate.Named(n.Badges),
		Workshops:     workshops,
		Streak:        streak,

		RiskFlags:       nonNil(flags),
		SDOHFlags:       nonNil(sdoh),
		HRS:             hrs,
		Resilience:      resilience,
		Triad:           triad,
		Recommendations: nonNil(recs),

		TotalInteractions: report.Interactions(n),
		SummaryVersion:    report.SummaryVersion,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (e *Engine) buildFailed() {
	if e.metrics != nil {
		e.metrics.RecordBuildError()
	}
}

// observe records metrics, logs and audit events for a finished build.
// Subject free text never reaches these sinks.
func (e *Engine) observe(ctx context.Context, r *report.Report, elapsed time.Duration) {
	dropped := r.Diagnostics.Total()
	hrsFlags := 0
	for _, f := range r.RiskFlags {
		if f.Kind == finding.KindHRS {
			hrsFlags++
		}
	}

	if e.metrics != nil {
		e.metrics.RecordBuild(elapsed, r.TotalInteractions, dropped)
		e.metrics.RecordFlags("risk", len(r.RiskFlags)-hrsFlags)
		e.metrics.RecordFlags("hrs", hrsFlags)
		e.metrics.RecordFlags("sdoh", len(r.SDOHFlags))
		if r.HRS.RiskLevel == textscan.RiskElevated {
			e.metrics.RecordHRSElevated()
		}
	}

	log := e.logger.WithContext(ctx)
	for _, d := range r.Diagnostics.Drops {
		log.Debug("records dropped", "domain", d.Domain, "malformed", d.Malformed, "out_of_window", d.OutOfWindow)
	}
	log.Info("report built",
		"subject_id", r.SubjectID,
		"report_id", r.ID,
		"interactions", r.TotalInteractions,
		"risk_flags", len(r.RiskFlags),
		"sdoh_flags", len(r.SDOHFlags),
		"hrs_level", string(r.HRS.RiskLevel),
		"dropped", dropped,
		"duration", elapsed,
	)

	e.audit.LogReportBuilt(ctx, r.SubjectID, r.ID, map[string]any{
		"rulebook_version": r.RulebookVersion,
		"risk_flags":       len(r.RiskFlags),
		"high_priority":    r.HighPriorityCount(),
		"hrs_level":        string(r.HRS.RiskLevel),
		"degraded_sources": r.DegradedSources,
	})
	if r.HRS.RiskLevel == textscan.RiskElevated {
		terms := make([]string, 0, len(r.HRS.Direct))
		for _, d := range r.HRS.Direct {
			terms = append(terms, d.Term)
		}
		log.Warn("harm-risk classification elevated", "subject_id", r.SubjectID, "report_id", r.ID, "direct_matches", len(terms))
		e.audit.LogHRSElevated(ctx, r.SubjectID, r.ID, terms)
	}
}

// Holder publishes the current engine for callers that swap rulebooks at
// runtime. Builds in flight keep the engine they started with.
type Holder struct {
	p atomic.Pointer[Engine]
}

// NewHolder returns a Holder publishing e.
func NewHolder(e *Engine) *Holder {
	h := &Holder{}
	h.p.Store(e)
	return h
}

// Load returns the current engine.
func (h *Holder) Load() *Engine { return h.p.Load() }

// Swap publishes e and returns the previous engine.
func (h *Holder) Swap(e *Engine) *Engine { return h.p.Swap(e) }
