// Package report defines the immutable report produced by one engine
// build, its versioned summary template, and its text and JSON renderings.
package report

import (
	"github.com/google/uuid"

	"carepulse/internal/aggregate"
	"carepulse/internal/composite"
	"carepulse/internal/finding"
	"carepulse/internal/record"
	"carepulse/internal/riskflag"
	"carepulse/internal/textscan"
	"carepulse/internal/trend"
)

// Report is the complete output of one build. Callers must treat it as
// read-only; nothing in the engine retains a reference after returning it.
type Report struct {
	ID              string            `json:"id"`
	SubjectID       string            `json:"subject_id"`
	Window          record.TimeWindow `json:"window"`
	Timezone        string            `json:"timezone"`
	RulebookVersion string            `json:"rulebook_version"`

	Mood          aggregate.MoodStats        `json:"mood"`
	MoodTrend     trend.Direction            `json:"mood_trend"`
	Activities    aggregate.UsageStats       `json:"activities"`
	Toolkit       aggregate.UsageStats       `json:"toolkit"`
	Journal       aggregate.JournalStats     `json:"journal"`
	Conversations int                        `json:"conversations"`
	Assessments   aggregate.AssessmentStats  `json:"assessments"`
	Sleep         aggregate.SleepStats       `json:"sleep"`
	Goals         aggregate.GoalStats        `json:"goals"`
	MiniSessions  aggregate.MiniSessionStats `json:"mini_sessions"`
	Badges        aggregate.NamedEvents      `json:"badges"`
	Workshops     aggregate.NamedEvents      `json:"workshops"`
	Streak        trend.Streak               `json:"streak"`

	RiskFlags       []finding.Flag            `json:"risk_flags"`
	SDOHFlags       []finding.Flag            `json:"sdoh_flags"`
	HRS             textscan.HRSResult        `json:"hrs"`
	Resilience      composite.Score           `json:"resilience"`
	Triad           composite.Triad           `json:"performance_triad"`
	Recommendations []riskflag.Recommendation `json:"recommendations"`

	TotalInteractions int    `json:"total_interactions"`
	SummaryVersion    string `json:"summary_version"`
	Summary           string `json:"summary"`

	Diagnostics     record.Diagnostics `json:"diagnostics"`
	DegradedSources []string           `json:"degraded_sources,omitempty"`
}

// HighPriorityCount is the number of risk flags at high or elevated priority.
func (r *Report) HighPriorityCount() int {
	return finding.CountHigh(r.RiskFlags)
}

// TopThemes returns up to three journal themes, most frequent first.
func (r *Report) TopThemes() []string {
	var out []string
	for _, t := range r.Journal.TopTags {
		if len(out) == 3 {
			break
		}
		out = append(out, t.Tag)
	}
	return out
}

// Interactions counts every engagement record that entered the report.
func Interactions(n *record.Normalized) int {
	return len(n.Mood) + len(n.Activities) + len(n.Journal) + len(n.Conversations) +
		len(n.Assessments) + n.SleepEntries + len(n.MiniSessions) + len(n.Toolkit)
}

var namespace = uuid.MustParse("6f1c8a52-3d0e-4b7a-9a55-1f0c2de4a9b1")

// NewID derives a stable report ID from the subject, window and summary, so
// identical builds share an ID.
func NewID(subjectID string, w record.TimeWindow, summary string) string {
	name := subjectID + "\x00" + w.Start.UTC().Format(timeLayout) + "\x00" +
		w.End.UTC().Format(timeLayout) + "\x00" + summary
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
