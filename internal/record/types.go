// Package record defines the normalized per-domain shapes consumed by the
// report engine and the normalizer that produces them from raw source records.
package record

import (
	"errors"
	"time"
)

// ErrInvalidWindow is returned when a TimeWindow does not satisfy Start < End.
var ErrInvalidWindow = errors.New("record: time window start must be before end")

// TimeWindow is the rolling reporting period. Both ends are inclusive.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate reports whether the window is usable.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() || !w.Start.Before(w.End) {
		return ErrInvalidWindow
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Days returns the number of calendar days the window spans in loc,
// counting both the start and end day.
func (w TimeWindow) Days(loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	start := DayOf(w.Start, loc)
	end := DayOf(w.End, loc)
	days := int(end.Sub(start).Hours()/24+0.5) + 1
	if days < 1 {
		return 1
	}
	return days
}

// DayOf truncates t to midnight of its calendar day in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// Sample is a timestamped numeric observation.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// CategoricalEvent is a timestamped occurrence of a named category.
// Magnitude holds a duration in minutes where the source has one, else 0.
type CategoricalEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Magnitude float64   `json:"magnitude,omitempty"`
}

// TextEntry is free text scanned for signals. Tag carries the journal mood
// tag when the source provides one.
type TextEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Body      string    `json:"body"`
	Tag       string    `json:"tag,omitempty"`
}

// Text sources.
const (
	SourceJournal      = "journal"
	SourceConversation = "conversation"
	SourceMoodNote     = "mood_note"
)

// AssessmentType names a measurement-based care instrument.
type AssessmentType string

// Known instruments.
const (
	PHQ9   AssessmentType = "PHQ9"
	GAD7   AssessmentType = "GAD7"
	PCL5   AssessmentType = "PCL5"
	AUDITC AssessmentType = "AUDITC"
)

// KnownAssessmentTypes lists the instruments with published severity
// thresholds, in reporting order.
var KnownAssessmentTypes = []AssessmentType{PHQ9, GAD7, PCL5, AUDITC}

// Known reports whether the type has published thresholds.
func (t AssessmentType) Known() bool {
	for _, k := range KnownAssessmentTypes {
		if t == k {
			return true
		}
	}
	return false
}

// AssessmentScore is one administration of an instrument.
type AssessmentScore struct {
	Type      AssessmentType `json:"type"`
	Score     float64        `json:"score"`
	Severity  string         `json:"severity,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// GoalRecord is a normalized goal.
type GoalRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title,omitempty"`
	Completed bool      `json:"completed"`
}

// MiniSessionRecord is a normalized check-in. Missing dimensions are nil.
type MiniSessionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Mood      *float64  `json:"mood,omitempty"`
	Anxiety   *float64  `json:"anxiety,omitempty"`
	Energy    *float64  `json:"energy,omitempty"`
}

// Normalized holds every domain series for one subject and window.
// Each series is ordered by timestamp; equal timestamps keep input order.
type Normalized struct {
	Mood          []Sample
	Activities    []CategoricalEvent
	Journal       []TextEntry
	Conversations []TextEntry
	MoodNotes     []TextEntry
	Assessments   []AssessmentScore
	SleepQuality  []Sample
	SleepHours    []Sample
	SleepEntries  int
	Goals         []GoalRecord
	MiniSessions  []MiniSessionRecord
	Toolkit       []CategoricalEvent
	Badges        []CategoricalEvent
	Workshops     []CategoricalEvent
}

// Texts returns every scannable text entry in a fixed source order:
// journal, conversations, then mood notes.
func (n *Normalized) Texts() []TextEntry {
	out := make([]TextEntry, 0, len(n.Journal)+len(n.Conversations)+len(n.MoodNotes))
	out = append(out, n.Journal...)
	out = append(out, n.Conversations...)
	out = append(out, n.MoodNotes...)
	return out
}

// ActivityTimestamps returns the timestamps of every engagement event used
// for streak calculation.
func (n *Normalized) ActivityTimestamps() []time.Time {
	var ts []time.Time
	for _, s := range n.Mood {
		ts = append(ts, s.Timestamp)
	}
	for _, e := range n.Activities {
		ts = append(ts, e.Timestamp)
	}
	for _, e := range n.Journal {
		ts = append(ts, e.Timestamp)
	}
	for _, e := range n.Conversations {
		ts = append(ts, e.Timestamp)
	}
	for _, s := range n.MiniSessions {
		ts = append(ts, s.Timestamp)
	}
	for _, e := range n.Toolkit {
		ts = append(ts, e.Timestamp)
	}
	return ts
}
