package record

import "time"

// Raw source records as returned by the data-access layer. Pointer fields
// mirror nullable upstream columns; nil means the value was never recorded.

// MoodEntry is a raw mood check-in.
type MoodEntry struct {
	CreatedAt *time.Time `json:"created_at"`
	Score     *float64   `json:"score"`
	Note      *string    `json:"note,omitempty"`
}

// Activity is a raw wellness activity.
type Activity struct {
	CreatedAt       *time.Time `json:"created_at"`
	Type            *string    `json:"type"`
	DurationMinutes *float64   `json:"duration_minutes,omitempty"`
}

// JournalEntry is a raw journal note.
type JournalEntry struct {
	CreatedAt *time.Time `json:"created_at"`
	Content   *string    `json:"content"`
	MoodTag   *string    `json:"mood_tag,omitempty"`
}

// Conversation is a raw companion conversation summary.
type Conversation struct {
	CreatedAt *time.Time `json:"created_at"`
	Summary   *string    `json:"summary"`
}

// Assessment is a raw clinical screening result.
type Assessment struct {
	CompletedAt *time.Time `json:"completed_at"`
	Type        *string    `json:"type"`
	Score       *float64   `json:"score"`
	Severity    *string    `json:"severity,omitempty"`
}

// SleepEntry is a raw nightly sleep log.
type SleepEntry struct {
	Date    *time.Time `json:"date"`
	Quality *float64   `json:"quality,omitempty"`
	Hours   *float64   `json:"hours,omitempty"`
}

// Goal is a raw user goal.
type Goal struct {
	CreatedAt *time.Time `json:"created_at"`
	Title     *string    `json:"title,omitempty"`
	Completed *bool      `json:"completed,omitempty"`
}

// MiniSession is a raw short check-in with optional dimensions.
type MiniSession struct {
	CreatedAt *time.Time `json:"created_at"`
	Mood      *float64   `json:"mood,omitempty"`
	Anxiety   *float64   `json:"anxiety,omitempty"`
	Energy    *float64   `json:"energy,omitempty"`
}

// ToolkitSession is a raw breathing, meditation or music session.
type ToolkitSession struct {
	CreatedAt       *time.Time `json:"created_at"`
	Tool            *string    `json:"tool"`
	DurationMinutes *float64   `json:"duration_minutes,omitempty"`
}

// Badge is a raw earned badge.
type Badge struct {
	AwardedAt *time.Time `json:"awarded_at"`
	Name      *string    `json:"name"`
}

// WorkshopRegistration is a raw workshop sign-up.
type WorkshopRegistration struct {
	RegisteredAt *time.Time `json:"registered_at"`
	Title        *string    `json:"title"`
}

// Source names, used for diagnostics and degraded-source reporting.
const (
	DomainMood         = "mood"
	DomainActivities   = "activities"
	DomainJournal      = "journal"
	DomainConversation = "conversations"
	DomainAssessments  = "assessments"
	DomainSleep        = "sleep"
	DomainGoals        = "goals"
	DomainMiniSessions = "mini_sessions"
	DomainToolkit      = "toolkit"
	DomainBadges       = "badges"
	DomainWorkshops    = "workshops"
)

// Domains lists every source in reporting order.
var Domains = []string{
	DomainMood, DomainActivities, DomainJournal, DomainConversation,
	DomainAssessments, DomainSleep, DomainGoals, DomainMiniSessions,
	DomainToolkit, DomainBadges, DomainWorkshops,
}

// Snapshot is the immutable input for one report build: every raw record
// fetched for a subject, plus the sources that could not be fetched.
type Snapshot struct {
	Mood          []MoodEntry            `json:"mood"`
	Activities    []Activity             `json:"activities"`
	Journal       []JournalEntry         `json:"journal"`
	Conversations []Conversation         `json:"conversations"`
	Assessments   []Assessment           `json:"assessments"`
	Sleep         []SleepEntry           `json:"sleep"`
	Goals         []Goal                 `json:"goals"`
	MiniSessions  []MiniSession          `json:"mini_sessions"`
	Toolkit       []ToolkitSession       `json:"toolkit"`
	Badges        []Badge                `json:"badges"`
	Workshops     []WorkshopRegistration `json:"workshops"`

	// DegradedSources names sources whose fetch failed and were replaced
	// by an empty list.
	DegradedSources []string `json:"degraded_sources,omitempty"`
}
