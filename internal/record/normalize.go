package record

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Value ranges accepted by the normalizer. Values outside are malformed.
const (
	MoodMin         = 1.0
	MoodMax         = 10.0
	SleepQualityMin = 1.0
	SleepQualityMax = 5.0
	SleepHoursMax   = 24.0
)

// DropCount is the number of records discarded for one domain.
type DropCount struct {
	Domain      string `json:"domain"`
	Malformed   int    `json:"malformed"`
	OutOfWindow int    `json:"out_of_window"`
}

// Diagnostics describes what the normalizer discarded. Drops are never
// errors; they are reported so callers can spot upstream data problems.
type Diagnostics struct {
	Drops []DropCount `json:"drops,omitempty"`
}

// Total returns the number of discarded records across domains.
func (d Diagnostics) Total() int {
	n := 0
	for _, c := range d.Drops {
		n += c.Malformed + c.OutOfWindow
	}
	return n
}

type dropTally struct {
	malformed   map[string]int
	outOfWindow map[string]int
}

func newDropTally() *dropTally {
	return &dropTally{malformed: map[string]int{}, outOfWindow: map[string]int{}}
}

func (t *dropTally) diagnostics() Diagnostics {
	var d Diagnostics
	for _, domain := range Domains {
		m, o := t.malformed[domain], t.outOfWindow[domain]
		if m == 0 && o == 0 {
			continue
		}
		d.Drops = append(d.Drops, DropCount{Domain: domain, Malformed: m, OutOfWindow: o})
	}
	return d
}

// admit checks the timestamp of a record and tallies the reason when the
// record must be dropped.
func (t *dropTally) admit(domain string, w TimeWindow, ts *time.Time) bool {
	if ts == nil || ts.IsZero() {
		t.malformed[domain]++
		return false
	}
	if !w.Contains(*ts) {
		t.outOfWindow[domain]++
		return false
	}
	return true
}

// Normalize maps every raw record in snap onto its per-domain shape,
// dropping records with missing required fields or timestamps outside w.
// It never fails; the window is assumed to be validated by the caller.
func Normalize(w TimeWindow, snap *Snapshot) (*Normalized, Diagnostics) {
	n := &Normalized{}
	if snap == nil {
		return n, Diagnostics{}
	}
	t := newDropTally()

	for _, r := range snap.Mood {
		if !t.admit(DomainMood, w, r.CreatedAt) {
			continue
		}
		// The note is scanned even when the score is unusable.
		if body := text(r.Note); body != "" {
			n.MoodNotes = append(n.MoodNotes, TextEntry{Timestamp: *r.CreatedAt, Source: SourceMoodNote, Body: body})
		}
		if r.Score == nil || !inRange(*r.Score, MoodMin, MoodMax) {
			t.malformed[DomainMood]++
			continue
		}
		n.Mood = append(n.Mood, Sample{Timestamp: *r.CreatedAt, Value: *r.Score})
	}

	for _, r := range snap.Activities {
		if !t.admit(DomainActivities, w, r.CreatedAt) {
			continue
		}
		category := text(r.Type)
		if category == "" {
			t.malformed[DomainActivities]++
			continue
		}
		n.Activities = append(n.Activities, CategoricalEvent{
			Timestamp: *r.CreatedAt,
			Category:  category,
			Magnitude: minutes(r.DurationMinutes),
		})
	}

	for _, r := range snap.Journal {
		if !t.admit(DomainJournal, w, r.CreatedAt) {
			continue
		}
		body := text(r.Content)
		if body == "" {
			t.malformed[DomainJournal]++
			continue
		}
		n.Journal = append(n.Journal, TextEntry{
			Timestamp: *r.CreatedAt,
			Source:    SourceJournal,
			Body:      body,
			Tag:       strings.ToLower(text(r.MoodTag)),
		})
	}

	for _, r := range snap.Conversations {
		if !t.admit(DomainConversation, w, r.CreatedAt) {
			continue
		}
		body := text(r.Summary)
		if body == "" {
			t.malformed[DomainConversation]++
			continue
		}
		n.Conversations = append(n.Conversations, TextEntry{Timestamp: *r.CreatedAt, Source: SourceConversation, Body: body})
	}

	for _, r := range snap.Assessments {
		if !t.admit(DomainAssessments, w, r.CompletedAt) {
			continue
		}
		kind := AssessmentTypeOf(text(r.Type))
		if kind == "" || r.Score == nil || !finite(*r.Score) || *r.Score < 0 {
			t.malformed[DomainAssessments]++
			continue
		}
		n.Assessments = append(n.Assessments, AssessmentScore{
			Type:      kind,
			Score:     *r.Score,
			Severity:  text(r.Severity),
			Timestamp: *r.CompletedAt,
		})
	}

	for _, r := range snap.Sleep {
		if !t.admit(DomainSleep, w, r.Date) {
			continue
		}
		quality := r.Quality != nil && inRange(*r.Quality, SleepQualityMin, SleepQualityMax)
		hours := r.Hours != nil && inRange(*r.Hours, 0, SleepHoursMax)
		if !quality && !hours {
			t.malformed[DomainSleep]++
			continue
		}
		n.SleepEntries++
		if quality {
			n.SleepQuality = append(n.SleepQuality, Sample{Timestamp: *r.Date, Value: *r.Quality})
		}
		if hours {
			n.SleepHours = append(n.SleepHours, Sample{Timestamp: *r.Date, Value: *r.Hours})
		}
	}

	for _, r := range snap.Goals {
		if !t.admit(DomainGoals, w, r.CreatedAt) {
			continue
		}
		n.Goals = append(n.Goals, GoalRecord{
			Timestamp: *r.CreatedAt,
			Title:     text(r.Title),
			Completed: r.Completed != nil && *r.Completed,
		})
	}

	for _, r := range snap.MiniSessions {
		if !t.admit(DomainMiniSessions, w, r.CreatedAt) {
			continue
		}
		rec := MiniSessionRecord{
			Timestamp: *r.CreatedAt,
			Mood:      bounded(r.Mood, MoodMin, MoodMax),
			Anxiety:   bounded(r.Anxiety, MoodMin, MoodMax),
			Energy:    bounded(r.Energy, MoodMin, MoodMax),
		}
		if rec.Mood == nil && rec.Anxiety == nil && rec.Energy == nil {
			t.malformed[DomainMiniSessions]++
			continue
		}
		n.MiniSessions = append(n.MiniSessions, rec)
	}

	for _, r := range snap.Toolkit {
		if !t.admit(DomainToolkit, w, r.CreatedAt) {
			continue
		}
		tool := strings.ToLower(text(r.Tool))
		if tool == "" {
			t.malformed[DomainToolkit]++
			continue
		}
		n.Toolkit = append(n.Toolkit, CategoricalEvent{Timestamp: *r.CreatedAt, Category: tool, Magnitude: minutes(r.DurationMinutes)})
	}

	for _, r := range snap.Badges {
		if !t.admit(DomainBadges, w, r.AwardedAt) {
			continue
		}
		name := text(r.Name)
		if name == "" {
			t.malformed[DomainBadges]++
			continue
		}
		n.Badges = append(n.Badges, CategoricalEvent{Timestamp: *r.AwardedAt, Category: name})
	}

	for _, r := range snap.Workshops {
		if !t.admit(DomainWorkshops, w, r.RegisteredAt) {
			continue
		}
		title := text(r.Title)
		if title == "" {
			t.malformed[DomainWorkshops]++
			continue
		}
		n.Workshops = append(n.Workshops, CategoricalEvent{Timestamp: *r.RegisteredAt, Category: title})
	}

	sortSamples(n.Mood)
	sortSamples(n.SleepQuality)
	sortSamples(n.SleepHours)
	sortEvents(n.Activities)
	sortEvents(n.Toolkit)
	sortEvents(n.Badges)
	sortEvents(n.Workshops)
	sortTexts(n.Journal)
	sortTexts(n.Conversations)
	sortTexts(n.MoodNotes)
	sort.SliceStable(n.Assessments, func(i, j int) bool {
		return n.Assessments[i].Timestamp.Before(n.Assessments[j].Timestamp)
	})
	sort.SliceStable(n.Goals, func(i, j int) bool {
		return n.Goals[i].Timestamp.Before(n.Goals[j].Timestamp)
	})
	sort.SliceStable(n.MiniSessions, func(i, j int) bool {
		return n.MiniSessions[i].Timestamp.Before(n.MiniSessions[j].Timestamp)
	})

	return n, t.diagnostics()
}

// AssessmentTypeOf canonicalizes an instrument name ("phq-9", "PHQ 9" and
// "PHQ9" all map to PHQ9). Unknown names are kept upper-cased so they still
// appear in the pass-through history.
func AssessmentTypeOf(name string) AssessmentType {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if r == '-' || r == '_' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return AssessmentType(b.String())
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func inRange(v, lo, hi float64) bool {
	return finite(v) && v >= lo && v <= hi
}

func bounded(v *float64, lo, hi float64) *float64 {
	if v == nil || !inRange(*v, lo, hi) {
		return nil
	}
	out := *v
	return &out
}

func minutes(v *float64) float64 {
	if v == nil || !finite(*v) || *v < 0 {
		return 0
	}
	return *v
}

func sortSamples(s []Sample) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })
}

func sortEvents(e []CategoricalEvent) {
	sort.SliceStable(e, func(i, j int) bool { return e[i].Timestamp.Before(e[j].Timestamp) })
}

func sortTexts(e []TextEntry) {
	sort.SliceStable(e, func(i, j int) bool { return e[i].Timestamp.Before(e[j].Timestamp) })
}
