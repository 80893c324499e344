package record

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func testWindow() TimeWindow {
	return TimeWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
	}
}

func day(d int) *time.Time {
	t := time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC)
	return &t
}

func TestTimeWindowValidate(t *testing.T) {
	w := testWindow()
	require.NoError(t, w.Validate())

	inverted := TimeWindow{Start: w.End, End: w.Start}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidWindow)

	empty := TimeWindow{Start: w.Start, End: w.Start}
	assert.ErrorIs(t, empty.Validate(), ErrInvalidWindow)

	assert.ErrorIs(t, TimeWindow{}.Validate(), ErrInvalidWindow)
}

func TestTimeWindowContainsIsInclusive(t *testing.T) {
	w := testWindow()
	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.Start.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(w.End.Add(time.Nanosecond)))
}

func TestTimeWindowDays(t *testing.T) {
	assert.Equal(t, 31, testWindow().Days(time.UTC))

	short := TimeWindow{
		Start: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 1, short.Days(nil))
}

func TestNormalizeMood(t *testing.T) {
	snap := &Snapshot{Mood: []MoodEntry{
		{CreatedAt: day(3), Score: ptr(6.0), Note: ptr("  felt ok  ")},
		{CreatedAt: day(1), Score: ptr(4.0)},
		{CreatedAt: day(2), Score: nil},                       // no score
		{CreatedAt: nil, Score: ptr(5.0)},                     // no timestamp
		{CreatedAt: day(4), Score: ptr(11.0)},                 // off scale
		{CreatedAt: day(5), Score: ptr(math.NaN())},           // not a number
		{CreatedAt: ptr(testWindow().End.AddDate(0, 0, 1)), Score: ptr(5.0)}, // out of window
	}}

	n, diag := Normalize(testWindow(), snap)

	require.Len(t, n.Mood, 2)
	assert.Equal(t, 4.0, n.Mood[0].Value, "series should be ordered by timestamp")
	assert.Equal(t, 6.0, n.Mood[1].Value)

	require.Len(t, n.MoodNotes, 1)
	assert.Equal(t, "felt ok", n.MoodNotes[0].Body)
	assert.Equal(t, SourceMoodNote, n.MoodNotes[0].Source)

	require.Len(t, diag.Drops, 1)
	assert.Equal(t, DropCount{Domain: DomainMood, Malformed: 4, OutOfWindow: 1}, diag.Drops[0])
	assert.Equal(t, 5, diag.Total())
}

func TestNormalizeMoodNoteSurvivesBadScore(t *testing.T) {
	snap := &Snapshot{Mood: []MoodEntry{
		{CreatedAt: day(2), Score: nil, Note: ptr("I want to kill myself")},
		{CreatedAt: day(3), Score: ptr(42.0), Note: ptr("behind on rent")},
		{CreatedAt: nil, Score: nil, Note: ptr("no timestamp, not admitted")},
	}}

	n, diag := Normalize(testWindow(), snap)

	assert.Empty(t, n.Mood)
	require.Len(t, n.MoodNotes, 2)
	assert.Equal(t, "I want to kill myself", n.MoodNotes[0].Body)
	assert.Equal(t, "behind on rent", n.MoodNotes[1].Body)
	assert.Len(t, n.Texts(), 2)

	require.Len(t, diag.Drops, 1)
	assert.Equal(t, DropCount{Domain: DomainMood, Malformed: 3}, diag.Drops[0])
}

func TestNormalizeScaleBounds(t *testing.T) {
	snap := &Snapshot{
		Mood: []MoodEntry{
			{CreatedAt: day(1), Score: ptr(0.0)},
			{CreatedAt: day(2), Score: ptr(1.0)},
			{CreatedAt: day(3), Score: ptr(10.0)},
		},
		Sleep: []SleepEntry{
			{Date: day(1), Quality: ptr(0.0)},
			{Date: day(2), Quality: ptr(1.0)},
			{Date: day(3), Quality: ptr(5.0)},
		},
		MiniSessions: []MiniSession{
			{CreatedAt: day(1), Mood: ptr(0.0)},
			{CreatedAt: day(2), Mood: ptr(1.0), Energy: ptr(0.0)},
		},
	}

	n, diag := Normalize(testWindow(), snap)

	require.Len(t, n.Mood, 2, "mood scale is 1-10")
	assert.Equal(t, 1.0, n.Mood[0].Value)
	assert.Len(t, n.SleepQuality, 2, "sleep quality scale is 1-5")
	require.Len(t, n.MiniSessions, 1)
	assert.Nil(t, n.MiniSessions[0].Energy)

	want := []DropCount{
		{Domain: DomainMood, Malformed: 1},
		{Domain: DomainSleep, Malformed: 1},
		{Domain: DomainMiniSessions, Malformed: 1},
	}
	assert.Equal(t, want, diag.Drops)
}

func TestNormalizeSleepKeepsPartialEntries(t *testing.T) {
	snap := &Snapshot{Sleep: []SleepEntry{
		{Date: day(1), Quality: ptr(4.0), Hours: ptr(7.5)},
		{Date: day(2), Quality: nil, Hours: ptr(6.0)},
		{Date: day(3), Quality: ptr(2.0), Hours: nil},
		{Date: day(4), Quality: nil, Hours: nil},
	}}

	n, diag := Normalize(testWindow(), snap)

	assert.Equal(t, 3, n.SleepEntries)
	assert.Len(t, n.SleepQuality, 2)
	assert.Len(t, n.SleepHours, 2)
	require.Len(t, diag.Drops, 1)
	assert.Equal(t, 1, diag.Drops[0].Malformed)
}

func TestNormalizeAssessments(t *testing.T) {
	snap := &Snapshot{Assessments: []Assessment{
		{CompletedAt: day(2), Type: ptr("phq-9"), Score: ptr(12.0), Severity: ptr("moderate")},
		{CompletedAt: day(1), Type: ptr("GAD 7"), Score: ptr(4.0)},
		{CompletedAt: day(3), Type: ptr("K10"), Score: ptr(20.0)},
		{CompletedAt: day(4), Type: ptr(""), Score: ptr(1.0)},
		{CompletedAt: day(5), Type: ptr("PHQ9"), Score: nil},
	}}

	n, diag := Normalize(testWindow(), snap)

	require.Len(t, n.Assessments, 3)
	assert.Equal(t, GAD7, n.Assessments[0].Type)
	assert.Equal(t, PHQ9, n.Assessments[1].Type)
	assert.Equal(t, AssessmentType("K10"), n.Assessments[2].Type, "unknown types stay in the pass-through list")
	assert.False(t, n.Assessments[2].Type.Known())
	assert.Equal(t, 2, diag.Total())
}

func TestNormalizeCategoricalSources(t *testing.T) {
	snap := &Snapshot{
		Activities: []Activity{
			{CreatedAt: day(2), Type: ptr("walk"), DurationMinutes: ptr(30.0)},
			{CreatedAt: day(1), Type: ptr("yoga"), DurationMinutes: ptr(-5.0)},
			{CreatedAt: day(3), Type: nil},
		},
		Toolkit: []ToolkitSession{
			{CreatedAt: day(1), Tool: ptr("Breathing"), DurationMinutes: ptr(5.0)},
		},
		Badges:    []Badge{{AwardedAt: day(1), Name: ptr("First Step")}, {AwardedAt: day(1)}},
		Workshops: []WorkshopRegistration{{RegisteredAt: day(9), Title: ptr("Sleep Hygiene")}},
	}

	n, diag := Normalize(testWindow(), snap)

	require.Len(t, n.Activities, 2)
	assert.Equal(t, "yoga", n.Activities[0].Category)
	assert.Zero(t, n.Activities[0].Magnitude, "negative durations are treated as absent")
	assert.Equal(t, 30.0, n.Activities[1].Magnitude)

	require.Len(t, n.Toolkit, 1)
	assert.Equal(t, "breathing", n.Toolkit[0].Category)
	assert.Len(t, n.Badges, 1)
	assert.Len(t, n.Workshops, 1)
	assert.Equal(t, 2, diag.Total())
}

func TestNormalizeTextAndGoals(t *testing.T) {
	snap := &Snapshot{
		Journal: []JournalEntry{
			{CreatedAt: day(2), Content: ptr("second"), MoodTag: ptr("Calm")},
			{CreatedAt: day(1), Content: ptr("first")},
			{CreatedAt: day(3), Content: ptr("   ")},
		},
		Conversations: []Conversation{{CreatedAt: day(1), Summary: ptr("talked about work")}},
		Goals: []Goal{
			{CreatedAt: day(1), Title: ptr("walk daily"), Completed: ptr(true)},
			{CreatedAt: day(2), Title: ptr("read")},
		},
		MiniSessions: []MiniSession{
			{CreatedAt: day(1), Mood: ptr(7.0), Anxiety: ptr(42.0)},
			{CreatedAt: day(2)},
		},
	}

	n, diag := Normalize(testWindow(), snap)

	require.Len(t, n.Journal, 2)
	assert.Equal(t, "first", n.Journal[0].Body)
	assert.Equal(t, "calm", n.Journal[1].Tag)
	assert.Len(t, n.Conversations, 1)

	texts := n.Texts()
	require.Len(t, texts, 3)
	assert.Equal(t, SourceConversation, texts[2].Source)

	require.Len(t, n.Goals, 2)
	assert.True(t, n.Goals[0].Completed)
	assert.False(t, n.Goals[1].Completed)

	require.Len(t, n.MiniSessions, 1)
	assert.Nil(t, n.MiniSessions[0].Anxiety, "off-scale dimension is discarded")
	assert.Equal(t, 2, diag.Total())
}

func TestNormalizeNilSnapshot(t *testing.T) {
	n, diag := Normalize(testWindow(), nil)
	require.NotNil(t, n)
	assert.Empty(t, n.Mood)
	assert.Zero(t, diag.Total())
}

func TestAssessmentTypeOf(t *testing.T) {
	tests := map[string]AssessmentType{
		"PHQ-9":   PHQ9,
		"gad_7":   GAD7,
		"pcl 5":   PCL5,
		"Audit-C": AUDITC,
		"":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, AssessmentTypeOf(in), in)
	}
}
