package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carepulse/internal/aggregate"
	"carepulse/internal/finding"
	"carepulse/internal/record"
	"carepulse/internal/textscan"
	"carepulse/internal/trend"
)

func TestSummarize(t *testing.T) {
	in := SummaryInput{
		SubjectID:    "sub-42",
		Start:        "2024-03-01",
		End:          "2024-03-07",
		MoodCount:    5,
		MoodMean:     2.4,
		MoodTrend:    trend.Stable,
		Interactions: 5,
		RiskFlags:    2,
		HighPriority: 2,
		HRSLevel:     textscan.RiskNone,
	}

	want := "[carepulse summary v1] Subject sub-42, 2024-03-01 to 2024-03-07. " +
		"Average mood 2.4/10 (stable). 5 total interactions. 2 risk flags (2 high priority). " +
		"Harm-risk signals: none. Top themes: none recorded."
	assert.Equal(t, want, Summarize(in))
	assert.Equal(t, Summarize(in), Summarize(in))
}

func TestSummarizeVariants(t *testing.T) {
	s := Summarize(SummaryInput{
		SubjectID: "a", Start: "2024-01-01", End: "2024-01-31",
		HRSLevel: textscan.RiskElevated,
		Themes:   []string{"anxious", "tired", "hopeful"},
	})
	assert.Contains(t, s, "No mood data recorded.")
	assert.Contains(t, s, "Harm-risk signals: elevated.")
	assert.Contains(t, s, "Top themes: anxious, tired, hopeful.")
	assert.False(t, strings.Contains(s, "  "), "single-space joined")

	s = Summarize(SummaryInput{SubjectID: "a", Start: "x", End: "y"})
	assert.Contains(t, s, "Harm-risk signals: none.")
}

func sampleReport() *Report {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	r := &Report{
		SubjectID:       "sub-42",
		Window:          record.TimeWindow{Start: start, End: start.AddDate(0, 0, 7).Add(-time.Second)},
		Timezone:        "UTC",
		RulebookVersion: "2024.1",
		Mood: aggregate.Mood([]record.Sample{
			{Timestamp: start, Value: 6}, {Timestamp: start.AddDate(0, 0, 1), Value: 3},
		}),
		MoodTrend: trend.Stable,
		Journal: aggregate.JournalStats{EntryCount: 4, TopTags: []aggregate.TagCount{
			{Tag: "tired", Count: 2}, {Tag: "calm", Count: 1}, {Tag: "hopeful", Count: 1}, {Tag: "sad", Count: 1},
		}},
		RiskFlags: []finding.Flag{
			{Kind: finding.KindRisk, Rule: "mood_declining", Category: "Mood", Detail: "down", Priority: finding.PriorityModerate},
			{Kind: finding.KindRisk, Rule: "clinical_phq9", Category: "Clinical", Detail: "phq", Priority: finding.PriorityHigh},
		},
		SDOHFlags: []finding.Flag{
			{Kind: finding.KindSDOH, Category: "Financial", Detail: `"bills" mentioned in journal entry`, Context: "keep up with bills", Priority: finding.PriorityHigh},
		},
		HRS: textscan.HRSResult{
			RiskLevel: textscan.RiskIndirectOnly,
			Indirect:  []textscan.Detection{{Term: "hopeless", Category: "hopelessness", Context: "felt hopeless", Source: "journal", Timestamp: start}},
		},
		TotalInteractions: 6,
		SummaryVersion:    SummaryVersion,
	}
	r.Summary = Summarize(SummaryInputOf(r))
	r.ID = NewID(r.SubjectID, r.Window, r.Summary)
	return r
}

func TestSummaryInputOf(t *testing.T) {
	r := sampleReport()
	in := SummaryInputOf(r)
	assert.Equal(t, "2024-03-01", in.Start)
	assert.Equal(t, "2024-03-07", in.End)
	assert.Equal(t, 1, in.HighPriority)
	assert.Equal(t, []string{"tired", "calm", "hopeful"}, in.Themes)
	assert.Contains(t, r.Summary, "Average mood 4.5/10 (stable).")
	assert.Contains(t, r.Summary, "2 risk flags (1 high priority).")
}

func TestNewID(t *testing.T) {
	r := sampleReport()
	id, err := uuid.Parse(r.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), id.Version())

	assert.Equal(t, r.ID, NewID(r.SubjectID, r.Window, r.Summary))
	assert.NotEqual(t, r.ID, NewID("other", r.Window, r.Summary))
	assert.NotEqual(t, r.ID, NewID(r.SubjectID, r.Window, r.Summary+" "))
}

func TestMarshalDeterministic(t *testing.T) {
	a, err := Marshal(sampleReport())
	require.NoError(t, err)
	b, err := Marshal(sampleReport())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	back, err := Unmarshal(a)
	require.NoError(t, err)
	assert.Equal(t, sampleReport().Summary, back.Summary)
	assert.Equal(t, sampleReport().RiskFlags, back.RiskFlags)

	_, err = Marshal(nil)
	assert.Error(t, err)
	_, err = Unmarshal([]byte("{"))
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))
	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "}\n"))
	assert.Contains(t, out, `"summary_version": "v1"`)
	assert.Contains(t, out, `"detail": "\"bills\" mentioned in journal entry"`)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, sampleReport())
	out := buf.String()

	for _, want := range []string{
		"BEHAVIORAL WELLNESS SUMMARY",
		"Subject:        sub-42",
		"RISK FLAGS",
		"[ ! ] Clinical: phq",
		"SOCIAL DETERMINANTS",
		"Context: keep up with bills",
		"Level:          INDIRECT-ONLY",
		"[carepulse summary v1]",
	} {
		assert.Contains(t, out, want)
	}

	buf.Reset()
	Print(&buf, nil)
	assert.Equal(t, "No report data available\n", buf.String())
}

func TestFormatMetricBar(t *testing.T) {
	assert.Equal(t, "[##########----------]", FormatMetricBar(5, 0, 10, 20))
	assert.Equal(t, "[####]", FormatMetricBar(50, 0, 10, 4))
	assert.Equal(t, "[----]", FormatMetricBar(-1, 0, 10, 4))
	assert.Equal(t, "----", FormatMetricBar(1, 1, 1, 4))
	assert.Equal(t, "", FormatMetricBar(1, 0, 1, 0))
}
