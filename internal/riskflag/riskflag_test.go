package riskflag

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carepulse/internal/aggregate"
	"carepulse/internal/finding"
	"carepulse/internal/record"
	"carepulse/internal/textscan"
	"carepulse/internal/trend"
)

var day0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func moodSeries(values ...float64) aggregate.MoodStats {
	samples := make([]record.Sample, len(values))
	for i, v := range values {
		samples[i] = record.Sample{Timestamp: day0.AddDate(0, 0, i), Value: v}
	}
	return aggregate.Mood(samples)
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultThresholds(), nil)
	require.NoError(t, err)
	return e
}

func rulesOf(flags []finding.Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = f.Rule
	}
	return out
}

func TestEvaluateLowMoodScenario(t *testing.T) {
	// Mood 2,3,2,3,2 over five days, nothing else.
	in := Inputs{
		Mood:      moodSeries(2, 3, 2, 3, 2),
		MoodTrend: trend.Stable,
		Streak:    trend.Streak{Current: 5, Longest: 5, ActiveDays: 5},
		HRS:       textscan.HRSResult{RiskLevel: textscan.RiskNone},
	}
	require.Equal(t, trend.Stable, trend.Classify(in.Mood.Values(), trend.DefaultThreshold))

	flags := newEngine(t).Evaluate(in)

	assert.Equal(t, []string{RuleMoodLowMean, RuleMoodVeryLow}, rulesOf(flags))
	for _, f := range flags {
		assert.Equal(t, finding.PriorityHigh, f.Priority)
		assert.Equal(t, finding.KindRisk, f.Kind)
	}
	assert.Equal(t, 2, finding.CountHigh(flags))
}

func TestEvaluateHRSDirectAlwaysFirst(t *testing.T) {
	in := Inputs{
		Mood:      moodSeries(8, 7, 3, 1),
		MoodTrend: trend.Declining,
		Streak:    trend.Streak{Current: 0, Longest: 3, ActiveDays: 4},
		Sleep:     aggregate.SleepStats{Entries: 2, QualityCount: 2, MeanQuality: 2, HoursCount: 2, MeanHours: 4},
		HRS: textscan.HRSResult{
			RiskLevel: textscan.RiskElevated,
			Direct:    []textscan.Detection{{Term: "end it all", Category: textscan.DirectCategory, Direct: true, Context: "I want to end it all."}},
			Indirect:  []textscan.Detection{{Term: "hopeless", Category: "hopelessness", Context: "hopeless"}},
		},
	}

	flags := newEngine(t).Evaluate(in)

	require.NotEmpty(t, flags)
	assert.Equal(t, RuleHRSDirect, flags[0].Rule)
	assert.Equal(t, finding.PriorityElevated, flags[0].Priority)
	assert.Equal(t, finding.KindHRS, flags[0].Kind)
	assert.Equal(t, "I want to end it all.", flags[0].Context)
	assert.Equal(t, []string{
		RuleHRSDirect, RuleMoodDeclining, RuleMoodVeryLow, RuleStreakBroken,
		RuleSleepQualityLow, RuleSleepHoursLow,
	}, rulesOf(flags), "indirect rule is skipped once direct fired")
}

func TestEvaluateIndirectOnly(t *testing.T) {
	in := Inputs{HRS: textscan.HRSResult{
		RiskLevel: textscan.RiskIndirectOnly,
		Indirect: []textscan.Detection{
			{Term: "hopeless", Category: "hopelessness", Context: "feeling hopeless"},
			{Term: "no way out", Category: "entrapment", Context: "no way out"},
		},
	}}

	flags := newEngine(t).Evaluate(in)

	require.Len(t, flags, 1)
	assert.Equal(t, RuleHRSIndirect, flags[0].Rule)
	assert.Equal(t, finding.PriorityModerate, flags[0].Priority)
	assert.Contains(t, flags[0].Detail, "2 categories")
}

func TestEvaluateClinical(t *testing.T) {
	var logs bytes.Buffer
	e, err := New(DefaultThresholds(), slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)

	stats := aggregate.Assessments([]record.AssessmentScore{
		{Type: record.PHQ9, Score: 8, Timestamp: day0},
		{Type: record.PHQ9, Score: 22, Timestamp: day0.AddDate(0, 0, 3), Severity: "severe"},
		{Type: record.GAD7, Score: 12, Timestamp: day0.AddDate(0, 0, 1)},
		{Type: record.PCL5, Score: 20, Timestamp: day0.AddDate(0, 0, 1)},
		{Type: record.AUDITC, Score: 4, Timestamp: day0.AddDate(0, 0, 2)},
		{Type: "K10", Score: 40, Timestamp: day0.AddDate(0, 0, 2)},
	})

	flags := e.Evaluate(Inputs{Assessments: stats})

	assert.Equal(t, []string{"clinical_phq9", "clinical_gad7", "clinical_auditc"}, rulesOf(flags))
	assert.Equal(t, finding.PriorityElevated, flags[0].Priority)
	assert.Contains(t, flags[0].Detail, "(severe)")
	assert.Equal(t, finding.PriorityHigh, flags[1].Priority)
	assert.Contains(t, logs.String(), "K10", "unknown types are logged, not flagged")
}

func TestEvaluateNoData(t *testing.T) {
	flags := newEngine(t).Evaluate(Inputs{HRS: textscan.HRSResult{RiskLevel: textscan.RiskNone}})
	assert.Empty(t, flags)
}

func TestEvaluateBoundaries(t *testing.T) {
	e := newEngine(t)

	assert.Empty(t, e.Evaluate(Inputs{Mood: moodSeries(4, 4, 4)}), "mean exactly at cutoff is not low")
	assert.Equal(t, []string{RuleMoodLowMean, RuleMoodVeryLow},
		rulesOf(e.Evaluate(Inputs{Mood: moodSeries(2, 2, 2)})), "min exactly at cutoff is very low")
	assert.Empty(t, e.Evaluate(Inputs{Sleep: aggregate.SleepStats{QualityCount: 1, MeanQuality: 3, HoursCount: 1, MeanHours: 5}}))
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	tests := []struct {
		name   string
		mutate func(*Thresholds)
	}{
		{"negative mood", func(th *Thresholds) { th.MoodLowMean = -1 }},
		{"unknown instrument", func(th *Thresholds) { th.Clinical[0].Type = "K10" }},
		{"duplicate instrument", func(th *Thresholds) { th.Clinical[1].Type = "phq-9" }},
		{"zero high", func(th *Thresholds) { th.Clinical[2].High = 0 }},
		{"elevated below high", func(th *Thresholds) { th.Clinical[0].Elevated = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			assert.ErrorIs(t, th.Validate(), ErrInvalidThresholds)
			_, err := New(th, nil)
			assert.Error(t, err)
		})
	}
}

func TestRecommend(t *testing.T) {
	all := Recommend(Engagement{})
	require.Len(t, all, 8)
	assert.Equal(t, "set_goals", all[0].Code)
	assert.Equal(t, "restart_streak", all[7].Code)

	none := Recommend(Engagement{
		Goals: 1, JournalEntries: 2, ToolkitUses: 1, MoodEntries: 3,
		SleepEntries: 1, Assessments: 1, Workshops: 1, CurrentStreak: 2,
	})
	assert.Empty(t, none)

	some := Recommend(Engagement{Goals: 1, JournalEntries: 1, ToolkitUses: 1, MoodEntries: 2,
		SleepEntries: 1, Assessments: 1, Workshops: 1, CurrentStreak: 1})
	require.Len(t, some, 1)
	assert.Equal(t, "track_mood", some[0].Code)
}
