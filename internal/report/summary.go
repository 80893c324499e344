package report

import (
	"fmt"
	"strings"

	"carepulse/internal/textscan"
	"carepulse/internal/trend"
)

// SummaryVersion identifies the summary template. Downstream consumers
// depend on the exact wording; any change to Summarize needs a new version.
const SummaryVersion = "v1"

const dateLayout = "2006-01-02"

// SummaryInput is everything the summary template reads.
type SummaryInput struct {
	SubjectID    string
	Start, End   string // YYYY-MM-DD in the reporting timezone
	MoodCount    int
	MoodMean     float64
	MoodTrend    trend.Direction
	Interactions int
	RiskFlags    int
	HighPriority int
	HRSLevel     textscan.RiskLevel
	Themes       []string
}

// Summarize renders the version 1 summary. Identical input always yields
// byte-identical output.
func Summarize(in SummaryInput) string {
	lines := make([]string, 0, 5)

	lines = append(lines, fmt.Sprintf("[carepulse summary %s] Subject %s, %s to %s.",
		SummaryVersion, in.SubjectID, in.Start, in.End))

	if in.MoodCount > 0 {
		lines = append(lines, fmt.Sprintf("Average mood %.1f/10 (%s).", in.MoodMean, in.MoodTrend))
	} else {
		lines = append(lines, "No mood data recorded.")
	}

	lines = append(lines, fmt.Sprintf("%d total interactions. %d risk flags (%d high priority).",
		in.Interactions, in.RiskFlags, in.HighPriority))

	level := in.HRSLevel
	if level == "" {
		level = textscan.RiskNone
	}
	lines = append(lines, fmt.Sprintf("Harm-risk signals: %s.", level))

	if len(in.Themes) > 0 {
		lines = append(lines, fmt.Sprintf("Top themes: %s.", strings.Join(in.Themes, ", ")))
	} else {
		lines = append(lines, "Top themes: none recorded.")
	}

	return strings.Join(lines, " ")
}

// SummaryInputOf collects the template inputs from an assembled report.
func SummaryInputOf(r *Report) SummaryInput {
	loc := location(r.Timezone)
	return SummaryInput{
		SubjectID:    r.SubjectID,
		Start:        r.Window.Start.In(loc).Format(dateLayout),
		End:          r.Window.End.In(loc).Format(dateLayout),
		MoodCount:    r.Mood.Count,
		MoodMean:     r.Mood.Mean,
		MoodTrend:    r.MoodTrend,
		Interactions: r.TotalInteractions,
		RiskFlags:    len(r.RiskFlags),
		HighPriority: r.HighPriorityCount(),
		HRSLevel:     r.HRS.RiskLevel,
		Themes:       r.TopThemes(),
	}
}
