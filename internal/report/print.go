package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"carepulse/internal/finding"
	"carepulse/internal/textscan"
	"carepulse/internal/trend"
)

// Print writes a human-readable review of r to w. The layout is for
// terminals only; the versioned Summary is the stable artifact.
func Print(w io.Writer, r *Report) {
	if r == nil {
		fmt.Fprintln(w, "No report data available")
		return
	}
	loc := location(r.Timezone)

	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "                  BEHAVIORAL WELLNESS SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Subject:        %s\n", r.SubjectID)
	fmt.Fprintf(w, "Window:         %s to %s (%s)\n",
		r.Window.Start.In(loc).Format(dateLayout), r.Window.End.In(loc).Format(dateLayout), loc)
	fmt.Fprintf(w, "Report ID:      %s\n", r.ID)
	fmt.Fprintf(w, "Rulebook:       %s\n", r.RulebookVersion)
	fmt.Fprintf(w, "Interactions:   %d\n", r.TotalInteractions)
	if len(r.DegradedSources) > 0 {
		fmt.Fprintf(w, "Degraded:       %s (no data used)\n", strings.Join(r.DegradedSources, ", "))
	}
	if n := r.Diagnostics.Total(); n > 0 {
		fmt.Fprintf(w, "Dropped:        %d record(s)\n", n)
	}
	fmt.Fprintln(w)

	section(w, "MOOD")
	if r.Mood.HasData() {
		fmt.Fprintf(w, "Average:        %.1f  %s\n", r.Mood.Mean, FormatMetricBar(r.Mood.Mean, 0, 10, 20))
		fmt.Fprintf(w, "Range:          %.0f (%s) to %.0f (%s)\n",
			r.Mood.Min, r.Mood.LowestAt.In(loc).Format(dateLayout),
			r.Mood.Max, r.Mood.HighestAt.In(loc).Format(dateLayout))
		fmt.Fprintf(w, "Check-ins:      %d\n", r.Mood.Count)
		fmt.Fprintf(w, "  -> %s\n\n", interpretTrend(r.MoodTrend))
	} else {
		fmt.Fprintln(w, "No mood data recorded.")
		fmt.Fprintln(w)
	}

	section(w, "ENGAGEMENT")
	fmt.Fprintf(w, "Current streak: %d day(s)   Longest: %d   Active days: %d\n",
		r.Streak.Current, r.Streak.Longest, r.Streak.ActiveDays)
	fmt.Fprintf(w, "Activities:     %d (%.0f min)", r.Activities.Total, r.Activities.TotalMinutes)
	if r.Activities.MostUsed != "" {
		fmt.Fprintf(w, ", mostly %s", r.Activities.MostUsed)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Toolkit:        %d session(s), %d tool(s)\n", r.Toolkit.Total, r.Toolkit.Distinct())
	fmt.Fprintf(w, "Journal:        %d entr%s", r.Journal.EntryCount, plural(r.Journal.EntryCount, "y", "ies"))
	if themes := r.TopThemes(); len(themes) > 0 {
		fmt.Fprintf(w, ", themes: %s", strings.Join(themes, ", "))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Conversations:  %d\n", r.Conversations)
	fmt.Fprintf(w, "Goals:          %d of %d completed\n", r.Goals.Completed, r.Goals.Total)
	if r.MiniSessions.Count > 0 {
		fmt.Fprintf(w, "Check-ins:      %d (mood %.1f, anxiety %.1f, energy %.1f)\n",
			r.MiniSessions.Count, r.MiniSessions.MeanMood, r.MiniSessions.MeanAnxiety, r.MiniSessions.MeanEnergy)
	}
	fmt.Fprintf(w, "Badges:         %d   Workshops: %d\n", r.Badges.Count, r.Workshops.Count)
	fmt.Fprintln(w)

	section(w, "SLEEP")
	if r.Sleep.Entries > 0 {
		if r.Sleep.QualityCount > 0 {
			fmt.Fprintf(w, "Quality:        %.1f/5  %s\n", r.Sleep.MeanQuality, FormatMetricBar(r.Sleep.MeanQuality, 0, 5, 20))
		}
		if r.Sleep.HoursCount > 0 {
			fmt.Fprintf(w, "Hours:          %.1f  %s\n", r.Sleep.MeanHours, FormatMetricBar(r.Sleep.MeanHours, 0, 12, 20))
		}
	} else {
		fmt.Fprintln(w, "No sleep data recorded.")
	}
	fmt.Fprintln(w)

	if len(r.Assessments.Latest) > 0 {
		section(w, "ASSESSMENTS (LATEST)")
		for _, a := range r.Assessments.Latest {
			fmt.Fprintf(w, "%-8s %4.0f  %s", a.Type, a.Score, a.Timestamp.In(loc).Format(dateLayout))
			if a.Severity != "" {
				fmt.Fprintf(w, "  %s", a.Severity)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	section(w, "COMPOSITE SCORES")
	fmt.Fprintf(w, "Resilience:     %3.0f  %s\n", r.Resilience.Value, FormatMetricBar(r.Resilience.Value, 0, 100, 20))
	for _, c := range r.Resilience.Components {
		fmt.Fprintf(w, "  %-24s %5.1f / %.0f\n", c.Factor, c.Score, c.Max)
	}
	fmt.Fprintf(w, "Readiness:      %3d  %s\n", r.Triad.OverallReadiness, FormatMetricBar(float64(r.Triad.OverallReadiness), 0, 100, 20))
	fmt.Fprintf(w, "  sleep %d, activity %d, engagement %d\n", r.Triad.Sleep, r.Triad.Activity, r.Triad.Engagement)
	fmt.Fprintln(w)

	printFlags(w, "RISK FLAGS", r.RiskFlags)
	printFlags(w, "SOCIAL DETERMINANTS", r.SDOHFlags)

	section(w, "HARM-RISK SCREEN")
	fmt.Fprintf(w, "Level:          %s\n", strings.ToUpper(string(r.HRS.RiskLevel)))
	for _, d := range append(append([]textscan.Detection(nil), r.HRS.Direct...), r.HRS.Indirect...) {
		fmt.Fprintf(w, "  [%s] %q in %s, %s\n", d.Category, d.Term, d.Source, d.Timestamp.In(loc).Format(time.RFC3339))
		fmt.Fprintf(w, "     Context: %s\n", d.Context)
	}
	fmt.Fprintln(w)

	if len(r.Recommendations) > 0 {
		section(w, "RECOMMENDATIONS")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "- %s\n", rec.Text)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, r.Summary)
	fmt.Fprintln(w, strings.Repeat("=", 72))
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w, strings.Repeat("-", 72))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", 72))
}

func printFlags(w io.Writer, title string, flags []finding.Flag) {
	if len(flags) == 0 {
		return
	}
	section(w, title)
	for i, f := range flags {
		fmt.Fprintf(w, "%d. [%s] %s: %s\n", i+1, priorityMarker(f.Priority), f.Category, f.Detail)
		if f.Context != "" {
			fmt.Fprintf(w, "   Context: %s\n", f.Context)
		}
	}
	fmt.Fprintln(w)
}

// FormatMetricBar produces an ASCII bar for a value between min and max.
func FormatMetricBar(value, min, max float64, width int) string {
	if width <= 0 {
		return ""
	}
	if max <= min {
		return strings.Repeat("-", width)
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	filled := int(normalized * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func interpretTrend(d trend.Direction) string {
	switch d {
	case trend.Improving:
		return "Improving: later check-ins are higher than earlier ones"
	case trend.Declining:
		return "Declining: later check-ins are lower than earlier ones"
	default:
		return "Stable: no meaningful change across the period"
	}
}

func priorityMarker(p finding.Priority) string {
	switch p {
	case finding.PriorityElevated:
		return "!!!"
	case finding.PriorityHigh:
		return " ! "
	case finding.PriorityModerate:
		return " ~ "
	default:
		return " i "
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// location resolves a timezone name, falling back to UTC.
func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
