package aggregate

import (
	"sort"

	"carepulse/internal/record"
)

// AssessmentStats is the longitudinal view of clinical screenings.
type AssessmentStats struct {
	// History lists every administration, most recent first.
	History []record.AssessmentScore `json:"history"`

	// Latest holds the most recent administration per instrument. Known
	// instruments come first in record.KnownAssessmentTypes order, then
	// unknown instruments in first-seen order.
	Latest []record.AssessmentScore `json:"latest"`
}

// LatestOf returns the most recent administration of t.
func (a AssessmentStats) LatestOf(t record.AssessmentType) (record.AssessmentScore, bool) {
	for _, s := range a.Latest {
		if s.Type == t {
			return s, true
		}
	}
	return record.AssessmentScore{}, false
}

// Assessments builds the pass-through history and latest-per-type projection
// from a timestamp-ordered series.
func Assessments(scores []record.AssessmentScore) AssessmentStats {
	var stats AssessmentStats
	if len(scores) == 0 {
		return stats
	}

	stats.History = make([]record.AssessmentScore, len(scores))
	copy(stats.History, scores)
	// Reverse keeps equal-timestamp administrations in reverse input order,
	// so the later-listed one is treated as more recent.
	for i, j := 0, len(stats.History)-1; i < j; i, j = i+1, j-1 {
		stats.History[i], stats.History[j] = stats.History[j], stats.History[i]
	}
	sort.SliceStable(stats.History, func(i, j int) bool {
		return stats.History[i].Timestamp.After(stats.History[j].Timestamp)
	})

	latest := make(map[record.AssessmentType]record.AssessmentScore)
	var unknown []record.AssessmentType
	for _, s := range scores {
		if _, seen := latest[s.Type]; !seen && !s.Type.Known() {
			unknown = append(unknown, s.Type)
		}
		latest[s.Type] = s
	}

	for _, t := range record.KnownAssessmentTypes {
		if s, ok := latest[t]; ok {
			stats.Latest = append(stats.Latest, s)
		}
	}
	for _, t := range unknown {
		stats.Latest = append(stats.Latest, latest[t])
	}
	return stats
}
