package aggregate

import "carepulse/internal/record"

// SleepStats summarizes sleep logs. Means cover only the samples that
// recorded the dimension.
type SleepStats struct {
	Entries      int     `json:"entries"`
	QualityCount int     `json:"quality_count"`
	HoursCount   int     `json:"hours_count"`
	MeanQuality  float64 `json:"mean_quality"`
	MeanHours    float64 `json:"mean_hours"`
}

// Sleep averages quality and hours independently.
func Sleep(entries int, quality, hours []record.Sample) SleepStats {
	return SleepStats{
		Entries:      entries,
		QualityCount: len(quality),
		HoursCount:   len(hours),
		MeanQuality:  Mean(Values(quality)),
		MeanHours:    Mean(Values(hours)),
	}
}

// GoalStats summarizes goals set in the window.
type GoalStats struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}

// Goals computes completed/total, defined as 0 when no goals exist.
func Goals(goals []record.GoalRecord) GoalStats {
	stats := GoalStats{Total: len(goals)}
	for _, g := range goals {
		if g.Completed {
			stats.Completed++
		}
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total)
	}
	return stats
}

// MiniSessionStats summarizes short check-ins.
type MiniSessionStats struct {
	Count       int     `json:"count"`
	MeanMood    float64 `json:"mean_mood"`
	MeanAnxiety float64 `json:"mean_anxiety"`
	MeanEnergy  float64 `json:"mean_energy"`
}

// MiniSessions averages each dimension over the sessions that recorded it.
func MiniSessions(sessions []record.MiniSessionRecord) MiniSessionStats {
	var mood, anxiety, energy []float64
	for _, s := range sessions {
		if s.Mood != nil {
			mood = append(mood, *s.Mood)
		}
		if s.Anxiety != nil {
			anxiety = append(anxiety, *s.Anxiety)
		}
		if s.Energy != nil {
			energy = append(energy, *s.Energy)
		}
	}
	return MiniSessionStats{
		Count:       len(sessions),
		MeanMood:    Mean(mood),
		MeanAnxiety: Mean(anxiety),
		MeanEnergy:  Mean(energy),
	}
}
