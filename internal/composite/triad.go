package composite

import "math"

// Triad is the performance triad: three 0-100 sub-scores and their
// rounded mean.
type Triad struct {
	Sleep            int `json:"sleep"`
	Activity         int `json:"activity"`
	Engagement       int `json:"engagement"`
	OverallReadiness int `json:"overall_readiness"`
}

// NewTriad clamps each sub-score to 0-100 and derives OverallReadiness as
// round(mean(sleep, activity, engagement)).
func NewTriad(sleep, activity, engagement int) Triad {
	t := Triad{
		Sleep:      clampInt(sleep),
		Activity:   clampInt(activity),
		Engagement: clampInt(engagement),
	}
	t.OverallReadiness = int(math.Round(float64(t.Sleep+t.Activity+t.Engagement) / 3))
	return t
}

// TriadInputs are the aggregator outputs the triad reads.
type TriadInputs struct {
	MeanSleepHours   float64
	SleepHoursCount  int
	MeanSleepQuality float64
	SleepQualCount   int
	ActivityMinutes  float64
	ActiveDays       int
	WindowDays       int
}

// SleepScore gives half the points for hours against the target and half
// for quality against its scale.
func (w Weights) SleepScore(hoursCount int, hours float64, qualityCount int, quality float64) int {
	score := 0.0
	if hoursCount > 0 {
		score += clamp(hours/w.TargetSleepHours, 0, 1) * 50
	}
	if qualityCount > 0 {
		score += clamp(quality/w.SleepQualityScale, 0, 1) * 50
	}
	return int(math.Round(score))
}

// ActivityScore compares activity minutes with the weekly target prorated
// over the window.
func (w Weights) ActivityScore(minutes float64, windowDays int) int {
	if windowDays <= 0 {
		return 0
	}
	target := w.WeeklyActivityMinutes * float64(windowDays) / 7
	return int(math.Round(clamp(minutes/target, 0, 1) * 100))
}

// EngagementScore is the share of window days with any engagement.
func (w Weights) EngagementScore(activeDays, windowDays int) int {
	if windowDays <= 0 {
		return 0
	}
	return int(math.Round(clamp(float64(activeDays)/float64(windowDays), 0, 1) * 100))
}

// Triad computes the performance triad.
func (w Weights) Triad(in TriadInputs) Triad {
	return NewTriad(
		w.SleepScore(in.SleepHoursCount, in.MeanSleepHours, in.SleepQualCount, in.MeanSleepQuality),
		w.ActivityScore(in.ActivityMinutes, in.WindowDays),
		w.EngagementScore(in.ActiveDays, in.WindowDays),
	)
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
