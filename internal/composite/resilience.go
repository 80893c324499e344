package composite

import "math"

// ResilienceInputs are the aggregator outputs the index reads.
type ResilienceInputs struct {
	CurrentStreak  int
	DistinctTools  int
	MoodCount      int
	MoodStdDev     float64
	CompletionRate float64
	SleepSamples   int
	MeanSleep      float64
}

// EngagementConsistency scales the current streak linearly until the
// target length, where it reaches the cap.
func (w Weights) EngagementConsistency(streak int) float64 {
	return clamp(float64(streak)*w.EngagementMax/w.StreakTargetDays, 0, w.EngagementMax)
}

// ToolDiversity awards fixed points per distinct tool used.
func (w Weights) ToolDiversity(distinct int) float64 {
	return clamp(float64(distinct)*w.PointsPerTool, 0, w.DiversityMax)
}

// MoodStability falls linearly from the cap at zero spread to 0 at
// StabilitySpread. No mood data scores 0.
func (w Weights) MoodStability(count int, stddev float64) float64 {
	if count == 0 {
		return 0
	}
	return clamp(w.StabilityMax*(1-stddev/w.StabilitySpread), 0, w.StabilityMax)
}

// GoalAchievement scales the completion rate to the cap.
func (w Weights) GoalAchievement(rate float64) float64 {
	return clamp(rate*w.GoalsMax, 0, w.GoalsMax)
}

// SleepQuality scales mean sleep quality to the cap. No sleep data scores 0.
func (w Weights) SleepQuality(samples int, mean float64) float64 {
	if samples == 0 {
		return 0
	}
	return clamp(mean/w.SleepQualityScale*w.SleepMax, 0, w.SleepMax)
}

// Resilience computes the resilience index from its five factors.
func (w Weights) Resilience(in ResilienceInputs) Score {
	components := []Component{
		{Factor: FactorEngagement, Score: w.EngagementConsistency(in.CurrentStreak), Max: w.EngagementMax},
		{Factor: FactorDiversity, Score: w.ToolDiversity(in.DistinctTools), Max: w.DiversityMax},
		{Factor: FactorStability, Score: w.MoodStability(in.MoodCount, in.MoodStdDev), Max: w.StabilityMax},
		{Factor: FactorGoals, Score: w.GoalAchievement(in.CompletionRate), Max: w.GoalsMax},
		{Factor: FactorSleep, Score: w.SleepQuality(in.SleepSamples, in.MeanSleep), Max: w.SleepMax},
	}
	sum := 0.0
	for i := range components {
		components[i].Score = round2(components[i].Score)
		sum += components[i].Score
	}
	return Score{Name: "resilience_index", Value: math.Round(sum), Components: components}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
