// Package composite combines domain statistics into 0-100 indices.
//
// Each factor is a pure function of one or two aggregator outputs so it can
// be checked on its own. Caps and scales come from Weights.
package composite

import (
	"errors"
	"math"
)

// Component is one bounded factor of a composite score.
type Component struct {
	Factor string  `json:"factor"`
	Score  float64 `json:"score"`
	Max    float64 `json:"max"`
}

// Score is a named composite index. Value never exceeds the sum of the
// component maxima, which is 100 for the default weights.
type Score struct {
	Name       string      `json:"name"`
	Value      float64     `json:"value"`
	Components []Component `json:"components"`
}

// Max returns the sum of the component maxima.
func (s Score) Max() float64 {
	total := 0.0
	for _, c := range s.Components {
		total += c.Max
	}
	return total
}

// Resilience factor names.
const (
	FactorEngagement = "engagement_consistency"
	FactorDiversity  = "tool_diversity"
	FactorStability  = "mood_stability"
	FactorGoals      = "goal_achievement"
	FactorSleep      = "sleep_quality"
)

// Weights holds the caps and linear scales of every factor.
type Weights struct {
	EngagementMax     float64 `toml:"engagement_max" json:"engagement_max" yaml:"engagement_max"`
	StreakTargetDays  float64 `toml:"streak_target_days" json:"streak_target_days" yaml:"streak_target_days"`
	DiversityMax      float64 `toml:"diversity_max" json:"diversity_max" yaml:"diversity_max"`
	PointsPerTool     float64 `toml:"points_per_tool" json:"points_per_tool" yaml:"points_per_tool"`
	StabilityMax      float64 `toml:"stability_max" json:"stability_max" yaml:"stability_max"`
	StabilitySpread   float64 `toml:"stability_spread" json:"stability_spread" yaml:"stability_spread"`
	GoalsMax          float64 `toml:"goals_max" json:"goals_max" yaml:"goals_max"`
	SleepMax          float64 `toml:"sleep_max" json:"sleep_max" yaml:"sleep_max"`
	SleepQualityScale float64 `toml:"sleep_quality_scale" json:"sleep_quality_scale" yaml:"sleep_quality_scale"`

	// Performance triad targets.
	TargetSleepHours      float64 `toml:"target_sleep_hours" json:"target_sleep_hours" yaml:"target_sleep_hours"`
	WeeklyActivityMinutes float64 `toml:"weekly_activity_minutes" json:"weekly_activity_minutes" yaml:"weekly_activity_minutes"`
}

// DefaultWeights returns the standard caps: 25/20/20/15/20.
func DefaultWeights() Weights {
	return Weights{
		EngagementMax:         25,
		StreakTargetDays:      7,
		DiversityMax:          20,
		PointsPerTool:         5,
		StabilityMax:          20,
		StabilitySpread:       3,
		GoalsMax:              15,
		SleepMax:              20,
		SleepQualityScale:     5,
		TargetSleepHours:      8,
		WeeklyActivityMinutes: 150,
	}
}

// ErrInvalidWeights is returned by Validate.
var ErrInvalidWeights = errors.New("composite: weights must be positive and resilience caps must total 100")

// Validate checks that every scale is positive and the resilience caps sum to 100.
func (w Weights) Validate() error {
	for _, v := range []float64{
		w.EngagementMax, w.StreakTargetDays, w.DiversityMax, w.PointsPerTool,
		w.StabilityMax, w.StabilitySpread, w.GoalsMax, w.SleepMax,
		w.SleepQualityScale, w.TargetSleepHours, w.WeeklyActivityMinutes,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			return ErrInvalidWeights
		}
	}
	total := w.EngagementMax + w.DiversityMax + w.StabilityMax + w.GoalsMax + w.SleepMax
	if math.Abs(total-100) > 1e-9 {
		return ErrInvalidWeights
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
