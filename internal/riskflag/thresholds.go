package riskflag

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"carepulse/internal/record"
)

// ClinicalThreshold is the score at or above which an instrument raises a
// high flag. Elevated, when positive, raises the priority further.
type ClinicalThreshold struct {
	Type     string  `toml:"type" json:"type" yaml:"type"`
	High     float64 `toml:"high" json:"high" yaml:"high"`
	Elevated float64 `toml:"elevated,omitempty" json:"elevated,omitempty" yaml:"elevated,omitempty"`
}

// Thresholds are the cutoffs used by the rule table. They are data, not
// code, and ship in the rulebook.
type Thresholds struct {
	MoodLowMean     float64             `toml:"mood_low_mean" json:"mood_low_mean" yaml:"mood_low_mean"`
	MoodVeryLow     float64             `toml:"mood_very_low" json:"mood_very_low" yaml:"mood_very_low"`
	SleepQualityLow float64             `toml:"sleep_quality_low" json:"sleep_quality_low" yaml:"sleep_quality_low"`
	SleepHoursLow   float64             `toml:"sleep_hours_low" json:"sleep_hours_low" yaml:"sleep_hours_low"`
	Clinical        []ClinicalThreshold `toml:"clinical" json:"clinical" yaml:"clinical"`
}

// DefaultThresholds returns the published screening cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MoodLowMean:     4,
		MoodVeryLow:     2,
		SleepQualityLow: 3,
		SleepHoursLow:   5,
		Clinical: []ClinicalThreshold{
			{Type: string(record.PHQ9), High: 10, Elevated: 20},
			{Type: string(record.GAD7), High: 10},
			{Type: string(record.PCL5), High: 33},
			{Type: string(record.AUDITC), High: 4},
		},
	}
}

// ErrInvalidThresholds wraps every threshold validation failure.
var ErrInvalidThresholds = errors.New("riskflag: invalid thresholds")

// Validate checks that cutoffs are finite and non-negative and that each
// clinical entry names a known instrument once.
func (t Thresholds) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"mood_low_mean", t.MoodLowMean},
		{"mood_very_low", t.MoodVeryLow},
		{"sleep_quality_low", t.SleepQualityLow},
		{"sleep_hours_low", t.SleepHoursLow},
	} {
		if f.v < 0 || math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidThresholds, f.name)
		}
	}

	seen := make(map[record.AssessmentType]bool)
	for i, c := range t.Clinical {
		typ := record.AssessmentTypeOf(c.Type)
		if !typ.Known() {
			return fmt.Errorf("%w: clinical[%d]: unknown instrument %q", ErrInvalidThresholds, i, c.Type)
		}
		if seen[typ] {
			return fmt.Errorf("%w: clinical[%d]: duplicate instrument %s", ErrInvalidThresholds, i, typ)
		}
		seen[typ] = true
		if !(c.High > 0) || math.IsInf(c.High, 0) {
			return fmt.Errorf("%w: clinical[%d]: high must be positive", ErrInvalidThresholds, i)
		}
		if c.Elevated != 0 && c.Elevated < c.High {
			return fmt.Errorf("%w: clinical[%d]: elevated below high", ErrInvalidThresholds, i)
		}
	}
	return nil
}

func (t *Thresholds) clinical(typ record.AssessmentType) (ClinicalThreshold, bool) {
	for _, c := range t.Clinical {
		if record.AssessmentTypeOf(c.Type) == typ {
			return c, true
		}
	}
	return ClinicalThreshold{}, false
}

// String renders the clinical cutoffs for diagnostics.
func (t Thresholds) String() string {
	parts := make([]string, 0, len(t.Clinical))
	for _, c := range t.Clinical {
		parts = append(parts, fmt.Sprintf("%s>=%g", record.AssessmentTypeOf(c.Type), c.High))
	}
	return fmt.Sprintf("mood<%g mood<=%g sleepq<%g sleeph<%g %s",
		t.MoodLowMean, t.MoodVeryLow, t.SleepQualityLow, t.SleepHoursLow, strings.Join(parts, " "))
}
