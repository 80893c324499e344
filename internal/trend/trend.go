// Package trend classifies the direction of numeric series and computes
// consecutive-day engagement streaks.
package trend

import "errors"

// Direction is the classified movement of a series.
type Direction string

const (
	Improving Direction = "improving"
	Stable    Direction = "stable"
	Declining Direction = "declining"
)

// DefaultThreshold is the minimum half-to-half mean difference, on a 0-10
// scale, that counts as movement.
const DefaultThreshold = 0.5

// MinPoints is the shortest series that can be classified as anything
// other than stable.
const MinPoints = 4

// ErrNegativeThreshold is returned by NewClassifier for thresholds below zero.
var ErrNegativeThreshold = errors.New("trend: threshold must not be negative")

// Classifier labels series with a fixed threshold.
type Classifier struct {
	threshold float64
}

// NewClassifier returns a Classifier using threshold.
func NewClassifier(threshold float64) (Classifier, error) {
	if threshold < 0 {
		return Classifier{}, ErrNegativeThreshold
	}
	return Classifier{threshold: threshold}, nil
}

// Threshold returns the configured threshold.
func (c Classifier) Threshold() float64 { return c.threshold }

// Classify labels an ordered series. The first half receives the extra
// element of an odd-length series.
func (c Classifier) Classify(values []float64) Direction {
	return Classify(values, c.threshold)
}

// Classify compares the mean of the first half of values against the mean
// of the second half. Series shorter than MinPoints are always Stable.
func Classify(values []float64, threshold float64) Direction {
	if len(values) < MinPoints {
		return Stable
	}

	split := (len(values) + 1) / 2
	first := mean(values[:split])
	second := mean(values[split:])

	switch {
	case second-first > threshold:
		return Improving
	case first-second > threshold:
		return Declining
	default:
		return Stable
	}
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
