// Package aggregate reduces normalized per-domain series to domain statistics.
//
// Every function here is pure: no clock, no I/O, no shared state. Empty
// input always yields zero-valued statistics rather than an error.
package aggregate

import (
	"math"
	"time"

	"carepulse/internal/record"
)

// MoodStats summarizes mood samples over the window.
type MoodStats struct {
	Series []record.Sample `json:"series"`
	Count  int             `json:"count"`
	Mean   float64         `json:"mean"`
	StdDev float64         `json:"std_dev"`
	Min    float64         `json:"min"`
	Max    float64         `json:"max"`

	// HighestAt and LowestAt are the timestamps of the first sample holding
	// the max and min values respectively.
	HighestAt time.Time `json:"highest_at"`
	LowestAt  time.Time `json:"lowest_at"`
}

// HasData reports whether any mood sample was recorded.
func (m MoodStats) HasData() bool { return m.Count > 0 }

// Values returns the series values in order.
func (m MoodStats) Values() []float64 {
	return Values(m.Series)
}

// Mood computes mood statistics. The series must already be ordered by
// timestamp; argmax/argmin ties resolve to the earliest sample.
func Mood(samples []record.Sample) MoodStats {
	stats := MoodStats{Series: append([]record.Sample(nil), samples...), Count: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	stats.Min, stats.Max = samples[0].Value, samples[0].Value
	stats.HighestAt, stats.LowestAt = samples[0].Timestamp, samples[0].Timestamp
	for _, s := range samples[1:] {
		if s.Value > stats.Max {
			stats.Max = s.Value
			stats.HighestAt = s.Timestamp
		}
		if s.Value < stats.Min {
			stats.Min = s.Value
			stats.LowestAt = s.Timestamp
		}
	}

	values := Values(samples)
	stats.Mean = Mean(values)
	stats.StdDev = StdDev(values)
	return stats
}

// Values extracts sample values in order.
func Values(samples []record.Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation, or 0 for fewer than two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}
