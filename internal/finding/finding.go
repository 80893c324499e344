// Package finding defines the derived findings attached to a report.
package finding

import (
	"fmt"
	"strings"
)

// Kind identifies which component raised a flag.
type Kind string

const (
	KindRisk Kind = "risk"
	KindSDOH Kind = "sdoh"
	KindHRS  Kind = "hrs"
)

// Priority orders flags for human review.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityModerate Priority = "moderate"
	PriorityHigh     Priority = "high"
	PriorityElevated Priority = "elevated"
)

// ParsePriority accepts a priority name in any case.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityModerate, PriorityHigh, PriorityElevated:
		return p, nil
	default:
		return "", fmt.Errorf("finding: unknown priority %q", s)
	}
}

// Rank orders priorities from low (1) to elevated (4); unknown is 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityModerate:
		return 2
	case PriorityHigh:
		return 3
	case PriorityElevated:
		return 4
	default:
		return 0
	}
}

// IsHigh reports whether p is high or elevated.
func (p Priority) IsHigh() bool { return p.Rank() >= PriorityHigh.Rank() }

// Flag is a single finding. Flags are recomputed on every build and never stored on their own.
type Flag struct {
	Kind     Kind     `json:"kind"`
	Rule     string   `json:"rule,omitempty"`
	Category string   `json:"category"`
	Detail   string   `json:"detail"`
	Context  string   `json:"context,omitempty"`
	Priority Priority `json:"priority"`
}

// CountHigh returns how many flags are high or elevated priority.
func CountHigh(flags []Flag) int {
	n := 0
	for _, f := range flags {
		if f.Priority.IsHigh() {
			n++
		}
	}
	return n
}
