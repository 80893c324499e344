package textscan

import (
	"time"
	"unicode/utf8"

	"carepulse/internal/record"
)

// DirectCategory labels detections from the direct term list.
const DirectCategory = "direct"

// RiskLevel is the three-tier harm-risk classification.
type RiskLevel string

const (
	RiskNone         RiskLevel = "none"
	RiskIndirectOnly RiskLevel = "indirect-only"
	RiskElevated     RiskLevel = "elevated"
)

// Detection is one harm-risk keyword match with its evidence.
type Detection struct {
	Term      string    `json:"term"`
	Category  string    `json:"category"`
	Direct    bool      `json:"direct"`
	Context   string    `json:"context"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// HRSResult is the outcome of a harm-risk scan.
type HRSResult struct {
	RiskLevel RiskLevel   `json:"risk_level"`
	Direct    []Detection `json:"direct,omitempty"`
	Indirect  []Detection `json:"indirect,omitempty"`
}

// IndirectCategories lists the categories of indirect detections in
// first-seen order.
func (r HRSResult) IndirectCategories() []string {
	var out []string
	seen := make(map[string]bool)
	for _, d := range r.Indirect {
		if !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	return out
}

// ScanHRS classifies harm-risk language across entries.
//
// Every direct match is kept, one per (entry, term), with no cap: a single
// direct match anywhere sets the level to elevated. Indirect matches are
// deduplicated on (category, term), keeping the first.
func (s *Scanner) ScanHRS(entries []record.TextEntry) HRSResult {
	type key struct{ category, term string }
	seen := make(map[key]bool)
	var result HRSResult

	for _, e := range entries {
		p, ok := prepare(e.Body)
		if !ok {
			continue
		}
		for _, c := range s.direct {
			at := p.find(c)
			if at < 0 {
				continue
			}
			result.Direct = append(result.Direct, detection(e, p, c, at, true))
		}
		for _, c := range s.indirect {
			k := key{c.category, c.folded}
			if seen[k] {
				continue
			}
			at := p.find(c)
			if at < 0 {
				continue
			}
			seen[k] = true
			result.Indirect = append(result.Indirect, detection(e, p, c, at, false))
		}
	}

	switch {
	case len(result.Direct) > 0:
		result.RiskLevel = RiskElevated
	case len(result.Indirect) > 0:
		result.RiskLevel = RiskIndirectOnly
	default:
		result.RiskLevel = RiskNone
	}
	return result
}

func detection(e record.TextEntry, p prepared, c compiled, at int, direct bool) Detection {
	return Detection{
		Term:      c.term,
		Category:  c.category,
		Direct:    direct,
		Context:   p.snippet(at, utf8.RuneCountInString(c.folded)),
		Source:    e.Source,
		Timestamp: e.Timestamp,
	}
}
