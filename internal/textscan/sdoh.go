package textscan

import (
	"fmt"
	"unicode/utf8"

	"carepulse/internal/finding"
	"carepulse/internal/record"
)

// ScanSDOH returns one flag per (category, term) pair found anywhere in
// entries. The first match wins and supplies the context; flags are ordered
// by entry order, then taxonomy order.
func (s *Scanner) ScanSDOH(entries []record.TextEntry) []finding.Flag {
	type key struct{ category, term string }
	seen := make(map[key]bool)
	var flags []finding.Flag

	for _, e := range entries {
		p, ok := prepare(e.Body)
		if !ok {
			continue
		}
		for _, c := range s.sdoh {
			k := key{c.category, c.folded}
			if seen[k] {
				continue
			}
			at := p.find(c)
			if at < 0 {
				continue
			}
			seen[k] = true
			flags = append(flags, finding.Flag{
				Kind:     finding.KindSDOH,
				Rule:     "sdoh_keyword",
				Category: c.category,
				Detail:   fmt.Sprintf("%q mentioned in %s", c.term, sourceLabel(e.Source)),
				Context:  p.snippet(at, utf8.RuneCountInString(c.folded)),
				Priority: c.priority,
			})
		}
	}
	return flags
}

func sourceLabel(source string) string {
	switch source {
	case record.SourceJournal:
		return "journal entry"
	case record.SourceConversation:
		return "conversation summary"
	case record.SourceMoodNote:
		return "mood note"
	case "":
		return "text entry"
	default:
		return source
	}
}
