// Package textscan detects social-determinant and harm-risk language in
// free-text entries using fixed keyword taxonomies.
//
// Matching is case-insensitive substring containment over NFKC-normalized
// text, with typographic apostrophes folded to ASCII. Scanning is total: any string, including empty or invalid UTF-8,
// is accepted and simply produces no match.
package textscan

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"carepulse/internal/finding"
)

// ContextRadius is the number of characters kept on each side of a match.
const ContextRadius = 30

const ellipsis = "..."

// SDOHTerm maps a keyword to a social-determinant category.
type SDOHTerm struct {
	Term     string           `json:"term"`
	Category string           `json:"category"`
	Priority finding.Priority `json:"priority"`
}

// IndirectTerm maps a keyword to an indirect harm-risk category.
type IndirectTerm struct {
	Term     string `json:"term"`
	Category string `json:"category"`
}

// HRSTaxonomy holds harm-risk keywords. Direct terms are explicit
// self-harm or suicidality language.
type HRSTaxonomy struct {
	Direct   []string       `json:"direct"`
	Indirect []IndirectTerm `json:"indirect"`
}

type compiled struct {
	term     string
	folded   string
	category string
	priority finding.Priority
}

// Scanner holds compiled taxonomies. It is immutable and safe for concurrent use.
type Scanner struct {
	sdoh     []compiled
	direct   []compiled
	indirect []compiled
}

// NewScanner compiles the taxonomies. Terms that are empty after
// normalization can never match and are skipped.
func NewScanner(sdoh []SDOHTerm, hrs HRSTaxonomy) *Scanner {
	s := &Scanner{}
	for _, t := range sdoh {
		if c, ok := compile(t.Term, t.Category, t.Priority); ok {
			s.sdoh = append(s.sdoh, c)
		}
	}
	for _, t := range hrs.Direct {
		if c, ok := compile(t, DirectCategory, finding.PriorityElevated); ok {
			s.direct = append(s.direct, c)
		}
	}
	for _, t := range hrs.Indirect {
		if c, ok := compile(t.Term, t.Category, finding.PriorityModerate); ok {
			s.indirect = append(s.indirect, c)
		}
	}
	return s
}

func compile(term, category string, priority finding.Priority) (compiled, bool) {
	folded := string(fold([]rune(norm.NFKC.String(strings.TrimSpace(term)))))
	if folded == "" {
		return compiled{}, false
	}
	return compiled{term: term, folded: folded, category: category, priority: priority}, true
}

// prepared is an entry body ready for matching: the NFKC runes for context
// extraction and a folded copy with the same rune positions.
type prepared struct {
	runes  []rune
	folded string
}

func prepare(body string) (prepared, bool) {
	if strings.TrimSpace(body) == "" {
		return prepared{}, false
	}
	runes := []rune(norm.NFKC.String(body))
	return prepared{runes: runes, folded: string(fold(runes))}, true
}

// fold lower-cases rune by rune and maps apostrophe variants to ASCII, so
// positions line up with the input.
func fold(runes []rune) []rune {
	out := make([]rune, len(runes))
	for i, r := range runes {
		switch r {
		case '\u2018', '\u2019', '\u02BC', '\uFF07':
			r = '\''
		}
		out[i] = unicode.ToLower(r)
	}
	return out
}

// find returns the rune offset of term in p, or -1.
func (p prepared) find(c compiled) int {
	i := strings.Index(p.folded, c.folded)
	if i < 0 {
		return -1
	}
	return utf8.RuneCountInString(p.folded[:i])
}

// snippet returns the text surrounding a match of length n at rune offset
// at, collapsed to one line and wrapped in ellipses where truncated.
func (p prepared) snippet(at, n int) string {
	start := at - ContextRadius
	if start < 0 {
		start = 0
	}
	end := at + n + ContextRadius
	if end > len(p.runes) {
		end = len(p.runes)
	}

	text := strings.Join(strings.Fields(string(p.runes[start:end])), " ")
	if start > 0 {
		text = ellipsis + text
	}
	if end < len(p.runes) {
		text += ellipsis
	}
	return text
}
