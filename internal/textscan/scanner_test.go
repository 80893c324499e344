package textscan

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carepulse/internal/finding"
	"carepulse/internal/record"
)

var t0 = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

func entry(i int, body string) record.TextEntry {
	return record.TextEntry{Timestamp: t0.Add(time.Duration(i) * time.Hour), Source: record.SourceJournal, Body: body}
}

func testScanner() *Scanner {
	return NewScanner(
		[]SDOHTerm{
			{Term: "bills", Category: "Financial", Priority: finding.PriorityHigh},
			{Term: "rent", Category: "Housing", Priority: finding.PriorityHigh},
			{Term: "evicted", Category: "Housing", Priority: finding.PriorityHigh},
			{Term: "lonely", Category: "Social Isolation", Priority: finding.PriorityModerate},
		},
		HRSTaxonomy{
			Direct: []string{"don't want to live", "kill myself", "end it all"},
			Indirect: []IndirectTerm{
				{Term: "hopeless", Category: "hopelessness"},
				{Term: "no way out", Category: "entrapment"},
				{Term: "can't sleep", Category: "sleep disruption"},
				{Term: "ashamed", Category: "shame"},
			},
		},
	)
}

func TestScanSDOHSingleFlag(t *testing.T) {
	s := testScanner()
	entries := []record.TextEntry{entry(0, "...struggling to keep up with bills this month...")}

	flags := s.ScanSDOH(entries)

	require.Len(t, flags, 1)
	f := flags[0]
	assert.Equal(t, finding.KindSDOH, f.Kind)
	assert.Equal(t, "Financial", f.Category)
	assert.Equal(t, finding.PriorityHigh, f.Priority)
	assert.Contains(t, f.Context, "bills")

	again := s.ScanSDOH(entries)
	assert.Equal(t, flags, again, "scanning is idempotent")
}

func TestScanSDOHDeduplicates(t *testing.T) {
	s := testScanner()
	entries := []record.TextEntry{
		entry(0, "The BILLS keep coming, so many bills."),
		entry(1, "Paid some bills today."),
		entry(2, "Worried about rent and being evicted."),
	}

	flags := s.ScanSDOH(entries)

	require.Len(t, flags, 3)
	assert.Equal(t, "Financial", flags[0].Category)
	assert.Contains(t, flags[0].Context, "BILLS", "first match wins")
	assert.Equal(t, "Housing", flags[1].Category)
	assert.Contains(t, flags[1].Detail, "rent")
	assert.Equal(t, "Housing", flags[2].Category)
	assert.Contains(t, flags[2].Detail, "evicted")
}

// snippetOf returns the context ScanSDOH would attach to the first match
// of term in body, or "" when there is none.
func snippetOf(body, term string) string {
	s := NewScanner([]SDOHTerm{{Term: term, Category: "c", Priority: finding.PriorityLow}}, HRSTaxonomy{})
	flags := s.ScanSDOH([]record.TextEntry{entry(0, body)})
	if len(flags) == 0 {
		return ""
	}
	return flags[0].Context
}

func TestContextSnippet(t *testing.T) {
	t.Run("whole entry when short", func(t *testing.T) {
		assert.Equal(t, "late on rent again", snippetOf("late on rent again", "rent"))
	})

	t.Run("truncated on both sides", func(t *testing.T) {
		body := strings.Repeat("a", 50) + " rent " + strings.Repeat("b", 50)
		got := snippetOf(body, "RENT")
		assert.True(t, strings.HasPrefix(got, ellipsis))
		assert.True(t, strings.HasSuffix(got, ellipsis))
		inner := strings.TrimSuffix(strings.TrimPrefix(got, ellipsis), ellipsis)
		assert.Equal(t, strings.Repeat("a", 29)+" rent "+strings.Repeat("b", 29), inner)
	})

	t.Run("truncated on the left only", func(t *testing.T) {
		body := strings.Repeat("x", 40) + " rent"
		got := snippetOf(body, "rent")
		assert.True(t, strings.HasPrefix(got, ellipsis))
		assert.True(t, strings.HasSuffix(got, "rent"))
	})

	t.Run("multiline collapses", func(t *testing.T) {
		assert.Equal(t, "rent is due", snippetOf("rent is\n\n due", "rent"))
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, snippetOf("all good", "rent"))
		assert.Empty(t, snippetOf("", "rent"))
		assert.Empty(t, snippetOf("rent", "   "))
	})
}

func TestScanHRSDirectForcesElevated(t *testing.T) {
	s := testScanner()
	entries := make([]record.TextEntry, 0, 100)
	for i := 0; i < 99; i++ {
		entries = append(entries, entry(i, fmt.Sprintf("Day %d was fine, went for a walk.", i)))
	}
	entries = append(entries, entry(99, "Some days I don't want to live like this."))

	result := s.ScanHRS(entries)

	assert.Equal(t, RiskElevated, result.RiskLevel)
	require.Len(t, result.Direct, 1)
	assert.Equal(t, "don't want to live", result.Direct[0].Term)
	assert.True(t, result.Direct[0].Direct)
	assert.Contains(t, result.Direct[0].Context, "want to live")
	assert.Empty(t, result.Indirect)
}

func TestScanHRSDirectNeverDeduplicated(t *testing.T) {
	s := testScanner()
	entries := []record.TextEntry{
		entry(0, "I want to end it all."),
		entry(1, "Still feel like I want to END IT ALL."),
		entry(2, "hopeless and I could kill myself"),
	}

	result := s.ScanHRS(entries)

	assert.Equal(t, RiskElevated, result.RiskLevel)
	require.Len(t, result.Direct, 3, "each direct match is retained")
	assert.Equal(t, entries[1].Timestamp, result.Direct[1].Timestamp)
	require.Len(t, result.Indirect, 1)
	assert.Equal(t, "hopelessness", result.Indirect[0].Category)
}

func TestScanHRSIndirectOnly(t *testing.T) {
	s := testScanner()
	entries := []record.TextEntry{
		entry(0, "Feeling hopeless, there's no way out."),
		entry(1, "Still hopeless. I can't sleep."),
	}

	result := s.ScanHRS(entries)

	assert.Equal(t, RiskIndirectOnly, result.RiskLevel)
	assert.Empty(t, result.Direct)
	require.Len(t, result.Indirect, 3, "repeated indirect terms collapse")
	assert.Equal(t, []string{"hopelessness", "entrapment", "sleep disruption"}, result.IndirectCategories())
}

func TestScanHRSNone(t *testing.T) {
	result := testScanner().ScanHRS([]record.TextEntry{entry(0, "A calm and steady week.")})
	assert.Equal(t, RiskNone, result.RiskLevel)
	assert.Empty(t, result.Direct)
	assert.Empty(t, result.Indirect)
}

func TestScannerTotalOverInput(t *testing.T) {
	s := testScanner()
	inputs := []string{
		"",
		"   \n\t ",
		"\xff\xfe\xfd invalid utf-8 \xc3",
		"日本語のテキスト、請求書 bills",
		"Ｂｉｌｌｓ fullwidth",
		strings.Repeat("kill myself ", 1000),
		"emoji 😢😢 hopeless 😢",
		"combining: ré́nt évicted",
	}
	entries := make([]record.TextEntry, len(inputs))
	for i, in := range inputs {
		entries[i] = entry(i, in)
	}

	assert.NotPanics(t, func() {
		s.ScanSDOH(entries)
		s.ScanHRS(entries)
	})

	flags := s.ScanSDOH(entries[3:4])
	require.Len(t, flags, 1)
	assert.Contains(t, flags[0].Context, "bills")

	wide := s.ScanSDOH(entries[4:5])
	require.Len(t, wide, 1, "fullwidth letters fold to ASCII")
	assert.Equal(t, "Financial", wide[0].Category)

	hrs := s.ScanHRS(entries[5:6])
	assert.Len(t, hrs.Direct, 1, "one direct detection per entry and term")

	emoji := s.ScanHRS(entries[6:7])
	require.Len(t, emoji.Indirect, 1)
	assert.Equal(t, "emoji 😢😢 hopeless 😢", emoji.Indirect[0].Context)
}

func TestScanMatchesNormalizedForms(t *testing.T) {
	s := NewScanner([]SDOHTerm{{Term: "caf\u00e9", Category: "Food", Priority: finding.PriorityLow}}, HRSTaxonomy{})
	// decomposed E + combining acute accent
	flags := s.ScanSDOH([]record.TextEntry{entry(0, "skipped meals at the CAFE\u0301 again")})
	require.Len(t, flags, 1)
	assert.Equal(t, "Food", flags[0].Category)
}

func TestEmptyTermsNeverMatch(t *testing.T) {
	s := NewScanner([]SDOHTerm{{Term: "  ", Category: "Blank"}}, HRSTaxonomy{Direct: []string{""}})
	entries := []record.TextEntry{entry(0, "anything at all")}
	assert.Empty(t, s.ScanSDOH(entries))
	assert.Equal(t, RiskNone, s.ScanHRS(entries).RiskLevel)
}

func TestScanMatchesTypographicApostrophes(t *testing.T) {
	s := testScanner()
	for _, body := range []string{
		"I don\u2019t want to live anymore",
		"I don\u2018t want to live anymore",
		"I don\u02BCt want to live anymore",
		"I don\uFF07t want to live anymore",
	} {
		result := s.ScanHRS([]record.TextEntry{entry(0, body)})
		assert.Equal(t, RiskElevated, result.RiskLevel, "body %q", body)
		require.Len(t, result.Direct, 1)
		assert.Equal(t, "don't want to live", result.Direct[0].Term)
		assert.Contains(t, result.Direct[0].Context, "want to live")
	}

	indirect := s.ScanHRS([]record.TextEntry{entry(0, "I can\u2019t sleep again")})
	assert.Equal(t, []string{"sleep disruption"}, indirect.IndirectCategories())

	curlyTerm := NewScanner(nil, HRSTaxonomy{Direct: []string{"don\u2019t want to live"}})
	assert.Equal(t, RiskElevated, curlyTerm.ScanHRS([]record.TextEntry{entry(0, "I don't want to live")}).RiskLevel)
}
