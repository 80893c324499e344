package aggregate

import (
	"sort"

	"carepulse/internal/record"
)

// TopTagLimit is the number of mood tags reported in the histogram.
const TopTagLimit = 5

// TagCount is one bucket of the mood-tag histogram.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// JournalStats summarizes journal entries.
type JournalStats struct {
	EntryCount int        `json:"entry_count"`
	TopTags    []TagCount `json:"top_tags,omitempty"`
}

// Journal counts entries and builds the top mood-tag histogram, sorted by
// count descending with ties in first-seen order. Untagged entries count
// toward EntryCount only.
func Journal(entries []record.TextEntry) JournalStats {
	stats := JournalStats{EntryCount: len(entries)}

	var tags []TagCount
	index := make(map[string]int)
	for _, e := range entries {
		if e.Tag == "" {
			continue
		}
		i, ok := index[e.Tag]
		if !ok {
			i = len(tags)
			index[e.Tag] = i
			tags = append(tags, TagCount{Tag: e.Tag})
		}
		tags[i].Count++
	}

	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Count > tags[j].Count })
	if len(tags) > TopTagLimit {
		tags = tags[:TopTagLimit]
	}
	stats.TopTags = tags
	return stats
}
