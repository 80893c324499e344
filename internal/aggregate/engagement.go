package aggregate

import "carepulse/internal/record"

// CategoryUsage is the per-category breakdown of categorical events.
type CategoryUsage struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Minutes  float64 `json:"minutes"`
}

// UsageStats summarizes activities or toolkit sessions.
type UsageStats struct {
	Total        int             `json:"total"`
	TotalMinutes float64         `json:"total_minutes"`
	Categories   []CategoryUsage `json:"categories"`
	MostUsed     string          `json:"most_used,omitempty"`
}

// Distinct returns the number of different categories used.
func (u UsageStats) Distinct() int { return len(u.Categories) }

// Usage groups events by category. Categories are listed in first-seen
// order; MostUsed is the highest count, ties going to the category seen first.
func Usage(events []record.CategoricalEvent) UsageStats {
	var stats UsageStats
	index := make(map[string]int)

	for _, e := range events {
		i, ok := index[e.Category]
		if !ok {
			i = len(stats.Categories)
			index[e.Category] = i
			stats.Categories = append(stats.Categories, CategoryUsage{Category: e.Category})
		}
		stats.Categories[i].Count++
		stats.Categories[i].Minutes += e.Magnitude
		stats.Total++
		stats.TotalMinutes += e.Magnitude
	}

	best := -1
	for i, c := range stats.Categories {
		if best < 0 || c.Count > stats.Categories[best].Count {
			best = i
		}
	}
	if best >= 0 {
		stats.MostUsed = stats.Categories[best].Category
	}
	return stats
}

// NamedEvents summarizes badges or workshop registrations.
type NamedEvents struct {
	Count int      `json:"count"`
	Names []string `json:"names,omitempty"`
}

// Named counts events and lists distinct names in first-seen order.
func Named(events []record.CategoricalEvent) NamedEvents {
	out := NamedEvents{Count: len(events)}
	seen := make(map[string]bool)
	for _, e := range events {
		if seen[e.Category] {
			continue
		}
		seen[e.Category] = true
		out.Names = append(out.Names, e.Category)
	}
	return out
}
