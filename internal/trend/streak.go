package trend

import (
	"sort"
	"time"
)

// Streak is the consecutive-day engagement summary.
type Streak struct {
	Current    int `json:"current"`
	Longest    int `json:"longest"`
	ActiveDays int `json:"active_days"`
}

// Broken reports whether engagement history exists but the current run has ended.
func (s Streak) Broken() bool {
	return s.Current == 0 && s.ActiveDays > 0
}

// Streaks collapses timestamps to calendar days in loc and measures runs.
//
// The current streak walks backward from the day of today and stops at the
// first missing day or at the day of floor, whichever comes first; it is 0
// when today itself has no activity. Timestamps before floor's day or after
// today's day are ignored. A zero floor disables the lower bound.
func Streaks(timestamps []time.Time, today, floor time.Time, loc *time.Location) Streak {
	if loc == nil {
		loc = time.UTC
	}
	last := dayKey(today, loc)
	first := int64(-1 << 62)
	if !floor.IsZero() {
		first = dayKey(floor, loc)
	}

	present := make(map[int64]bool)
	for _, ts := range timestamps {
		k := dayKey(ts, loc)
		if k < first || k > last {
			continue
		}
		present[k] = true
	}

	var s Streak
	s.ActiveDays = len(present)
	if s.ActiveDays == 0 {
		return s
	}

	for k := last; k >= first && present[k]; k-- {
		s.Current++
	}

	days := make([]int64, 0, len(present))
	for k := range present {
		days = append(days, k)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	run := 1
	s.Longest = 1
	for i := 1; i < len(days); i++ {
		if days[i] == days[i-1]+1 {
			run++
		} else {
			run = 1
		}
		if run > s.Longest {
			s.Longest = run
		}
	}
	return s
}

// dayKey numbers calendar days in loc so consecutive days differ by one,
// independent of DST transitions.
func dayKey(t time.Time, loc *time.Location) int64 {
	lt := t.In(loc)
	d := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
	return d.Unix() / 86400
}
