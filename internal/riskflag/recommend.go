package riskflag

// Recommendation is an engagement suggestion. Recommendations are not
// risk flags and are never counted as such.
type Recommendation struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// MinMoodEntries is the number of mood check-ins below which more
// tracking is suggested.
const MinMoodEntries = 3

// Engagement counts gate the recommendation list.
type Engagement struct {
	Goals          int
	JournalEntries int
	ToolkitUses    int
	MoodEntries    int
	SleepEntries   int
	Assessments    int
	Workshops      int
	CurrentStreak  int
}

var recommendations = []struct {
	rec  Recommendation
	when func(Engagement) bool
}{
	{Recommendation{"set_goals", "Set a small, achievable goal for the coming week."},
		func(e Engagement) bool { return e.Goals == 0 }},
	{Recommendation{"start_journal", "Try a short journal entry to reflect on the week."},
		func(e Engagement) bool { return e.JournalEntries == 0 }},
	{Recommendation{"try_toolkit", "Explore a breathing, meditation or music session."},
		func(e Engagement) bool { return e.ToolkitUses == 0 }},
	{Recommendation{"track_mood", "Check in with a mood rating a few times a week."},
		func(e Engagement) bool { return e.MoodEntries < MinMoodEntries }},
	{Recommendation{"log_sleep", "Log sleep to see how rest affects mood."},
		func(e Engagement) bool { return e.SleepEntries == 0 }},
	{Recommendation{"complete_assessment", "Complete a check-in questionnaire to track progress."},
		func(e Engagement) bool { return e.Assessments == 0 }},
	{Recommendation{"join_workshop", "Browse upcoming workshops."},
		func(e Engagement) bool { return e.Workshops == 0 }},
	{Recommendation{"restart_streak", "Check in today to start a new streak."},
		func(e Engagement) bool { return e.CurrentStreak == 0 }},
}

// Recommend returns the suggestions whose gating activity is absent, in a
// fixed order.
func Recommend(e Engagement) []Recommendation {
	var out []Recommendation
	for _, r := range recommendations {
		if r.when(e) {
			out = append(out, r.rec)
		}
	}
	return out
}
