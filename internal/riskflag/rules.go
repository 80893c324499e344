// Package riskflag evaluates the fixed rule table that turns aggregate
// statistics into prioritized risk flags, and derives the separate list of
// engagement recommendations.
//
// Rules run in a fixed order and each appends at most one flag, except the
// clinical rule, which appends one flag per known assessment type over its
// threshold. The harm-risk rule always runs first.
package riskflag

import (
	"fmt"
	"log/slog"

	"carepulse/internal/aggregate"
	"carepulse/internal/finding"
	"carepulse/internal/record"
	"carepulse/internal/textscan"
	"carepulse/internal/trend"
)

// Rule names.
const (
	RuleHRSDirect       = "hrs_direct"
	RuleMoodLowMean     = "mood_low_mean"
	RuleMoodDeclining   = "mood_declining"
	RuleMoodVeryLow     = "mood_very_low"
	RuleStreakBroken    = "streak_broken"
	RuleClinicalPrefix  = "clinical_"
	RuleSleepQualityLow = "sleep_quality_low"
	RuleSleepHoursLow   = "sleep_hours_low"
	RuleHRSIndirect     = "hrs_indirect"
)

// Inputs are the aggregator outputs the rules read.
type Inputs struct {
	Mood        aggregate.MoodStats
	MoodTrend   trend.Direction
	Streak      trend.Streak
	Assessments aggregate.AssessmentStats
	Sleep       aggregate.SleepStats
	HRS         textscan.HRSResult
}

type rule struct {
	name string
	eval func(th *Thresholds, in Inputs) []finding.Flag
}

// rules is evaluated top to bottom. Order is part of the output contract.
var rules = []rule{
	{RuleHRSDirect, hrsDirect},
	{RuleMoodLowMean, moodLowMean},
	{RuleMoodDeclining, moodDeclining},
	{RuleMoodVeryLow, moodVeryLow},
	{RuleStreakBroken, streakBroken},
	{RuleClinicalPrefix + "*", clinical},
	{RuleSleepQualityLow, sleepQualityLow},
	{RuleSleepHoursLow, sleepHoursLow},
	{RuleHRSIndirect, hrsIndirect},
}

// Engine evaluates the rule table against one set of inputs. It holds no
// per-build state and is safe for concurrent use.
type Engine struct {
	thresholds Thresholds
	logger     *slog.Logger
}

// New returns an Engine. A nil logger discards output.
func New(th Thresholds, logger *slog.Logger) (*Engine, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{thresholds: th, logger: logger}, nil
}

// Thresholds returns the thresholds the engine was built with.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Evaluate runs every rule in order and returns the flags raised.
func (e *Engine) Evaluate(in Inputs) []finding.Flag {
	for _, a := range in.Assessments.Latest {
		if !a.Type.Known() {
			e.logger.Warn("assessment type has no threshold, skipping", "type", string(a.Type))
		}
	}

	var flags []finding.Flag
	for _, r := range rules {
		flags = append(flags, r.eval(&e.thresholds, in)...)
	}
	return flags
}

func riskFlag(name, category, detail string, p finding.Priority) finding.Flag {
	return finding.Flag{Kind: finding.KindRisk, Rule: name, Category: category, Detail: detail, Priority: p}
}

func hrsDirect(_ *Thresholds, in Inputs) []finding.Flag {
	if in.HRS.RiskLevel != textscan.RiskElevated || len(in.HRS.Direct) == 0 {
		return nil
	}
	first := in.HRS.Direct[0]
	return []finding.Flag{{
		Kind:     finding.KindHRS,
		Rule:     RuleHRSDirect,
		Category: "Harm Risk",
		Detail:   fmt.Sprintf("%d direct harm-risk statement(s) detected; immediate clinical review", len(in.HRS.Direct)),
		Context:  first.Context,
		Priority: finding.PriorityElevated,
	}}
}

func moodLowMean(th *Thresholds, in Inputs) []finding.Flag {
	if !in.Mood.HasData() || in.Mood.Mean >= th.MoodLowMean {
		return nil
	}
	return []finding.Flag{riskFlag(RuleMoodLowMean, "Mood",
		fmt.Sprintf("average mood %.1f is below %.1f", in.Mood.Mean, th.MoodLowMean),
		finding.PriorityHigh)}
}

func moodDeclining(_ *Thresholds, in Inputs) []finding.Flag {
	if in.MoodTrend != trend.Declining {
		return nil
	}
	return []finding.Flag{riskFlag(RuleMoodDeclining, "Mood",
		"mood is trending down across the period", finding.PriorityModerate)}
}

func moodVeryLow(th *Thresholds, in Inputs) []finding.Flag {
	if !in.Mood.HasData() || in.Mood.Min > th.MoodVeryLow {
		return nil
	}
	return []finding.Flag{riskFlag(RuleMoodVeryLow, "Mood",
		fmt.Sprintf("lowest mood %.0f recorded on %s", in.Mood.Min, in.Mood.LowestAt.Format("2006-01-02")),
		finding.PriorityHigh)}
}

func streakBroken(_ *Thresholds, in Inputs) []finding.Flag {
	if !in.Streak.Broken() {
		return nil
	}
	return []finding.Flag{riskFlag(RuleStreakBroken, "Engagement",
		fmt.Sprintf("no engagement today after %d active day(s); longest run was %d", in.Streak.ActiveDays, in.Streak.Longest),
		finding.PriorityLow)}
}

func clinical(th *Thresholds, in Inputs) []finding.Flag {
	var flags []finding.Flag
	for _, a := range in.Assessments.Latest {
		ct, ok := th.clinical(a.Type)
		if !ok || a.Score < ct.High {
			continue
		}
		p := finding.PriorityHigh
		if ct.Elevated > 0 && a.Score >= ct.Elevated {
			p = finding.PriorityElevated
		}
		detail := fmt.Sprintf("latest %s score %.0f meets threshold %.0f", a.Type, a.Score, ct.High)
		if a.Severity != "" {
			detail += " (" + a.Severity + ")"
		}
		flags = append(flags, riskFlag(RuleClinicalPrefix+clinicalSuffix(a.Type), "Clinical", detail, p))
	}
	return flags
}

func sleepQualityLow(th *Thresholds, in Inputs) []finding.Flag {
	if in.Sleep.QualityCount == 0 || in.Sleep.MeanQuality >= th.SleepQualityLow {
		return nil
	}
	return []finding.Flag{riskFlag(RuleSleepQualityLow, "Sleep",
		fmt.Sprintf("average sleep quality %.1f is below %.1f", in.Sleep.MeanQuality, th.SleepQualityLow),
		finding.PriorityModerate)}
}

func sleepHoursLow(th *Thresholds, in Inputs) []finding.Flag {
	if in.Sleep.HoursCount == 0 || in.Sleep.MeanHours >= th.SleepHoursLow {
		return nil
	}
	return []finding.Flag{riskFlag(RuleSleepHoursLow, "Sleep",
		fmt.Sprintf("average sleep %.1f hours is below %.1f", in.Sleep.MeanHours, th.SleepHoursLow),
		finding.PriorityModerate)}
}

func hrsIndirect(_ *Thresholds, in Inputs) []finding.Flag {
	if in.HRS.RiskLevel != textscan.RiskIndirectOnly {
		return nil
	}
	cats := in.HRS.IndirectCategories()
	return []finding.Flag{{
		Kind:     finding.KindHRS,
		Rule:     RuleHRSIndirect,
		Category: "Harm Risk",
		Detail:   fmt.Sprintf("indirect harm-risk language in %d categor%s", len(cats), plural(len(cats), "y", "ies")),
		Context:  in.HRS.Indirect[0].Context,
		Priority: finding.PriorityModerate,
	}}
}

func clinicalSuffix(t record.AssessmentType) string {
	switch t {
	case record.PHQ9:
		return "phq9"
	case record.GAD7:
		return "gad7"
	case record.PCL5:
		return "pcl5"
	case record.AUDITC:
		return "auditc"
	default:
		return string(t)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
