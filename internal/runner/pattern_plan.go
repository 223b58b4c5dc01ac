package runner

import "time"

// patternPlan is a piecewise-linear arrival rate over time, compiled from
// ramp, step and spike stages laid end to end.
type patternPlan struct {
	segments []patternSegment
	duration time.Duration
}

type patternSegment struct {
	start    time.Duration
	duration time.Duration
	fromRate float64
	toRate   float64
}

func compilePatternPlan(patterns []LoadPattern) *patternPlan {
	plan := &patternPlan{}
	add := func(d time.Duration, from, to int) {
		if d <= 0 {
			return
		}
		plan.segments = append(plan.segments, patternSegment{
			start:    plan.duration,
			duration: d,
			fromRate: float64(from),
			toRate:   float64(to),
		})
		plan.duration += d
	}

	for _, pattern := range patterns {
		switch pattern.Type {
		case LoadPatternTypeRamp:
			add(pattern.Duration, pattern.FromRPS, pattern.ToRPS)
		case LoadPatternTypeStep:
			for _, step := range pattern.Steps {
				add(step.Duration, step.RPS, step.RPS)
			}
		case LoadPatternTypeSpike:
			add(pattern.Duration, pattern.RPS, pattern.RPS)
		}
	}

	if len(plan.segments) == 0 {
		return nil
	}
	return plan
}

// rateAt reports the planned rate at elapsed, or false once the plan is over.
func (p *patternPlan) rateAt(elapsed time.Duration) (float64, bool) {
	if p == nil {
		return 0, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	for _, seg := range p.segments {
		if elapsed < seg.start || elapsed >= seg.start+seg.duration {
			continue
		}
		if seg.fromRate == seg.toRate {
			return seg.fromRate, true
		}
		progress := float64(elapsed-seg.start) / float64(seg.duration)
		return seg.fromRate + (seg.toRate-seg.fromRate)*progress, true
	}
	return 0, false
}

func (p *patternPlan) totalDuration() time.Duration {
	if p == nil {
		return 0
	}
	return p.duration
}
