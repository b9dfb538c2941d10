package scheduler

import (
	"fmt"
	"time"
)

// decideLocked asks the active strategy for an assignment decision. A nil
// decision means no available agent can take the task this tick.
func (s *Scheduler) decideLocked(t *ScheduledTask, available []*TrackedAgent) *Decision {
	if len(available) == 0 {
		return nil
	}

	switch s.cfg.Strategy {
	case StrategyRoundRobin:
		return s.decideRoundRobin(t, available)
	case StrategyLeastLoaded:
		return decideLeastLoaded(t, available)
	case StrategyCapabilityMatch:
		return decideCapabilityMatch(t, available)
	case StrategyPerformanceBased:
		return decidePerformanceBased(t, available)
	default:
		return s.decideAdaptive(t, available)
	}
}

// decideRoundRobin cycles the scheduler-owned cursor through the available
// set. Fixed score; no fitness judgement.
func (s *Scheduler) decideRoundRobin(t *ScheduledTask, available []*TrackedAgent) *Decision {
	ta := available[s.rrIndex%len(available)]
	s.rrIndex++
	return &Decision{
		AgentID:           ta.ID,
		Score:             0.5,
		Reason:            "round-robin rotation",
		EstimatedDuration: t.EstimatedDuration,
	}
}

// decideLeastLoaded picks the agent with the lowest current load.
func decideLeastLoaded(t *ScheduledTask, available []*TrackedAgent) *Decision {
	best := available[0]
	for _, ta := range available[1:] {
		if ta.CurrentLoad < best.CurrentLoad {
			best = ta
		}
	}
	return &Decision{
		AgentID:           best.ID,
		Score:             1 - best.CurrentLoad,
		Reason:            fmt.Sprintf("least loaded (%.2f)", best.CurrentLoad),
		EstimatedDuration: t.EstimatedDuration,
	}
}

// decideCapabilityMatch scores agents by the fraction of required
// capabilities they cover. Ties keep the earlier-registered agent. Returns
// nil when capabilities are required and no agent covers any of them.
func decideCapabilityMatch(t *ScheduledTask, available []*TrackedAgent) *Decision {
	var best *TrackedAgent
	bestScore := -1.0
	for _, ta := range available {
		score := capabilityScore(t.RequiredCapabilities, ta.Capabilities)
		if score > bestScore {
			best, bestScore = ta, score
		}
	}
	if len(t.RequiredCapabilities) > 0 && bestScore == 0 {
		return nil
	}
	return &Decision{
		AgentID:           best.ID,
		Score:             bestScore,
		Reason:            fmt.Sprintf("capability match %.2f", bestScore),
		EstimatedDuration: t.EstimatedDuration,
	}
}

// capabilityScore is the matched fraction of required capabilities, or 0.5
// when the task requires nothing.
func capabilityScore(required, offered []string) float64 {
	if len(required) == 0 {
		return 0.5
	}
	have := make(map[string]struct{}, len(offered))
	for _, c := range offered {
		have[c] = struct{}{}
	}
	matched := 0
	for _, c := range required {
		if _, ok := have[c]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// decidePerformanceBased picks the highest-scoring agent and inflates the
// duration estimate for slow ones.
func decidePerformanceBased(t *ScheduledTask, available []*TrackedAgent) *Decision {
	best := available[0]
	for _, ta := range available[1:] {
		if ta.PerformanceScore > best.PerformanceScore {
			best = ta
		}
	}
	estimated := t.EstimatedDuration
	if best.PerformanceScore > 0 {
		estimated = time.Duration(float64(estimated) / best.PerformanceScore)
	}
	return &Decision{
		AgentID:           best.ID,
		Score:             best.PerformanceScore,
		Reason:            fmt.Sprintf("performance %.2f", best.PerformanceScore),
		EstimatedDuration: estimated,
	}
}

// decideAdaptive is a decision table, not a learned policy: under high or
// critical pressure favor fast agents; for capability-heavy tasks match
// capabilities; otherwise balance load.
func (s *Scheduler) decideAdaptive(t *ScheduledTask, available []*TrackedAgent) *Decision {
	pressure := s.pressureLocked()
	if pressure == PressureHigh || pressure == PressureCritical {
		return decidePerformanceBased(t, available)
	}
	if len(t.RequiredCapabilities) > 2 {
		return decideCapabilityMatch(t, available)
	}
	return decideLeastLoaded(t, available)
}
