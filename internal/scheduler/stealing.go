package scheduler

// rebalanceLocked moves not-yet-started work from overloaded agents to
// underloaded ones. Overload candidates come from the whole registry, not
// just the available set; steal targets must be currently available. Each
// overloaded agent gives up at most one task per tick: its most recently
// assigned one, and only while that task is still effectively queued
// (no reported start).
func (s *Scheduler) rebalanceLocked(available []*TrackedAgent) []Event {
	var underloaded []*TrackedAgent
	for _, ta := range available {
		if ta.CurrentLoad < 0.3 {
			underloaded = append(underloaded, ta)
		}
	}
	if len(underloaded) == 0 {
		return nil
	}

	var events []Event
	for _, id := range s.agentOrder {
		over := s.agents[id]
		if over.CurrentLoad <= 0.8 || len(over.AssignedTasks) <= 1 {
			continue
		}

		var target *TrackedAgent
		for _, under := range underloaded {
			if under.ID != over.ID && over.CurrentLoad-under.CurrentLoad > s.cfg.WorkStealingThreshold {
				target = under
				break
			}
		}
		if target == nil {
			continue
		}

		last := over.AssignedTasks[len(over.AssignedTasks)-1]
		t, ok := s.pending[last]
		if !ok || !t.ActualStartTime.IsZero() {
			// Already running (or reconciled elsewhere); never steal
			// mid-execution work.
			continue
		}

		over.AssignedTasks = over.AssignedTasks[:len(over.AssignedTasks)-1]
		target.AssignedTasks = append(target.AssignedTasks, last)
		t.AssignedAgent = target.ID
		over.CurrentLoad = clamp01(over.CurrentLoad - 0.15)
		target.CurrentLoad = clamp01(target.CurrentLoad + 0.15)

		s.stolenCount++
		s.logger.DebugCtx("task stolen", map[string]any{
			"task": last,
			"from": over.ID,
			"to":   target.ID,
		})
		events = append(events, Event{
			Type:      EventTaskStolen,
			TaskID:    last,
			FromAgent: over.ID,
			ToAgent:   target.ID,
		})
	}
	return events
}
