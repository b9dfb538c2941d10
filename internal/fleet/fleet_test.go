package fleet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/marcus/swarmsched/internal/scheduler"
)

func newSchedulerForFleet(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	s := scheduler.New(scheduler.WithConfig(scheduler.Config{
		Strategy:     scheduler.StrategyLeastLoaded,
		TickInterval: 10 * time.Millisecond,
	}))
	t.Cleanup(s.Destroy)
	return s
}

func TestFleetExecutesTasksToCompletion(t *testing.T) {
	s := newSchedulerForFleet(t)

	f := New(s, Config{Agents: 2, FailureRate: 0, SpeedFactor: 50})
	s.Subscribe(f.HandleEvent)

	terminal := make(chan scheduler.Event, 16)
	s.Subscribe(func(e scheduler.Event) {
		if e.Type == scheduler.EventTaskCompleted || e.Type == scheduler.EventTaskFailed {
			terminal <- e
		}
	})

	f.Register()
	defer f.Stop()

	const n = 3
	for i := 0; i < n; i++ {
		_, err := s.Enqueue(scheduler.Task{
			ID:                fmt.Sprintf("t%d", i),
			Priority:          scheduler.PriorityMedium,
			EstimatedDuration: 20 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("Enqueue t%d: %v", i, err)
		}
	}

	s.Start()
	defer s.Stop()

	for i := 0; i < n; i++ {
		select {
		case e := <-terminal:
			if e.Type != scheduler.EventTaskCompleted {
				t.Errorf("task %s: type = %s, want task:completed", e.TaskID, e.Type)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for completion %d of %d", i+1, n)
		}
	}

	if m := s.Metrics(); m.TasksCompleted != n {
		t.Errorf("TasksCompleted = %d, want %d", m.TasksCompleted, n)
	}
}

func TestFleetAlwaysFailingExhaustsRetries(t *testing.T) {
	s := newSchedulerForFleet(t)

	f := New(s, Config{Agents: 1, FailureRate: 1.0, SpeedFactor: 50})
	s.Subscribe(f.HandleEvent)

	failed := make(chan scheduler.Event, 4)
	s.Subscribe(func(e scheduler.Event) {
		if e.Type == scheduler.EventTaskFailed {
			failed <- e
		}
	})

	f.Register()
	defer f.Stop()

	if _, err := s.Enqueue(scheduler.Task{
		ID:                "doomed",
		Priority:          scheduler.PriorityHigh,
		EstimatedDuration: 10 * time.Millisecond,
	}); err != nil {
		t.Fatal(err)
	}

	s.Start()
	defer s.Stop()

	select {
	case e := <-failed:
		if e.RetryCount != 3 {
			t.Errorf("RetryCount = %d, want 3", e.RetryCount)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for terminal failure")
	}
}

func TestFleetIgnoresForeignAgents(t *testing.T) {
	s := newSchedulerForFleet(t)

	f := New(s, Config{Agents: 1, FailureRate: 0, SpeedFactor: 50})
	s.Subscribe(f.HandleEvent)
	f.Register()
	defer f.Stop()

	f.HandleEvent(scheduler.Event{
		Type:    scheduler.EventTaskAssigned,
		TaskID:  "elsewhere",
		AgentID: "someone-elses-agent",
	})
	// Nothing to wait on; Stop would hang if a worker had been spawned with
	// no scheduler task behind it, so reaching Stop cleanly is the assertion.
	f.Stop()
}

func TestFeederSubmitBacksOffUnderPressure(t *testing.T) {
	s := scheduler.New(scheduler.WithConfig(scheduler.Config{
		Strategy:      scheduler.StrategyLeastLoaded,
		MaxQueueDepth: 10,
		TickInterval:  10 * time.Millisecond,
	}))
	defer s.Destroy()

	// Fill to critical pressure so the first submit attempt is rejected.
	for i := 0; i < 9; i++ {
		if _, err := s.Enqueue(scheduler.Task{
			ID:       fmt.Sprintf("fill-%d", i),
			Priority: scheduler.PriorityCritical,
		}); err != nil {
			t.Fatal(err)
		}
	}
	s.RegisterAgent(scheduler.Agent{ID: "drain", Available: true, PerformanceScore: 0.9})

	fd := NewFeeder(s, FeederConfig{
		Interval:    20 * time.Millisecond,
		MaxInterval: 100 * time.Millisecond,
		MaxElapsed:  5 * time.Second,
	})

	s.Start()
	defer s.Stop()

	// The drain agent empties the queue within a few ticks; the retried
	// submit must eventually land.
	err := fd.submit(context.Background(), scheduler.Task{
		ID:       "late-arrival",
		Priority: scheduler.PriorityLow,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestFeederSubmitHonorsCancellation(t *testing.T) {
	s := scheduler.New(scheduler.WithConfig(scheduler.Config{MaxQueueDepth: 10}))
	defer s.Destroy()

	for i := 0; i < 9; i++ {
		if _, err := s.Enqueue(scheduler.Task{
			ID:       fmt.Sprintf("fill-%d", i),
			Priority: scheduler.PriorityCritical,
		}); err != nil {
			t.Fatal(err)
		}
	}

	fd := NewFeeder(s, FeederConfig{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := fd.submit(ctx, scheduler.Task{ID: "never", Priority: scheduler.PriorityLow})
	if err == nil {
		t.Fatal("submit succeeded, want cancellation error")
	}
}

func TestFeederGenerate(t *testing.T) {
	fd := NewFeeder(nil, DefaultFeederConfig())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		task := fd.generate()
		if task.ID == "" || seen[task.ID] {
			t.Fatalf("iteration %d: bad or duplicate ID %q", i, task.ID)
		}
		seen[task.ID] = true
		if task.Complexity < 0 || task.Complexity > 1 {
			t.Errorf("Complexity = %v out of range", task.Complexity)
		}
		if task.EstimatedDuration < 100*time.Millisecond || task.EstimatedDuration >= 600*time.Millisecond {
			t.Errorf("EstimatedDuration = %v out of range", task.EstimatedDuration)
		}
		switch task.Priority {
		case scheduler.PriorityLow, scheduler.PriorityMedium, scheduler.PriorityHigh, scheduler.PriorityCritical:
		default:
			t.Errorf("Priority = %q unknown", task.Priority)
		}
	}
}
