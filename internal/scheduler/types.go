// Package scheduler implements the adaptive task scheduler at the heart of
// swarmsched: admission control with queue-pressure backpressure, pluggable
// assignment strategies, bounded retries, and work stealing across a pool of
// heterogeneous agents.
package scheduler

import (
	"fmt"
	"time"
)

// TaskPriority is the caller-facing priority class of a task. The heap does
// not order by this enum directly; see priorityValue.
type TaskPriority string

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

// BaseValue returns the numeric base for heap ordering.
func (p TaskPriority) BaseValue() int {
	switch p {
	case PriorityCritical:
		return 100
	case PriorityHigh:
		return 75
	case PriorityMedium:
		return 50
	default:
		return 25
	}
}

// Rank maps the priority onto [0,1] for scoring.
func (p TaskPriority) Rank() float64 {
	return float64(p.BaseValue()) / 100
}

// Task is a unit of work submitted by the caller. The caller owns it until
// Enqueue; afterwards the scheduler's ScheduledTask wrapper is authoritative.
type Task struct {
	ID                   string
	Priority             TaskPriority
	Complexity           float64 // [0,1]
	Dependencies         []string
	RequiredCapabilities []string
	EstimatedDuration    time.Duration
}

// ScheduledTask wraps a Task from enqueue to terminal state. Owned
// exclusively by the scheduler; callers receive it for inspection only.
type ScheduledTask struct {
	Task
	ScheduledAt        time.Time
	AssignedAgent      string // agent ID, empty while queued
	EstimatedStartTime time.Time
	EstimatedEndTime   time.Time
	ActualStartTime    time.Time // zero until StartTask is reported
	RetryCount         int
	SchedulingScore    float64 // static desirability, computed once at enqueue
}

// Agent describes a worker registered by the caller.
type Agent struct {
	ID               string
	Capabilities     []string
	CurrentLoad      float64 // [0,1], heuristic proxy maintained by the scheduler
	Available        bool
	PerformanceScore float64 // [0,1]
}

// TrackedAgent is the scheduler's mutable bookkeeping around an Agent.
type TrackedAgent struct {
	Agent
	AssignedTasks       []string // task IDs in assignment order
	CompletedTasks      int
	FailedTasks         int
	AverageTaskDuration time.Duration
	LastTaskTime        time.Time
}

// Pressure classifies queue fullness relative to capacity.
type Pressure string

const (
	PressureLow      Pressure = "low"
	PressureMedium   Pressure = "medium"
	PressureHigh     Pressure = "high"
	PressureCritical Pressure = "critical"
)

// Strategy selects which assignment policy the tick loop uses.
type Strategy string

const (
	StrategyRoundRobin       Strategy = "round-robin"
	StrategyLeastLoaded      Strategy = "least-loaded"
	StrategyCapabilityMatch  Strategy = "capability-match"
	StrategyPerformanceBased Strategy = "performance-based"
	StrategyAdaptive         Strategy = "adaptive"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyLeastLoaded, StrategyCapabilityMatch,
		StrategyPerformanceBased, StrategyAdaptive:
		return true
	}
	return false
}

// Decision is a strategy's verdict for a single task.
type Decision struct {
	AgentID           string
	Score             float64
	Reason            string
	EstimatedDuration time.Duration
}

// Config holds scheduler tuning. Zero values are replaced by defaults in New.
type Config struct {
	Strategy                  Strategy
	MaxQueueDepth             int
	HighPressureThreshold     float64
	CriticalPressureThreshold float64
	EnablePrediction          bool // reserved; pressure is queue-depth only
	PredictionWindow          int  // reserved
	EnableWorkStealing        bool
	WorkStealingThreshold     float64 // minimum load gap to trigger a steal
	TickInterval              time.Duration
	MaxRetries                int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:                  StrategyAdaptive,
		MaxQueueDepth:             1000,
		HighPressureThreshold:     0.7,
		CriticalPressureThreshold: 0.9,
		EnableWorkStealing:        true,
		WorkStealingThreshold:     0.3,
		TickInterval:              100 * time.Millisecond,
		MaxRetries:                3,
	}
}

// BackpressureError is returned by Enqueue when the queue is at critical
// pressure and the incoming task is not critical-priority. Recoverable; the
// caller should back off or escalate priority rather than retry immediately.
type BackpressureError struct {
	Pressure   Pressure
	QueueDepth int
	Capacity   int
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("queue at %s pressure (%d/%d), task rejected", e.Pressure, e.QueueDepth, e.Capacity)
}

// Metrics is a point-in-time snapshot of scheduler counters.
type Metrics struct {
	QueueDepth          int
	QueueCapacity       int
	Pressure            Pressure
	TasksScheduled      int64
	TasksCompleted      int64
	TasksFailed         int64
	TasksStolen         int64
	AverageWaitTime     time.Duration
	AverageDecisionTime time.Duration
	Throughput          float64            // completions per second since the first completion
	AgentUtilization    map[string]float64 // agent ID -> current load
}
