package scheduler

import (
	"sync"
	"time"

	"github.com/marcus/swarmsched/internal/logging"
	"github.com/marcus/swarmsched/internal/queue"
)

// Scheduler owns the task queue and the agent registry. Every mutating
// operation, including the tick loop, serializes on a single mutex; events
// are collected inside the critical section and delivered after it so that
// handlers may safely call back in.
type Scheduler struct {
	mu       sync.Mutex
	cfg      Config
	logger   *logging.Logger
	handlers []EventHandler

	tasks      *queue.PriorityQueue[*ScheduledTask]
	pending    map[string]*ScheduledTask // enqueue until terminal state
	completed  map[string]*ScheduledTask
	agents     map[string]*TrackedAgent
	agentOrder []string // registration order, drives strategy tie-breaks

	rrIndex int // round-robin cursor

	scheduledCount   int64
	completedCount   int64
	failedCount      int64
	stolenCount      int64
	totalWait        time.Duration
	totalDecision    time.Duration
	decisionCount    int64
	firstCompletedAt time.Time

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig sets the scheduler configuration.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) {
		s.cfg = cfg
	}
}

// WithEventHandler registers a callback for scheduler events. May be given
// multiple times; handlers are invoked in registration order.
func WithEventHandler(h EventHandler) Option {
	return func(s *Scheduler) {
		if h != nil {
			s.handlers = append(s.handlers, h)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// New creates a scheduler with the given options.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       DefaultConfig(),
		logger:    logging.Component("scheduler"),
		tasks:     queue.New[*ScheduledTask](),
		pending:   make(map[string]*ScheduledTask),
		completed: make(map[string]*ScheduledTask),
		agents:    make(map[string]*TrackedAgent),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.applyDefaults()
	return s
}

// applyDefaults fills zero-valued config fields.
func (s *Scheduler) applyDefaults() {
	def := DefaultConfig()
	if !s.cfg.Strategy.Valid() {
		s.cfg.Strategy = def.Strategy
	}
	if s.cfg.MaxQueueDepth <= 0 {
		s.cfg.MaxQueueDepth = def.MaxQueueDepth
	}
	if s.cfg.HighPressureThreshold <= 0 {
		s.cfg.HighPressureThreshold = def.HighPressureThreshold
	}
	if s.cfg.CriticalPressureThreshold <= 0 {
		s.cfg.CriticalPressureThreshold = def.CriticalPressureThreshold
	}
	if s.cfg.WorkStealingThreshold <= 0 {
		s.cfg.WorkStealingThreshold = def.WorkStealingThreshold
	}
	if s.cfg.TickInterval <= 0 {
		s.cfg.TickInterval = def.TickInterval
	}
	if s.cfg.MaxRetries <= 0 {
		s.cfg.MaxRetries = def.MaxRetries
	}
}

// Subscribe registers an event handler after construction, for collaborators
// that need the scheduler to exist first.
func (s *Scheduler) Subscribe(h EventHandler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// emit delivers events to all handlers. Must be called without holding mu.
func (s *Scheduler) emit(events ...Event) {
	s.mu.Lock()
	handlers := s.handlers
	s.mu.Unlock()
	for _, e := range events {
		if e.Time.IsZero() {
			e.Time = time.Now()
		}
		for _, h := range handlers {
			h(e)
		}
	}
}

// Start launches the tick loop. No-op if already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	interval := s.cfg.TickInterval
	s.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.runTick()
			}
		}
	}()

	s.logger.InfoCtx("scheduler started", map[string]any{
		"strategy": string(s.cfg.Strategy),
		"tick":     interval.String(),
	})
	s.emit(Event{Type: EventStarted})
}

// Stop halts future ticks. In-flight assignments are untouched; pending
// tasks remain queued and resume on a later Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	s.logger.Info("scheduler stopped")
	s.emit(Event{Type: EventStopped})
}

// Destroy stops the loop and clears all state and handlers. Used at
// shutdown and test teardown.
func (s *Scheduler) Destroy() {
	s.Stop()
	s.mu.Lock()
	s.tasks.Clear()
	s.pending = make(map[string]*ScheduledTask)
	s.completed = make(map[string]*ScheduledTask)
	s.agents = make(map[string]*TrackedAgent)
	s.agentOrder = nil
	s.handlers = nil
	s.mu.Unlock()
}

// Enqueue admits a task. At critical pressure only critical-priority tasks
// are accepted; everything else is rejected with a *BackpressureError.
func (s *Scheduler) Enqueue(t Task) (*ScheduledTask, error) {
	s.mu.Lock()
	pressure := s.pressureLocked()
	if pressure == PressureCritical && t.Priority != PriorityCritical {
		depth := s.tasks.Len()
		capacity := s.cfg.MaxQueueDepth
		s.mu.Unlock()
		s.logger.WarnCtx("task rejected under backpressure", map[string]any{
			"task":     t.ID,
			"priority": string(t.Priority),
			"depth":    depth,
		})
		return nil, &BackpressureError{Pressure: pressure, QueueDepth: depth, Capacity: capacity}
	}

	now := time.Now()
	st := &ScheduledTask{
		Task:            t,
		ScheduledAt:     now,
		SchedulingScore: schedulingScore(t),
	}
	s.tasks.Enqueue(st, s.priorityValue(st, now))
	s.pending[t.ID] = st
	depth := s.tasks.Len()
	s.mu.Unlock()

	s.emit(Event{
		Type:       EventTaskEnqueued,
		TaskID:     t.ID,
		Priority:   t.Priority,
		QueueDepth: depth,
		Pressure:   pressure,
	})
	return st, nil
}

// schedulingScore is the static desirability of a task: 50% priority rank,
// 30% inverse complexity, 20% dependency-free bonus.
func schedulingScore(t Task) float64 {
	depFree := 0.0
	if len(t.Dependencies) == 0 {
		depFree = 1.0
	}
	return 0.5*t.Priority.Rank() + 0.3*(1-t.Complexity) + 0.2*depFree
}

// priorityValue is the transient heap key: base priority plus a retry boost
// and an age boost capped at 20 (one point per minute waited).
func (s *Scheduler) priorityValue(t *ScheduledTask, now time.Time) int {
	v := t.Priority.BaseValue() + t.RetryCount*10
	boost := int(now.Sub(t.ScheduledAt).Milliseconds() / 60000)
	if boost > 20 {
		boost = 20
	}
	if boost > 0 {
		v += boost
	}
	return v
}

// PressureLevel reports current queue pressure. Recomputed on demand.
func (s *Scheduler) PressureLevel() Pressure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pressureLocked()
}

func (s *Scheduler) pressureLocked() Pressure {
	ratio := float64(s.tasks.Len()) / float64(s.cfg.MaxQueueDepth)
	switch {
	case ratio >= s.cfg.CriticalPressureThreshold:
		return PressureCritical
	case ratio >= s.cfg.HighPressureThreshold:
		return PressureHigh
	case ratio >= 0.4:
		return PressureMedium
	default:
		return PressureLow
	}
}

// RegisterAgent adds an agent to the pool with zeroed counters.
func (s *Scheduler) RegisterAgent(a Agent) {
	s.mu.Lock()
	if _, exists := s.agents[a.ID]; !exists {
		s.agentOrder = append(s.agentOrder, a.ID)
	}
	s.agents[a.ID] = &TrackedAgent{Agent: a}
	s.mu.Unlock()

	s.logger.InfoCtx("agent registered", map[string]any{
		"agent":        a.ID,
		"capabilities": a.Capabilities,
	})
	s.emit(Event{Type: EventAgentRegistered, AgentID: a.ID})
}

// UnregisterAgent removes an agent. Every still-pending task assigned to it
// is stripped of the assignment and re-enqueued with a retry boost. Unknown
// IDs are no-ops.
func (s *Scheduler) UnregisterAgent(agentID string) {
	s.mu.Lock()
	ta, ok := s.agents[agentID]
	if !ok {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	requeued := 0
	for _, taskID := range ta.AssignedTasks {
		t, ok := s.pending[taskID]
		if !ok || t.AssignedAgent != agentID {
			continue
		}
		t.AssignedAgent = ""
		t.ActualStartTime = time.Time{}
		t.RetryCount++
		s.tasks.Enqueue(t, s.priorityValue(t, now))
		requeued++
	}
	delete(s.agents, agentID)
	s.agentOrder = removeID(s.agentOrder, agentID)
	s.mu.Unlock()

	s.logger.InfoCtx("agent unregistered", map[string]any{
		"agent":    agentID,
		"requeued": requeued,
	})
	s.emit(Event{Type: EventAgentUnregistered, AgentID: agentID, RetryCount: requeued})
}

// StartTask records that the caller has begun executing an assigned task.
// Started tasks are no longer eligible for work stealing and contribute to
// the wait-time metric. Unknown or unassigned IDs are no-ops.
func (s *Scheduler) StartTask(taskID string) {
	s.mu.Lock()
	t, ok := s.pending[taskID]
	if !ok || t.AssignedAgent == "" || !t.ActualStartTime.IsZero() {
		s.mu.Unlock()
		return
	}
	t.ActualStartTime = time.Now()
	agentID := t.AssignedAgent
	s.mu.Unlock()

	s.emit(Event{Type: EventTaskStarted, TaskID: taskID, AgentID: agentID})
}

// CompleteTask reports terminal success. Unknown IDs are no-ops: the task
// may already have been reconciled by an unregister or retry path.
func (s *Scheduler) CompleteTask(taskID string, duration time.Duration) {
	s.mu.Lock()
	t, ok := s.pending[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, taskID)
	s.completed[taskID] = t

	agentID := t.AssignedAgent
	if ta, ok := s.agents[agentID]; ok {
		ta.CurrentLoad = clamp01(ta.CurrentLoad - 0.1)
		ta.CompletedTasks++
		n := time.Duration(ta.CompletedTasks)
		ta.AverageTaskDuration = (ta.AverageTaskDuration*(n-1) + duration) / n
		ta.LastTaskTime = time.Now()
		ta.AssignedTasks = removeID(ta.AssignedTasks, taskID)
	}

	s.completedCount++
	if s.firstCompletedAt.IsZero() {
		s.firstCompletedAt = time.Now()
	}
	if !t.ActualStartTime.IsZero() {
		s.totalWait += t.ActualStartTime.Sub(t.ScheduledAt)
	}
	s.mu.Unlock()

	s.emit(Event{
		Type:     EventTaskCompleted,
		TaskID:   taskID,
		AgentID:  agentID,
		Duration: duration,
	})
}

// FailTask reports a failed attempt. Below the retry ceiling the task is
// re-enqueued with a boosted priority; at the ceiling it fails terminally.
// Unknown IDs are no-ops.
func (s *Scheduler) FailTask(taskID, reason string) {
	s.mu.Lock()
	t, ok := s.pending[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}

	agentID := t.AssignedAgent
	if ta, ok := s.agents[agentID]; ok {
		ta.CurrentLoad = clamp01(ta.CurrentLoad - 0.1)
		ta.PerformanceScore = clamp01(ta.PerformanceScore - 0.05)
		ta.FailedTasks++
		ta.AssignedTasks = removeID(ta.AssignedTasks, taskID)
	}

	if t.RetryCount < s.cfg.MaxRetries {
		t.RetryCount++
		t.AssignedAgent = ""
		t.ActualStartTime = time.Time{}
		s.tasks.Enqueue(t, s.priorityValue(t, time.Now()))
		retry := t.RetryCount
		s.mu.Unlock()

		s.logger.WarnCtx("task retrying", map[string]any{
			"task":  taskID,
			"retry": retry,
			"error": reason,
		})
		s.emit(Event{Type: EventTaskRetrying, TaskID: taskID, AgentID: agentID, RetryCount: retry, Error: reason})
		return
	}

	delete(s.pending, taskID)
	s.failedCount++
	retries := t.RetryCount
	s.mu.Unlock()

	s.logger.ErrorCtx("task failed terminally", map[string]any{
		"task":    taskID,
		"retries": retries,
		"error":   reason,
	})
	s.emit(Event{Type: EventTaskFailed, TaskID: taskID, AgentID: agentID, RetryCount: retries, Error: reason})
}

// AvailableAgents returns a snapshot of agents that can accept work.
func (s *Scheduler) AvailableAgents() []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	agents := make([]Agent, 0, len(s.agents))
	for _, ta := range s.availableLocked() {
		agents = append(agents, ta.Agent)
	}
	return agents
}

// availableLocked returns tracked agents eligible for assignment, in
// registration order so strategy tie-breaks are deterministic.
func (s *Scheduler) availableLocked() []*TrackedAgent {
	available := make([]*TrackedAgent, 0, len(s.agents))
	for _, id := range s.agentOrder {
		ta := s.agents[id]
		if ta.Available && ta.CurrentLoad < 0.9 {
			available = append(available, ta)
		}
	}
	return available
}

// Metrics returns a point-in-time snapshot of scheduler counters.
func (s *Scheduler) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Metrics{
		QueueDepth:       s.tasks.Len(),
		QueueCapacity:    s.cfg.MaxQueueDepth,
		Pressure:         s.pressureLocked(),
		TasksScheduled:   s.scheduledCount,
		TasksCompleted:   s.completedCount,
		TasksFailed:      s.failedCount,
		TasksStolen:      s.stolenCount,
		AgentUtilization: make(map[string]float64, len(s.agents)),
	}
	if s.completedCount > 0 {
		m.AverageWaitTime = s.totalWait / time.Duration(s.completedCount)
		if elapsed := time.Since(s.firstCompletedAt).Seconds(); elapsed > 0 {
			m.Throughput = float64(s.completedCount) / elapsed
		}
	}
	if s.decisionCount > 0 {
		m.AverageDecisionTime = s.totalDecision / time.Duration(s.decisionCount)
	}
	for id, ta := range s.agents {
		m.AgentUtilization[id] = ta.CurrentLoad
	}
	return m
}

// runTick executes one scheduling pass: rebalance, then drain the queue into
// available agents under the active strategy.
func (s *Scheduler) runTick() {
	s.mu.Lock()
	events := s.processQueueLocked()
	s.mu.Unlock()
	s.emit(events...)
}

func (s *Scheduler) processQueueLocked() []Event {
	available := s.availableLocked()
	if len(available) == 0 {
		return nil
	}

	var events []Event
	if s.cfg.EnableWorkStealing {
		events = append(events, s.rebalanceLocked(available)...)
		// Stolen capacity must be visible to this tick's assignment pass.
		available = s.availableLocked()
	}

	for !s.tasks.IsEmpty() && len(available) > 0 {
		head, _ := s.tasks.Peek()

		start := time.Now()
		decision := s.decideLocked(head, available)
		s.totalDecision += time.Since(start)
		s.decisionCount++

		if decision == nil {
			// No agent can take the head task this tick, e.g. required
			// capabilities are missing from the whole pool.
			break
		}

		s.tasks.Dequeue()
		events = append(events, s.assignLocked(head, decision))

		for i, ta := range available {
			if ta.ID == decision.AgentID && ta.CurrentLoad >= 0.9 {
				available = append(available[:i], available[i+1:]...)
				break
			}
		}
	}
	return events
}

// assignLocked applies a decision to the task and the chosen agent.
func (s *Scheduler) assignLocked(t *ScheduledTask, d *Decision) Event {
	now := time.Now()
	t.AssignedAgent = d.AgentID
	t.EstimatedStartTime = now
	t.EstimatedEndTime = now.Add(d.EstimatedDuration)

	ta := s.agents[d.AgentID]
	ta.AssignedTasks = append(ta.AssignedTasks, t.ID)
	ta.CurrentLoad = clamp01(ta.CurrentLoad + 0.1 + t.Complexity*0.1)
	ta.LastTaskTime = now

	s.scheduledCount++
	s.logger.DebugCtx("task assigned", map[string]any{
		"task":   t.ID,
		"agent":  d.AgentID,
		"score":  d.Score,
		"reason": d.Reason,
	})
	return Event{
		Type:     EventTaskAssigned,
		TaskID:   t.ID,
		AgentID:  d.AgentID,
		Priority: t.Priority,
		Score:    d.Score,
		Reason:   d.Reason,
		Duration: d.EstimatedDuration,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
