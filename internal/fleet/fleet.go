// Package fleet simulates the worker side of the scheduler contract: a pool
// of heterogeneous agents that execute assigned tasks with configurable speed
// and failure rate, and a feeder that generates synthetic task load. Used by
// the run command and integration tests; real deployments register their own
// agents and drive the scheduler directly.
package fleet

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/marcus/swarmsched/internal/logging"
	"github.com/marcus/swarmsched/internal/scheduler"
)

// capabilityProfiles are cycled across simulated agents so capability-match
// scheduling has something to bite on.
var capabilityProfiles = [][]string{
	{"go", "rust"},
	{"javascript", "python"},
	{"go", "javascript", "python"},
	{"rust", "wasm"},
}

// Config parameterizes the simulated fleet.
type Config struct {
	Agents      int     // number of simulated agents
	FailureRate float64 // [0,1] chance a task attempt fails
	SpeedFactor float64 // >1 runs tasks faster than their estimate
}

// DefaultConfig returns the default fleet configuration.
func DefaultConfig() Config {
	return Config{
		Agents:      4,
		FailureRate: 0.1,
		SpeedFactor: 1.0,
	}
}

// Fleet owns a set of simulated agents registered with a scheduler.
type Fleet struct {
	sched  *scheduler.Scheduler
	cfg    Config
	logger *logging.Logger

	mu   sync.Mutex
	rng  *rand.Rand
	mine map[string]bool // agent IDs this fleet registered

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a fleet bound to sched. Call Register before Start on the
// scheduler, and pass HandleEvent via scheduler.WithEventHandler.
func New(sched *scheduler.Scheduler, cfg Config) *Fleet {
	if cfg.Agents <= 0 {
		cfg.Agents = DefaultConfig().Agents
	}
	if cfg.SpeedFactor <= 0 {
		cfg.SpeedFactor = 1.0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Fleet{
		sched:  sched,
		cfg:    cfg,
		logger: logging.Component("fleet"),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		mine:   make(map[string]bool),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds cfg.Agents simulated agents to the scheduler.
func (f *Fleet) Register() {
	f.mu.Lock()
	agents := make([]scheduler.Agent, 0, f.cfg.Agents)
	for i := 0; i < f.cfg.Agents; i++ {
		id := fmt.Sprintf("agent-%d", i+1)
		f.mine[id] = true
		agents = append(agents, scheduler.Agent{
			ID:               id,
			Capabilities:     capabilityProfiles[i%len(capabilityProfiles)],
			Available:        true,
			PerformanceScore: 0.5 + f.rng.Float64()*0.5,
		})
	}
	f.mu.Unlock()

	for _, a := range agents {
		f.sched.RegisterAgent(a)
	}
	f.logger.InfoCtx("fleet registered", map[string]any{"agents": len(agents)})
}

// HandleEvent reacts to task:assigned events for this fleet's agents by
// executing the task on a worker goroutine. Other events are ignored.
func (f *Fleet) HandleEvent(e scheduler.Event) {
	if e.Type != scheduler.EventTaskAssigned {
		return
	}
	f.mu.Lock()
	owned := f.mine[e.AgentID]
	f.mu.Unlock()
	if !owned {
		return
	}

	f.wg.Add(1)
	go f.execute(e.TaskID, e.AgentID, e.Duration)
}

// execute simulates one task attempt: report start, run for the scaled
// duration, then report success or failure.
func (f *Fleet) execute(taskID, agentID string, estimated time.Duration) {
	defer f.wg.Done()

	select {
	case <-f.ctx.Done():
		return
	case <-time.After(f.jitter(5 * time.Millisecond)):
	}
	f.sched.StartTask(taskID)

	runtime := f.runtimeFor(estimated)
	select {
	case <-f.ctx.Done():
		return
	case <-time.After(runtime):
	}

	f.mu.Lock()
	failed := f.rng.Float64() < f.cfg.FailureRate
	f.mu.Unlock()

	if failed {
		f.sched.FailTask(taskID, "simulated failure")
		return
	}
	f.sched.CompleteTask(taskID, runtime)
}

// runtimeFor scales the estimate by the speed factor with +-20% jitter.
func (f *Fleet) runtimeFor(estimated time.Duration) time.Duration {
	if estimated <= 0 {
		estimated = 100 * time.Millisecond
	}
	base := time.Duration(float64(estimated) / f.cfg.SpeedFactor)
	return base + f.jitter(base/5)
}

func (f *Fleet) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Duration(f.rng.Int64N(int64(max)))
}

// Stop cancels in-flight simulated work and waits for workers to exit. Agents
// stay registered; the caller decides whether to unregister or destroy.
func (f *Fleet) Stop() {
	f.cancel()
	f.wg.Wait()
}
