package fleet

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/marcus/swarmsched/internal/logging"
	"github.com/marcus/swarmsched/internal/scheduler"
)

// FeederConfig tunes the synthetic task generator.
type FeederConfig struct {
	Interval    time.Duration // delay between generated tasks
	MaxInterval time.Duration // backoff ceiling after rejection
	MaxElapsed  time.Duration // give up on a single task after this long
}

// DefaultFeederConfig returns the default feeder configuration.
func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		Interval:    200 * time.Millisecond,
		MaxInterval: 5 * time.Second,
		MaxElapsed:  30 * time.Second,
	}
}

// Feeder generates synthetic tasks and submits them to the scheduler,
// backing off exponentially when admission is rejected under pressure.
type Feeder struct {
	sched  *scheduler.Scheduler
	cfg    FeederConfig
	logger *logging.Logger
	rng    *rand.Rand
}

// NewFeeder creates a feeder bound to sched.
func NewFeeder(sched *scheduler.Scheduler, cfg FeederConfig) *Feeder {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultFeederConfig().Interval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultFeederConfig().MaxInterval
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = DefaultFeederConfig().MaxElapsed
	}
	return &Feeder{
		sched:  sched,
		cfg:    cfg,
		logger: logging.Component("feeder"),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Run generates tasks until ctx is cancelled.
func (f *Feeder) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := f.generate()
			if err := f.submit(ctx, t); err != nil && ctx.Err() == nil {
				f.logger.WarnCtx("task dropped", map[string]any{
					"task":  t.ID,
					"error": err.Error(),
				})
			}
		}
	}
}

// submit enqueues with exponential backoff on backpressure. Any other error
// is permanent.
func (f *Feeder) submit(ctx context.Context, t scheduler.Task) error {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		_, err := f.sched.Enqueue(t)
		if err == nil {
			return nil
		}
		var bp *scheduler.BackpressureError
		if errors.As(err, &bp) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.cfg.Interval
	policy.MaxInterval = f.cfg.MaxInterval
	policy.MaxElapsedTime = f.cfg.MaxElapsed

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

var priorityWeights = []struct {
	p scheduler.TaskPriority
	w float64
}{
	{scheduler.PriorityLow, 0.35},
	{scheduler.PriorityMedium, 0.40},
	{scheduler.PriorityHigh, 0.20},
	{scheduler.PriorityCritical, 0.05},
}

// generate produces a random task: weighted priority, uniform complexity,
// occasional capability requirements drawn from the fleet profiles.
func (f *Feeder) generate() scheduler.Task {
	t := scheduler.Task{
		ID:                uuid.NewString(),
		Priority:          f.pickPriority(),
		Complexity:        f.rng.Float64(),
		EstimatedDuration: time.Duration(100+f.rng.Int64N(500)) * time.Millisecond,
	}
	if f.rng.Float64() < 0.3 {
		profile := capabilityProfiles[f.rng.IntN(len(capabilityProfiles))]
		t.RequiredCapabilities = profile[:1+f.rng.IntN(len(profile))]
	}
	return t
}

func (f *Feeder) pickPriority() scheduler.TaskPriority {
	r := f.rng.Float64()
	for _, pw := range priorityWeights {
		if r < pw.w {
			return pw.p
		}
		r -= pw.w
	}
	return scheduler.PriorityLow
}
