package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/marcus/swarmsched/internal/config"
	"github.com/marcus/swarmsched/internal/fleet"
	"github.com/marcus/swarmsched/internal/history"
	"github.com/marcus/swarmsched/internal/logging"
	"github.com/marcus/swarmsched/internal/scheduler"
	"github.com/marcus/swarmsched/internal/ui"
)

var (
	runUIFlag       bool
	runDurationFlag time.Duration
	runNoFeedFlag   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler with a simulated fleet",
	Long: `Run the scheduler loop with a simulated agent fleet and task feeder.

The fleet registers agents, executes assigned tasks, and reports outcomes;
terminal results and periodic metrics snapshots are persisted to the history
database. Use --ui for a live dashboard, or watch the structured logs.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runUIFlag, "ui", false, "Show the live dashboard")
	runCmd.Flags().DurationVar(&runDurationFlag, "duration", 0, "Stop after this long (0 = run until interrupted)")
	runCmd.Flags().BoolVar(&runNoFeedFlag, "no-feed", false, "Do not generate synthetic tasks")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logging.Component("run")

	store, err := history.Open(logging.ExpandPath(cfg.History.Path))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = store.Close() }()

	sched := scheduler.New(
		scheduler.WithConfig(schedulerConfigFrom(&cfg.Scheduler)),
		scheduler.WithLogger(logging.Component("scheduler")),
	)
	defer sched.Destroy()

	sched.Subscribe(newOutcomeRecorder(store, log).handle)

	fl := fleet.New(sched, fleet.Config{
		Agents:      cfg.Fleet.Agents,
		FailureRate: cfg.Fleet.FailureRate,
		SpeedFactor: cfg.Fleet.SpeedFactor,
	})
	sched.Subscribe(fl.HandleEvent)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDurationFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDurationFlag)
		defer cancel()
	}

	var uiDone <-chan struct{}
	if runUIFlag {
		uiDone, err = startDashboard(ctx, sched)
		if err != nil {
			return fmt.Errorf("start dashboard: %w", err)
		}
	}

	jobs := startHistoryJobs(cfg, sched, store, log)
	defer func() { <-jobs.Stop().Done() }()

	fl.Register()
	sched.Start()

	if !runNoFeedFlag {
		feeder := fleet.NewFeeder(sched, fleet.DefaultFeederConfig())
		go feeder.Run(ctx)
	}

	log.Info("running; press Ctrl+C to stop")
	select {
	case <-ctx.Done():
	case <-waitOrNil(uiDone):
	}

	sched.Stop()
	fl.Stop()

	recordFinalSnapshot(sched, store, log)
	m := sched.Metrics()
	log.InfoCtx("run finished", map[string]any{
		"scheduled": m.TasksScheduled,
		"completed": m.TasksCompleted,
		"failed":    m.TasksFailed,
		"stolen":    m.TasksStolen,
	})
	return nil
}

// waitOrNil turns a nil channel into one that never fires.
func waitOrNil(ch <-chan struct{}) <-chan struct{} {
	if ch == nil {
		return make(chan struct{})
	}
	return ch
}

// schedulerConfigFrom maps file config onto the scheduler's config struct.
func schedulerConfigFrom(sc *config.SchedulerConfig) scheduler.Config {
	return scheduler.Config{
		Strategy:                  scheduler.Strategy(sc.Strategy),
		MaxQueueDepth:             sc.MaxQueueDepth,
		HighPressureThreshold:     sc.HighPressureThreshold,
		CriticalPressureThreshold: sc.CriticalPressureThreshold,
		EnableWorkStealing:        sc.EnableWorkStealing,
		WorkStealingThreshold:     sc.WorkStealingThreshold,
		TickInterval:              sc.TickIntervalDuration(),
		MaxRetries:                sc.MaxRetries,
	}
}

// outcomeRecorder persists terminal task results. Priorities and retry counts
// arrive on earlier events than the terminal one, so it keeps a small cache.
type outcomeRecorder struct {
	store *history.Store
	log   *logging.Logger

	mu         sync.Mutex
	priorities map[string]scheduler.TaskPriority
}

func newOutcomeRecorder(store *history.Store, log *logging.Logger) *outcomeRecorder {
	return &outcomeRecorder{
		store:      store,
		log:        log,
		priorities: make(map[string]scheduler.TaskPriority),
	}
}

func (r *outcomeRecorder) handle(e scheduler.Event) {
	switch e.Type {
	case scheduler.EventTaskEnqueued:
		r.mu.Lock()
		r.priorities[e.TaskID] = e.Priority
		r.mu.Unlock()
		return
	case scheduler.EventTaskCompleted, scheduler.EventTaskFailed:
	default:
		return
	}

	r.mu.Lock()
	priority := r.priorities[e.TaskID]
	delete(r.priorities, e.TaskID)
	r.mu.Unlock()

	status := "completed"
	if e.Type == scheduler.EventTaskFailed {
		status = "failed"
	}
	err := r.store.RecordOutcome(history.Outcome{
		TaskID:     e.TaskID,
		Priority:   string(priority),
		AgentID:    e.AgentID,
		Status:     status,
		Retries:    e.RetryCount,
		Duration:   e.Duration,
		Error:      e.Error,
		FinishedAt: e.Time,
	})
	if err != nil {
		r.log.Warnf("record outcome: %v", err)
	}
}

// startHistoryJobs schedules the periodic metrics snapshot and daily prune.
func startHistoryJobs(cfg *config.Config, sched *scheduler.Scheduler, store *history.Store, log *logging.Logger) *cron.Cron {
	c := cron.New()

	if _, err := c.AddFunc(cfg.History.SnapshotCron, func() {
		recordFinalSnapshot(sched, store, log)
	}); err != nil {
		log.Warnf("invalid snapshot cron %q: %v", cfg.History.SnapshotCron, err)
	}

	retention := cfg.History.RetentionDays
	if _, err := c.AddFunc("@daily", func() {
		deleted, err := store.Prune(retention)
		if err != nil {
			log.Warnf("history prune: %v", err)
			return
		}
		if deleted > 0 {
			log.Infof("history prune: deleted %d rows", deleted)
		}
	}); err != nil {
		log.Warnf("prune cron: %v", err)
	}

	c.Start()
	return c
}

// recordFinalSnapshot persists the current metrics as a snapshot row.
func recordFinalSnapshot(sched *scheduler.Scheduler, store *history.Store, log *logging.Logger) {
	m := sched.Metrics()
	err := store.RecordSnapshot(history.Snapshot{
		QueueDepth:      m.QueueDepth,
		QueueCapacity:   m.QueueCapacity,
		Pressure:        string(m.Pressure),
		TasksScheduled:  m.TasksScheduled,
		TasksCompleted:  m.TasksCompleted,
		TasksFailed:     m.TasksFailed,
		TasksStolen:     m.TasksStolen,
		AverageWait:     m.AverageWaitTime,
		AverageDecision: m.AverageDecisionTime,
		Throughput:      m.Throughput,
	})
	if err != nil {
		log.Warnf("record snapshot: %v", err)
	}
}

// startDashboard launches the TUI and wires scheduler events and periodic
// metrics into it. The returned channel closes when the user quits.
func startDashboard(ctx context.Context, sched *scheduler.Scheduler) (<-chan struct{}, error) {
	model := ui.New()
	program, err := model.RunWithProgram()
	if err != nil {
		return nil, err
	}

	sched.Subscribe(func(e scheduler.Event) {
		program.Send(ui.EventMsg(e))
	})

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				program.Quit()
				return
			case <-ticker.C:
				program.Send(ui.MetricsMsg(sched.Metrics()))
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		program.Wait()
		close(done)
	}()
	return done, nil
}
