package scheduler

import "time"

// EventType classifies scheduler lifecycle events.
type EventType int

const (
	EventTaskEnqueued      EventType = iota // task accepted into the queue
	EventTaskAssigned                       // task handed to an agent
	EventTaskStarted                        // caller reported execution start
	EventTaskCompleted                      // terminal success
	EventTaskRetrying                       // failed, re-enqueued with a retry boost
	EventTaskFailed                         // terminal failure, retries exhausted
	EventTaskStolen                         // rebalanced between agents
	EventAgentRegistered
	EventAgentUnregistered
	EventStarted // tick loop started
	EventStopped // tick loop stopped
)

func (t EventType) String() string {
	switch t {
	case EventTaskEnqueued:
		return "task:enqueued"
	case EventTaskAssigned:
		return "task:assigned"
	case EventTaskStarted:
		return "task:started"
	case EventTaskCompleted:
		return "task:completed"
	case EventTaskRetrying:
		return "task:retrying"
	case EventTaskFailed:
		return "task:failed"
	case EventTaskStolen:
		return "task:stolen"
	case EventAgentRegistered:
		return "agent:registered"
	case EventAgentUnregistered:
		return "agent:unregistered"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event carries data about a scheduler lifecycle event. Fields beyond Type
// and Time are populated as relevant to the event.
type Event struct {
	Type       EventType
	Time       time.Time
	TaskID     string
	AgentID    string
	FromAgent  string // task:stolen source
	ToAgent    string // task:stolen destination
	Priority   TaskPriority
	QueueDepth int
	RetryCount int
	Score      float64
	Reason     string
	Duration   time.Duration
	Pressure   Pressure
	Error      string
}

// EventHandler is a callback that receives scheduler events. Handlers run on
// the goroutine that triggered the event, after the scheduler's critical
// section has been released; they may call back into the scheduler.
type EventHandler func(Event)
