package hub

import "time"

// Status represents the states a task moves through. Transitions are
// one-directional: QUEUED → ACTIVE → {COMPLETED | FAILED}, or
// QUEUED → CANCELLED for tasks pulled from a queue before admission.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Payload is the work descriptor handed to the executor. It is a closed
// union over the known task kinds so executor dispatch is exhaustive.
type Payload interface {
	Kind() string
}

// ResearchPayload asks for a background market forecast.
type ResearchPayload struct {
	MarketID string `json:"market_id"`
	Question string `json:"question"`
	Outcome  string `json:"outcome"`
}

func (ResearchPayload) Kind() string { return "research" }

// MonitorPayload asks for a status report on open positions in a market.
type MonitorPayload struct {
	MarketID string `json:"market_id"`
}

func (MonitorPayload) Kind() string { return "monitor" }

// TradeDecisionPayload asks for a full forecast-and-size decision against a
// quoted market price.
type TradeDecisionPayload struct {
	MarketID string  `json:"market_id"`
	Question string  `json:"question"`
	Outcome  string  `json:"outcome"`
	Price    float64 `json:"price"`
}

func (TradeDecisionPayload) Kind() string { return "trade_decision" }

// CronJobPayload names a scheduled job to run, e.g. "trading-cycle" or
// "portfolio-snapshot".
type CronJobPayload struct {
	Job  string            `json:"job"`
	Args map[string]string `json:"args,omitempty"`
}

func (CronJobPayload) Kind() string { return "cron_job" }

// Task is a unit of agent work owned by a lane while queued or active. Its
// terminal record moves to the result store when execution ends.
type Task struct {
	ID         string
	Lane       Lane
	SessionID  string // empty when not attached to a session
	Payload    Payload
	Status     Status
	EnqueuedAt time.Time
	StartedAt  time.Time

	// done is closed exactly once, after the outcome is visible in the
	// result store. Await blocks on it.
	done chan struct{}
}

// Outcome is the immutable terminal record of a task.
type Outcome struct {
	TaskID     string
	Lane       Lane
	Status     Status // COMPLETED, FAILED, or CANCELLED
	Value      any    // executor result, nil on failure
	Err        error  // executor error, nil on success
	Duration   time.Duration
	FinishedAt time.Time
}
