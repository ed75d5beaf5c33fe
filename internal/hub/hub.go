// Package hub implements the TradingHub: a concurrency-limited, multi-lane
// scheduler for asynchronous agent work. It owns the lanes, the session
// registry, and the result store, and delegates task bodies to an external
// Executor.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/pkg/telemetry"
)

// Executor runs a task body. It may take arbitrary wall-clock time and must
// report faults through the error return; a panic is mapped to a FAILED
// outcome by the hub's completion wrapper.
type Executor interface {
	Execute(ctx context.Context, task *Task) (any, error)
}

// Notifier receives a change event after every task state transition. It
// must not block; the hub calls it outside its locks.
type Notifier func(event string, data any)

// Stats are the hub's cumulative counters. Monotonic until restart.
type Stats struct {
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed"`
	TasksCancelled int64 `json:"tasks_cancelled"`
	ResultsCleaned int64 `json:"results_cleaned"`
}

// LaneStatus is the point-in-time view of one lane.
type LaneStatus struct {
	Active int `json:"active"`
	Queued int `json:"queued"`
	Limit  int `json:"limit"`
}

// Snapshot is a consistent point-in-time view of the hub, cheap to compute:
// O(number of lanes), never O(number of historical tasks).
type Snapshot struct {
	Running        bool                `json:"running"`
	Sessions       int                 `json:"sessions"`
	Lanes          map[Lane]LaneStatus `json:"lanes"`
	Stats          Stats               `json:"stats"`
	PendingResults int                 `json:"pending_results"`
}

// Hub is the single control plane coordinating all agent task lanes.
type Hub struct {
	executor Executor
	logger   *slog.Logger
	notify   Notifier
	grace    time.Duration

	mu        sync.Mutex
	running   bool
	lanes     map[Lane]*laneState
	tasks     map[string]*Task // queued + active only
	completed int64
	failed    int64
	cancelled int64

	results  *ResultStore
	sessions *SessionRegistry

	wg        sync.WaitGroup // in-flight task goroutines
	runCtx    context.Context
	runCancel context.CancelFunc

	retention time.Duration
	reapEvery time.Duration
	limits    map[Lane]int
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(h *Hub) { h.logger = l } }

// WithLimits overrides per-lane admission limits. Limits are fixed once
// Start is called.
func WithLimits(limits map[Lane]int) Option {
	return func(h *Hub) {
		for lane, limit := range limits {
			if limit > 0 {
				h.limits[lane] = limit
			}
		}
	}
}

// WithRetention sets how long unconsumed outcomes are kept.
func WithRetention(d time.Duration) Option { return func(h *Hub) { h.retention = d } }

// WithReapInterval sets how often the reaper scans for expired outcomes.
func WithReapInterval(d time.Duration) Option { return func(h *Hub) { h.reapEvery = d } }

// WithGracePeriod bounds how long Stop waits for active tasks to drain.
func WithGracePeriod(d time.Duration) Option { return func(h *Hub) { h.grace = d } }

// WithNotifier registers a change-notification hook, e.g. an SSE broadcaster.
func WithNotifier(fn Notifier) Option { return func(h *Hub) { h.notify = fn } }

// New constructs a Hub. Call Start before submitting.
func New(executor Executor, opts ...Option) *Hub {
	h := &Hub{
		executor:  executor,
		logger:    slog.Default(),
		grace:     30 * time.Second,
		retention: 5 * time.Minute,
		reapEvery: 10 * time.Second,
		limits:    DefaultLimits(),
		tasks:     make(map[string]*Task),
		sessions:  NewSessionRegistry(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.results = NewResultStore(h.retention, h.reapEvery, h.logger)
	return h
}

// Start initializes the lanes and starts the result reaper. Calling Start
// on a running hub is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.lanes = make(map[Lane]*laneState, len(h.limits))
	for _, lane := range Lanes() {
		h.lanes[lane] = &laneState{limit: h.limits[lane]}
	}
	h.runCtx, h.runCancel = context.WithCancel(context.Background())
	h.running = true
	go h.results.Run(h.runCtx)
	h.logger.Info("hub started",
		slog.Int("main_limit", h.limits[LaneMain]),
		slog.Int("research_limit", h.limits[LaneResearch]),
		slog.Int("monitor_limit", h.limits[LaneMonitor]),
		slog.Int("cron_limit", h.limits[LaneCron]),
	)
}

// Stop stops accepting submissions, waits for active tasks to drain bounded
// by the grace period (or ctx, whichever is shorter), then halts the reaper.
// Tasks still active after the grace period are abandoned: their completion
// callbacks fire eventually and still release their slots.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	h.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		h.logger.Info("hub drained cleanly")
	case <-time.After(h.grace):
		h.logger.Warn("grace period elapsed, abandoning active tasks",
			slog.Int("active", h.activeTotal()))
	case <-ctx.Done():
		h.logger.Warn("stop cancelled, abandoning active tasks",
			slog.Int("active", h.activeTotal()))
	}

	h.runCancel()
	h.sessions.CloseAll()
	h.logger.Info("hub stopped")
	return nil
}

func (h *Hub) activeTotal() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ls := range h.lanes {
		n += ls.active
	}
	return n
}

// Submit validates the lane, enqueues the task and triggers admission.
// Returns the task id immediately; it never blocks on execution. sessionID
// may be empty. A missing session is logged and the task runs unattached.
func (h *Hub) Submit(ctx context.Context, lane Lane, payload Payload, sessionID string) (string, error) {
	_, span := otel.Tracer("hub").Start(ctx, "hub.submit")
	defer span.End()

	t := &Task{
		ID:         uuid.New().String(),
		Lane:       lane,
		SessionID:  sessionID,
		Payload:    payload,
		Status:     StatusQueued,
		EnqueuedAt: time.Now().UTC(),
		done:       make(chan struct{}),
	}
	span.SetAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("task.lane", string(lane)),
		attribute.String("task.kind", payload.Kind()),
	)

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		err := &SubmissionRejectedError{Reason: "hub not running"}
		span.RecordError(err)
		span.SetStatus(codes.Error, "hub not running")
		return "", err
	}
	ls, ok := h.lanes[lane]
	if !ok {
		h.mu.Unlock()
		err := &SubmissionRejectedError{Reason: "unknown lane " + string(lane)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown lane")
		return "", err
	}
	h.tasks[t.ID] = t
	ls.enqueue(t)
	telemetry.TasksEnqueued.WithLabelValues(string(lane)).Inc()
	h.admitLocked(lane)
	h.updateGaugesLocked(lane)
	h.mu.Unlock()

	if sessionID != "" {
		if err := h.sessions.Attach(sessionID, t.ID); err != nil {
			h.logger.Warn("task not attached to session",
				slog.String("task_id", t.ID),
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	h.logger.Info("task submitted",
		slog.String("task_id", t.ID),
		slog.String("lane", string(lane)),
		slog.String("kind", payload.Kind()),
	)
	h.emit("task_submitted", map[string]string{
		"task_id": t.ID,
		"lane":    string(lane),
		"kind":    payload.Kind(),
	})
	return t.ID, nil
}

// admitLocked saturates the lane: while a slot is free and the queue is
// non-empty, pop the oldest task and launch it. Caller holds h.mu. After
// Stop, tasks still queued are left untouched.
func (h *Hub) admitLocked(lane Lane) {
	if !h.running {
		return
	}
	ls := h.lanes[lane]
	for {
		t := ls.tryAdmit()
		if t == nil {
			return
		}
		t.Status = StatusActive
		t.StartedAt = time.Now().UTC()
		h.wg.Add(1)
		go h.runTask(t)
	}
}

// runTask is the completion wrapper around the executor. Whether the
// executor returns, errors, or panics, the outcome is stored, the done
// channel closes, and the lane slot is released exactly once.
func (h *Hub) runTask(t *Task) {
	defer h.wg.Done()

	ctx, span := otel.Tracer("hub").Start(h.runCtx, "hub.execute_task")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("task.lane", string(t.Lane)),
		attribute.String("task.kind", t.Payload.Kind()),
	)

	start := time.Now()
	var value any
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("executor panic: %v", r)
			}
		}()
		value, err = h.executor.Execute(ctx, t)
	}()
	dur := time.Since(start)

	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "task failed")
	}

	o := &Outcome{
		TaskID:     t.ID,
		Lane:       t.Lane,
		Status:     status,
		Value:      value,
		Err:        err,
		Duration:   dur,
		FinishedAt: time.Now().UTC(),
	}

	// The outcome must be visible to Take before done closes and before the
	// task disappears from the in-flight map.
	h.results.Put(o)

	h.mu.Lock()
	t.Status = status
	delete(h.tasks, t.ID)
	ls := h.lanes[t.Lane]
	ls.release()
	if status == StatusFailed {
		h.failed++
	} else {
		h.completed++
	}
	h.admitLocked(t.Lane)
	h.updateGaugesLocked(t.Lane)
	h.mu.Unlock()

	close(t.done)

	telemetry.TasksFinished.WithLabelValues(string(t.Lane), string(status)).Inc()
	telemetry.TaskDurationSeconds.WithLabelValues(string(t.Lane)).Observe(dur.Seconds())

	if err != nil {
		h.logger.Error("task failed",
			slog.String("task_id", t.ID),
			slog.String("lane", string(t.Lane)),
			slog.Int64("duration_ms", dur.Milliseconds()),
			slog.String("error", err.Error()),
		)
	} else {
		h.logger.Info("task completed",
			slog.String("task_id", t.ID),
			slog.String("lane", string(t.Lane)),
			slog.Int64("duration_ms", dur.Milliseconds()),
		)
	}
	h.emit("task_finished", o)
}

// Await blocks the caller until the task reaches a terminal state, the
// timeout elapses, or ctx is cancelled. The outcome is consumed: a second
// Await for the same id returns UnknownTaskError. timeout == 0 polls without
// blocking; timeout < 0 waits indefinitely. On timeout the task keeps
// running; it is not cancelled.
func (h *Hub) Await(ctx context.Context, taskID string, timeout time.Duration) (*Outcome, error) {
	if o, err := h.results.Take(taskID); err == nil {
		return o, nil
	}

	h.mu.Lock()
	t, inFlight := h.tasks[taskID]
	h.mu.Unlock()
	if !inFlight {
		// The task may have finished between the Take and the map lookup.
		if o, err := h.results.Take(taskID); err == nil {
			return o, nil
		}
		return nil, &UnknownTaskError{TaskID: taskID}
	}

	if timeout == 0 {
		return nil, &AwaitTimeoutError{TaskID: taskID}
	}

	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	select {
	case <-t.done:
		o, err := h.results.Take(taskID)
		if err != nil {
			return nil, err // consumed by another waiter or already reaped
		}
		return o, nil
	case <-timer:
		return nil, &AwaitTimeoutError{TaskID: taskID, Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OpenSession registers a new logical unit of work and returns its id.
func (h *Hub) OpenSession(agentType string) string {
	return h.sessions.Open(agentType)
}

// CloseSession marks a session ended. In-flight tasks are not cancelled.
func (h *Hub) CloseSession(sessionID string) error {
	return h.sessions.Close(sessionID)
}

// Session returns a copy of the session record, or nil if unknown.
func (h *Hub) Session(sessionID string) *Session {
	return h.sessions.Get(sessionID)
}

// CancelSession ends the session and cancels every still-queued task that
// belongs to it. Active tasks run to completion. Returns the number of
// tasks cancelled.
func (h *Hub) CancelSession(sessionID string) int {
	if err := h.sessions.Close(sessionID); err != nil {
		h.logger.Warn("cancel on unknown session", slog.String("session_id", sessionID))
	}

	h.mu.Lock()
	var removed []*Task
	for lane, ls := range h.lanes {
		pulled := ls.removeBySession(sessionID)
		if len(pulled) > 0 {
			removed = append(removed, pulled...)
			h.updateGaugesLocked(lane)
		}
	}
	h.cancelled += int64(len(removed))
	for _, t := range removed {
		t.Status = StatusCancelled
		delete(h.tasks, t.ID)
	}
	h.mu.Unlock()

	now := time.Now().UTC()
	for _, t := range removed {
		h.results.Put(&Outcome{
			TaskID:     t.ID,
			Lane:       t.Lane,
			Status:     StatusCancelled,
			Err:        fmt.Errorf("task cancelled with session %s", sessionID),
			FinishedAt: now,
		})
		close(t.done)
		telemetry.TasksFinished.WithLabelValues(string(t.Lane), string(StatusCancelled)).Inc()
	}

	if len(removed) > 0 {
		h.logger.Info("cancelled queued session tasks",
			slog.String("session_id", sessionID),
			slog.Int("count", len(removed)),
		)
		h.emit("session_cancelled", map[string]any{
			"session_id": sessionID,
			"cancelled":  len(removed),
		})
	}
	return len(removed)
}

// Status returns a consistent snapshot of every lane plus the cumulative
// counters. Lane counters are read under a single lock so no torn
// {active, queued} pair can be observed.
func (h *Hub) Status() Snapshot {
	h.mu.Lock()
	snap := Snapshot{
		Running: h.running,
		Lanes:   make(map[Lane]LaneStatus, len(h.lanes)),
		Stats: Stats{
			TasksCompleted: h.completed,
			TasksFailed:    h.failed,
			TasksCancelled: h.cancelled,
		},
	}
	for lane, ls := range h.lanes {
		snap.Lanes[lane] = LaneStatus{Active: ls.active, Queued: len(ls.queue), Limit: ls.limit}
	}
	h.mu.Unlock()

	snap.Stats.ResultsCleaned = h.results.Cleaned()
	snap.PendingResults = h.results.Len()
	snap.Sessions = h.sessions.Count()
	return snap
}

// Running reports whether the hub accepts submissions.
func (h *Hub) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Hub) updateGaugesLocked(lane Lane) {
	ls := h.lanes[lane]
	telemetry.LaneActive.WithLabelValues(string(lane)).Set(float64(ls.active))
	telemetry.LaneQueued.WithLabelValues(string(lane)).Set(float64(len(ls.queue)))
}

func (h *Hub) emit(event string, data any) {
	if h.notify != nil {
		h.notify(event, data)
	}
}
