package hub

import (
	"fmt"
	"time"
)

// SubmissionRejectedError is returned by Submit when the hub is not running
// or the lane name is unknown.
type SubmissionRejectedError struct {
	Reason string
}

func (e *SubmissionRejectedError) Error() string {
	return "submission rejected: " + e.Reason
}

// AwaitTimeoutError is returned when a task did not reach a terminal state
// within the await timeout. The task itself keeps running.
type AwaitTimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *AwaitTimeoutError) Error() string {
	return fmt.Sprintf("task %s still running after %s", e.TaskID, e.Timeout)
}

// UnknownTaskError is returned when a task id is not found: expired, already
// consumed, or never existed. Callers polling after the retention window
// must treat this as a normal outcome.
type UnknownTaskError struct {
	TaskID string
}

func (e *UnknownTaskError) Error() string {
	return "unknown task: " + e.TaskID
}

// UnknownSessionError is returned by session operations on a missing or
// already ended session. Non-fatal: an orphaned task still runs.
type UnknownSessionError struct {
	SessionID string
}

func (e *UnknownSessionError) Error() string {
	return "unknown session: " + e.SessionID
}
