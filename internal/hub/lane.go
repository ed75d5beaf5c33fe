package hub

// Lane is a named concurrency domain. Each lane has its own admission limit
// and FIFO queue; tasks in different lanes never block each other.
type Lane string

const (
	LaneMain     Lane = "main"     // trading decisions, serialized
	LaneResearch Lane = "research" // background research, parallel
	LaneMonitor  Lane = "monitor"  // position monitoring, parallel
	LaneCron     Lane = "cron"     // scheduled jobs, serialized
)

// Lanes returns all lanes in a stable order.
func Lanes() []Lane {
	return []Lane{LaneMain, LaneResearch, LaneMonitor, LaneCron}
}

// ParseLane validates a lane name. The lane set is fixed.
func ParseLane(name string) (Lane, error) {
	switch Lane(name) {
	case LaneMain, LaneResearch, LaneMonitor, LaneCron:
		return Lane(name), nil
	}
	return "", &SubmissionRejectedError{Reason: "unknown lane " + name}
}

// DefaultLimits mirrors the per-lane concurrency ceilings of the trading
// system: decisions and scheduled jobs serialized, research and monitoring
// parallel.
func DefaultLimits() map[Lane]int {
	return map[Lane]int{
		LaneMain:     1,
		LaneResearch: 3,
		LaneMonitor:  2,
		LaneCron:     1,
	}
}

// laneState is the admission controller for a single lane. All fields are
// guarded by the owning Hub's mutex; the sequential lanes are just lanes
// with limit 1 and take no separate code path.
type laneState struct {
	limit  int
	active int
	queue  []*Task
}

func (ls *laneState) enqueue(t *Task) {
	ls.queue = append(ls.queue, t)
}

// tryAdmit pops the oldest queued task if a slot is free. Returns nil when
// the lane is saturated or empty.
func (ls *laneState) tryAdmit() *Task {
	if ls.active >= ls.limit || len(ls.queue) == 0 {
		return nil
	}
	t := ls.queue[0]
	ls.queue = ls.queue[1:]
	ls.active++
	return t
}

// release frees one admitted slot. Must be called exactly once per admitted
// task; a slot that is never released deadlocks the lane permanently.
func (ls *laneState) release() {
	if ls.active <= 0 {
		panic("hub: lane release without matching admit")
	}
	ls.active--
}

// removeBySession pulls every still-queued task belonging to the session out
// of the queue, preserving the order of the remainder. Active tasks are left
// alone; they run to completion.
func (ls *laneState) removeBySession(sessionID string) []*Task {
	var removed []*Task
	kept := ls.queue[:0]
	for _, t := range ls.queue {
		if t.SessionID == sessionID {
			removed = append(removed, t)
		} else {
			kept = append(kept, t)
		}
	}
	ls.queue = kept
	return removed
}
