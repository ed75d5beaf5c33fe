package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/pkg/telemetry"
)

// ResultStore holds terminal task outcomes until consumed or reaped. An
// outcome is visible to Take from the moment execution ends until exactly
// one of: a successful Take, or eviction by the reaper.
type ResultStore struct {
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	outcomes map[string]*Outcome
	storedAt map[string]time.Time
	cleaned  int64
}

// NewResultStore creates a store whose reaper evicts outcomes older than
// retention, checking every interval. Run must be called to start the reaper.
func NewResultStore(retention, interval time.Duration, logger *slog.Logger) *ResultStore {
	return &ResultStore{
		retention: retention,
		interval:  interval,
		logger:    logger,
		outcomes:  make(map[string]*Outcome),
		storedAt:  make(map[string]time.Time),
	}
}

// Put stores an outcome. Outcomes are immutable once stored; Put is called
// exactly once per task by the completion wrapper.
func (s *ResultStore) Put(o *Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[o.TaskID] = o
	s.storedAt[o.TaskID] = o.FinishedAt
}

// Take returns and removes the outcome for the task id. Returns
// UnknownTaskError if the id was never stored, already consumed, or reaped.
func (s *ResultStore) Take(taskID string) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[taskID]
	if !ok {
		return nil, &UnknownTaskError{TaskID: taskID}
	}
	delete(s.outcomes, taskID)
	delete(s.storedAt, taskID)
	return o, nil
}

// Len reports the number of unconsumed outcomes.
func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

// Cleaned reports the cumulative number of outcomes evicted by the reaper.
func (s *ResultStore) Cleaned() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleaned
}

// Run is the reaper loop. Blocks until ctx is cancelled.
func (s *ResultStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.reap(now); n > 0 {
				s.logger.Info("reaped expired task results", slog.Int("count", n))
			}
		}
	}
}

// reap evicts outcomes older than the retention window and returns the
// number evicted in this pass.
func (s *ResultStore) reap(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, at := range s.storedAt {
		if now.Sub(at) > s.retention {
			delete(s.outcomes, id)
			delete(s.storedAt, id)
			n++
		}
	}
	if n > 0 {
		s.cleaned += int64(n)
		telemetry.ResultsReaped.Add(float64(n))
	}
	return n
}
