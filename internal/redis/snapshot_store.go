// Package redis mirrors hub state into Redis so external dashboards can
// read status and recent outcomes without touching the hub process. It also
// holds the sliding-window limiter throttling task submissions per client.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/hub"
)

const (
	statusTTL  = 30 * time.Second
	outcomeTTL = 10 * time.Minute

	statusKey = "tradinghub:status"
)

func outcomeKey(taskID string) string { return "tradinghub:outcome:" + taskID }

// outcomeRecord is the wire shape of a mirrored outcome. The executor error
// is flattened to a string; Value must already be JSON-marshallable.
type outcomeRecord struct {
	TaskID     string    `json:"task_id"`
	Lane       string    `json:"lane"`
	Status     string    `json:"status"`
	Value      any       `json:"value,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// SnapshotStore publishes hub snapshots and terminal outcomes.
type SnapshotStore interface {
	PublishStatus(ctx context.Context, snap hub.Snapshot) error
	SetOutcome(ctx context.Context, o *hub.Outcome) error
	GetStatus(ctx context.Context) (*hub.Snapshot, error)
}

type snapshotStore struct {
	client *redis.Client
}

// NewSnapshotStore creates a Redis-backed SnapshotStore.
func NewSnapshotStore(client *redis.Client) SnapshotStore {
	return &snapshotStore{client: client}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (s *snapshotStore) PublishStatus(ctx context.Context, snap hub.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal status snapshot: %w", err)
	}
	if err := s.client.Set(ctx, statusKey, data, statusTTL).Err(); err != nil {
		return fmt.Errorf("redis set status: %w", err)
	}
	return nil
}

func (s *snapshotStore) SetOutcome(ctx context.Context, o *hub.Outcome) error {
	rec := outcomeRecord{
		TaskID:     o.TaskID,
		Lane:       string(o.Lane),
		Status:     string(o.Status),
		Value:      o.Value,
		DurationMs: o.Duration.Milliseconds(),
		FinishedAt: o.FinishedAt,
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal outcome %s: %w", o.TaskID, err)
	}
	if err := s.client.Set(ctx, outcomeKey(o.TaskID), data, outcomeTTL).Err(); err != nil {
		return fmt.Errorf("redis set outcome %s: %w", o.TaskID, err)
	}
	return nil
}

func (s *snapshotStore) GetStatus(ctx context.Context) (*hub.Snapshot, error) {
	data, err := s.client.Get(ctx, statusKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("no status snapshot published")
		}
		return nil, fmt.Errorf("redis get status: %w", err)
	}
	var snap hub.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal status snapshot: %w", err)
	}
	return &snap, nil
}
