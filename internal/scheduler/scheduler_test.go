package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/hub"
)

// ── mocks ────────────────────────────────────────────────────────────────────

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []hub.CronJobPayload
	lanes    []hub.Lane
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, lane hub.Lane, p hub.Payload, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, p.(hub.CronJobPayload))
	f.lanes = append(f.lanes, lane)
	return "task-1", nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

var _ Submitter = (*fakeSubmitter)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestScheduler_FiresIntoCronLane(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(sub, testLogger())

	require.NoError(t, s.AddJob("@every 10ms", "portfolio-snapshot", map[string]string{"k": "v"}))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return sub.count() >= 2
	}, 2*time.Second, 5*time.Millisecond, "job should fire repeatedly")

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, hub.LaneCron, sub.lanes[0], "scheduled jobs go to the cron lane")
	assert.Equal(t, "portfolio-snapshot", sub.payloads[0].Job)
	assert.Equal(t, map[string]string{"k": "v"}, sub.payloads[0].Args)
}

func TestScheduler_InvalidSpecRejected(t *testing.T) {
	s := New(&fakeSubmitter{}, testLogger())
	err := s.AddJob("every now and then", "trading-cycle", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trading-cycle")
}

func TestScheduler_SubmitRejectionDoesNotStopFiring(t *testing.T) {
	sub := &fakeSubmitter{err: &hub.SubmissionRejectedError{Reason: "hub not running"}}
	s := New(sub, testLogger())

	require.NoError(t, s.AddJob("@every 10ms", "trading-cycle", nil))
	s.Start()

	// Rejections are logged and swallowed; the runner keeps going.
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	assert.Equal(t, 0, sub.count())
}

func TestScheduler_StopHaltsFiring(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(sub, testLogger())
	require.NoError(t, s.AddJob("@every 10ms", "trading-cycle", nil))
	s.Start()

	require.Eventually(t, func() bool { return sub.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	fired := sub.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, fired, sub.count(), "no fires after stop")
}
