// Package scheduler fires configured cron jobs into the hub's CRON lane.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/hub"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/pkg/telemetry"
)

// Submitter is the slice of the hub the scheduler needs.
type Submitter interface {
	Submit(ctx context.Context, lane hub.Lane, payload hub.Payload, sessionID string) (string, error)
}

// Scheduler owns a cron runner whose entries submit CronJobPayload tasks.
// The hub's CRON lane (limit 1) serializes the job bodies, so overlapping
// fires queue rather than run concurrently.
type Scheduler struct {
	cron   *cron.Cron
	hub    Submitter
	logger *slog.Logger
}

// New constructs a Scheduler. Call AddJob for each entry, then Start.
func New(h Submitter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		hub:    h,
		logger: logger,
	}
}

// AddJob registers a cron entry that submits the named job with the given
// args on every fire. spec accepts the standard 5-field cron syntax plus
// the @every / @hourly descriptors.
func (s *Scheduler) AddJob(spec, job string, args map[string]string) error {
	_, err := s.cron.AddFunc(spec, func() {
		id, err := s.hub.Submit(context.Background(), hub.LaneCron,
			hub.CronJobPayload{Job: job, Args: args}, "")
		if err != nil {
			// Normal during shutdown: the hub already rejects submissions.
			s.logger.Warn("scheduled job not submitted",
				slog.String("job", job),
				slog.String("error", err.Error()),
			)
			return
		}
		telemetry.ScheduledJobsFired.WithLabelValues(job).Inc()
		s.logger.Info("scheduled job submitted",
			slog.String("job", job),
			slog.String("task_id", id),
		)
	})
	if err != nil {
		return fmt.Errorf("add cron job %q (%s): %w", job, spec, err)
	}
	return nil
}

// Start begins firing entries in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop halts firing and waits for in-flight AddFunc callbacks to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
