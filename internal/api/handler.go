// Package api is the REST and SSE control surface over the hub: task
// submission, awaiting outcomes, session control, status snapshots, and
// persisted forecast/trade history.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/events"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/hub"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/postgres"
)

const defaultHistoryLimit = 50

// REST handles HTTP requests for the hub gateway.
type REST struct {
	hub     *hub.Hub
	repo    postgres.Repository // nil when persistence is disabled
	events  *events.Broadcaster
	limiter SubmitLimiter // nil disables submission throttling
	logger  *slog.Logger
}

// NewREST creates a new REST handler. repo and limiter may be nil.
func NewREST(h *hub.Hub, repo postgres.Repository, b *events.Broadcaster, limiter SubmitLimiter, logger *slog.Logger) *REST {
	return &REST{hub: h, repo: repo, events: b, limiter: limiter, logger: logger}
}

// Routes mounts all endpoints on the router.
func (h *REST) Routes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.With(SubmitRateLimit(h.limiter, h.logger)).Post("/tasks", h.SubmitTask)
		r.Get("/tasks/{id}", h.AwaitTask)
		r.Post("/sessions", h.OpenSession)
		r.Delete("/sessions/{id}", h.CloseSession)
		r.Post("/sessions/{id}/cancel", h.CancelSession)
		r.Get("/status", h.GetStatus)
		r.Get("/events", events.SSEHandler(h.events, h.logger))
		r.Get("/forecasts", h.ListForecasts)
		r.Get("/trades", h.ListTrades)
	})
}

// SubmitTaskRequest is the JSON body for POST /api/v1/tasks.
type SubmitTaskRequest struct {
	Lane      string          `json:"lane"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// SubmitTaskResponse is the 202 response body.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	Lane   string `json:"lane"`
	Status string `json:"status"`
}

// OutcomeResponse is the terminal-state body for GET /api/v1/tasks/{id}.
type OutcomeResponse struct {
	TaskID     string    `json:"task_id"`
	Lane       string    `json:"lane"`
	Status     string    `json:"status"`
	Value      any       `json:"value,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// SubmitTask handles POST /api/v1/tasks.
func (h *REST) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lane, err := hub.ParseLane(req.Lane)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := decodePayload(req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID, err := h.hub.Submit(r.Context(), lane, payload, req.SessionID)
	if err != nil {
		var rejected *hub.SubmissionRejectedError
		if errors.As(err, &rejected) {
			writeError(w, http.StatusServiceUnavailable, rejected.Error())
			return
		}
		h.logger.Error("submit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitTaskResponse{
		TaskID: taskID,
		Lane:   string(lane),
		Status: string(hub.StatusQueued),
	})
}

// AwaitTask handles GET /api/v1/tasks/{id}. The optional timeout query
// parameter (a Go duration) bounds how long the request blocks; omitted or
// zero means a non-blocking poll. The outcome is consumed on delivery.
func (h *REST) AwaitTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	var timeout time.Duration
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid timeout")
			return
		}
		timeout = d
	}

	outcome, err := h.hub.Await(r.Context(), taskID, timeout)
	if err != nil {
		var timedOut *hub.AwaitTimeoutError
		var unknown *hub.UnknownTaskError
		switch {
		case errors.As(err, &timedOut):
			// Still running; the caller polls again.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{
				"task_id": taskID,
				"status":  "running",
			})
		case errors.As(err, &unknown):
			writeError(w, http.StatusNotFound, "task not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to await task")
		}
		return
	}

	resp := OutcomeResponse{
		TaskID:     outcome.TaskID,
		Lane:       string(outcome.Lane),
		Status:     string(outcome.Status),
		Value:      outcome.Value,
		DurationMs: outcome.Duration.Milliseconds(),
		FinishedAt: outcome.FinishedAt,
	}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// OpenSession handles POST /api/v1/sessions.
func (h *REST) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentType string `json:"agent_type"`
	}
	// An empty body is fine; agent_type defaults to "task".
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.AgentType == "" {
		req.AgentType = "task"
	}

	id := h.hub.OpenSession(req.AgentType)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"session_id": id})
}

// CloseSession handles DELETE /api/v1/sessions/{id}. In-flight tasks keep
// running.
func (h *REST) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.hub.CloseSession(id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelSession handles POST /api/v1/sessions/{id}/cancel: ends the session
// and cancels its still-queued tasks.
func (h *REST) CancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n := h.hub.CancelSession(id)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"cancelled": n})
}

// GetStatus handles GET /api/v1/status.
func (h *REST) GetStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.hub.Status())
}

// ListForecasts handles GET /api/v1/forecasts.
func (h *REST) ListForecasts(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	forecasts, err := h.repo.RecentForecasts(r.Context(), queryLimit(r))
	if err != nil {
		h.logger.Error("list forecasts", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list forecasts")
		return
	}
	writeList(w, forecasts)
}

// ListTrades handles GET /api/v1/trades.
func (h *REST) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	trades, err := h.repo.RecentTrades(r.Context(), queryLimit(r))
	if err != nil {
		h.logger.Error("list trades", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeList(w, trades)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz: ready once the hub accepts submissions.
func (h *REST) Readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !h.hub.Running() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"hub not running"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// decodePayload unmarshals the tagged payload union: the "kind" field
// selects the concrete type.
func decodePayload(raw json.RawMessage) (hub.Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("field 'payload' is required")
	}
	var tag struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	switch tag.Kind {
	case "research":
		var p hub.ResearchPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid research payload: %w", err)
		}
		return p, nil
	case "monitor":
		var p hub.MonitorPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid monitor payload: %w", err)
		}
		return p, nil
	case "trade_decision":
		var p hub.TradeDecisionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid trade_decision payload: %w", err)
		}
		return p, nil
	case "cron_job":
		var p hub.CronJobPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid cron_job payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", tag.Kind)
	}
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultHistoryLimit
}

func writeList(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
