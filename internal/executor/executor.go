// Package executor runs task bodies on behalf of the hub: market research
// forecasts, trade decisions, position monitoring, and scheduled jobs. It
// trades on paper: forecasts come from the statistical model in
// forecast.go, not from a live inference call.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/events"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/hub"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/postgres"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/pkg/retry"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/pkg/telemetry"
)

// TradeDecision is the result of a trade-decision task.
type TradeDecision struct {
	Placed   bool               `json:"placed"`
	Reason   string             `json:"reason,omitempty"`
	Trade    *postgres.Trade    `json:"trade,omitempty"`
	Forecast *postgres.Forecast `json:"forecast"`
}

// MonitorReport is the result of a monitor task.
type MonitorReport struct {
	MarketID      string   `json:"market_id"`
	OpenPositions int      `json:"open_positions"`
	Exposure      float64  `json:"exposure"`
	Alerts        []string `json:"alerts,omitempty"`
}

// Agent implements hub.Executor with exhaustive dispatch over the payload
// union. Persistence and event broadcasting are best-effort: a storage
// failure is logged, it does not fail the task.
type Agent struct {
	repo    postgres.Repository // nil disables persistence
	pub     *events.Broadcaster // nil disables broadcasting
	logger  *slog.Logger
	minEdge float64
	maxSize float64
	balance float64
}

// Option configures an Agent.
type Option func(*Agent)

// WithMinEdge sets the minimum forecast-vs-price edge required to place a
// paper trade.
func WithMinEdge(e float64) Option { return func(a *Agent) { a.minEdge = e } }

// WithMaxTradeSize caps the size of a single paper trade.
func WithMaxTradeSize(s float64) Option { return func(a *Agent) { a.maxSize = s } }

// WithBalance sets the paper bankroll used for sizing and snapshots.
func WithBalance(b float64) Option { return func(a *Agent) { a.balance = b } }

// New constructs an Agent. repo and pub may be nil.
func New(repo postgres.Repository, pub *events.Broadcaster, logger *slog.Logger, opts ...Option) *Agent {
	a := &Agent{
		repo:    repo,
		pub:     pub,
		logger:  logger,
		minEdge: 0.05,
		maxSize: 100,
		balance: 1000,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute dispatches on the task payload kind. The switch is exhaustive
// over the hub's payload union; an unknown kind is a programming error
// surfaced as a failed task.
func (a *Agent) Execute(ctx context.Context, t *hub.Task) (any, error) {
	switch p := t.Payload.(type) {
	case hub.ResearchPayload:
		return a.research(ctx, p)
	case hub.TradeDecisionPayload:
		return a.decideTrade(ctx, p)
	case hub.MonitorPayload:
		return a.monitor(ctx, p)
	case hub.CronJobPayload:
		return a.runJob(ctx, p)
	default:
		return nil, fmt.Errorf("no executor for payload kind %q", t.Payload.Kind())
	}
}

func (a *Agent) research(ctx context.Context, p hub.ResearchPayload) (any, error) {
	ctx, span := otel.Tracer("agent").Start(ctx, "agent.research")
	defer span.End()
	span.SetAttributes(attribute.String("market.id", p.MarketID))

	if p.Question == "" {
		err := fmt.Errorf("research payload missing question")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing question")
		return nil, err
	}

	f := superforecast(p.MarketID, p.Question, p.Outcome)
	telemetry.ForecastsGenerated.Inc()
	a.persistForecast(ctx, f)
	a.broadcast("forecast_created", f)
	return f, nil
}

func (a *Agent) decideTrade(ctx context.Context, p hub.TradeDecisionPayload) (any, error) {
	ctx, span := otel.Tracer("agent").Start(ctx, "agent.decide_trade")
	defer span.End()
	span.SetAttributes(
		attribute.String("market.id", p.MarketID),
		attribute.Float64("market.price", p.Price),
	)

	if p.Price <= 0 || p.Price >= 1 {
		err := fmt.Errorf("trade decision price %v outside (0, 1)", p.Price)
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad price")
		return nil, err
	}

	f := superforecast(p.MarketID, p.Question, p.Outcome)
	telemetry.ForecastsGenerated.Inc()
	a.persistForecast(ctx, f)

	edge := f.Probability - p.Price
	if edge < a.minEdge {
		telemetry.TradesDecided.WithLabelValues("skipped").Inc()
		return &TradeDecision{
			Placed:   false,
			Reason:   fmt.Sprintf("edge %.3f below threshold %.3f", edge, a.minEdge),
			Forecast: f,
		}, nil
	}

	// Size proportional to edge and confidence, bounded by the per-trade cap.
	size := edge * f.Confidence * a.balance
	if size > a.maxSize {
		size = a.maxSize
	}
	now := time.Now().UTC()
	tr := &postgres.Trade{
		MarketID:            p.MarketID,
		Question:            p.Question,
		Outcome:             p.Outcome,
		Side:                "BUY",
		Size:                size,
		Price:               p.Price,
		ForecastProbability: f.Probability,
		Edge:                edge,
		Status:              "executed", // paper fill, no venue round-trip
		CreatedAt:           now,
		ExecutedAt:          &now,
	}
	a.persistTrade(ctx, tr)
	telemetry.TradesDecided.WithLabelValues("placed").Inc()
	a.broadcast("trade_executed", tr)

	a.logger.Info("paper trade placed",
		slog.String("market_id", p.MarketID),
		slog.Float64("edge", edge),
		slog.Float64("size", size),
	)
	return &TradeDecision{Placed: true, Trade: tr, Forecast: f}, nil
}

func (a *Agent) monitor(ctx context.Context, p hub.MonitorPayload) (any, error) {
	ctx, span := otel.Tracer("agent").Start(ctx, "agent.monitor")
	defer span.End()
	span.SetAttributes(attribute.String("market.id", p.MarketID))

	report := &MonitorReport{MarketID: p.MarketID}
	if a.repo == nil {
		report.Alerts = append(report.Alerts, "persistence disabled, no position history")
		return report, nil
	}

	trades, err := a.repo.TradesForMarket(ctx, p.MarketID, 100)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "trade lookup failed")
		return nil, fmt.Errorf("monitor market %s: %w", p.MarketID, err)
	}
	for _, tr := range trades {
		if tr.Status != "executed" {
			continue
		}
		report.OpenPositions++
		report.Exposure += tr.Size * tr.Price
	}
	if report.Exposure > a.balance/2 {
		report.Alerts = append(report.Alerts,
			fmt.Sprintf("exposure %.2f exceeds half of bankroll %.2f", report.Exposure, a.balance))
	}
	return report, nil
}

func (a *Agent) runJob(ctx context.Context, p hub.CronJobPayload) (any, error) {
	ctx, span := otel.Tracer("agent").Start(ctx, "agent.cron_job")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", p.Job))

	switch p.Job {
	case "trading-cycle":
		price, err := strconv.ParseFloat(p.Args["price"], 64)
		if err != nil {
			return nil, fmt.Errorf("trading-cycle job: bad price %q: %w", p.Args["price"], err)
		}
		return a.decideTrade(ctx, hub.TradeDecisionPayload{
			MarketID: p.Args["market_id"],
			Question: p.Args["question"],
			Outcome:  p.Args["outcome"],
			Price:    price,
		})
	case "portfolio-snapshot":
		return a.portfolioSnapshot(ctx)
	default:
		return nil, fmt.Errorf("unknown scheduled job %q", p.Job)
	}
}

func (a *Agent) portfolioSnapshot(ctx context.Context) (any, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("portfolio-snapshot job requires persistence")
	}
	trades, err := a.repo.RecentTrades(ctx, 1000)
	if err != nil {
		return nil, fmt.Errorf("portfolio snapshot: %w", err)
	}
	snap := &postgres.PortfolioSnapshot{CreatedAt: time.Now().UTC()}
	for _, tr := range trades {
		if tr.Status != "executed" {
			continue
		}
		snap.OpenPositions++
		snap.Exposure += tr.Size * tr.Price
	}
	snap.Balance = a.balance - snap.Exposure
	if err := a.repo.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	a.broadcast("portfolio_snapshot", snap)
	return snap, nil
}

// persistence is retried briefly; a transient storage hiccup should not turn
// a good forecast into a failed task.
var persistRetry = retry.Config{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    time.Second,
}

func (a *Agent) persistForecast(ctx context.Context, f *postgres.Forecast) {
	if a.repo == nil {
		return
	}
	err := retry.Do(ctx, persistRetry, func() error {
		return a.repo.SaveForecast(ctx, f)
	})
	if err != nil {
		a.logger.Error("failed to persist forecast",
			slog.String("market_id", f.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

func (a *Agent) persistTrade(ctx context.Context, tr *postgres.Trade) {
	if a.repo == nil {
		return
	}
	err := retry.Do(ctx, persistRetry, func() error {
		return a.repo.SaveTrade(ctx, tr)
	})
	if err != nil {
		a.logger.Error("failed to persist trade",
			slog.String("market_id", tr.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

func (a *Agent) broadcast(eventType string, data any) {
	if a.pub != nil {
		a.pub.Publish(eventType, data)
	}
}
