package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/api"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/config"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/events"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/executor"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/hub"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/postgres"
	redisstore "github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/redis"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/scheduler"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/pkg/telemetry"
)

const statusMirrorInterval = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hub, the REST gateway, and the scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9091", "Prometheus metrics server address")
	serveCmd.Flags().String("postgres-dsn", "", "PostgreSQL DSN; empty disables persistence")
	serveCmd.Flags().String("redis-addr", "", "Redis address for the status mirror; empty disables")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	serveCmd.Flags().Int("main-limit", 1, "MAIN lane concurrency limit")
	serveCmd.Flags().Int("research-limit", 3, "RESEARCH lane concurrency limit")
	serveCmd.Flags().Int("monitor-limit", 2, "MONITOR lane concurrency limit")
	serveCmd.Flags().Int("cron-limit", 1, "CRON lane concurrency limit")

	serveCmd.Flags().Duration("result-retention", 5*time.Minute, "how long unconsumed task results are kept")
	serveCmd.Flags().Duration("reap-interval", 10*time.Second, "how often expired results are evicted")
	serveCmd.Flags().Duration("grace-period", 30*time.Second, "drain window for active tasks on shutdown")

	serveCmd.Flags().Int("submit-rate-limit", 0, "max task submissions per client per window; 0 disables (requires redis)")
	serveCmd.Flags().Duration("submit-rate-window", time.Minute, "sliding window for the submission rate limit")

	serveCmd.Flags().Float64("min-edge", 0.05, "minimum forecast edge to place a paper trade")
	serveCmd.Flags().Float64("max-trade-size", 100, "per-trade size cap")
	serveCmd.Flags().Float64("balance", 1000, "paper trading bankroll")

	serveCmd.Flags().String("trade-cron", "", "cron spec for the trading-cycle job; empty disables")
	serveCmd.Flags().String("snapshot-cron", "@every 15m", "cron spec for the portfolio-snapshot job; empty disables")
	serveCmd.Flags().String("trade-market", "", "market id for the scheduled trading cycle")
	serveCmd.Flags().String("trade-outcome", "YES", "outcome for the scheduled trading cycle")
	serveCmd.Flags().Float64("trade-price", 0.5, "quoted price for the scheduled trading cycle")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("postgres_dsn", serveCmd.Flags(), "postgres-dsn")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	bindFlag("main_limit", serveCmd.Flags(), "main-limit")
	bindFlag("research_limit", serveCmd.Flags(), "research-limit")
	bindFlag("monitor_limit", serveCmd.Flags(), "monitor-limit")
	bindFlag("cron_limit", serveCmd.Flags(), "cron-limit")
	bindFlag("result_retention", serveCmd.Flags(), "result-retention")
	bindFlag("reap_interval", serveCmd.Flags(), "reap-interval")
	bindFlag("grace_period", serveCmd.Flags(), "grace-period")
	bindFlag("submit_rate_limit", serveCmd.Flags(), "submit-rate-limit")
	bindFlag("submit_rate_window", serveCmd.Flags(), "submit-rate-window")
	bindFlag("min_edge", serveCmd.Flags(), "min-edge")
	bindFlag("max_trade_size", serveCmd.Flags(), "max-trade-size")
	bindFlag("balance", serveCmd.Flags(), "balance")
	bindFlag("trade_cron", serveCmd.Flags(), "trade-cron")
	bindFlag("snapshot_cron", serveCmd.Flags(), "snapshot-cron")
	bindFlag("trade_market", serveCmd.Flags(), "trade-market")
	bindFlag("trade_outcome", serveCmd.Flags(), "trade-outcome")
	bindFlag("trade_price", serveCmd.Flags(), "trade-price")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "tradinghub")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "tradinghub", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	// ── persistence (optional) ────────────────────────────────────────────────
	var repo postgres.Repository
	if cfg.PostgresDSN != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)
	} else {
		logger.Warn("postgres_dsn empty, forecasts and trades will not be persisted")
	}

	// ── status mirror and rate limiter (optional) ─────────────────────────────
	var mirror redisstore.SnapshotStore
	var limiter api.SubmitLimiter
	if cfg.RedisAddr != "" {
		client := redisstore.NewClient(cfg.RedisAddr)
		defer func() { _ = client.Close() }()
		mirror = redisstore.NewSnapshotStore(client)
		if cfg.SubmitRateLimit > 0 {
			limiter = redisstore.NewSubmitLimiter(client, cfg.SubmitRateLimit, cfg.SubmitRateWindow)
		}
	} else if cfg.SubmitRateLimit > 0 {
		logger.Warn("submit_rate_limit set but redis_addr empty, rate limiting disabled")
	}

	broadcaster := events.NewBroadcaster(logger)

	agent := executor.New(repo, broadcaster, logger,
		executor.WithMinEdge(cfg.MinEdge),
		executor.WithMaxTradeSize(cfg.MaxTradeSize),
		executor.WithBalance(cfg.Balance),
	)

	h := hub.New(agent,
		hub.WithLogger(logger),
		hub.WithLimits(map[hub.Lane]int{
			hub.LaneMain:     cfg.MainLimit,
			hub.LaneResearch: cfg.ResearchLimit,
			hub.LaneMonitor:  cfg.MonitorLimit,
			hub.LaneCron:     cfg.CronLimit,
		}),
		hub.WithRetention(cfg.ResultRetention),
		hub.WithReapInterval(cfg.ReapInterval),
		hub.WithGracePeriod(cfg.GracePeriod),
		hub.WithNotifier(func(event string, data any) {
			broadcaster.Publish(event, data)
			if mirror != nil && event == "task_finished" {
				if o, ok := data.(*hub.Outcome); ok {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					if err := mirror.SetOutcome(ctx, o); err != nil {
						logger.Warn("outcome mirror failed", slog.String("error", err.Error()))
					}
					cancel()
				}
			}
		}),
	)
	h.Start()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, h.Running, logger)

	if mirror != nil {
		go mirrorStatus(runCtx, h, mirror, logger)
	}

	// ── scheduler ─────────────────────────────────────────────────────────────
	sched := scheduler.New(h, logger)
	if cfg.TradeCron != "" {
		if cfg.TradeMarket == "" {
			return fmt.Errorf("trade_cron set but trade_market empty")
		}
		err := sched.AddJob(cfg.TradeCron, "trading-cycle", map[string]string{
			"market_id": cfg.TradeMarket,
			"question":  "scheduled trading cycle for " + cfg.TradeMarket,
			"outcome":   cfg.TradeOutcome,
			"price":     fmt.Sprintf("%g", cfg.TradePrice),
		})
		if err != nil {
			return err
		}
	}
	if cfg.SnapshotCron != "" && repo != nil {
		if err := sched.AddJob(cfg.SnapshotCron, "portfolio-snapshot", nil); err != nil {
			return err
		}
	}
	sched.Start()

	// ── HTTP server ───────────────────────────────────────────────────────────
	rest := api.NewREST(h, repo, broadcaster, limiter, logger)
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(api.RequestLogger(logger))
	r.Use(api.MaxBodySize(1 << 20)) // 1MB limit
	rest.Routes(r)

	httpSrv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: /api/v1/events streams indefinitely.
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		logger.Info("shutting down, draining active tasks...")
	}

	sched.Stop()

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = httpSrv.Shutdown(shutCtx)
	cancel()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.GracePeriod+5*time.Second)
	defer cancel()
	if err := h.Stop(stopCtx); err != nil {
		return fmt.Errorf("hub stop: %w", err)
	}

	runCancel()
	logger.Info("stopped cleanly")
	return nil
}

// mirrorStatus publishes the hub snapshot to Redis on a fixed interval so
// external dashboards can poll without reaching into this process.
func mirrorStatus(ctx context.Context, h *hub.Hub, mirror redisstore.SnapshotStore, logger *slog.Logger) {
	ticker := time.NewTicker(statusMirrorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := mirror.PublishStatus(pubCtx, h.Status()); err != nil {
				logger.Warn("status mirror failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}
