package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the tradinghub service.
type Config struct {
	LogLevel     string
	HTTPPort     string
	MetricsAddr  string
	PostgresDSN  string
	RedisAddr    string
	OTelEndpoint string

	MainLimit     int
	ResearchLimit int
	MonitorLimit  int
	CronLimit     int

	ResultRetention time.Duration
	ReapInterval    time.Duration
	GracePeriod     time.Duration

	SubmitRateLimit  int
	SubmitRateWindow time.Duration

	MinEdge      float64
	MaxTradeSize float64
	Balance      float64

	TradeCron    string
	SnapshotCron string
	TradeMarket  string
	TradeOutcome string
	TradePrice   float64
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		HTTPPort:     v.GetString("http_port"),
		MetricsAddr:  v.GetString("metrics_addr"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		RedisAddr:    v.GetString("redis_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),

		MainLimit:     v.GetInt("main_limit"),
		ResearchLimit: v.GetInt("research_limit"),
		MonitorLimit:  v.GetInt("monitor_limit"),
		CronLimit:     v.GetInt("cron_limit"),

		ResultRetention: v.GetDuration("result_retention"),
		ReapInterval:    v.GetDuration("reap_interval"),
		GracePeriod:     v.GetDuration("grace_period"),

		SubmitRateLimit:  v.GetInt("submit_rate_limit"),
		SubmitRateWindow: v.GetDuration("submit_rate_window"),

		MinEdge:      v.GetFloat64("min_edge"),
		MaxTradeSize: v.GetFloat64("max_trade_size"),
		Balance:      v.GetFloat64("balance"),

		TradeCron:    v.GetString("trade_cron"),
		SnapshotCron: v.GetString("snapshot_cron"),
		TradeMarket:  v.GetString("trade_market"),
		TradeOutcome: v.GetString("trade_outcome"),
		TradePrice:   v.GetFloat64("trade_price"),
	}
}
