package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Forecast is a stored prediction for one market outcome.
type Forecast struct {
	ID          int64     `json:"id"`
	MarketID    string    `json:"market_id"`
	Question    string    `json:"question"`
	Outcome     string    `json:"outcome"`
	Probability float64   `json:"probability"`
	Confidence  float64   `json:"confidence"`
	Reasoning   string    `json:"reasoning"`
	CreatedAt   time.Time `json:"created_at"`
}

// Trade is a stored trade decision. Side is BUY or SELL; Status is pending,
// executed, or failed.
type Trade struct {
	ID                  int64      `json:"id"`
	MarketID            string     `json:"market_id"`
	Question            string     `json:"question"`
	Outcome             string     `json:"outcome"`
	Side                string     `json:"side"`
	Size                float64    `json:"size"`
	Price               float64    `json:"price"`
	ForecastProbability float64    `json:"forecast_probability"`
	Edge                float64    `json:"edge"`
	Status              string     `json:"status"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	ExecutedAt          *time.Time `json:"executed_at,omitempty"`
}

// PortfolioSnapshot is a periodic roll-up of open positions.
type PortfolioSnapshot struct {
	ID            int64     `json:"id"`
	Balance       float64   `json:"balance"`
	Exposure      float64   `json:"exposure"`
	OpenPositions int       `json:"open_positions"`
	CreatedAt     time.Time `json:"created_at"`
}

// Repository abstracts all database access for agent records.
type Repository interface {
	SaveForecast(ctx context.Context, f *Forecast) error
	SaveTrade(ctx context.Context, tr *Trade) error
	SaveSnapshot(ctx context.Context, s *PortfolioSnapshot) error
	RecentForecasts(ctx context.Context, limit int) ([]*Forecast, error)
	RecentTrades(ctx context.Context, limit int) ([]*Trade, error)
	TradesForMarket(ctx context.Context, marketID string, limit int) ([]*Trade, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the Repository interface.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *repository) SaveForecast(ctx context.Context, f *Forecast) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO forecasts
			(market_id, question, outcome, probability, confidence, reasoning, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		f.MarketID, f.Question, f.Outcome, f.Probability, f.Confidence,
		f.Reasoning, f.CreatedAt,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("save forecast for market %s: %w", f.MarketID, err)
	}
	return nil
}

func (r *repository) SaveTrade(ctx context.Context, tr *Trade) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO trades
			(market_id, question, outcome, side, size, price, forecast_probability,
			 edge, status, error_message, created_at, executed_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`,
		tr.MarketID, tr.Question, tr.Outcome, tr.Side, tr.Size, tr.Price,
		tr.ForecastProbability, tr.Edge, tr.Status, tr.ErrorMessage,
		tr.CreatedAt, tr.ExecutedAt,
	).Scan(&tr.ID)
	if err != nil {
		return fmt.Errorf("save trade for market %s: %w", tr.MarketID, err)
	}
	return nil
}

func (r *repository) SaveSnapshot(ctx context.Context, s *PortfolioSnapshot) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO portfolio_snapshots (balance, exposure, open_positions, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`,
		s.Balance, s.Exposure, s.OpenPositions, s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("save portfolio snapshot: %w", err)
	}
	return nil
}

func (r *repository) RecentForecasts(ctx context.Context, limit int) ([]*Forecast, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, market_id, question, outcome, probability, confidence, reasoning, created_at
		FROM forecasts
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}
	defer rows.Close()
	return scanForecasts(rows)
}

func (r *repository) RecentTrades(ctx context.Context, limit int) ([]*Trade, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, market_id, question, outcome, side, size, price,
		       forecast_probability, edge, status, error_message, created_at, executed_at
		FROM trades
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (r *repository) TradesForMarket(ctx context.Context, marketID string, limit int) ([]*Trade, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, market_id, question, outcome, side, size, price,
		       forecast_probability, edge, status, error_message, created_at, executed_at
		FROM trades
		WHERE market_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades for market %s: %w", marketID, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanForecasts(rows pgx.Rows) ([]*Forecast, error) {
	var out []*Forecast
	for rows.Next() {
		var f Forecast
		if err := rows.Scan(
			&f.ID, &f.MarketID, &f.Question, &f.Outcome,
			&f.Probability, &f.Confidence, &f.Reasoning, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func scanTrades(rows pgx.Rows) ([]*Trade, error) {
	var out []*Trade
	for rows.Next() {
		var tr Trade
		if err := rows.Scan(
			&tr.ID, &tr.MarketID, &tr.Question, &tr.Outcome, &tr.Side,
			&tr.Size, &tr.Price, &tr.ForecastProbability, &tr.Edge,
			&tr.Status, &tr.ErrorMessage, &tr.CreatedAt, &tr.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, &tr)
	}
	return out, rows.Err()
}
