// Package migrations embeds the SQL schema files applied by the migrate
// command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in application order.
var Files = []string{
	"001_create_forecasts.sql",
	"002_create_trades.sql",
	"003_create_portfolio_snapshots.sql",
}
