// Package postgres implements the persistence contracts on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quantfall/tradegate/internal/models"
	"github.com/quantfall/tradegate/internal/persistence"
)

// tradesRepo implements persistence.TradeStore and persistence.ReportStore.
type tradesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradesRepo creates a PostgreSQL-backed trade store.
func NewTradesRepo(db *sqlx.DB, timeout time.Duration) *tradesRepo {
	return &tradesRepo{db: db, timeout: timeout}
}

var _ persistence.TradeStore = (*tradesRepo)(nil)
var _ persistence.ReportStore = (*tradesRepo)(nil)

// GetTrade fetches one trade by id.
func (r *tradesRepo) GetTrade(ctx context.Context, tradeID string) (models.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT trade_id, symbol, side, quantity, entry_price, exit_price, status,
		       pnl, opened_at, closed_at, algorithm,
		       decision_confidence, ensemble_score, model_probability,
		       open_positions_at, daily_pnl_at, balance_at, drawdown_at
		FROM trades WHERE trade_id = $1`

	var trade models.Trade
	if err := r.db.GetContext(ctx, &trade, query, tradeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Trade{}, persistence.ErrTradeNotFound
		}
		return models.Trade{}, fmt.Errorf("failed to fetch trade %s: %w", tradeID, err)
	}
	return trade, nil
}

// GetOrders fetches the fill records for one trade, oldest first.
func (r *tradesRepo) GetOrders(ctx context.Context, tradeID string) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT order_id, trade_id, symbol, side, price, expected_price,
		       orig_qty, executed_qty, placed_at, filled_at
		FROM orders WHERE trade_id = $1 ORDER BY placed_at ASC`

	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, tradeID); err != nil {
		return nil, fmt.Errorf("failed to fetch orders for trade %s: %w", tradeID, err)
	}
	return orders, nil
}

// GetPriceSnapshots fetches the intratrade price series, oldest first.
func (r *tradesRepo) GetPriceSnapshots(ctx context.Context, tradeID string) ([]models.PriceSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT trade_id, ts, price
		FROM price_snapshots WHERE trade_id = $1 ORDER BY ts ASC`

	var snaps []models.PriceSnapshot
	if err := r.db.SelectContext(ctx, &snaps, query, tradeID); err != nil {
		return nil, fmt.Errorf("failed to fetch snapshots for trade %s: %w", tradeID, err)
	}
	return snaps, nil
}

// RecentTrades returns up to limit trades, newest first.
func (r *tradesRepo) RecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT trade_id, symbol, side, quantity, entry_price, exit_price, status,
		       pnl, opened_at, closed_at, algorithm,
		       decision_confidence, ensemble_score, model_probability,
		       open_positions_at, daily_pnl_at, balance_at, drawdown_at
		FROM trades ORDER BY opened_at DESC LIMIT $1`

	var trades []models.Trade
	if err := r.db.SelectContext(ctx, &trades, query, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch recent trades: %w", err)
	}
	return trades, nil
}

// InsertAuditReport persists a generated report as an alert record.
func (r *tradesRepo) InsertAuditReport(ctx context.Context, reportID string, generatedAt time.Time, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO audit_reports (report_id, generated_at, payload)
		VALUES ($1, $2, $3)`

	if _, err := r.db.ExecContext(ctx, query, reportID, generatedAt, payload); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate audit report %s: %w", reportID, err)
		}
		return fmt.Errorf("failed to insert audit report: %w", err)
	}
	return nil
}
