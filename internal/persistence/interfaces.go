// Package persistence defines the storage contracts the audit path reads
// from. Concrete transports live in subpackages.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/quantfall/tradegate/internal/models"
)

// ErrTradeNotFound is returned for a trade id with no persisted record.
// A missing trade is an expected condition, not a storage fault.
var ErrTradeNotFound = errors.New("trade not found")

// TradeStore provides read access to persisted trades, their fill records,
// and periodic intratrade price snapshots.
type TradeStore interface {
	GetTrade(ctx context.Context, tradeID string) (models.Trade, error)
	GetOrders(ctx context.Context, tradeID string) ([]models.Order, error)
	GetPriceSnapshots(ctx context.Context, tradeID string) ([]models.PriceSnapshot, error)

	// RecentTrades returns up to limit trades, newest first.
	RecentTrades(ctx context.Context, limit int) ([]models.Trade, error)
}

// ReportStore persists generated audit reports as alert records.
type ReportStore interface {
	InsertAuditReport(ctx context.Context, reportID string, generatedAt time.Time, payload []byte) error
}
