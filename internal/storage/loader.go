package storage

import (
	"context"

	"flexmarket/internal/model"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Loader reads persisted trades back, used to seed the in-memory
// history at boot and to serve the long-horizon trade query.
type Loader struct {
	db *pgxpool.Pool
}

func NewLoader(db *pgxpool.Pool) *Loader {
	return &Loader{db: db}
}

// RecentTrades returns up to limit trades, newest first.
func (l *Loader) RecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	rows, err := l.db.Query(ctx, `
		SELECT trade_id, bid_order_id, ask_order_id, buyer_id, seller_id, quantity_kwh, price_per_kwh, tick, time
		FROM trades
		ORDER BY time DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var tick int64
		if err := rows.Scan(&t.ID, &t.BidOrderID, &t.AskOrderID, &t.BuyerID, &t.SellerID,
			&t.QuantityKWh, &t.PricePerKWh, &tick, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Tick = uint64(tick)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
