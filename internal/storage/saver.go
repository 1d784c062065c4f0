package storage

import (
	"context"
	"sync"
	"time"

	"flexmarket/internal/engine"
	"flexmarket/internal/infrastructure"
	"flexmarket/internal/model"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// TradeSaver batches executed trades and writes them to PostgreSQL on
// a timer or when the batch fills, whichever comes first. Losing a
// batch on a write error is logged but never propagated: persistence
// is an observer of the market, not part of it.
type TradeSaver struct {
	db        *pgxpool.Pool
	logger    *zap.Logger
	interval  time.Duration
	batchSize int

	mu  sync.Mutex
	buf []model.Trade
}

func NewTradeSaver(db *pgxpool.Pool, logger *zap.Logger, interval time.Duration, batchSize int) *TradeSaver {
	return &TradeSaver{
		db:        db,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		buf:       make([]model.Trade, 0, batchSize),
	}
}

func (s *TradeSaver) Add(t model.Trade) {
	s.mu.Lock()
	s.buf = append(s.buf, t)
	full := len(s.buf) >= s.batchSize
	s.mu.Unlock()

	if full {
		s.flush(context.Background())
	}
}

func (s *TradeSaver) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.flush(context.Background())
				return
			case <-ticker.C:
				s.flush(ctx)
			}
		}
	}()
}

func (s *TradeSaver) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.buf) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buf
	s.buf = make([]model.Trade, 0, s.batchSize)
	s.mu.Unlock()

	rows := make([][]interface{}, 0, len(batch))
	for _, t := range batch {
		rows = append(rows, []interface{}{
			t.ID, t.BidOrderID, t.AskOrderID, t.BuyerID, t.SellerID,
			t.QuantityKWh, t.PricePerKWh, int64(t.Tick), t.ExecutedAt,
		})
	}

	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"trades"},
		[]string{"trade_id", "bid_order_id", "ask_order_id", "buyer_id", "seller_id", "quantity_kwh", "price_per_kwh", "tick", "time"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		s.logger.Error("failed to persist trade batch", zap.Int("trades", len(batch)), zap.Error(err))
		return
	}
	infrastructure.DBInsertRate.WithLabelValues("trades").Add(float64(n))
}

// SummarySaver persists one row per completed tick.
type SummarySaver struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSummarySaver(db *pgxpool.Pool, logger *zap.Logger) *SummarySaver {
	return &SummarySaver{db: db, logger: logger}
}

func (s *SummarySaver) Add(res engine.TickResult) {
	kwh := "0"
	if len(res.Trades) > 0 {
		total := res.Trades[0].QuantityKWh
		for _, t := range res.Trades[1:] {
			total = total.Add(t.QuantityKWh)
		}
		kwh = total.String()
	}

	_, err := s.db.Exec(context.Background(), `
		INSERT INTO tick_summaries (tick, grid_level, trades, kwh_traded, missing_telemetry, time)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tick) DO NOTHING`,
		int64(res.Tick), string(res.Signal.Level), len(res.Trades), kwh, res.MissingTelemetry, res.ExecutedAt)
	if err != nil {
		s.logger.Error("failed to persist tick summary", zap.Uint64("tick", res.Tick), zap.Error(err))
		return
	}
	infrastructure.DBInsertRate.WithLabelValues("tick_summaries").Inc()
}
