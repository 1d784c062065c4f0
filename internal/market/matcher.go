package market

import (
	"time"

	"flexmarket/internal/infrastructure"
	"flexmarket/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Matcher clears the book once per tick with a price-time priority
// double auction. It is strictly single-threaded: matching in parallel
// would break the sequence-number tie-break and with it reproducibility.
type Matcher struct {
	logger *zap.Logger
}

func NewMatcher(logger *zap.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// Run pairs crossing bids and asks from distinct buildings and returns
// the trades in execution order.
//
// Asks are taken cheapest first; for each ask the bids are walked from
// the highest price down, skipping the ask's own building. A pair
// trades min(remaining, remaining) kWh at the ask's quoted price.
// Partially filled orders stay in the walk and can match the next
// compatible counter-order within the same run. Once the best live bid
// no longer covers the cheapest remaining ask, nothing later can cross
// and the run ends.
func (m *Matcher) Run(book *OrderBook, tick uint64) []model.Trade {
	bids := book.live(model.SideBid)
	asks := book.live(model.SideAsk)
	if len(bids) == 0 || len(asks) == 0 {
		return nil
	}

	var trades []model.Trade
	now := time.Now()

	for _, ask := range asks {
		for _, bid := range bids {
			if !ask.RemainingKWh.IsPositive() {
				break
			}
			if !bid.RemainingKWh.IsPositive() {
				continue
			}
			if bid.BuildingID == ask.BuildingID {
				// self-trade: skip this bid, the next-best may still cross
				continue
			}
			if bid.PricePerKWh.LessThan(ask.PricePerKWh) {
				// bids are sorted descending: no later bid crosses this ask either
				break
			}

			qty := decimalMin(bid.RemainingKWh, ask.RemainingKWh)
			trade := model.Trade{
				ID:          uuid.NewString(),
				BidOrderID:  bid.ID,
				AskOrderID:  ask.ID,
				BuyerID:     bid.BuildingID,
				SellerID:    ask.BuildingID,
				QuantityKWh: qty,
				PricePerKWh: ask.PricePerKWh, // execute at the seller's quote
				Tick:        tick,
				ExecutedAt:  now,
			}
			trades = append(trades, trade)

			bid.RemainingKWh = bid.RemainingKWh.Sub(qty)
			ask.RemainingKWh = ask.RemainingKWh.Sub(qty)
			fillStatus(bid)
			fillStatus(ask)

			m.logger.Debug("matched",
				zap.String("buyer", trade.BuyerID),
				zap.String("seller", trade.SellerID),
				zap.String("qty_kwh", trade.QuantityKWh.String()),
				zap.String("price", trade.PricePerKWh.String()),
			)
		}
	}

	infrastructure.TradesMatched.Add(float64(len(trades)))
	return trades
}

func fillStatus(o *model.Order) {
	if o.RemainingKWh.IsPositive() {
		o.Status = model.StatusPartiallyFilled
		return
	}
	o.Status = model.StatusFilled
}

func decimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
