package market

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"flexmarket/internal/infrastructure"
	"flexmarket/internal/model"
)

// ErrInvalidOrder is returned by Submit for orders that must never
// reach matching: non-positive quantity or negative price.
var ErrInvalidOrder = errors.New("invalid order")

// OrderBook holds the current tick's open orders. Submit is the only
// operation called concurrently (during the decide phase) and is
// serialized; everything else runs after the tick barrier.
//
// Invariant: at most one bid and one ask per building. A second
// submission from the same building on the same side supersedes the
// earlier order.
type OrderBook struct {
	mu     sync.Mutex
	orders map[string]map[model.Side]*model.Order // building -> side -> order
	seq    uint64
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		orders: make(map[string]map[model.Side]*model.Order),
	}
}

// Submit validates the order, assigns its sequence number and takes
// ownership. The caller must not touch the order afterwards.
func (b *OrderBook) Submit(o *model.Order) error {
	if o.BuildingID == "" {
		infrastructure.OrdersRejected.Inc()
		return fmt.Errorf("%w: empty building id", ErrInvalidOrder)
	}
	if o.Side != model.SideBid && o.Side != model.SideAsk {
		infrastructure.OrdersRejected.Inc()
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, o.Side)
	}
	if !o.QuantityKWh.IsPositive() {
		infrastructure.OrdersRejected.Inc()
		return fmt.Errorf("%w: quantity %s must be positive", ErrInvalidOrder, o.QuantityKWh)
	}
	if o.PricePerKWh.IsNegative() {
		infrastructure.OrdersRejected.Inc()
		return fmt.Errorf("%w: price %s must not be negative", ErrInvalidOrder, o.PricePerKWh)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	o.Seq = b.seq
	o.Status = model.StatusOpen
	o.RemainingKWh = o.QuantityKWh
	if o.SubmittedAt.IsZero() {
		o.SubmittedAt = time.Now()
	}

	sides := b.orders[o.BuildingID]
	if sides == nil {
		sides = make(map[model.Side]*model.Order, 2)
		b.orders[o.BuildingID] = sides
	}
	if prev := sides[o.Side]; prev != nil {
		prev.Status = model.StatusExpired
	}
	sides[o.Side] = o

	infrastructure.OrdersSubmitted.WithLabelValues(string(o.Side)).Inc()
	return nil
}

// Snapshot returns copies of all open and partially filled orders,
// bids sorted by price descending and asks ascending, ties by Seq.
func (b *OrderBook) Snapshot() model.BookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := model.BookSnapshot{Taken: time.Now()}
	for _, sides := range b.orders {
		for _, o := range sides {
			if o.Status != model.StatusOpen && o.Status != model.StatusPartiallyFilled {
				continue
			}
			if o.Side == model.SideBid {
				snap.Bids = append(snap.Bids, *o)
			} else {
				snap.Asks = append(snap.Asks, *o)
			}
		}
	}
	sortBids(snap.Bids)
	sortAsks(snap.Asks)
	return snap
}

// Sweep ends the tick. Filled orders are dropped. With carry=false
// (the default policy) all live orders expire and the book empties;
// with carry=true open and partially filled orders stay for the next
// tick, keeping their original sequence numbers. Returns the orders
// that expired.
func (b *OrderBook) Sweep(carry bool) []model.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expired []model.Order
	for building, sides := range b.orders {
		for side, o := range sides {
			switch o.Status {
			case model.StatusFilled:
				delete(sides, side)
			case model.StatusOpen, model.StatusPartiallyFilled:
				if carry {
					continue
				}
				o.Status = model.StatusExpired
				expired = append(expired, *o)
				delete(sides, side)
			default:
				delete(sides, side)
			}
		}
		if len(sides) == 0 {
			delete(b.orders, building)
		}
	}
	return expired
}

// live returns the matcher's working set for one side, sorted for
// price-time priority. Called only from the matcher after the decide
// barrier; the returned pointers are mutated during matching.
func (b *OrderBook) live(side model.Side) []*model.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*model.Order
	for _, sides := range b.orders {
		o := sides[side]
		if o == nil {
			continue
		}
		if o.Status != model.StatusOpen && o.Status != model.StatusPartiallyFilled {
			continue
		}
		out = append(out, o)
	}
	if side == model.SideBid {
		sort.Slice(out, func(i, j int) bool {
			if !out[i].PricePerKWh.Equal(out[j].PricePerKWh) {
				return out[i].PricePerKWh.GreaterThan(out[j].PricePerKWh)
			}
			return out[i].Seq < out[j].Seq
		})
	} else {
		sort.Slice(out, func(i, j int) bool {
			if !out[i].PricePerKWh.Equal(out[j].PricePerKWh) {
				return out[i].PricePerKWh.LessThan(out[j].PricePerKWh)
			}
			return out[i].Seq < out[j].Seq
		})
	}
	return out
}

func sortBids(bids []model.Order) {
	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].PricePerKWh.Equal(bids[j].PricePerKWh) {
			return bids[i].PricePerKWh.GreaterThan(bids[j].PricePerKWh)
		}
		return bids[i].Seq < bids[j].Seq
	})
}

func sortAsks(asks []model.Order) {
	sort.Slice(asks, func(i, j int) bool {
		if !asks[i].PricePerKWh.Equal(asks[j].PricePerKWh) {
			return asks[i].PricePerKWh.LessThan(asks[j].PricePerKWh)
		}
		return asks[i].Seq < asks[j].Seq
	})
}
