package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order in the energy auction.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// OrderStatus tracks an order through one tick of the auction.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusExpired         OrderStatus = "expired"
)

// Order is one building's buy or sell interest for the current tick.
// The order book owns it after Submit; the agent keeps no reference.
type Order struct {
	ID           string          `json:"id" db:"order_id"`
	BuildingID   string          `json:"building_id" db:"building_id"`
	Side         Side            `json:"side" db:"side"`
	QuantityKWh  decimal.Decimal `json:"quantity_kwh" db:"quantity_kwh"`
	PricePerKWh  decimal.Decimal `json:"price_per_kwh" db:"price_per_kwh"`
	RemainingKWh decimal.Decimal `json:"remaining_kwh"`
	Seq          uint64          `json:"seq"` // submission sequence, tie-break in matching
	Status       OrderStatus     `json:"status"`
	SubmittedAt  time.Time       `json:"submitted_at"`
}

// Trade is one executed match between a bid and an ask from two
// different buildings. Created only by the matcher, immutable after.
type Trade struct {
	ID          string          `json:"id" db:"trade_id"`
	BidOrderID  string          `json:"bid_order_id" db:"bid_order_id"`
	AskOrderID  string          `json:"ask_order_id" db:"ask_order_id"`
	BuyerID     string          `json:"buyer_id" db:"buyer_id"`
	SellerID    string          `json:"seller_id" db:"seller_id"`
	QuantityKWh decimal.Decimal `json:"quantity_kwh" db:"quantity_kwh"`
	PricePerKWh decimal.Decimal `json:"price_per_kwh" db:"price_per_kwh"`
	Tick        uint64          `json:"tick" db:"tick"`
	ExecutedAt  time.Time       `json:"executed_at" db:"time"`
}

// BookSnapshot is a read-only view of the open orders, for the query surface.
type BookSnapshot struct {
	Taken time.Time `json:"taken"`
	Bids  []Order   `json:"bids"` // price descending
	Asks  []Order   `json:"asks"` // price ascending
}

// BuildingName returns the canonical building id for an index,
// e.g. BuildingName(5) == "Building_05".
func BuildingName(i int) string {
	return fmt.Sprintf("Building_%02d", i)
}
