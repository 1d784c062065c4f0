package ledger

import (
	"fmt"
	"testing"

	"flexmarket/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradeN(n int) model.Trade {
	return model.Trade{
		ID:          fmt.Sprintf("trade-%03d", n),
		BuyerID:     "Building_01",
		SellerID:    "Building_02",
		QuantityKWh: decimal.NewFromInt(int64(n)),
		PricePerKWh: decimal.NewFromFloat(0.15),
	}
}

func TestHistoryStore_NewestFirst(t *testing.T) {
	h := NewHistoryStore(10)
	h.Append(tradeN(1), tradeN(2), tradeN(3))

	recent := h.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "trade-003", recent[0].ID)
	assert.Equal(t, "trade-002", recent[1].ID)
}

func TestHistoryStore_EvictsOldestBeyondCapacity(t *testing.T) {
	h := NewHistoryStore(5)
	for i := 1; i <= 8; i++ {
		h.Append(tradeN(i))
	}

	assert.Equal(t, 5, h.Len())
	assert.Equal(t, 5, h.Capacity())

	all := h.Recent(100)
	require.Len(t, all, 5)
	// trades 1-3 were evicted first-in-first-out
	assert.Equal(t, "trade-008", all[0].ID)
	assert.Equal(t, "trade-004", all[4].ID)
}

func TestHistoryStore_RecentOnEmpty(t *testing.T) {
	h := NewHistoryStore(5)
	assert.Nil(t, h.Recent(3))
	assert.Equal(t, 0, h.Len())
}

func TestCarbonLedger_Accumulates(t *testing.T) {
	l := NewCarbonLedger(0.4083)

	l.Apply(model.Trade{QuantityKWh: decimal.NewFromInt(10)})
	l.Apply(model.Trade{QuantityKWh: decimal.NewFromInt(5)})

	snap := l.Snapshot()
	assert.True(t, snap.CumulativeKWhSaved.Equal(decimal.NewFromInt(15)))
	// 15 kWh * 0.4083 kg/kWh = 6.1245 kg = 0.0061245 t
	want := decimal.NewFromFloat(0.0061245)
	assert.True(t, snap.CumulativeTCO2Saved.Equal(want),
		"got %s want %s", snap.CumulativeTCO2Saved, want)
}

func TestCarbonLedger_Monotone(t *testing.T) {
	l := NewCarbonLedger(0.4083)
	prev := decimal.Zero
	for i := 1; i <= 20; i++ {
		l.Apply(model.Trade{QuantityKWh: decimal.NewFromFloat(0.5)})
		snap := l.Snapshot()
		assert.True(t, snap.CumulativeTCO2Saved.GreaterThanOrEqual(prev))
		prev = snap.CumulativeTCO2Saved
	}
}

func TestCarbonLedger_PanicsOnNonPositiveQuantity(t *testing.T) {
	l := NewCarbonLedger(0.4083)
	assert.Panics(t, func() {
		l.Apply(model.Trade{QuantityKWh: decimal.NewFromInt(-1)})
	})
	assert.Panics(t, func() {
		l.Apply(model.Trade{QuantityKWh: decimal.Zero})
	})
}

func TestCarbonLedger_RejectsBadFactor(t *testing.T) {
	assert.Panics(t, func() { NewCarbonLedger(0) })
	assert.Panics(t, func() { NewCarbonLedger(-0.1) })
}
