package ledger

import (
	"fmt"
	"sync"

	"flexmarket/internal/infrastructure"
	"flexmarket/internal/model"

	"github.com/shopspring/decimal"
)

// CarbonLedger converts traded energy into estimated emissions avoided
// and accumulates the totals. Apply is the only mutation and the totals
// never decrease; a negative quantity reaching the ledger is a
// programming error and panics.
type CarbonLedger struct {
	mu             sync.RWMutex
	factorKgPerKWh decimal.Decimal
	kwhSaved       decimal.Decimal
	tco2Saved      decimal.Decimal
}

// CarbonSnapshot is the read-only view of the ledger totals.
type CarbonSnapshot struct {
	CumulativeKWhSaved  decimal.Decimal `json:"cumulative_kwh_saved"`
	CumulativeTCO2Saved decimal.Decimal `json:"cumulative_tco2_saved"`
	EmissionFactor      decimal.Decimal `json:"emission_factor_kg_per_kwh"`
}

var kgPerTonne = decimal.NewFromInt(1000)

func NewCarbonLedger(factorKgPerKWh float64) *CarbonLedger {
	if factorKgPerKWh <= 0 {
		panic(fmt.Sprintf("carbon ledger: emission factor must be positive, got %f", factorKgPerKWh))
	}
	return &CarbonLedger{factorKgPerKWh: decimal.NewFromFloat(factorKgPerKWh)}
}

// Apply credits one executed trade's energy to the running totals.
func (l *CarbonLedger) Apply(t model.Trade) {
	if !t.QuantityKWh.IsPositive() {
		panic(fmt.Sprintf("carbon ledger: non-positive trade quantity %s", t.QuantityKWh))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.kwhSaved = l.kwhSaved.Add(t.QuantityKWh)
	l.tco2Saved = l.tco2Saved.Add(t.QuantityKWh.Mul(l.factorKgPerKWh).Div(kgPerTonne))

	tonnes, _ := l.tco2Saved.Float64()
	infrastructure.CarbonSavedTonnes.Set(tonnes)
}

// Snapshot returns the current totals.
func (l *CarbonLedger) Snapshot() CarbonSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return CarbonSnapshot{
		CumulativeKWhSaved:  l.kwhSaved,
		CumulativeTCO2Saved: l.tco2Saved,
		EmissionFactor:      l.factorKgPerKWh,
	}
}
