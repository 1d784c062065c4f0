package model

import (
	"fmt"
	"time"
)

// Telemetry is one building's sensor snapshot for a tick. Immutable once built.
type Telemetry struct {
	BuildingID  string    `json:"building_id" db:"building_id"`
	TempC       float64   `json:"temp_c" db:"temp_c"`
	HumidityPct float64   `json:"humidity_pct" db:"humidity_pct"`
	PowerLoadKW float64   `json:"power_load_kw" db:"power_load_kw"`
	Timestamp   time.Time `json:"ts" db:"time"`
}

// NewTelemetry validates the sensor ranges and builds a snapshot.
// Readings outside the plausible envelope are rejected rather than clamped.
func NewTelemetry(buildingID string, tempC, humidityPct, powerLoadKW float64, ts time.Time) (Telemetry, error) {
	if buildingID == "" {
		return Telemetry{}, fmt.Errorf("telemetry: empty building id")
	}
	if tempC < 15 || tempC > 35 {
		return Telemetry{}, fmt.Errorf("telemetry: temp %.1f°C outside [15,35]", tempC)
	}
	if humidityPct < 0 || humidityPct > 100 {
		return Telemetry{}, fmt.Errorf("telemetry: humidity %.1f%% outside [0,100]", humidityPct)
	}
	if powerLoadKW < 0 {
		return Telemetry{}, fmt.Errorf("telemetry: negative power load %.1fkW", powerLoadKW)
	}
	return Telemetry{
		BuildingID:  buildingID,
		TempC:       tempC,
		HumidityPct: humidityPct,
		PowerLoadKW: powerLoadKW,
		Timestamp:   ts,
	}, nil
}

// StressLevel is the discrete grid stress band.
type StressLevel string

const (
	StressLow    StressLevel = "low"
	StressMedium StressLevel = "medium"
	StressHigh   StressLevel = "high"
)

// GridSignal is the shared demand-response pressure signal for a tick.
// All agents read the same immutable value.
type GridSignal struct {
	Level     StressLevel `json:"level"`
	Value     float64     `json:"value"` // 0..1
	Timestamp time.Time   `json:"ts"`
}
