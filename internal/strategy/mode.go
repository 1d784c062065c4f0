package strategy

import (
	"flexmarket/internal/model"
)

// Mode is the closed set of bidding postures an agent can take.
// Selection is a pure function of the tick's inputs; there is no
// runtime polymorphism behind it.
type Mode string

const (
	ModeAggressive    Mode = "aggressive"
	ModeConservative  Mode = "conservative"
	ModeOpportunistic Mode = "opportunistic"
	ModeAdaptive      Mode = "adaptive"
)

// Inputs are the three signals strategy selection depends on, plus the
// market context used for pricing.
type Inputs struct {
	Level       model.StressLevel
	Stress      float64 // grid signal value, 0..1
	TempFactor  float64 // comfort proxy: 0 comfortable .. 1 hot
	PowerFactor float64 // load relative to the reference maximum, 0..1
	SuccessRate float64 // agent's recent fill rate, 0..1
	AvgReceived float64 // mean price received on recent fills, 0 if none
}

const (
	// comfort proxy normalization: degrees above (comfort - comfortSlack)
	// divided by comfortSpan, clamped to 0..1
	comfortSlack = 2.0
	comfortSpan  = 6.0

	// load normalization ceiling in kW
	referenceLoadKW = 80.0

	successThreshold = 0.6
)

// Factors derives the comfort and load proxies from a telemetry snapshot.
func Factors(t model.Telemetry, comfortTempC float64) (tempFactor, powerFactor float64) {
	tempFactor = clamp01((t.TempC - (comfortTempC - comfortSlack)) / comfortSpan)
	powerFactor = clamp01(t.PowerLoadKW / referenceLoadKW)
	return tempFactor, powerFactor
}

// Classify picks the mode for this tick. High stress forces load
// shedding; low stress with good comfort sits out; a working track
// record with price context gets exploited; everything else blends.
func Classify(in Inputs) Mode {
	switch {
	case in.Level == model.StressHigh:
		return ModeAggressive
	case in.Level == model.StressLow && in.TempFactor < 0.3:
		return ModeConservative
	case in.SuccessRate > successThreshold && in.AvgReceived > 0:
		return ModeOpportunistic
	default:
		return ModeAdaptive
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
