package strategy

// Quote is the raw pricing output for one tick, before jitter and the
// minimum-quantity cut applied by the agent.
type Quote struct {
	BidPrice   float64
	AskPrice   float64
	BidQtyKWh  float64
	AskQtyKWh  float64
	Confidence float64
}

const (
	priceFloor = 0.5

	// markup applied to the observed reference price by the
	// opportunistic mode
	adaptationFactor = 0.1
)

// Price computes the quote for a mode. loadKW is the building's current
// draw; quantities are shed/shift headroom as a mode-specific share of
// it. refPrice is the mean of recently observed trade prices (0 when no
// market context exists yet).
func Price(mode Mode, in Inputs, loadKW, refPrice float64) Quote {
	var q Quote

	switch mode {
	case ModeAggressive:
		q.BidPrice = 8.0 + in.Stress*12.0 + in.TempFactor*5.0
		q.AskPrice = 6.0 + in.Stress*10.0
		// undercut the running market price so the shed offer fills
		if refPrice > 0 && q.AskPrice > refPrice*0.95 {
			q.AskPrice = refPrice * 0.95
		}
		q.BidQtyKWh = loadKW * 0.15
		q.AskQtyKWh = loadKW * 0.20
		q.Confidence = 0.85

	case ModeConservative:
		q.BidPrice = 3.0 + in.Stress*4.0
		// comfortable buildings only sell dear
		q.AskPrice = 8.0 + (1.0-in.TempFactor)*5.0
		q.BidQtyKWh = loadKW * 0.05
		q.AskQtyKWh = loadKW * 0.08
		q.Confidence = 0.75

	case ModeOpportunistic:
		base := in.AvgReceived * (1.0 + adaptationFactor)
		if base <= 0 {
			base = refPrice
		}
		q.BidPrice = base * 0.9
		q.AskPrice = base * 1.1
		q.BidQtyKWh = loadKW * 0.10
		q.AskQtyKWh = loadKW * 0.12
		q.Confidence = 0.80

	default: // ModeAdaptive
		urgency := in.Stress*0.4 + in.PowerFactor*0.3 + in.TempFactor*0.3
		q.BidPrice = 5.0 + urgency*8.0
		q.AskPrice = 7.0 + urgency*6.0
		q.BidQtyKWh = loadKW * (0.08 + urgency*0.07)
		q.AskQtyKWh = loadKW * (0.10 + urgency*0.08)
		q.Confidence = 0.70
	}

	if q.BidPrice < priceFloor {
		q.BidPrice = priceFloor
	}
	if q.AskPrice < priceFloor {
		q.AskPrice = priceFloor
	}
	return q
}
