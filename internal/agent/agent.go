package agent

import (
	"math/rand"
	"sync"

	"flexmarket/internal/model"
	"flexmarket/internal/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config is the per-agent tuning shared by all buildings.
type Config struct {
	ComfortTempC float64
	JitterAmp    float64 // bounded price jitter, e.g. 0.05 for ±5%
	MinOrderKWh  float64 // quotes below this are not emitted
	LearnWindow  int     // outcome history capacity
}

type outcome struct {
	filled    bool
	sellPrice float64 // mean price received as seller that tick, 0 if none
}

// Agent is one building's market participant. It prices at most one
// bid and one ask per tick and learns from its own fill outcomes.
// Decide runs on the tick worker pool; Observe runs after the matching
// barrier; the query surface reads CurrentStrategy concurrently.
type Agent struct {
	buildingID string
	cfg        Config
	rng        *rand.Rand
	logger     *zap.Logger

	mu        sync.Mutex
	mode      strategy.Mode
	outcomes  []outcome // ring, newest at head-1
	head      int
	count     int
	submitted bool // orders emitted this tick, consumed by Observe
}

// New creates an agent with its own seeded jitter source so runs with
// the same base seed reproduce exactly.
func New(buildingID string, seed int64, cfg Config, logger *zap.Logger) *Agent {
	if cfg.LearnWindow <= 0 {
		cfg.LearnWindow = 50
	}
	return &Agent{
		buildingID: buildingID,
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(seed)),
		logger:     logger,
		mode:       strategy.ModeAdaptive,
		outcomes:   make([]outcome, cfg.LearnWindow),
	}
}

func (a *Agent) BuildingID() string {
	return a.buildingID
}

// CurrentStrategy reports the mode chosen on the last decide, for the
// query surface only.
func (a *Agent) CurrentStrategy() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return string(a.mode)
}

// Decide prices this tick's orders from the telemetry snapshot, the
// shared grid signal and the recent trade context. A nil telemetry
// reading suppresses both orders: the agent never fabricates data.
// Either return value may be nil when the quoted quantity falls below
// the configured minimum.
func (a *Agent) Decide(tel *model.Telemetry, sig model.GridSignal, ctx []model.Trade) (bid, ask *model.Order) {
	if tel == nil {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tempF, powerF := strategy.Factors(*tel, a.cfg.ComfortTempC)
	in := strategy.Inputs{
		Level:       sig.Level,
		Stress:      sig.Value,
		TempFactor:  tempF,
		PowerFactor: powerF,
		SuccessRate: a.successRateLocked(),
		AvgReceived: a.avgReceivedLocked(),
	}

	mode := strategy.Classify(in)
	a.mode = mode

	quote := strategy.Price(mode, in, tel.PowerLoadKW, referencePrice(ctx))

	if quote.BidQtyKWh > 0 && quote.BidQtyKWh >= a.cfg.MinOrderKWh {
		bid = a.order(model.SideBid, a.jitter(quote.BidPrice), quote.BidQtyKWh)
	}
	if quote.AskQtyKWh > 0 && quote.AskQtyKWh >= a.cfg.MinOrderKWh {
		ask = a.order(model.SideAsk, a.jitter(quote.AskPrice), quote.AskQtyKWh)
	}
	a.submitted = bid != nil || ask != nil

	a.logger.Debug("agent decided",
		zap.String("building", a.buildingID),
		zap.String("mode", string(mode)),
		zap.Float64("confidence", quote.Confidence),
		zap.Bool("bid", bid != nil),
		zap.Bool("ask", ask != nil),
	)
	return bid, ask
}

// Observe closes the tick's feedback loop: the agent checks the
// executed trades for its own fills and records one outcome per tick
// on which it had orders in the book.
func (a *Agent) Observe(trades []model.Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.submitted {
		return
	}
	a.submitted = false

	filled := false
	sellSum := 0.0
	sellN := 0
	for _, t := range trades {
		if t.BuyerID == a.buildingID {
			filled = true
		}
		if t.SellerID == a.buildingID {
			filled = true
			p, _ := t.PricePerKWh.Float64()
			sellSum += p
			sellN++
		}
	}

	o := outcome{filled: filled}
	if sellN > 0 {
		o.sellPrice = sellSum / float64(sellN)
	}
	a.outcomes[a.head] = o
	a.head = (a.head + 1) % len(a.outcomes)
	if a.count < len(a.outcomes) {
		a.count++
	}
}

// SuccessRate is the fill rate over the learning window, 0.5 with no
// history yet so a fresh agent is neither timid nor reckless.
func (a *Agent) SuccessRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.successRateLocked()
}

func (a *Agent) successRateLocked() float64 {
	if a.count == 0 {
		return 0.5
	}
	fills := 0
	for i := 0; i < a.count; i++ {
		if a.outcomes[i].filled {
			fills++
		}
	}
	return float64(fills) / float64(a.count)
}

func (a *Agent) avgReceivedLocked() float64 {
	sum := 0.0
	n := 0
	for i := 0; i < a.count; i++ {
		if a.outcomes[i].sellPrice > 0 {
			sum += a.outcomes[i].sellPrice
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (a *Agent) order(side model.Side, price, qty float64) *model.Order {
	return &model.Order{
		ID:          uuid.NewString(),
		BuildingID:  a.buildingID,
		Side:        side,
		PricePerKWh: decimal.NewFromFloat(price).Round(2),
		QuantityKWh: decimal.NewFromFloat(qty).Round(1),
	}
}

// jitter perturbs a price by a bounded, seeded random factor for
// market realism without losing reproducibility.
func (a *Agent) jitter(price float64) float64 {
	if a.cfg.JitterAmp <= 0 {
		return price
	}
	return price * (1 + a.cfg.JitterAmp*(2*a.rng.Float64()-1))
}

// referencePrice is the mean of the recently observed trade prices,
// 0 when there is no market context yet.
func referencePrice(ctx []model.Trade) float64 {
	if len(ctx) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, t := range ctx {
		sum = sum.Add(t.PricePerKWh)
	}
	ref, _ := sum.Div(decimal.NewFromInt(int64(len(ctx)))).Float64()
	return ref
}
