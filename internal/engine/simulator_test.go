package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"flexmarket/internal/agent"
	"flexmarket/internal/ledger"
	"flexmarket/internal/model"
	"flexmarket/internal/telemetry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedGrid struct {
	sig model.GridSignal
}

func (g fixedGrid) Current() model.GridSignal { return g.sig }

type emptyGrid struct{}

func (emptyGrid) Current() model.GridSignal { return model.GridSignal{} }

// flakyGrid panics on its first call and recovers afterwards.
type flakyGrid struct {
	calls int
}

func (g *flakyGrid) Current() model.GridSignal {
	g.calls++
	if g.calls == 1 {
		panic("grid provider offline")
	}
	return model.GridSignal{Level: model.StressMedium, Value: 0.5, Timestamp: time.Now()}
}

// absentProvider drops readings for the named buildings.
type absentProvider struct {
	inner  telemetry.Provider
	absent map[string]bool
}

func (p absentProvider) Read(ctx context.Context, b string, tick uint64) (model.Telemetry, error) {
	if p.absent[b] {
		return model.Telemetry{}, telemetry.ErrNoReading
	}
	return p.inner.Read(ctx, b, tick)
}

type captureSink struct {
	mu      sync.Mutex
	results []TickResult
	got     chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{got: make(chan struct{}, 64)}
}

func (s *captureSink) Publish(res TickResult) {
	s.mu.Lock()
	s.results = append(s.results, res)
	s.mu.Unlock()
	s.got <- struct{}{}
}

func testSimulator(t *testing.T, n int, provider telemetry.Provider, grid GridProvider, carry bool) *Simulator {
	t.Helper()
	buildings := make([]string, 0, n)
	agents := make(map[string]*agent.Agent, n)
	for i := 1; i <= n; i++ {
		b := model.BuildingName(i)
		buildings = append(buildings, b)
		agents[b] = agent.New(b, int64(100+i), agent.Config{
			ComfortTempC: 24.0,
			JitterAmp:    0.05,
			MinOrderKWh:  1.0,
			LearnWindow:  50,
		}, zap.NewNop())
	}
	cfg := Config{
		Buildings:        buildings,
		Workers:          4,
		ContextWindow:    10,
		RecentWindow:     8,
		CarryRemainder:   carry,
		TickInterval:     10 * time.Millisecond,
		TelemetryTimeout: 100 * time.Millisecond,
	}
	return NewSimulator(cfg,
		agents,
		provider,
		grid,
		ledger.NewHistoryStore(100),
		ledger.NewCarbonLedger(0.4083),
		zap.NewNop(),
	)
}

func highStressSim(t *testing.T, n int) *Simulator {
	grid := fixedGrid{sig: model.GridSignal{Level: model.StressHigh, Value: 0.9, Timestamp: time.Now()}}
	return testSimulator(t, n, telemetry.NewMockProvider(42), grid, false)
}

func TestSimulator_TickProducesTrades(t *testing.T) {
	sim := highStressSim(t, 6)

	require.NoError(t, sim.Tick(context.Background()))

	trades := sim.RecentTrades(100)
	require.NotEmpty(t, trades, "high stress with six buildings should cross")
	for _, tr := range trades {
		assert.NotEqual(t, tr.BuyerID, tr.SellerID)
		assert.True(t, tr.QuantityKWh.IsPositive())
	}

	// default policy: the book is empty again after the tick
	snap := sim.BookSnapshot()
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
	assert.Equal(t, uint64(1), sim.CurrentTick())
}

func TestSimulator_CarbonMatchesTradedEnergy(t *testing.T) {
	sim := highStressSim(t, 6)

	for i := 0; i < 5; i++ {
		require.NoError(t, sim.Tick(context.Background()))
	}

	total := decimal.Zero
	for _, tr := range sim.RecentTrades(100) {
		total = total.Add(tr.QuantityKWh)
	}
	snap := sim.CarbonSnapshot()
	assert.True(t, snap.CumulativeKWhSaved.Equal(total),
		"ledger kwh %s, traded %s", snap.CumulativeKWhSaved, total)

	wantTCO2 := total.Mul(decimal.NewFromFloat(0.4083)).Div(decimal.NewFromInt(1000))
	assert.True(t, snap.CumulativeTCO2Saved.Equal(wantTCO2))
}

func TestSimulator_MissingTelemetryIsIsolated(t *testing.T) {
	grid := fixedGrid{sig: model.GridSignal{Level: model.StressHigh, Value: 0.9, Timestamp: time.Now()}}
	provider := absentProvider{
		inner:  telemetry.NewMockProvider(42),
		absent: map[string]bool{"Building_01": true},
	}
	sim := testSimulator(t, 4, provider, grid, false)
	sink := newCaptureSink()
	sim.AddSink(sink)

	require.NoError(t, sim.Tick(context.Background()))

	select {
	case <-sink.got:
	case <-time.After(time.Second):
		t.Fatal("sink never received the tick result")
	}

	sink.mu.Lock()
	res := sink.results[0]
	sink.mu.Unlock()
	assert.Equal(t, 1, res.MissingTelemetry)

	// the silent building placed no orders and appears in no trade
	for _, tr := range res.Trades {
		assert.NotEqual(t, "Building_01", tr.BuyerID)
		assert.NotEqual(t, "Building_01", tr.SellerID)
	}
	_, ok := sim.Telemetry("Building_01")
	assert.False(t, ok)
	_, ok = sim.Telemetry("Building_02")
	assert.True(t, ok)
}

func TestSimulator_InjectedOrdersScenarioA(t *testing.T) {
	// no agents: only the two injected orders meet in the auction
	sim := testSimulator(t, 0, telemetry.NewMockProvider(1), emptyGrid{}, false)

	_, err := sim.Inject("Building_01", model.SideBid, decimal.NewFromFloat(0.20), decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = sim.Inject("Building_02", model.SideAsk, decimal.NewFromFloat(0.15), decimal.NewFromInt(10))
	require.NoError(t, err)

	require.NoError(t, sim.Tick(context.Background()))

	trades := sim.RecentTrades(10)
	require.Len(t, trades, 1)
	assert.Equal(t, "Building_01", trades[0].BuyerID)
	assert.Equal(t, "Building_02", trades[0].SellerID)
	assert.True(t, trades[0].QuantityKWh.Equal(decimal.NewFromInt(10)))
	assert.True(t, trades[0].PricePerKWh.Equal(decimal.NewFromFloat(0.15)))
}

func TestSimulator_InjectValidates(t *testing.T) {
	sim := testSimulator(t, 0, telemetry.NewMockProvider(1), emptyGrid{}, false)

	_, err := sim.Inject("Building_01", model.SideBid, decimal.NewFromFloat(0.20), decimal.Zero)
	assert.Error(t, err)
	_, err = sim.Inject("Building_01", model.SideBid, decimal.NewFromFloat(-0.20), decimal.NewFromInt(5))
	assert.Error(t, err)
	_, err = sim.Inject("", model.SideBid, decimal.NewFromFloat(0.20), decimal.NewFromInt(5))
	assert.Error(t, err)
	_, err = sim.Inject("Building_01", model.Side("hold"), decimal.NewFromFloat(0.20), decimal.NewFromInt(5))
	assert.Error(t, err)
}

func TestSimulator_CarryRemainderPolicy(t *testing.T) {
	sim := testSimulator(t, 0, telemetry.NewMockProvider(1), emptyGrid{}, true)

	_, err := sim.Inject("Building_01", model.SideBid, decimal.NewFromFloat(0.20), decimal.NewFromInt(15))
	require.NoError(t, err)
	_, err = sim.Inject("Building_02", model.SideAsk, decimal.NewFromFloat(0.15), decimal.NewFromInt(10))
	require.NoError(t, err)

	require.NoError(t, sim.Tick(context.Background()))

	trades := sim.RecentTrades(10)
	require.Len(t, trades, 1)

	// with carry enabled the 5 kWh bid remainder survives into the next tick
	snap := sim.BookSnapshot()
	require.Len(t, snap.Bids, 1)
	assert.True(t, snap.Bids[0].RemainingKWh.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, model.StatusPartiallyFilled, snap.Bids[0].Status)

	// a fresh ask can now fill the carried remainder
	_, err = sim.Inject("Building_03", model.SideAsk, decimal.NewFromFloat(0.12), decimal.NewFromInt(5))
	require.NoError(t, err)
	require.NoError(t, sim.Tick(context.Background()))

	trades = sim.RecentTrades(10)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].QuantityKWh.Equal(decimal.NewFromInt(5)))
	assert.True(t, trades[0].PricePerKWh.Equal(decimal.NewFromFloat(0.12)))
}

func TestSimulator_StaleSignalReuse(t *testing.T) {
	sim := testSimulator(t, 2, telemetry.NewMockProvider(1), emptyGrid{}, false)

	require.NoError(t, sim.Tick(context.Background()))
	// an empty provider signal falls back to a sane default
	assert.Equal(t, model.StressMedium, sim.GridSignal().Level)
}

func TestSimulator_PanickingTickIsAbandonedNotFatal(t *testing.T) {
	sim := testSimulator(t, 2, telemetry.NewMockProvider(1), &flakyGrid{}, false)

	err := sim.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick panicked")

	// the next tick proceeds normally once the provider recovers
	require.NoError(t, sim.Tick(context.Background()))
	assert.Equal(t, uint64(2), sim.CurrentTick())
	assert.Equal(t, model.StressMedium, sim.GridSignal().Level)
}

func TestSimulator_AgentsLearnAndStrategiesVisible(t *testing.T) {
	sim := highStressSim(t, 6)

	for i := 0; i < 3; i++ {
		require.NoError(t, sim.Tick(context.Background()))
	}

	strategies := sim.Strategies()
	require.Len(t, strategies, 6)
	for b, mode := range strategies {
		assert.NotEmpty(t, mode, "building %s has no recorded strategy", b)
	}
}

func TestSimulator_SummariesBounded(t *testing.T) {
	sim := testSimulator(t, 0, telemetry.NewMockProvider(1), emptyGrid{}, false)

	for i := 0; i < summaryCapacity+10; i++ {
		require.NoError(t, sim.Tick(context.Background()))
	}
	summaries := sim.Summaries()
	require.Len(t, summaries, summaryCapacity)
	assert.Equal(t, uint64(11), summaries[0].Tick)
	assert.Equal(t, uint64(summaryCapacity+10), summaries[len(summaries)-1].Tick)
}

func TestSimulator_PreloadHistory(t *testing.T) {
	sim := testSimulator(t, 0, telemetry.NewMockProvider(1), emptyGrid{}, false)

	// loader order: newest first
	sim.PreloadHistory([]model.Trade{
		{ID: "t-new", QuantityKWh: decimal.NewFromInt(2), PricePerKWh: decimal.NewFromFloat(0.2)},
		{ID: "t-old", QuantityKWh: decimal.NewFromInt(1), PricePerKWh: decimal.NewFromFloat(0.1)},
	})

	trades := sim.RecentTrades(10)
	require.Len(t, trades, 2)
	assert.Equal(t, "t-new", trades[0].ID)
	assert.Equal(t, "t-old", trades[1].ID)
}

func TestSimulator_RunStopsBetweenTicks(t *testing.T) {
	sim := highStressSim(t, 3)
	sink := newCaptureSink()
	sim.AddSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	select {
	case <-sink.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick completed")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop")
	}
}
