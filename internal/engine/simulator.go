package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"flexmarket/internal/agent"
	"flexmarket/internal/infrastructure"
	"flexmarket/internal/ledger"
	"flexmarket/internal/market"
	"flexmarket/internal/model"
	"flexmarket/internal/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GridProvider supplies the shared stress signal, updated on its own
// wall-clock cycle.
type GridProvider interface {
	Current() model.GridSignal
}

// Sink receives the per-tick output. Delivery is fire-and-forget: each
// sink gets its own buffered channel and results are dropped, with a
// warning, rather than ever blocking the tick.
type Sink interface {
	Publish(TickResult)
}

// TickResult is everything one completed tick produced.
type TickResult struct {
	Tick             uint64                `json:"tick"`
	Signal           model.GridSignal      `json:"signal"`
	Trades           []model.Trade         `json:"trades"`
	Carbon           ledger.CarbonSnapshot `json:"carbon"`
	OrdersSubmitted  int                   `json:"orders_submitted"`
	MissingTelemetry int                   `json:"missing_telemetry"`
	OrdersExpired    int                   `json:"orders_expired"`
	Duration         time.Duration         `json:"duration_ns"`
	ExecutedAt       time.Time             `json:"executed_at"`
}

// TickSummary is the bounded per-tick record kept for the query surface.
type TickSummary struct {
	Tick       uint64            `json:"tick"`
	Level      model.StressLevel `json:"grid_level"`
	Trades     int               `json:"trades"`
	KWhTraded  decimal.Decimal   `json:"kwh_traded"`
	ExecutedAt time.Time         `json:"executed_at"`
}

const summaryCapacity = 50

// Config carries the simulation parameters resolved from the
// configuration surface.
type Config struct {
	Buildings        []string
	Workers          int
	ContextWindow    int // trades handed to agents as decision context
	RecentWindow     int // default size of the recent-trades view
	CarryRemainder   bool
	TickInterval     time.Duration
	TelemetryTimeout time.Duration
}

// Simulator is the explicit per-process simulation context: it owns the
// order book, the ledgers and the agents, and drives the tick loop.
// There is no ambient state; everything a tick touches hangs off it.
type Simulator struct {
	cfg       Config
	logger    *zap.Logger
	provider  telemetry.Provider
	grid      GridProvider
	agents    map[string]*agent.Agent
	buildings []string
	book      *market.OrderBook
	matcher   *market.Matcher
	history   *ledger.HistoryStore
	carbon    *ledger.CarbonLedger
	pool      *workerPool

	mu            sync.RWMutex
	tick          uint64
	lastSignal    model.GridSignal
	lastTelemetry map[string]model.Telemetry
	summaries     []TickSummary

	sinkMu sync.Mutex
	sinks  []chan TickResult

	injectMu sync.Mutex
	injected []*model.Order
}

func NewSimulator(
	cfg Config,
	agents map[string]*agent.Agent,
	provider telemetry.Provider,
	grid GridProvider,
	history *ledger.HistoryStore,
	carbon *ledger.CarbonLedger,
	logger *zap.Logger,
) *Simulator {
	buildings := make([]string, 0, len(agents))
	for _, b := range cfg.Buildings {
		if _, ok := agents[b]; ok {
			buildings = append(buildings, b)
		}
	}
	return &Simulator{
		cfg:           cfg,
		logger:        logger,
		provider:      provider,
		grid:          grid,
		agents:        agents,
		buildings:     buildings,
		book:          market.NewOrderBook(),
		matcher:       market.NewMatcher(logger),
		history:       history,
		carbon:        carbon,
		pool:          newWorkerPool(cfg.Workers, logger),
		lastTelemetry: make(map[string]model.Telemetry),
	}
}

// AddSink registers a tick output consumer. Each sink drains its own
// buffered channel on a dedicated goroutine for the simulator's
// lifetime.
func (s *Simulator) AddSink(sink Sink) {
	ch := make(chan TickResult, 16)
	go func() {
		for res := range ch {
			sink.Publish(res)
		}
	}()
	s.sinkMu.Lock()
	s.sinks = append(s.sinks, ch)
	s.sinkMu.Unlock()
}

// PreloadHistory seeds the trade log from persistence at boot.
// trades must be ordered newest first, as the storage loader returns
// them.
func (s *Simulator) PreloadHistory(trades []model.Trade) {
	for i := len(trades) - 1; i >= 0; i-- {
		s.history.Append(trades[i])
	}
	s.logger.Info("preloaded trade history", zap.Int("trades", len(trades)))
}

// Run drives the tick loop until the context is cancelled. An
// in-flight tick always completes; cancellation takes effect at the
// next tick boundary.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("simulation started",
		zap.Int("buildings", len(s.buildings)),
		zap.Duration("tick_interval", s.cfg.TickInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulation stopped", zap.Uint64("ticks", s.CurrentTick()))
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				// the failed tick is abandoned wholesale and retried next interval
				s.logger.Error("tick abandoned", zap.Error(err))
			}
		}
	}
}

// Tick runs one full simulation step: telemetry + decisions in
// parallel, then the single-threaded match, then bookkeeping and
// event fan-out. A panicking component abandons the whole tick; the
// run loop retries at the next interval.
func (s *Simulator) Tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()

	started := time.Now()

	s.mu.Lock()
	s.tick++
	tick := s.tick
	s.mu.Unlock()

	signal := s.currentSignal()
	ctxTrades := s.history.Recent(s.cfg.ContextWindow)

	var missing atomic.Int64
	var submitted atomic.Int64
	readings := make(map[string]model.Telemetry, len(s.buildings))
	var readingsMu sync.Mutex

	tasks := make([]task, 0, len(s.buildings))
	for _, b := range s.buildings {
		b := b
		ag := s.agents[b]
		tasks = append(tasks, func() {
			tctx, cancel := context.WithTimeout(ctx, s.cfg.TelemetryTimeout)
			defer cancel()

			var telp *model.Telemetry
			tel, err := s.provider.Read(tctx, b, tick)
			if err != nil {
				missing.Add(1)
				infrastructure.MissingTelemetry.Inc()
				s.logger.Warn("missing telemetry, agent sits out",
					zap.String("building", b), zap.Uint64("tick", tick), zap.Error(err))
			} else {
				telp = &tel
				readingsMu.Lock()
				readings[b] = tel
				readingsMu.Unlock()
			}

			bid, ask := ag.Decide(telp, signal, ctxTrades)
			for _, o := range []*model.Order{bid, ask} {
				if o == nil {
					continue
				}
				if err := s.book.Submit(o); err != nil {
					s.logger.Warn("order rejected",
						zap.String("building", b), zap.Error(err))
					continue
				}
				submitted.Add(1)
			}
		})
	}

	// decide phase: parallel, then the barrier
	s.pool.runBatch(tasks)

	// externally injected orders enter the same auction
	for _, o := range s.drainInjected() {
		if err := s.book.Submit(o); err != nil {
			s.logger.Warn("injected order rejected", zap.String("building", o.BuildingID), zap.Error(err))
			continue
		}
		submitted.Add(1)
	}

	trades := s.matcher.Run(s.book, tick)

	s.history.Append(trades...)
	for _, t := range trades {
		s.carbon.Apply(t)
	}
	for _, ag := range s.agents {
		ag.Observe(trades)
	}

	expired := s.book.Sweep(s.cfg.CarryRemainder)

	res := TickResult{
		Tick:             tick,
		Signal:           signal,
		Trades:           trades,
		Carbon:           s.carbon.Snapshot(),
		OrdersSubmitted:  int(submitted.Load()),
		MissingTelemetry: int(missing.Load()),
		OrdersExpired:    len(expired),
		Duration:         time.Since(started),
		ExecutedAt:       started,
	}

	s.recordTick(res, readings)
	s.fanOut(res)
	infrastructure.TickDuration.Observe(res.Duration.Seconds())

	s.logger.Info("tick complete",
		zap.Uint64("tick", tick),
		zap.String("grid_level", string(signal.Level)),
		zap.Int("orders", res.OrdersSubmitted),
		zap.Int("trades", len(trades)),
		zap.Int("missing", res.MissingTelemetry),
		zap.Duration("took", res.Duration),
	)
	return nil
}

// Inject queues an external order for the next tick's auction. It is
// validated up front so the caller gets a synchronous answer.
func (s *Simulator) Inject(buildingID string, side model.Side, pricePerKWh, quantityKWh decimal.Decimal) (string, error) {
	if buildingID == "" {
		return "", fmt.Errorf("%w: empty building id", market.ErrInvalidOrder)
	}
	if side != model.SideBid && side != model.SideAsk {
		return "", fmt.Errorf("%w: unknown side %q", market.ErrInvalidOrder, side)
	}
	if !quantityKWh.IsPositive() {
		return "", fmt.Errorf("%w: quantity %s must be positive", market.ErrInvalidOrder, quantityKWh)
	}
	if pricePerKWh.IsNegative() {
		return "", fmt.Errorf("%w: price %s must not be negative", market.ErrInvalidOrder, pricePerKWh)
	}

	o := &model.Order{
		ID:          uuid.NewString(),
		BuildingID:  buildingID,
		Side:        side,
		PricePerKWh: pricePerKWh,
		QuantityKWh: quantityKWh,
	}
	s.injectMu.Lock()
	s.injected = append(s.injected, o)
	s.injectMu.Unlock()
	return o.ID, nil
}

func (s *Simulator) drainInjected() []*model.Order {
	s.injectMu.Lock()
	defer s.injectMu.Unlock()
	out := s.injected
	s.injected = nil
	return out
}

// currentSignal asks the grid provider, reusing the previous signal
// when the provider yields nothing usable.
func (s *Simulator) currentSignal() model.GridSignal {
	sig := s.grid.Current()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig.Level == "" {
		if s.lastSignal.Level == "" {
			// nothing to fall back on yet
			sig = model.GridSignal{Level: model.StressMedium, Value: 0.5, Timestamp: time.Now()}
		} else {
			s.logger.Warn("grid provider returned no signal, reusing previous",
				zap.String("level", string(s.lastSignal.Level)))
			sig = s.lastSignal
		}
	}
	s.lastSignal = sig
	return sig
}

func (s *Simulator) recordTick(res TickResult, readings map[string]model.Telemetry) {
	kwh := decimal.Zero
	for _, t := range res.Trades {
		kwh = kwh.Add(t.QuantityKWh)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for b, tel := range readings {
		s.lastTelemetry[b] = tel
	}
	s.summaries = append(s.summaries, TickSummary{
		Tick:       res.Tick,
		Level:      res.Signal.Level,
		Trades:     len(res.Trades),
		KWhTraded:  kwh,
		ExecutedAt: res.ExecutedAt,
	})
	if len(s.summaries) > summaryCapacity {
		s.summaries = s.summaries[len(s.summaries)-summaryCapacity:]
	}
}

func (s *Simulator) fanOut(res TickResult) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	for _, ch := range s.sinks {
		select {
		case ch <- res:
		default:
			s.logger.Warn("sink channel full, dropping tick result", zap.Uint64("tick", res.Tick))
		}
	}
}

// --- read-only query surface ---

func (s *Simulator) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

func (s *Simulator) BookSnapshot() model.BookSnapshot {
	return s.book.Snapshot()
}

// RecentTrades returns up to limit trades, newest first; limit <= 0
// falls back to the configured recent window.
func (s *Simulator) RecentTrades(limit int) []model.Trade {
	if limit <= 0 {
		limit = s.cfg.RecentWindow
	}
	return s.history.Recent(limit)
}

func (s *Simulator) CarbonSnapshot() ledger.CarbonSnapshot {
	return s.carbon.Snapshot()
}

// Strategies reports each agent's current mode, for inspection only.
func (s *Simulator) Strategies() map[string]string {
	out := make(map[string]string, len(s.agents))
	for b, ag := range s.agents {
		out[b] = ag.CurrentStrategy()
	}
	return out
}

// Telemetry returns the last reading recorded for a building.
func (s *Simulator) Telemetry(buildingID string) (model.Telemetry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tel, ok := s.lastTelemetry[buildingID]
	return tel, ok
}

func (s *Simulator) GridSignal() model.GridSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSignal
}

func (s *Simulator) Summaries() []TickSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TickSummary, len(s.summaries))
	copy(out, s.summaries)
	return out
}
