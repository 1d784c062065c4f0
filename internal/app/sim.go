package app

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"flexmarket/internal/agent"
	"flexmarket/internal/engine"
	"flexmarket/internal/gridsim"
	"flexmarket/internal/ledger"
	"flexmarket/internal/model"
	"flexmarket/internal/storage"
	"flexmarket/internal/telemetry"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// buildSimulator assembles the simulation context from configuration:
// one agent per building, the telemetry provider (BMS when a URL is
// configured, deterministic mock otherwise), the grid stress generator
// and the ledgers.
func (a *App) buildSimulator() *engine.Simulator {
	cfg := a.Config

	buildings := make([]string, 0, cfg.BuildingCount)
	agents := make(map[string]*agent.Agent, cfg.BuildingCount)
	agentCfg := agent.Config{
		ComfortTempC: cfg.ComfortTempC,
		JitterAmp:    cfg.JitterAmplitude,
		MinOrderKWh:  cfg.MinOrderKWh,
		LearnWindow:  cfg.LearnWindow,
	}
	for i := 1; i <= cfg.BuildingCount; i++ {
		b := model.BuildingName(i)
		buildings = append(buildings, b)
		agents[b] = agent.New(b, cfg.RNGSeed+int64(i), agentCfg, a.Logger)
	}

	var provider telemetry.Provider
	if cfg.BMSURL != "" {
		provider = telemetry.NewBMSProvider(cfg.BMSURL, time.Duration(cfg.TelemetryTimeoutMS)*time.Millisecond, a.Logger)
		a.Logger.Info("using BMS telemetry provider", zap.String("url", cfg.BMSURL))
	} else {
		provider = telemetry.NewMockProvider(cfg.RNGSeed)
		a.Logger.Info("using mock telemetry provider", zap.Int64("seed", cfg.RNGSeed))
	}

	grid := gridsim.NewGenerator(time.Duration(cfg.GridCycleMinutes) * time.Minute)

	return engine.NewSimulator(
		engine.Config{
			Buildings:        buildings,
			Workers:          runtime.NumCPU(),
			ContextWindow:    cfg.ContextWindow,
			RecentWindow:     cfg.RecentWindow,
			CarryRemainder:   cfg.CarryRemainder,
			TickInterval:     time.Duration(cfg.TickIntervalMS) * time.Millisecond,
			TelemetryTimeout: time.Duration(cfg.TelemetryTimeoutMS) * time.Millisecond,
		},
		agents,
		provider,
		grid,
		ledger.NewHistoryStore(cfg.HistoryCapacity),
		ledger.NewCarbonLedger(cfg.EmissionFactor),
		a.Logger,
	)
}

// natsSink publishes each tick's output to JetStream: one message per
// trade on market.trade.<seller> and the full result on market.tick.
// The simulator already decouples sinks from the tick, so publishing
// here may be slow without consequence.
type natsSink struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

func newNATSSink(js nats.JetStreamContext, logger *zap.Logger) *natsSink {
	return &natsSink{js: js, logger: logger}
}

func (s *natsSink) Publish(res engine.TickResult) {
	for _, trade := range res.Trades {
		data, err := json.Marshal(trade)
		if err != nil {
			s.logger.Error("failed to marshal trade", zap.Error(err))
			continue
		}
		subject := fmt.Sprintf("market.trade.%s", trade.SellerID)
		if _, err := s.js.Publish(subject, data); err != nil {
			s.logger.Error("failed to publish trade to NATS", zap.Error(err))
		}
	}

	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Error("failed to marshal tick result", zap.Error(err))
		return
	}
	if _, err := s.js.Publish("market.tick", data); err != nil {
		s.logger.Error("failed to publish tick result to NATS", zap.Error(err))
	}
}

// startPersistenceService subscribes to NATS and saves trades and tick
// summaries to the database
func (a *App) startPersistenceService(tradeSaver *storage.TradeSaver, summarySaver *storage.SummarySaver) {
	// 1. Subscribe to executed trades
	_, err := a.JS.Subscribe("market.trade.*", func(m *nats.Msg) {
		var trade model.Trade
		if err := json.Unmarshal(m.Data, &trade); err != nil {
			a.Logger.Error("failed to unmarshal trade", zap.Error(err))
			return
		}
		tradeSaver.Add(trade)
		m.Ack()
	}, nats.Durable("trade_saver"), nats.ManualAck())
	if err != nil {
		a.Logger.Fatal("failed to subscribe to trades", zap.Error(err))
	}

	// 2. Subscribe to tick summaries
	_, err = a.JS.Subscribe("market.tick", func(m *nats.Msg) {
		var res engine.TickResult
		if err := json.Unmarshal(m.Data, &res); err != nil {
			a.Logger.Error("failed to unmarshal tick result", zap.Error(err))
			return
		}
		summarySaver.Add(res)
		m.Ack()
	}, nats.Durable("summary_saver"), nats.ManualAck())
	if err != nil {
		a.Logger.Fatal("failed to subscribe to tick results", zap.Error(err))
	}
}
