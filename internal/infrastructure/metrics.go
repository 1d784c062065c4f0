package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "sim_tick_duration_seconds",
		Help: "Duration of one full simulation tick",
	})

	TradesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_trades_matched_total",
		Help: "Total number of trades produced by the matcher",
	})

	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_orders_submitted_total",
		Help: "Total number of orders accepted by the order book",
	}, []string{"side"})

	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_orders_rejected_total",
		Help: "Total number of orders rejected at submission",
	})

	MissingTelemetry = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_missing_telemetry_total",
		Help: "Ticks on which a building had no telemetry reading",
	})

	CarbonSavedTonnes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "carbon_saved_tonnes",
		Help: "Cumulative estimated tCO2 avoided",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	DBInsertRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "db_insert_total",
		Help: "Total number of records inserted into DB",
	}, []string{"table"})
)
