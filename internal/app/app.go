package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flexmarket/api"
	"flexmarket/internal/config"
	"flexmarket/internal/engine"
	"flexmarket/internal/infrastructure"
	"flexmarket/internal/push"
	"flexmarket/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App defines the application structure and its dependencies
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *pgxpool.Pool // nil when persistence is disabled
	NC      *nats.Conn
	JS      nats.JetStreamContext
	Gateway *push.Gateway
	Sim     *engine.Simulator

	HTTPServer *http.Server
	simCancel  context.CancelFunc
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	infrastructure.Init()
	logger := infrastructure.Logger

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Database (optional)
	if a.Config.EnablePersistence {
		dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = dbPool

		if err := a.initDatabase(ctx); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	// 2. NATS
	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.NC = nc
	a.JS = js

	// 3. Services
	a.Gateway = push.NewGateway(js, a.Logger)
	a.Sim = a.buildSimulator()
	a.Sim.AddSink(newNATSSink(js, a.Logger))

	return nil
}

// Run starts the simulation, persistence and the HTTP server
func (a *App) Run(ctx context.Context) error {
	// Persistence service (DB-gated)
	if a.DB != nil {
		tradeSaver := storage.NewTradeSaver(a.DB, a.Logger, 1*time.Second, 500)
		summarySaver := storage.NewSummarySaver(a.DB, a.Logger)
		tradeSaver.Start(ctx)
		a.startPersistenceService(tradeSaver, summarySaver)

		// seed the in-memory trade log from the last run
		loader := storage.NewLoader(a.DB)
		trades, err := loader.RecentTrades(ctx, a.Config.HistoryCapacity)
		if err != nil {
			a.Logger.Warn("failed to reload trade history", zap.Error(err))
		} else if len(trades) > 0 {
			a.Sim.PreloadHistory(trades)
		}
	}

	// Simulation loop
	simCtx, cancel := context.WithCancel(context.Background())
	a.simCancel = cancel
	go func() {
		if err := a.Sim.Run(simCtx); err != nil && err != context.Canceled {
			a.Logger.Error("simulation loop exited", zap.Error(err))
		}
	}()

	// HTTP Server
	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	// stop the tick loop first; an in-flight tick finishes on its own
	if a.simCancel != nil {
		a.simCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.NC.Close()
	if a.DB != nil {
		a.DB.Close()
	}

	return nil
}

// initDatabase runs the database initialization script
func (a *App) initDatabase(ctx context.Context) error {
	sqlFile := "scripts/init.sql"
	content, err := os.ReadFile(sqlFile)
	if err != nil {
		return fmt.Errorf("failed to read init script: %w", err)
	}

	_, err = a.DB.Exec(ctx, string(content))
	if err != nil {
		return fmt.Errorf("failed to execute init script: %w", err)
	}

	a.Logger.Info("database initialized successfully")
	return nil
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	var loader *storage.Loader
	if a.DB != nil {
		loader = storage.NewLoader(a.DB)
	}
	apiHandler := api.NewHandler(a.Sim, loader, a.Logger)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/book", apiHandler.GetBook)
		v1.GET("/trades", apiHandler.GetTrades)
		v1.GET("/trades/history", apiHandler.GetTradeHistory)
		v1.GET("/carbon", apiHandler.GetCarbon)
		v1.GET("/agents", apiHandler.GetAgents)
		v1.GET("/telemetry/:building", apiHandler.GetTelemetry)
		v1.GET("/summaries", apiHandler.GetSummaries)
		v1.POST("/bid", apiHandler.PostBid)
		v1.POST("/ask", apiHandler.PostAsk)
	}

	r.GET("/ws", func(c *gin.Context) {
		a.Gateway.ServeHTTP(c.Writer, c.Request)
	})

	return r
}
