package api

import (
	"errors"
	"net/http"
	"strconv"

	"flexmarket/internal/engine"
	"flexmarket/internal/market"
	"flexmarket/internal/model"
	"flexmarket/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler serves the read-only snapshot surface plus manual order
// injection. loader is nil when persistence is disabled.
type Handler struct {
	sim    *engine.Simulator
	loader *storage.Loader
	logger *zap.Logger
}

func NewHandler(sim *engine.Simulator, loader *storage.Loader, logger *zap.Logger) *Handler {
	return &Handler{
		sim:    sim,
		loader: loader,
		logger: logger,
	}
}

// Snapshot Handlers

func (h *Handler) GetBook(c *gin.Context) {
	c.JSON(http.StatusOK, h.sim.BookSnapshot())
}

func (h *Handler) GetTrades(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, h.sim.RecentTrades(limit))
}

// GetTradeHistory serves the long horizon from the database; the
// in-memory view above only keeps the bounded recent window.
func (h *Handler) GetTradeHistory(c *gin.Context) {
	if h.loader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	trades, err := h.loader.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to query trade history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	c.JSON(http.StatusOK, trades)
}

func (h *Handler) GetCarbon(c *gin.Context) {
	c.JSON(http.StatusOK, h.sim.CarbonSnapshot())
}

func (h *Handler) GetAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tick":       h.sim.CurrentTick(),
		"strategies": h.sim.Strategies(),
	})
}

func (h *Handler) GetTelemetry(c *gin.Context) {
	building := c.Param("building")
	tel, ok := h.sim.Telemetry(building)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reading for building " + building})
		return
	}
	c.JSON(http.StatusOK, tel)
}

func (h *Handler) GetSummaries(c *gin.Context) {
	c.JSON(http.StatusOK, h.sim.Summaries())
}

// Order Injection Handlers

type orderRequest struct {
	BuildingID  string          `json:"building_id" binding:"required"`
	PricePerKWh decimal.Decimal `json:"price_per_kwh"`
	QuantityKWh decimal.Decimal `json:"quantity_kwh"`
}

func (h *Handler) PostBid(c *gin.Context) {
	h.inject(c, model.SideBid)
}

func (h *Handler) PostAsk(c *gin.Context) {
	h.inject(c, model.SideAsk)
}

func (h *Handler) inject(c *gin.Context, side model.Side) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.sim.Inject(req.BuildingID, side, req.PricePerKWh, req.QuantityKWh)
	if err != nil {
		if errors.Is(err, market.ErrInvalidOrder) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to inject order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// queued for the next tick's auction, not matched synchronously
	c.JSON(http.StatusAccepted, gin.H{"id": id, "side": side})
}
