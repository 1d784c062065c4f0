package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"flexmarket/internal/model"

	"go.uber.org/zap"
)

// BMSProvider reads telemetry from a building-management-system HTTP
// endpoint. Any failure (timeout included) degrades to ErrNoReading so
// one slow gateway never stalls the tick.
type BMSProvider struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewBMSProvider(baseURL string, timeout time.Duration, logger *zap.Logger) *BMSProvider {
	return &BMSProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type bmsReading struct {
	TempC       float64 `json:"temp_c"`
	HumidityPct float64 `json:"humidity_pct"`
	PowerLoadKW float64 `json:"power_load_kw"`
}

func (p *BMSProvider) Read(ctx context.Context, buildingID string, _ uint64) (model.Telemetry, error) {
	url := fmt.Sprintf("%s/telemetry/%s", p.baseURL, buildingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Telemetry{}, fmt.Errorf("%w: %v", ErrNoReading, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("bms read failed", zap.String("building", buildingID), zap.Error(err))
		return model.Telemetry{}, fmt.Errorf("%w: %v", ErrNoReading, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("bms returned non-200", zap.String("building", buildingID), zap.Int("status", resp.StatusCode))
		return model.Telemetry{}, fmt.Errorf("%w: status %d", ErrNoReading, resp.StatusCode)
	}

	var r bmsReading
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return model.Telemetry{}, fmt.Errorf("%w: decode: %v", ErrNoReading, err)
	}

	tel, err := model.NewTelemetry(buildingID, r.TempC, r.HumidityPct, r.PowerLoadKW, time.Now())
	if err != nil {
		// out-of-range sensor data is as good as no data
		p.logger.Warn("bms reading out of range", zap.String("building", buildingID), zap.Error(err))
		return model.Telemetry{}, fmt.Errorf("%w: %v", ErrNoReading, err)
	}
	return tel, nil
}
