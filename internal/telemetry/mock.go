package telemetry

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"flexmarket/internal/model"
)

// MockProvider generates plausible telemetry without any hardware:
// each building gets stable base values derived from its id plus a
// per-tick random walk seeded from (base seed, building, tick), so a
// run with the same seed reproduces exactly.
type MockProvider struct {
	seed int64
}

func NewMockProvider(seed int64) *MockProvider {
	return &MockProvider{seed: seed}
}

func (p *MockProvider) Read(_ context.Context, buildingID string, tick uint64) (model.Telemetry, error) {
	h := idHash(buildingID)

	baseTemp := 23.5 + float64(h%10)/10.0
	baseHumidity := 55.0 + float64(idHash(buildingID+"h")%15)
	basePower := 45.0 + float64(idHash(buildingID+"p")%25)

	r := rand.New(rand.NewSource(p.seed + int64(tick) + int64(h)))
	temp := baseTemp + (r.Float64()-0.5)*2.0
	humidity := baseHumidity + (r.Float64()-0.5)*10.0
	power := basePower + (r.Float64()-0.5)*20.0
	if power < 10 {
		power = 10
	}

	return model.NewTelemetry(buildingID, round1(temp), round1(humidity), round1(power), time.Now())
}

func idHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
