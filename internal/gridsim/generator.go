package gridsim

import (
	"sync"
	"time"

	"flexmarket/internal/model"
)

// Generator produces the shared grid stress signal on a wall-clock
// cycle independent of the tick rate. The level walks
// low → medium → high → medium over one cycle, mimicking a daily
// demand-response curve.
type Generator struct {
	cycle time.Duration
	now   func() time.Time

	mu sync.Mutex
	t0 time.Time
}

func NewGenerator(cycle time.Duration) *Generator {
	// a non-positive cycle would divide by zero in Current
	if cycle <= 0 {
		cycle = time.Minute
	}
	return &Generator{cycle: cycle, now: time.Now}
}

// Current returns the signal for this instant. The first call anchors
// the cycle.
func (g *Generator) Current() model.GridSignal {
	g.mu.Lock()
	now := g.now()
	if g.t0.IsZero() {
		g.t0 = now
	}
	elapsed := now.Sub(g.t0)
	g.mu.Unlock()

	phase := float64(elapsed%g.cycle) / float64(g.cycle)

	var level model.StressLevel
	var value float64
	switch {
	case phase < 0.25:
		level, value = model.StressLow, 0.25
	case phase < 0.5:
		level, value = model.StressMedium, 0.5
	case phase < 0.75:
		level, value = model.StressHigh, 0.9
	default:
		level, value = model.StressMedium, 0.5
	}

	return model.GridSignal{Level: level, Value: value, Timestamp: now}
}
