package telemetry

import (
	"context"
	"errors"

	"flexmarket/internal/model"
)

// ErrNoReading means the building has no telemetry this tick. The
// caller suppresses that building's orders and carries on; it is never
// fatal.
var ErrNoReading = errors.New("no telemetry reading")

// Provider supplies per-building telemetry once per tick. The mock
// generator and the building-management-system reader are
// interchangeable behind this contract; the core never knows which one
// is active. Implementations must respect the context deadline, since
// a slow provider is treated the same as an absent reading.
type Provider interface {
	Read(ctx context.Context, buildingID string, tick uint64) (model.Telemetry, error)
}
