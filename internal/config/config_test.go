package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		BuildingCount:    50,
		TickIntervalMS:   2000,
		HistoryCapacity:  100,
		ContextWindow:    10,
		EmissionFactor:   0.4083,
		GridCycleMinutes: 60,
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, validConfig().validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"too few buildings", func(c *Config) { c.BuildingCount = 1 }},
		{"zero tick interval", func(c *Config) { c.TickIntervalMS = 0 }},
		{"context window exceeds history", func(c *Config) { c.ContextWindow = 200 }},
		{"non-positive emission factor", func(c *Config) { c.EmissionFactor = 0 }},
		{"zero grid cycle", func(c *Config) { c.GridCycleMinutes = 0 }},
		{"negative grid cycle", func(c *Config) { c.GridCycleMinutes = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
