package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildingName(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{1, "Building_01"},
		{5, "Building_05"},
		{10, "Building_10"},
		{50, "Building_50"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := BuildingName(tt.input)
			if got != tt.expected {
				t.Errorf("BuildingName(%d) = %q; want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewTelemetry_Validation(t *testing.T) {
	now := time.Now()

	tel, err := NewTelemetry("Building_01", 23.5, 55, 48.2, now)
	assert.NoError(t, err)
	assert.Equal(t, "Building_01", tel.BuildingID)
	assert.Equal(t, 23.5, tel.TempC)

	_, err = NewTelemetry("Building_01", 40, 55, 48.2, now)
	assert.Error(t, err)

	_, err = NewTelemetry("Building_01", 23.5, 120, 48.2, now)
	assert.Error(t, err)

	_, err = NewTelemetry("Building_01", 23.5, 55, -1, now)
	assert.Error(t, err)

	_, err = NewTelemetry("", 23.5, 55, 48.2, now)
	assert.Error(t, err)
}
