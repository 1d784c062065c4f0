package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTopic(t *testing.T) {
	tests := []struct {
		topic string
		ok    bool
	}{
		{"market.tick", true},
		{"market.trade.*", true},
		{"market.trade.Building_07", true},
		{"market.trade.", false},
		{"market.trade.a.b", false},
		{"market.>", false},
		{"orders.internal", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.ok, validTopic(tt.topic))
		})
	}
}
