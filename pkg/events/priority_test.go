package events

import (
	"testing"

	"chatplane/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		name string
		tier model.SubscriptionTier
		want model.Priority
	}{
		{"enterprise is high", model.TierEnterprise, model.PriorityHigh},
		{"professional is medium", model.TierProfessional, model.PriorityMedium},
		{"standard is low", model.TierStandard, model.PriorityLow},
		{"unknown tier defaults low", model.SubscriptionTier("trial"), model.PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PriorityFor(tt.tier))
			// Pure: repeated calls agree
			assert.Equal(t, PriorityFor(tt.tier), PriorityFor(tt.tier))
		})
	}
}

func TestLaneFor(t *testing.T) {
	tests := []struct {
		name     string
		kind     model.EventKind
		priority model.Priority
		want     string
	}{
		{"high priority message", model.EventIncomingMessage, model.PriorityHigh, LaneHigh},
		{"medium priority message", model.EventOutgoingMessage, model.PriorityMedium, LaneMedium},
		{"low priority message", model.EventIncomingMessage, model.PriorityLow, LaneLow},
		{"ai request ignores tier", model.EventAIRequest, model.PriorityLow, LaneAI},
		{"ai response ignores tier", model.EventAIResponse, model.PriorityHigh, LaneAI},
		{"webhook ignores tier", model.EventWebhook, model.PriorityHigh, LaneWebhooks},
		{"presence follows priority", model.EventPresence, model.PriorityMedium, LaneMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LaneFor(tt.kind, tt.priority))
		})
	}
}

func TestDefaultLaneWeights(t *testing.T) {
	weights := DefaultLaneWeights()

	assert.Len(t, weights, len(Lanes()))
	for _, lane := range Lanes() {
		assert.Contains(t, weights, lane)
	}
	// High-priority lanes get more slots than low
	assert.Greater(t, weights[LaneHigh], weights[LaneMedium])
	assert.Greater(t, weights[LaneMedium], weights[LaneLow])
}
