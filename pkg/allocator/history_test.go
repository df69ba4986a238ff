package allocator

import (
	"fmt"
	"testing"
	"time"

	"chatplane/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryNeverExceedsCap(t *testing.T) {
	h := NewDecisionHistory(5)

	for i := 0; i < 20; i++ {
		h.Add(&model.ScalingDecision{ID: fmt.Sprintf("d-%d", i), Action: model.ActionNoAction})
	}

	assert.Equal(t, 5, h.Len())

	recent := h.Recent(0)
	require.Len(t, recent, 5)
	// Newest first, oldest evicted
	assert.Equal(t, "d-19", recent[0].ID)
	assert.Equal(t, "d-15", recent[4].ID)
}

func TestHistoryLastOf(t *testing.T) {
	h := NewDecisionHistory(10)
	assert.Nil(t, h.LastOf(model.ActionScaleUp))

	h.Add(&model.ScalingDecision{ID: "up-1", Action: model.ActionScaleUp})
	h.Add(&model.ScalingDecision{ID: "down-1", Action: model.ActionScaleDown})
	h.Add(&model.ScalingDecision{ID: "up-2", Action: model.ActionScaleUp})

	last := h.LastOf(model.ActionScaleUp)
	require.NotNil(t, last)
	assert.Equal(t, "up-2", last.ID)

	assert.Equal(t, "down-1", h.LastOf(model.ActionScaleDown).ID)
	assert.Nil(t, h.LastOf(model.ActionRebalance))
}

func TestHistoryInCooldown(t *testing.T) {
	h := NewDecisionHistory(10)
	now := time.Now()

	h.Add(&model.ScalingDecision{Action: model.ActionScaleUp, ExecutedAt: now.Add(-2 * time.Minute)})

	assert.True(t, h.InCooldown(model.ActionScaleUp, 5*time.Minute, now))
	assert.False(t, h.InCooldown(model.ActionScaleUp, 1*time.Minute, now))
	// Other actions have their own windows
	assert.False(t, h.InCooldown(model.ActionScaleDown, 5*time.Minute, now))
}
