package allocator

import (
	"sync"
	"time"

	"chatplane/internal/model"
)

// DecisionHistory is the capped ring of recent scaling decisions. It is
// the source of truth for cooldown checks; the persisted rows are for
// audit only.
type DecisionHistory struct {
	mu   sync.Mutex
	buf  []*model.ScalingDecision
	next int
	size int
}

// NewDecisionHistory creates a ring holding the last cap decisions.
func NewDecisionHistory(cap int) *DecisionHistory {
	if cap <= 0 {
		cap = 100
	}
	return &DecisionHistory{buf: make([]*model.ScalingDecision, cap)}
}

// Add appends a decision, evicting the oldest when full.
func (h *DecisionHistory) Add(d *model.ScalingDecision) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = d
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// Recent returns decisions newest-first, at most limit.
func (h *DecisionHistory) Recent(limit int) []*model.ScalingDecision {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	out := make([]*model.ScalingDecision, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}

// Len reports how many decisions the ring holds.
func (h *DecisionHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// LastOf returns the newest decision of the given action, nil when none.
func (h *DecisionHistory) LastOf(action model.ScalingAction) *model.ScalingDecision {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := 1; i <= h.size; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		if d := h.buf[idx]; d != nil && d.Action == action {
			return d
		}
	}
	return nil
}

// InCooldown reports whether the newest decision of the action falls
// inside the cooldown window ending at now.
func (h *DecisionHistory) InCooldown(action model.ScalingAction, window time.Duration, now time.Time) bool {
	last := h.LastOf(action)
	if last == nil {
		return false
	}
	return now.Sub(last.ExecutedAt) < window
}
