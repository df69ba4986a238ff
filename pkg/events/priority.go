package events

import "chatplane/internal/model"

// Lane names. Lanes are asynq queues; weights come from config with the
// defaults below.
const (
	LaneHigh     = "high"
	LaneMedium   = "medium"
	LaneLow      = "low"
	LaneAI       = "ai"
	LaneWebhooks = "webhooks"
)

// DefaultLaneWeights gives higher-priority lanes more worker slots.
func DefaultLaneWeights() map[string]int {
	return map[string]int{
		LaneHigh:     6,
		LaneMedium:   3,
		LaneLow:      1,
		LaneAI:       4,
		LaneWebhooks: 2,
	}
}

// PriorityFor derives an event's priority from the tenant's subscription
// tier. Pure function; same inputs always give the same priority.
func PriorityFor(tier model.SubscriptionTier) model.Priority {
	switch tier {
	case model.TierEnterprise:
		return model.PriorityHigh
	case model.TierProfessional:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// LaneFor picks the lane an event is routed through. AI traffic and
// webhooks get dedicated lanes regardless of tenant tier so a burst in one
// cannot starve conversational traffic in another.
func LaneFor(kind model.EventKind, priority model.Priority) string {
	switch kind {
	case model.EventAIRequest, model.EventAIResponse:
		return LaneAI
	case model.EventWebhook:
		return LaneWebhooks
	}

	switch priority {
	case model.PriorityHigh:
		return LaneHigh
	case model.PriorityMedium:
		return LaneMedium
	default:
		return LaneLow
	}
}

// TaskType maps an event kind to its asynq task type pattern.
func TaskType(kind model.EventKind) string {
	return "event:" + string(kind)
}
