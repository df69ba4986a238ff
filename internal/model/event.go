package model

import "time"

// EventKind is the closed set of event types flowing through the router.
type EventKind string

const (
	EventIncomingMessage    EventKind = "incoming-message"
	EventOutgoingMessage    EventKind = "outgoing-message"
	EventAIRequest          EventKind = "ai-request"
	EventAIResponse         EventKind = "ai-response"
	EventPresence           EventKind = "presence"
	EventAutomationTrigger  EventKind = "automation-trigger"
	EventWebhook            EventKind = "webhook"
	EventSystemNotification EventKind = "system-notification"
)

// Valid reports whether the kind is one of the enumerated event types.
func (k EventKind) Valid() bool {
	switch k {
	case EventIncomingMessage, EventOutgoingMessage, EventAIRequest,
		EventAIResponse, EventPresence, EventAutomationTrigger,
		EventWebhook, EventSystemNotification:
		return true
	}
	return false
}

// Priority is an event's urgency class, derived from tenant tier and kind.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Event is a unit of work routed through a priority lane. It is consumed
// exactly once per successful processing and retried with backoff up to the
// lane's attempt cap, then parked as failed.
type Event struct {
	ID            string                 `json:"id"`
	Kind          EventKind              `json:"kind"`
	TenantID      string                 `json:"tenant_id"`
	Priority      Priority               `json:"priority"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Processed     bool                   `json:"processed"`
	RetryCount    int                    `json:"retry_count"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}
