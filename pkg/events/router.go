package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/config"
	"chatplane/pkg/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TenantDirectory resolves tenants for priority and rate-limit decisions.
type TenantDirectory interface {
	Get(ctx context.Context, tenantID string) (*model.Tenant, error)
}

// RateLimiter enforces per-tenant event budgets.
type RateLimiter interface {
	Allow(ctx context.Context, tenantID string, tier model.SubscriptionTier) (bool, error)
}

// LaneStats is a point-in-time view of one lane, read from the queue
// inspector for the allocator's metrics.
type LaneStats struct {
	Lane      string `json:"lane"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"` // archived after retry exhaustion
}

// Router is the publish side of the priority event router. It classifies
// events into lanes and hands them to asynq; the Dispatcher consumes them.
type Router struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	tenants   TenantDirectory
	limiter   RateLimiter
	counters  *Counters
	cfg       *config.Config
}

// NewRouter creates the publish side of the event router
func NewRouter(cfg *config.Config, tenants TenantDirectory, limiter RateLimiter) *Router {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	return &Router{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		tenants:   tenants,
		limiter:   limiter,
		counters:  NewCounters(),
		cfg:       cfg,
	}
}

// Counters exposes the router's throughput counters.
func (r *Router) Counters() *Counters {
	return r.counters
}

// EventsPerSecond reports the publish rate over the counter window.
func (r *Router) EventsPerSecond() float64 {
	return r.counters.EventsPerSecond()
}

// Publish classifies an event and enqueues it durably. It assigns an id
// and timestamp when the caller left them empty, applies the tenant's tier
// rate limit, and returns the event id.
func (r *Router) Publish(ctx context.Context, event *model.Event) (string, error) {
	if !event.Kind.Valid() {
		return "", fmt.Errorf("unknown event kind %q", event.Kind)
	}
	if event.TenantID == "" {
		return "", fmt.Errorf("event missing tenant id")
	}

	tenant, err := r.tenants.Get(ctx, event.TenantID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve tenant %s: %w", event.TenantID, err)
	}

	allowed, err := r.limiter.Allow(ctx, tenant.ID, tenant.Tier)
	if err != nil {
		return "", fmt.Errorf("rate limit check failed: %w", err)
	}
	if !allowed {
		return "", fmt.Errorf("tenant %s: %w", tenant.ID, model.ErrRateLimitExceeded)
	}

	// Caller-supplied ids carry correlation across systems, keep them
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Priority = PriorityFor(tenant.Tier)

	return event.ID, r.enqueue(ctx, event, time.Time{})
}

// ScheduleMessage enqueues an outgoing message for delivery at a later
// time. A time in the past degrades to immediate delivery.
func (r *Router) ScheduleMessage(ctx context.Context, event *model.Event, at time.Time) (string, error) {
	if event.Kind == "" {
		event.Kind = model.EventOutgoingMessage
	}

	tenant, err := r.tenants.Get(ctx, event.TenantID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve tenant %s: %w", event.TenantID, err)
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Priority = PriorityFor(tenant.Tier)

	if !at.After(time.Now()) {
		at = time.Time{} // past schedule, deliver now
	}

	return event.ID, r.enqueue(ctx, event, at)
}

func (r *Router) enqueue(ctx context.Context, event *model.Event, at time.Time) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	lane := LaneFor(event.Kind, event.Priority)

	opts := []asynq.Option{
		asynq.TaskID(event.ID),
		asynq.Queue(lane),
		asynq.MaxRetry(r.cfg.Queue.MaxRetry),
		asynq.Timeout(time.Duration(r.cfg.Queue.TaskTimeout) * time.Second),
		asynq.Retention(time.Duration(r.cfg.Queue.RetentionHours) * time.Hour),
	}
	if !at.IsZero() {
		opts = append(opts, asynq.ProcessAt(at))
	}

	task := asynq.NewTask(TaskType(event.Kind), payload)
	info, err := r.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}

	r.counters.Published()
	logger.InfoCtx(ctx, "event enqueued, event_id: %s, kind: %s, lane: %s", event.ID, event.Kind, info.Queue)
	return nil
}

// Lanes returns the lane set the router serves.
func Lanes() []string {
	return []string{LaneHigh, LaneMedium, LaneLow, LaneAI, LaneWebhooks}
}

// LaneStats reads per-lane depth and outcome counts from the inspector.
// Lanes asynq has not seen yet report zeroes.
func (r *Router) LaneStats(ctx context.Context) ([]LaneStats, error) {
	stats := make([]LaneStats, 0, 5)
	for _, lane := range Lanes() {
		info, err := r.inspector.GetQueueInfo(lane)
		if err != nil {
			// Lane not created until its first event
			stats = append(stats, LaneStats{Lane: lane})
			continue
		}
		stats = append(stats, LaneStats{
			Lane:      lane,
			Pending:   info.Pending,
			Active:    info.Active,
			Retry:     info.Retry,
			Completed: info.Completed,
			Failed:    info.Archived,
		})
	}
	return stats, nil
}

// QueueDepth sums pending and retry entries across all lanes.
func (r *Router) QueueDepth(ctx context.Context) (int, map[string]int) {
	total := 0
	byLane := make(map[string]int, 5)
	stats, _ := r.LaneStats(ctx)
	for _, s := range stats {
		depth := s.Pending + s.Retry
		byLane[s.Lane] = depth
		total += depth
	}
	return total, byLane
}

// Close releases the router's queue connections.
func (r *Router) Close() error {
	if err := r.inspector.Close(); err != nil {
		logger.Warnf("failed to close queue inspector: %v", err)
	}
	return r.client.Close()
}
