package events

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"chatplane/internal/ipc"
	"chatplane/internal/model"
	"chatplane/pkg/config"
	"chatplane/pkg/logger"

	"github.com/hibiken/asynq"
)

// WorkerNotifier delivers an event to a tenant's worker process. A false
// return means the worker is unavailable.
type WorkerNotifier interface {
	Notify(ctx context.Context, tenantID string, msg *ipc.Message) bool
}

// UsageRecorder folds processed events into per-tenant daily usage stats.
type UsageRecorder interface {
	RecordMessage(ctx context.Context, tenantID string, responseTimeMs float64, failed bool) error
}

// Dispatcher is the consume side of the event router. It runs the asynq
// server over the priority lanes and routes each task to its kind handler.
type Dispatcher struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	notifier WorkerNotifier
	usage    UsageRecorder
	counters *Counters

	// tenantLocks serializes handlers per tenant so submission order holds
	// within a lane even with concurrent worker slots.
	mu          sync.Mutex
	tenantLocks map[string]*sync.Mutex
}

// NewDispatcher creates the consume side of the event router
func NewDispatcher(cfg *config.Config, notifier WorkerNotifier, usage UsageRecorder, counters *Counters) *Dispatcher {
	weights := cfg.Queue.LaneWeights
	if len(weights) == 0 {
		weights = DefaultLaneWeights()
	}

	base := time.Duration(cfg.Queue.RetryBaseSeconds) * time.Second

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues:      weights,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// 1x, 2x, 4x, ... capped at 10 minutes
				delay := base * time.Duration(math.Pow(2, float64(n)))
				if delay > 10*time.Minute {
					delay = 10 * time.Minute
				}
				return delay
			},
		},
	)

	d := &Dispatcher{
		server:      server,
		mux:         asynq.NewServeMux(),
		notifier:    notifier,
		usage:       usage,
		counters:    counters,
		tenantLocks: make(map[string]*sync.Mutex),
	}
	d.registerHandlers()
	return d
}

func (d *Dispatcher) registerHandlers() {
	d.mux.HandleFunc(TaskType(model.EventIncomingMessage), d.dispatch(d.handleWorkerDelivery))
	d.mux.HandleFunc(TaskType(model.EventOutgoingMessage), d.dispatch(d.handleWorkerDelivery))
	d.mux.HandleFunc(TaskType(model.EventAIRequest), d.dispatch(d.handleWorkerDelivery))
	d.mux.HandleFunc(TaskType(model.EventAIResponse), d.dispatch(d.handleWorkerDelivery))
	d.mux.HandleFunc(TaskType(model.EventAutomationTrigger), d.dispatch(d.handleWorkerDelivery))
	d.mux.HandleFunc(TaskType(model.EventWebhook), d.dispatch(d.handleWorkerDelivery))
	d.mux.HandleFunc(TaskType(model.EventPresence), d.dispatch(d.handlePresence))
	d.mux.HandleFunc(TaskType(model.EventSystemNotification), d.dispatch(d.handleSystemNotification))
}

type eventHandler func(ctx context.Context, event *model.Event) error

// dispatch wraps a kind handler with decoding, per-tenant ordering, error
// containment and usage recording. A returned error means asynq retries
// the event; after MaxRetry attempts it is archived, never dropped.
func (d *Dispatcher) dispatch(handler eventHandler) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var event model.Event
		if err := json.Unmarshal(task.Payload(), &event); err != nil {
			// Malformed payloads can never succeed, skip retries; this is
			// the event's terminal failure
			logger.ErrorCtx(ctx, "undecodable event payload, dropping: %v", err)
			d.counters.Failed()
			return fmt.Errorf("undecodable event: %v: %w", err, asynq.SkipRetry)
		}

		lock := d.lockFor(event.TenantID)
		lock.Lock()
		defer lock.Unlock()

		started := time.Now()
		err := handler(ctx, &event)
		elapsed := float64(time.Since(started).Milliseconds())

		d.recordUsage(ctx, &event, elapsed, err != nil)

		if err != nil {
			logger.WarnCtx(ctx, "event handler failed, event_id: %s, kind: %s, tenant: %s, err: %v",
				event.ID, event.Kind, event.TenantID, err)
			// An event counts as failed exactly once, when its retry budget
			// is spent and asynq archives it. Earlier attempts are just a
			// warning; a later success lands in processed instead.
			if finalAttempt(ctx) {
				d.counters.Failed()
			}
			return err
		}

		d.counters.Processed()
		return nil
	}
}

// finalAttempt reports whether the current delivery is the task's last try
// before it is archived. Without retry metadata on the context (outside an
// asynq server run) the outcome is not terminal.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried >= maxRetry
}

func (d *Dispatcher) lockFor(tenantID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.tenantLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		d.tenantLocks[tenantID] = lock
	}
	return lock
}

func (d *Dispatcher) recordUsage(ctx context.Context, event *model.Event, responseMs float64, failed bool) {
	if d.usage == nil || event.Kind == model.EventSystemNotification {
		return
	}
	if err := d.usage.RecordMessage(ctx, event.TenantID, responseMs, failed); err != nil {
		// Usage stats are advisory, never fail the event over them
		logger.WarnCtx(ctx, "failed to record usage, tenant: %s, err: %v", event.TenantID, err)
	}
}

// handleWorkerDelivery forwards the event to the tenant's worker process.
// An unavailable worker is an error so the lane retries after backoff,
// giving the supervisor time to bring the worker back.
func (d *Dispatcher) handleWorkerDelivery(ctx context.Context, event *model.Event) error {
	msg := ipc.NewCommand(event.TenantID, "dispatch-event", map[string]interface{}{
		"eventId":   event.ID,
		"kind":      string(event.Kind),
		"payload":   event.Payload,
		"createdAt": event.CreatedAt.Format(time.RFC3339Nano),
	})
	if !d.notifier.Notify(ctx, event.TenantID, msg) {
		return fmt.Errorf("worker unavailable for tenant %s", event.TenantID)
	}
	return nil
}

// handlePresence records presence transitions; they are advisory and need
// no worker round-trip.
func (d *Dispatcher) handlePresence(ctx context.Context, event *model.Event) error {
	logger.DebugCtx(ctx, "presence event, tenant: %s, payload: %v", event.TenantID, event.Payload)
	return nil
}

func (d *Dispatcher) handleSystemNotification(ctx context.Context, event *model.Event) error {
	logger.InfoCtx(ctx, "system notification, tenant: %s, payload: %v", event.TenantID, event.Payload)
	return nil
}

// Start begins consuming the lanes.
func (d *Dispatcher) Start() error {
	logger.Info("starting event dispatcher")
	return d.server.Start(d.mux)
}

// Stop drains active handlers and shuts the server down.
func (d *Dispatcher) Stop() {
	logger.Info("stopping event dispatcher")
	d.server.Stop()
	d.server.Shutdown()
}
