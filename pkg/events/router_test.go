package events

import (
	"context"
	"testing"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	tenants map[string]*model.Tenant
}

func (f *fakeDirectory) Get(ctx context.Context, tenantID string) (*model.Tenant, error) {
	if t, ok := f.tenants[tenantID]; ok {
		return t, nil
	}
	return nil, model.ErrNotFound
}

type stubLimiter struct{ allow bool }

func (s stubLimiter) Allow(ctx context.Context, tenantID string, tier model.SubscriptionTier) (bool, error) {
	return s.allow, nil
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Redis.Addr = mr.Addr()

	dir := &fakeDirectory{tenants: map[string]*model.Tenant{
		"tenant-a": {ID: "tenant-a", Tier: model.TierStandard, Active: true},
	}}

	r := NewRouter(cfg, dir, stubLimiter{allow: true})
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestPublish_AssignsIDAndTimestampWhenAbsent(t *testing.T) {
	r := newTestRouter(t)

	event := &model.Event{Kind: model.EventIncomingMessage, TenantID: "tenant-a"}
	id, err := r.Publish(context.Background(), event)
	require.NoError(t, err)

	assert.NotEmpty(t, id)
	assert.Equal(t, id, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestPublish_KeepsCallerAssignedID(t *testing.T) {
	r := newTestRouter(t)

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	event := &model.Event{
		ID:        "corr-123",
		Kind:      model.EventIncomingMessage,
		TenantID:  "tenant-a",
		CreatedAt: created,
	}

	id, err := r.Publish(context.Background(), event)
	require.NoError(t, err)

	// Pre-assigned ids correlate the event across systems
	assert.Equal(t, "corr-123", id)
	assert.Equal(t, "corr-123", event.ID)
	assert.Equal(t, created, event.CreatedAt)
}

func TestScheduleMessage_KeepsCallerAssignedID(t *testing.T) {
	r := newTestRouter(t)

	event := &model.Event{ID: "corr-456", Kind: model.EventOutgoingMessage, TenantID: "tenant-a"}
	id, err := r.ScheduleMessage(context.Background(), event, time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "corr-456", id)
}

func TestPublish_UnknownKindRejected(t *testing.T) {
	r := newTestRouter(t)

	_, err := r.Publish(context.Background(), &model.Event{Kind: "telepathy", TenantID: "tenant-a"})
	assert.Error(t, err)
}
