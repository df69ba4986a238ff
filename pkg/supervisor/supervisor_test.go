package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatplane/internal/ipc"
	"chatplane/internal/model"
	"chatplane/pkg/config"
	"chatplane/pkg/store/mysql"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusStore struct {
	mu     sync.Mutex
	states map[string]model.WorkerState
	log    []model.WorkerState
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{states: make(map[string]model.WorkerState)}
}

func (f *fakeStatusStore) SetState(ctx context.Context, tenantID string, upd mysql.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[tenantID] = upd.State
	f.log = append(f.log, upd.State)
	return nil
}

func (f *fakeStatusStore) GetState(ctx context.Context, tenantID string) (model.WorkerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[tenantID]; ok {
		return s, nil
	}
	return model.WorkerStateNone, nil
}

func (f *fakeStatusStore) ListByStates(ctx context.Context, states ...model.WorkerState) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for tenantID, s := range f.states {
		for _, want := range states {
			if s == want {
				out = append(out, tenantID)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStatusStore) stateOf(tenantID string) model.WorkerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[tenantID]; ok {
		return s
	}
	return model.WorkerStateNone
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*model.Event
}

func (f *fakePublisher) Publish(ctx context.Context, event *model.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return "evt", nil
}

func testConfig(t *testing.T, command string, args ...string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Worker.Command = command
	cfg.Worker.Args = args
	cfg.Worker.WorkDir = t.TempDir()
	cfg.Worker.StartupGraceSec = 1
	cfg.Worker.ShutdownTimeoutSec = 1
	cfg.Worker.CommandTimeoutSec = 1
	return cfg
}

func TestAllocate_StartsWorker(t *testing.T) {
	store := newFakeStatusStore()
	pub := &fakePublisher{}
	// sh -c swallows the generated flags as positional params
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), store, pub)

	handle, err := s.Allocate(context.Background(), "tenant-a", model.PoolShared, false)
	require.NoError(t, err)
	defer s.Deallocate(context.Background(), "tenant-a")

	assert.Equal(t, model.WorkerStateConnecting, handle.State())
	assert.True(t, s.IsActive("tenant-a"))
	assert.NotZero(t, handle.PID())
	assert.Equal(t, model.WorkerStateConnecting, store.stateOf("tenant-a"))
	// starting was persisted before spawn
	assert.Contains(t, store.log, model.WorkerStateStarting)
}

func TestAllocate_CrashOnStart(t *testing.T) {
	store := newFakeStatusStore()
	s := NewSupervisor(testConfig(t, "sh", "-c", "exit 1"), store, &fakePublisher{})

	_, err := s.Allocate(context.Background(), "tenant-a", model.PoolShared, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStartupFailed))
	assert.False(t, s.IsActive("tenant-a"))
	assert.Equal(t, model.WorkerStateError, store.stateOf("tenant-a"))
}

func TestAllocate_UnknownCommand(t *testing.T) {
	store := newFakeStatusStore()
	s := NewSupervisor(testConfig(t, "/nonexistent-worker-binary"), store, &fakePublisher{})

	_, err := s.Allocate(context.Background(), "tenant-a", model.PoolShared, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStartupFailed))
	assert.Equal(t, model.WorkerStateError, store.stateOf("tenant-a"))
}

func TestAllocate_ConcurrentRejected(t *testing.T) {
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), newFakeStatusStore(), nil)

	s.mu.Lock()
	s.inflight["tenant-a"] = true
	s.mu.Unlock()

	_, err := s.Allocate(context.Background(), "tenant-a", model.PoolShared, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAlreadyConnecting))
}

func TestAllocate_ReusesConnectedHandle(t *testing.T) {
	store := newFakeStatusStore()
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), store, nil)

	first, err := s.Allocate(context.Background(), "tenant-a", model.PoolShared, false)
	require.NoError(t, err)
	defer s.Deallocate(context.Background(), "tenant-a")

	first.setState(model.WorkerStateConnected)

	second, err := s.Allocate(context.Background(), "tenant-a", model.PoolShared, false)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestAllocate_ForceRestartReplaces(t *testing.T) {
	store := newFakeStatusStore()
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), store, nil)

	first, err := s.Allocate(context.Background(), "tenant-a", model.PoolShared, false)
	require.NoError(t, err)
	first.setState(model.WorkerStateConnected)
	firstPID := first.PID()

	second, err := s.Allocate(context.Background(), "tenant-a", model.PoolShared, true)
	require.NoError(t, err)
	defer s.Deallocate(context.Background(), "tenant-a")

	assert.NotSame(t, first, second)
	assert.NotEqual(t, firstPID, second.PID())
	assert.Equal(t, 1, second.Info().RestartCount)
}

func TestDeallocate_Idempotent(t *testing.T) {
	store := newFakeStatusStore()
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), store, nil)

	// No handle at all: false, but status still reconciled
	assert.False(t, s.Deallocate(context.Background(), "tenant-a"))
	assert.Equal(t, model.WorkerStateDisconnected, store.stateOf("tenant-a"))

	_, err := s.Allocate(context.Background(), "tenant-a", model.PoolShared, false)
	require.NoError(t, err)

	assert.True(t, s.Deallocate(context.Background(), "tenant-a"))
	assert.False(t, s.IsActive("tenant-a"))
	assert.Equal(t, model.WorkerStateDisconnected, store.stateOf("tenant-a"))

	// Second call finds nothing to tear down
	assert.False(t, s.Deallocate(context.Background(), "tenant-a"))
}

func TestUnexpectedExitMarksError(t *testing.T) {
	store := newFakeStatusStore()
	pub := &fakePublisher{}
	// Outlives the startup grace, then dies on its own
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 2"), store, pub)

	_, err := s.Allocate(context.Background(), "tenant-a", model.PoolShared, false)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return store.stateOf("tenant-a") == model.WorkerStateError
	}, 5*time.Second, 50*time.Millisecond)

	// No automatic restart
	assert.False(t, s.IsActive("tenant-a"))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.NotEmpty(t, pub.events)
	last := pub.events[len(pub.events)-1]
	assert.Equal(t, model.EventSystemNotification, last.Kind)
	assert.Equal(t, string(model.WorkerStateError), last.Payload["lifecycle"])
}

func TestChannelLoss_DemotesConnectedWorker(t *testing.T) {
	store := newFakeStatusStore()
	pub := &fakePublisher{}
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), store, pub)

	handle := newHandle("tenant-a", model.PoolShared)
	conn := &websocket.Conn{}
	handle.attachConn(conn)
	handle.setState(model.WorkerStateConnected)
	s.mu.Lock()
	s.handles["tenant-a"] = handle
	s.mu.Unlock()

	s.onChannelLoss(handle, conn)

	// Connected without a channel is a lie; back to connecting until the
	// worker re-dials
	assert.Equal(t, model.WorkerStateConnecting, handle.State())
	assert.Equal(t, model.WorkerStateConnecting, store.stateOf("tenant-a"))
	assert.True(t, s.IsActive("tenant-a"), "process is still alive")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.NotEmpty(t, pub.events)
	last := pub.events[len(pub.events)-1]
	assert.Equal(t, string(model.WorkerStateConnecting), last.Payload["lifecycle"])
	assert.Equal(t, "ipc channel lost", last.Payload["reason"])
}

func TestChannelLoss_StaleConnectionIgnored(t *testing.T) {
	store := newFakeStatusStore()
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), store, nil)

	handle := newHandle("tenant-a", model.PoolShared)
	handle.attachConn(&websocket.Conn{})
	handle.setState(model.WorkerStateConnected)
	s.mu.Lock()
	s.handles["tenant-a"] = handle
	s.mu.Unlock()

	// The read loop of a connection that was already replaced exits late;
	// it must not demote the current one
	s.onChannelLoss(handle, &websocket.Conn{})

	assert.Equal(t, model.WorkerStateConnected, handle.State())
}

func TestChannelLoss_TornDownWorkerStaysDown(t *testing.T) {
	store := newFakeStatusStore()
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), store, nil)

	handle := newHandle("tenant-a", model.PoolShared)
	conn := &websocket.Conn{}
	handle.attachConn(conn)
	handle.setState(model.WorkerStateDisconnected)

	s.onChannelLoss(handle, conn)

	assert.Equal(t, model.WorkerStateDisconnected, handle.State())
	assert.Equal(t, model.WorkerStateNone, store.stateOf("tenant-a"))
}

func TestNotify_AbsentWorkerIsFalse(t *testing.T) {
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), newFakeStatusStore(), nil)

	ok := s.Notify(context.Background(), "tenant-a", ipc.NewCommand("tenant-a", "ping", nil))
	assert.False(t, ok)
}

func TestStatus_NoneWhenAbsent(t *testing.T) {
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), newFakeStatusStore(), nil)

	assert.Equal(t, model.WorkerStateNone, s.Status("tenant-a"))
	assert.False(t, s.IsActive("tenant-a"))

	_, err := s.Info("tenant-a")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSendCommand_NoWorker(t *testing.T) {
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), newFakeStatusStore(), nil)

	_, err := s.SendCommand(context.Background(), "tenant-a", "status", nil)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSweepInactive(t *testing.T) {
	store := newFakeStatusStore()
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), store, nil)

	handle := newHandle("tenant-idle", model.PoolShared)
	handle.mu.Lock()
	handle.lastActivity = time.Now().Add(-2 * time.Hour)
	handle.mu.Unlock()
	close(handle.exit) // no real process behind this handle

	s.mu.Lock()
	s.handles["tenant-idle"] = handle
	s.mu.Unlock()

	require.NoError(t, s.SweepInactive(context.Background()))
	assert.False(t, s.IsActive("tenant-idle"))
	assert.Equal(t, model.WorkerStateDisconnected, store.stateOf("tenant-idle"))
}

func TestReconcile_RepairsStaleRows(t *testing.T) {
	store := newFakeStatusStore()
	store.states["tenant-ghost"] = model.WorkerStateConnected

	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), store, nil)

	require.NoError(t, s.Reconcile(context.Background()))
	assert.Equal(t, model.WorkerStateDisconnected, store.stateOf("tenant-ghost"))
}

func TestReconcile_RepairsLiveHandles(t *testing.T) {
	store := newFakeStatusStore()
	s := NewSupervisor(testConfig(t, "sh", "-c", "sleep 60"), store, nil)

	handle := newHandle("tenant-a", model.PoolShared)
	handle.setState(model.WorkerStateConnected)
	s.mu.Lock()
	s.handles["tenant-a"] = handle
	s.mu.Unlock()

	store.states["tenant-a"] = model.WorkerStateDisconnected

	require.NoError(t, s.Reconcile(context.Background()))
	assert.Equal(t, model.WorkerStateConnected, store.stateOf("tenant-a"))
}
