// Package supervisor manages one worker OS process per tenant: spawn,
// IPC, health, teardown and crash detection. It never restarts a crashed
// worker on its own; it marks the error and leaves recovery to the
// resource allocator.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"chatplane/internal/ipc"
	"chatplane/internal/model"
	"chatplane/pkg/config"
	"chatplane/pkg/logger"
	"chatplane/pkg/store/mysql"
)

// StatusStore persists worker lifecycle state across control-plane
// restarts.
type StatusStore interface {
	SetState(ctx context.Context, tenantID string, upd mysql.StatusUpdate) error
	GetState(ctx context.Context, tenantID string) (model.WorkerState, error)
	ListByStates(ctx context.Context, states ...model.WorkerState) ([]string, error)
}

// EventPublisher emits lifecycle transitions onto the event router.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.Event) (string, error)
}

// Supervisor owns the tenant worker processes.
type Supervisor struct {
	cfg    *config.Config
	status StatusStore
	events EventPublisher

	mu       sync.Mutex
	handles  map[string]*WorkerHandle
	inflight map[string]bool
}

// NewSupervisor creates a worker supervisor
func NewSupervisor(cfg *config.Config, status StatusStore, events EventPublisher) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		status:   status,
		events:   events,
		handles:  make(map[string]*WorkerHandle),
		inflight: make(map[string]bool),
	}
}

// Allocate brings up a worker for the tenant and returns its handle. A
// second Allocate for the same tenant while one is in flight fails with
// ErrAlreadyConnecting. A live connected handle is reused unless
// forceRestart; anything else is torn down first.
func (s *Supervisor) Allocate(ctx context.Context, tenantID string, pool model.PoolTier, forceRestart bool) (*WorkerHandle, error) {
	s.mu.Lock()
	if s.inflight[tenantID] {
		s.mu.Unlock()
		return nil, fmt.Errorf("tenant %s: %w", tenantID, model.ErrAlreadyConnecting)
	}
	s.inflight[tenantID] = true
	existing := s.handles[tenantID]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, tenantID)
		s.mu.Unlock()
	}()

	restartCount := 0
	if existing != nil {
		if existing.State() == model.WorkerStateConnected && !forceRestart {
			logger.InfoCtx(ctx, "reusing connected worker, tenant: %s, pid: %d", tenantID, existing.PID())
			return existing, nil
		}
		// Zombie (spawned but never connected) or forced restart
		restartCount = existing.Info().RestartCount + 1
		s.teardown(ctx, existing, "replaced")
	}

	workDir := filepath.Join(s.cfg.Worker.WorkDir, tenantID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tenant work dir: %w", err)
	}

	handle := newHandle(tenantID, pool)
	handle.restartCount = restartCount

	// Persist starting before spawn so a crash between the two leaves a
	// reconcilable record.
	now := time.Now()
	if err := s.status.SetState(ctx, tenantID, mysql.StatusUpdate{
		State:        model.WorkerStateStarting,
		Pool:         pool,
		RestartCount: restartCount,
		StartedAt:    &now,
		LastActivity: &now,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist starting state: %w", err)
	}

	cmd, err := s.spawn(handle, workDir)
	if err != nil {
		s.persistState(ctx, tenantID, model.WorkerStateError, err.Error())
		return nil, fmt.Errorf("failed to spawn worker: %w: %s", model.ErrStartupFailed, err)
	}
	handle.mu.Lock()
	handle.cmd = cmd
	handle.mu.Unlock()

	s.mu.Lock()
	s.handles[tenantID] = handle
	s.mu.Unlock()

	go s.monitor(handle)

	// Crash-on-start detection window
	grace := time.Duration(s.cfg.Worker.StartupGraceSec) * time.Second
	select {
	case <-handle.exit:
		s.mu.Lock()
		delete(s.handles, tenantID)
		s.mu.Unlock()
		s.persistState(ctx, tenantID, model.WorkerStateError, "worker exited during startup grace period")
		s.emitLifecycle(tenantID, model.WorkerStateError, "crash on start")
		return nil, fmt.Errorf("tenant %s: %w", tenantID, model.ErrStartupFailed)
	case <-time.After(grace):
	}

	handle.setState(model.WorkerStateConnecting)
	s.persistState(ctx, tenantID, model.WorkerStateConnecting, "")
	s.emitLifecycle(tenantID, model.WorkerStateConnecting, "worker started")

	logger.InfoCtx(ctx, "worker started, tenant: %s, pool: %s, pid: %d", tenantID, pool, handle.PID())
	return handle, nil
}

func (s *Supervisor) spawn(h *WorkerHandle, workDir string) (*exec.Cmd, error) {
	args := append([]string{}, s.cfg.Worker.Args...)
	args = append(args,
		"--tenant-id", h.TenantID,
		"--pool", string(h.Pool),
		"--ipc-url", fmt.Sprintf("ws://127.0.0.1:%d/ipc/worker?tenantId=%s", s.cfg.Server.Port, h.TenantID),
	)

	cmd := exec.Command(s.cfg.Worker.Command, args...)
	cmd.Dir = workDir
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// monitor waits for the OS process to exit and classifies the exit. An
// exit while the handle is still live is a crash.
func (s *Supervisor) monitor(h *WorkerHandle) {
	err := h.cmd.Wait()
	close(h.exit)

	state := h.State()
	if !state.Live() {
		return // expected exit, Deallocate already reconciled
	}

	reason := "worker exited unexpectedly"
	if err != nil {
		reason = fmt.Sprintf("worker exited unexpectedly: %v", err)
	}
	logger.Warnf("%s, tenant: %s", reason, h.TenantID)

	h.setState(model.WorkerStateError)
	s.mu.Lock()
	if s.handles[h.TenantID] == h {
		delete(s.handles, h.TenantID)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.persistState(ctx, h.TenantID, model.WorkerStateError, reason)
	s.emitLifecycle(h.TenantID, model.WorkerStateError, reason)
}

// Deallocate tears a tenant's worker down: IPC shutdown command, graceful
// exit window, force kill. It is idempotent; the persisted status is
// reconciled to disconnected even when no handle exists. Returns whether a
// worker was actually torn down.
func (s *Supervisor) Deallocate(ctx context.Context, tenantID string) bool {
	s.mu.Lock()
	handle := s.handles[tenantID]
	delete(s.handles, tenantID)
	s.mu.Unlock()

	if handle == nil {
		s.persistState(ctx, tenantID, model.WorkerStateDisconnected, "")
		return false
	}

	s.teardown(ctx, handle, "deallocated")
	s.persistState(ctx, tenantID, model.WorkerStateDisconnected, "")
	s.emitLifecycle(tenantID, model.WorkerStateDisconnected, "deallocated")
	return true
}

func (s *Supervisor) teardown(ctx context.Context, h *WorkerHandle, reason string) {
	// Mark non-live first so monitor treats the exit as expected
	h.setState(model.WorkerStateDisconnected)

	h.send(ipc.NewCommand(h.TenantID, "shutdown", map[string]interface{}{"reason": reason}))

	timeout := time.Duration(s.cfg.Worker.ShutdownTimeoutSec) * time.Second
	select {
	case <-h.exit:
	case <-time.After(timeout):
		h.mu.Lock()
		cmd := h.cmd
		h.mu.Unlock()
		if cmd != nil && cmd.Process != nil {
			logger.Warnf("worker ignored shutdown, killing, tenant: %s, pid: %d", h.TenantID, cmd.Process.Pid)
			_ = cmd.Process.Kill()
		}
		select {
		case <-h.exit:
		case <-time.After(2 * time.Second):
		}
	}

	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Notify delivers a message to the tenant's worker. False, never an
// error, when the worker is absent or its channel is down.
func (s *Supervisor) Notify(ctx context.Context, tenantID string, msg *ipc.Message) bool {
	s.mu.Lock()
	handle := s.handles[tenantID]
	s.mu.Unlock()
	if handle == nil {
		return false
	}
	return handle.send(msg)
}

// SendCommand runs a command round-trip against the tenant's worker with
// the configured deadline.
func (s *Supervisor) SendCommand(ctx context.Context, tenantID, command string, args map[string]interface{}) (*ipc.Message, error) {
	s.mu.Lock()
	handle := s.handles[tenantID]
	s.mu.Unlock()
	if handle == nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, model.ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Worker.CommandTimeoutSec)*time.Second)
	defer cancel()
	return handle.sendCommand(ctx, ipc.NewCommand(tenantID, command, args))
}

// IsActive reports whether the tenant has a live worker handle.
func (s *Supervisor) IsActive(tenantID string) bool {
	s.mu.Lock()
	handle := s.handles[tenantID]
	s.mu.Unlock()
	return handle != nil && handle.State().Live()
}

// Status returns the tenant's worker state, none when no handle exists.
func (s *Supervisor) Status(tenantID string) model.WorkerState {
	s.mu.Lock()
	handle := s.handles[tenantID]
	s.mu.Unlock()
	if handle == nil {
		return model.WorkerStateNone
	}
	return handle.State()
}

// Info snapshots a tenant's worker, ErrNotFound when absent.
func (s *Supervisor) Info(tenantID string) (model.WorkerInfo, error) {
	s.mu.Lock()
	handle := s.handles[tenantID]
	s.mu.Unlock()
	if handle == nil {
		return model.WorkerInfo{}, fmt.Errorf("tenant %s: %w", tenantID, model.ErrNotFound)
	}
	return handle.Info(), nil
}

// List snapshots all worker handles.
func (s *Supervisor) List() []model.WorkerInfo {
	s.mu.Lock()
	handles := make([]*WorkerHandle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	infos := make([]model.WorkerInfo, 0, len(handles))
	for _, h := range handles {
		infos = append(infos, h.Info())
	}
	return infos
}

// ActiveCount reports live handles, and those in connected state.
func (s *Supervisor) ActiveCount() (live, connected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		st := h.State()
		if st.Live() {
			live++
		}
		if st == model.WorkerStateConnected {
			connected++
		}
	}
	return live, connected
}

// SweepInactive deallocates workers idle beyond the configured threshold.
// Runs as a background job.
func (s *Supervisor) SweepInactive(ctx context.Context) error {
	threshold := time.Duration(s.cfg.Worker.InactivityEvictMin) * time.Minute
	cutoff := time.Now().Add(-threshold)

	s.mu.Lock()
	var idle []string
	for tenantID, h := range s.handles {
		if h.LastActivity().Before(cutoff) {
			idle = append(idle, tenantID)
		}
	}
	s.mu.Unlock()

	for _, tenantID := range idle {
		logger.InfoCtx(ctx, "evicting inactive worker, tenant: %s", tenantID)
		s.Deallocate(ctx, tenantID)
	}
	return nil
}

// Reconcile repairs divergence between in-memory handles and persisted
// worker status, in both directions. Runs at startup and as a background
// job.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	persisted, err := s.status.ListByStates(ctx,
		model.WorkerStateStarting, model.WorkerStateConnecting, model.WorkerStateConnected)
	if err != nil {
		return fmt.Errorf("failed to list persisted worker states: %w", err)
	}

	repaired := 0
	for _, tenantID := range persisted {
		if !s.IsActive(tenantID) {
			// Row says live, memory says gone: the process did not survive
			s.persistState(ctx, tenantID, model.WorkerStateDisconnected, "reconciled: no live handle")
			repaired++
		}
	}

	s.mu.Lock()
	var live []string
	for tenantID, h := range s.handles {
		if h.State().Live() {
			live = append(live, tenantID)
		}
	}
	s.mu.Unlock()

	for _, tenantID := range live {
		state, err := s.status.GetState(ctx, tenantID)
		if err != nil {
			continue
		}
		if !state.Live() {
			// Memory says live, row says gone: rewrite the row
			s.persistState(ctx, tenantID, s.Status(tenantID), "reconciled: live handle")
			repaired++
		}
	}

	if repaired > 0 {
		logger.InfoCtx(ctx, "worker reconciliation repaired %d records", repaired)
	}
	return nil
}

func (s *Supervisor) persistState(ctx context.Context, tenantID string, state model.WorkerState, lastError string) {
	now := time.Now()
	upd := mysql.StatusUpdate{State: state, LastError: lastError, LastActivity: &now}

	s.mu.Lock()
	if h := s.handles[tenantID]; h != nil {
		upd.Pool = h.Pool
		upd.PID = h.PID()
	}
	s.mu.Unlock()

	if err := s.status.SetState(ctx, tenantID, upd); err != nil {
		logger.ErrorCtx(ctx, "failed to persist worker state, tenant: %s, state: %s, err: %v", tenantID, state, err)
	}
}

// emitLifecycle publishes a worker transition as a system notification.
// Failures are logged, never propagated; lifecycle events are advisory.
func (s *Supervisor) emitLifecycle(tenantID string, state model.WorkerState, reason string) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.events.Publish(ctx, &model.Event{
		Kind:     model.EventSystemNotification,
		TenantID: tenantID,
		Payload: map[string]interface{}{
			"lifecycle": string(state),
			"reason":    reason,
		},
	})
	if err != nil {
		logger.Warnf("failed to emit lifecycle event, tenant: %s, state: %s, err: %v", tenantID, state, err)
	}
}
