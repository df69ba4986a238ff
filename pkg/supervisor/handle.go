package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"chatplane/internal/ipc"
	"chatplane/internal/model"

	"github.com/gorilla/websocket"
)

// WorkerHandle is the in-memory record of one tenant's worker process: the
// OS process, its IPC connection once the worker dials back, and the
// lifecycle state. At most one live handle exists per tenant.
type WorkerHandle struct {
	TenantID string
	Pool     model.PoolTier

	mu           sync.Mutex
	state        model.WorkerState
	cmd          *exec.Cmd
	conn         *websocket.Conn
	pending      map[string]chan *ipc.Message
	restartCount int
	lastActivity time.Time
	lastError    string
	startedAt    time.Time

	// exit closes when the OS process terminates.
	exit chan struct{}
}

func newHandle(tenantID string, pool model.PoolTier) *WorkerHandle {
	return &WorkerHandle{
		TenantID:     tenantID,
		Pool:         pool,
		state:        model.WorkerStateStarting,
		pending:      make(map[string]chan *ipc.Message),
		lastActivity: time.Now(),
		startedAt:    time.Now(),
		exit:         make(chan struct{}),
	}
}

// State returns the handle's current lifecycle state.
func (h *WorkerHandle) State() model.WorkerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *WorkerHandle) setState(s model.WorkerState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// PID returns the worker process id, zero before spawn.
func (h *WorkerHandle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Touch records worker activity for the inactivity sweep.
func (h *WorkerHandle) Touch() {
	h.mu.Lock()
	h.lastActivity = time.Now()
	h.mu.Unlock()
}

// LastActivity returns the most recent worker activity time.
func (h *WorkerHandle) LastActivity() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastActivity
}

// Info snapshots the handle for external callers.
func (h *WorkerHandle) Info() model.WorkerInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	pid := 0
	if h.cmd != nil && h.cmd.Process != nil {
		pid = h.cmd.Process.Pid
	}
	return model.WorkerInfo{
		TenantID:     h.TenantID,
		Pool:         h.Pool,
		State:        h.state,
		PID:          pid,
		RestartCount: h.restartCount,
		LastActivity: h.lastActivity,
		StartedAt:    h.startedAt,
	}
}

// attachConn binds the worker's dialed-back IPC connection, replacing any
// stale one.
func (h *WorkerHandle) attachConn(conn *websocket.Conn) {
	h.mu.Lock()
	old := h.conn
	h.conn = conn
	h.lastActivity = time.Now()
	h.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// detachConn drops the IPC connection if it is the one given. False means
// a newer connection already replaced it.
func (h *WorkerHandle) detachConn(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != conn {
		return false
	}
	h.conn = nil
	return true
}

// send writes an envelope to the worker. False when no connection is
// attached or the write fails.
func (h *WorkerHandle) send(msg *ipc.Message) bool {
	data, err := ipc.Encode(msg)
	if err != nil {
		return false
	}

	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return false
	}

	// gorilla/websocket allows one concurrent writer; serialize under the
	// handle lock.
	h.mu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	h.mu.Unlock()
	return err == nil
}

// sendCommand writes a command and waits for its response, correlated by
// messageId, until the context deadline.
func (h *WorkerHandle) sendCommand(ctx context.Context, msg *ipc.Message) (*ipc.Message, error) {
	reply := make(chan *ipc.Message, 1)

	h.mu.Lock()
	h.pending[msg.MessageID] = reply
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, msg.MessageID)
		h.mu.Unlock()
	}()

	if !h.send(msg) {
		return nil, fmt.Errorf("no ipc connection for tenant %s", h.TenantID)
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return nil, model.ErrCommandTimeout
	case <-h.exit:
		return nil, model.ErrCommandTimeout
	}
}

// resolve delivers a response envelope to the waiting command, if any.
func (h *WorkerHandle) resolve(msg *ipc.Message) {
	replyTo := msg.ReplyTo()
	if replyTo == "" {
		return
	}
	h.mu.Lock()
	reply, ok := h.pending[replyTo]
	h.mu.Unlock()
	if ok {
		select {
		case reply <- msg:
		default:
		}
	}
}
