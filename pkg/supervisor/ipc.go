package supervisor

import (
	"context"
	"net/http"
	"time"

	"chatplane/internal/ipc"
	"chatplane/internal/model"
	"chatplane/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Workers dial from localhost; the IPC port is not exposed publicly
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWorkerIPC is the WebSocket endpoint workers dial back after spawn
// (GET /ipc/worker?tenantId=...). The connection is bound to one tenant;
// envelopes tagged with any other tenantId are discarded.
func (s *Supervisor) HandleWorkerIPC(c *gin.Context) {
	tenantID := c.Query("tenantId")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenantId is required"})
		return
	}

	s.mu.Lock()
	handle := s.handles[tenantID]
	s.mu.Unlock()
	if handle == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no worker allocated for tenant"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to upgrade ipc connection, tenant: %s, err: %v", tenantID, err)
		return
	}

	handle.attachConn(conn)
	logger.InfoCtx(c.Request.Context(), "worker ipc connected, tenant: %s", tenantID)

	defer func() {
		s.onChannelLoss(handle, conn)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logger.DebugCtx(c.Request.Context(), "worker ipc closed, tenant: %s, err: %v", tenantID, err)
			return
		}

		msg, err := ipc.Decode(raw)
		if err != nil {
			logger.WarnCtx(c.Request.Context(), "bad ipc message, tenant: %s, err: %v", tenantID, err)
			continue
		}
		if msg.TenantID != tenantID {
			// Never let one connection speak for another tenant
			logger.WarnCtx(c.Request.Context(), "ipc tenant mismatch, conn: %s, message: %s, discarding", tenantID, msg.TenantID)
			continue
		}

		s.handleMessage(handle, msg)
	}
}

// onChannelLoss runs when a worker's IPC read loop exits. A connected
// worker without a channel is demoted to connecting: the process may still
// be alive and re-dial, and teardown paths have already moved the state
// off connected before closing the connection.
func (s *Supervisor) onChannelLoss(h *WorkerHandle, conn *websocket.Conn) {
	if !h.detachConn(conn) {
		return // a newer connection already took over
	}
	if h.State() != model.WorkerStateConnected {
		return
	}

	h.setState(model.WorkerStateConnecting)
	ctx, cancel := contextWithPersistTimeout()
	s.persistState(ctx, h.TenantID, model.WorkerStateConnecting, "ipc channel lost")
	cancel()
	s.emitLifecycle(h.TenantID, model.WorkerStateConnecting, "ipc channel lost")
}

func (s *Supervisor) handleMessage(h *WorkerHandle, msg *ipc.Message) {
	h.Touch()

	switch msg.Type {
	case ipc.TypeReady:
		prev := h.State()
		h.setState(model.WorkerStateConnected)
		ctx, cancel := contextWithPersistTimeout()
		s.persistState(ctx, h.TenantID, model.WorkerStateConnected, "")
		cancel()
		if prev != model.WorkerStateConnected {
			s.emitLifecycle(h.TenantID, model.WorkerStateConnected, "worker ready")
		}

	case ipc.TypeHeartbeat:
		// Touch above is the whole job

	case ipc.TypeStatus:
		logger.Debugf("worker status, tenant: %s, data: %v", h.TenantID, msg.Data)

	case ipc.TypeQR:
		// Pairing payloads are surfaced to operators through the logs; the
		// worker holds the actual credential material.
		logger.Infof("worker pairing payload received, tenant: %s", h.TenantID)

	case ipc.TypeError:
		logger.Warnf("worker reported error, tenant: %s, data: %v", h.TenantID, msg.Data)
		h.mu.Lock()
		if v, ok := msg.Data["message"].(string); ok {
			h.lastError = v
		}
		h.mu.Unlock()

	case ipc.TypeResponse:
		h.resolve(msg)

	case ipc.TypeCommand:
		// Commands flow control-plane to worker only
		logger.Warnf("worker sent command envelope, tenant: %s, ignoring", h.TenantID)
	}
}

func contextWithPersistTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
