// Package ipc defines the tagged-message protocol spoken between the
// control plane and tenant worker processes.
package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType is the closed set of IPC message tags. Handlers switch over
// it exhaustively; unknown tags are rejected at decode time.
type MessageType string

const (
	TypeStatus    MessageType = "status"
	TypeQR        MessageType = "qr" // pairing QR / credential payload from the worker
	TypeReady     MessageType = "ready"
	TypeError     MessageType = "error"
	TypeHeartbeat MessageType = "heartbeat"
	TypeCommand   MessageType = "command"
	TypeResponse  MessageType = "response"
)

// Valid reports whether the tag is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeStatus, TypeQR, TypeReady, TypeError, TypeHeartbeat, TypeCommand, TypeResponse:
		return true
	}
	return false
}

// Message is the wire envelope. Data carries the type-specific payload;
// TenantID must match the connection's tenant or the message is discarded.
type Message struct {
	Type      MessageType            `json:"type"`
	TenantID  string                 `json:"tenantId"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	MessageID string                 `json:"messageId"`
}

// NewMessage builds an envelope with a fresh id and timestamp.
func NewMessage(t MessageType, tenantID string, data map[string]interface{}) *Message {
	return &Message{
		Type:      t,
		TenantID:  tenantID,
		Data:      data,
		Timestamp: time.Now().UTC(),
		MessageID: uuid.NewString(),
	}
}

// NewCommand builds a command envelope. The command name lands in
// data.command; responses echo the command's messageId in data.replyTo.
func NewCommand(tenantID, command string, args map[string]interface{}) *Message {
	data := map[string]interface{}{"command": command}
	for k, v := range args {
		data[k] = v
	}
	return NewMessage(TypeCommand, tenantID, data)
}

// Decode parses and validates a raw envelope.
func Decode(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed ipc message: %w", err)
	}
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("unknown ipc message type %q", msg.Type)
	}
	if msg.TenantID == "" {
		return nil, fmt.Errorf("ipc message missing tenantId")
	}
	return &msg, nil
}

// Encode serializes an envelope, filling id/timestamp if the caller left
// them zero.
func Encode(msg *Message) ([]byte, error) {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return json.Marshal(msg)
}

// ReplyTo extracts the correlated command id from a response envelope.
func (m *Message) ReplyTo() string {
	if m.Data == nil {
		return ""
	}
	if v, ok := m.Data["replyTo"].(string); ok {
		return v
	}
	return ""
}
