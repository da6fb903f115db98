package domain

import "encoding/json"

// WebSocket event types exchanged between client and server.
const (
	EventRequestAgentConnection = "requestAgentConnection"
	EventAgentAssigned          = "agentAssigned"
	EventAlreadyPendingChat     = "alreadyPendingChat"
	EventNewAgentJoined         = "newAgentJoined"
	EventConnectionEstablished  = "connection_established"
	EventError                  = "error"
	EventPing                   = "ping"
	EventPong                   = "pong"
)

// WebSocketMessage is the envelope for client-emitted events.
type WebSocketMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketResponse is the envelope for server-pushed events.
type WebSocketResponse struct {
	Type    string      `json:"type"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ChatAssignedPayload carries the chat identifier for both agentAssigned
// and alreadyPendingChat pushes.
type ChatAssignedPayload struct {
	ChatID string `json:"chat_id"`
}

type SendMessageResponse struct {
	MessageID string `json:"message_id"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}
