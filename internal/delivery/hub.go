package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"agentlink/internal/domain"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ErrNoAgentsOnline is returned when a fresh assignment is requested and the
// roster is empty.
var ErrNoAgentsOnline = errors.New("no agents online")

// AssignmentStore is the state the hub needs to resolve agent requests:
// the online-agent roster and the per-customer pending chat.
type AssignmentStore interface {
	AddOnlineAgent(ctx context.Context, agent domain.OnlineAgent) error
	RemoveOnlineAgent(ctx context.Context, userID string) error
	GetOnlineAgents(ctx context.Context) ([]domain.OnlineAgent, error)
	SetPendingChat(ctx context.Context, userID, chatID string, ttl time.Duration) error
	GetPendingChat(ctx context.Context, userID string) (string, error)
}

// EventProducer publishes domain events for other service instances.
type EventProducer interface {
	SendMessage(ctx context.Context, message interface{}) error
}

type wsConnection struct {
	conn     *websocket.Conn
	userID   string
	userType string
	socketID string
	writeMux sync.Mutex // Mutex to prevent concurrent writes
}

// safeWriteJSON writes JSON to the connection with mutex protection and
// panic recovery.
func (c *wsConnection) safeWriteJSON(message interface{}) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeWriteJSON for user %s: %v", c.userID, r)
		}
	}()

	return c.conn.WriteJSON(message)
}

// Hub owns all live WebSocket connections, keyed by user ID, and resolves
// requestAgentConnection events against the roster and pending-chat state.
type Hub struct {
	store          AssignmentStore
	producer       EventProducer
	pendingChatTTL time.Duration

	mutex       sync.RWMutex
	connections map[string]*wsConnection // userID -> connection
	chatMembers map[string][]string      // chatID -> user IDs
}

func NewHub(store AssignmentStore, producer EventProducer, pendingChatTTL time.Duration) *Hub {
	return &Hub{
		store:          store,
		producer:       producer,
		pendingChatTTL: pendingChatTTL,
		connections:    make(map[string]*wsConnection),
		chatMembers:    make(map[string][]string),
	}
}

func (h *Hub) addConnection(conn *wsConnection) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	// Replace any previous connection for the same user; one live socket
	// per user.
	if prev, exists := h.connections[conn.userID]; exists {
		prev.conn.Close()
	}
	h.connections[conn.userID] = conn
	log.Printf("Added connection: %s (%s). Total connections: %d",
		conn.userID, conn.userType, len(h.connections))
}

func (h *Hub) removeConnection(userID, socketID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	// Only remove if the registered connection is still ours; a reconnect
	// may already have replaced it.
	if conn, exists := h.connections[userID]; exists && conn.socketID == socketID {
		delete(h.connections, userID)
		log.Printf("Removed connection: %s. Remaining connections: %d",
			userID, len(h.connections))
	}
}

func (h *Hub) connectionFor(userID string) *wsConnection {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.connections[userID]
}

// HandleConnection runs the read loop for one WebSocket client until it
// disconnects.
func (h *Hub) HandleConnection(c *websocket.Conn, userID, userType string) {
	defer c.Close()

	ctx := context.Background()
	socketID := uuid.New().String()

	wsConn := &wsConnection{
		conn:     c,
		userID:   userID,
		userType: userType,
		socketID: socketID,
	}

	h.addConnection(wsConn)
	defer h.removeConnection(userID, socketID)

	if userType == "agent" {
		agent := domain.OnlineAgent{UserID: userID, SocketID: socketID}
		if err := h.store.AddOnlineAgent(ctx, agent); err != nil {
			log.Printf("Failed to add agent %s to roster: %v", userID, err)
		}
		defer func() {
			if err := h.store.RemoveOnlineAgent(ctx, userID); err != nil {
				log.Printf("Failed to remove agent %s from roster: %v", userID, err)
			}
			h.publishPresence(ctx, agent, false)
		}()

		h.broadcastAgentJoined(agent)
		h.publishPresence(ctx, agent, true)
	}

	h.sendWelcomeMessage(wsConn)

	log.Printf("WebSocket client connected: %s (%s)", userID, userType)

	for {
		var msg domain.WebSocketMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Printf("WebSocket read error for user %s: %v", userID, err)
			break
		}

		h.handleIncomingMessage(ctx, wsConn, &msg)
	}

	log.Printf("WebSocket client disconnected: %s (%s)", userID, userType)
}

func (h *Hub) sendWelcomeMessage(conn *wsConnection) {
	response := domain.WebSocketResponse{
		Type:    domain.EventConnectionEstablished,
		Success: true,
		Data: map[string]interface{}{
			"user_id":   conn.userID,
			"user_type": conn.userType,
			"socket_id": conn.socketID,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	if err := conn.safeWriteJSON(response); err != nil {
		log.Printf("Failed to send welcome message: %v", err)
	}
}

func (h *Hub) sendErrorResponse(conn *wsConnection, errorMsg string) {
	response := domain.WebSocketResponse{
		Type:    domain.EventError,
		Success: false,
		Error:   errorMsg,
	}

	if err := conn.safeWriteJSON(response); err != nil {
		log.Printf("Failed to send error response: %v", err)
	}
}

func (h *Hub) handleIncomingMessage(ctx context.Context, conn *wsConnection, msg *domain.WebSocketMessage) {
	switch msg.Type {
	case domain.EventRequestAgentConnection:
		var req domain.ConnectionRequest
		if msg.Data != nil {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				h.sendErrorResponse(conn, "Malformed connection request")
				return
			}
		}
		h.handleAgentRequest(ctx, conn, req)

	case domain.EventPing:
		response := domain.WebSocketResponse{
			Type:    domain.EventPong,
			Success: true,
			Data: map[string]interface{}{
				"timestamp": time.Now().Format(time.RFC3339),
			},
		}
		conn.safeWriteJSON(response)

	default:
		log.Printf("Unknown message type: %s from user %s", msg.Type, conn.userID)
		h.sendErrorResponse(conn, "Unknown message type: "+msg.Type)
	}
}

func (h *Hub) handleAgentRequest(ctx context.Context, conn *wsConnection, req domain.ConnectionRequest) {
	outcome, err := h.assignChat(ctx, conn.userID, req)
	if err != nil {
		log.Printf("Agent request from %s failed: %v", conn.userID, err)
		h.sendErrorResponse(conn, err.Error())
		return
	}

	eventType := domain.EventAgentAssigned
	if outcome.Kind == domain.OutcomeResumed {
		eventType = domain.EventAlreadyPendingChat
	}

	response := domain.WebSocketResponse{
		Type:    eventType,
		Success: true,
		Data:    domain.ChatAssignedPayload{ChatID: outcome.ChatID},
	}
	if err := conn.safeWriteJSON(response); err != nil {
		log.Printf("Failed to push %s to %s: %v", eventType, conn.userID, err)
	}

	// A freshly assigned agent gets the same push so its UI can open the
	// chat.
	if outcome.Kind == domain.OutcomeAssigned {
		if agentConn := h.connectionFor(outcome.AgentID); agentConn != nil {
			agentConn.safeWriteJSON(response)
		}
	}
}

// assignChat resolves a customer's connection request: an existing pending
// chat is resumed, otherwise the first online agent is picked and a new chat
// minted. The resulting assignment is recorded locally and published for
// other instances.
func (h *Hub) assignChat(ctx context.Context, customerID string, req domain.ConnectionRequest) (domain.SessionOutcome, error) {
	if err := req.Validate(); err != nil {
		return domain.SessionOutcome{}, err
	}

	pending, err := h.store.GetPendingChat(ctx, customerID)
	if err != nil {
		return domain.SessionOutcome{}, err
	}
	if pending != "" {
		return domain.SessionOutcome{Kind: domain.OutcomeResumed, ChatID: pending}, nil
	}

	agents, err := h.store.GetOnlineAgents(ctx)
	if err != nil {
		return domain.SessionOutcome{}, err
	}
	if len(agents) == 0 {
		return domain.SessionOutcome{}, ErrNoAgentsOnline
	}
	agent := agents[0]

	chatID := uuid.New()
	if err := h.store.SetPendingChat(ctx, customerID, chatID.String(), h.pendingChatTTL); err != nil {
		return domain.SessionOutcome{}, err
	}

	h.recordChatMembers(chatID.String(), customerID, agent.UserID)

	assignment := domain.AgentAssignmentMessage{
		Type:          "agent_assignment",
		ChatID:        chatID,
		CustomerID:    customerID,
		AgentID:       agent.UserID,
		DepartmentID:  req.DepartmentID,
		CategoryID:    req.CategoryID,
		SubCategoryID: req.SubCategoryID,
		Timestamp:     time.Now(),
	}
	if err := h.producer.SendMessage(ctx, assignment); err != nil {
		log.Printf("Failed to publish assignment for chat %s: %v", chatID, err)
		// The local push still happens; other instances just miss the event.
	}

	return domain.SessionOutcome{
		Kind:    domain.OutcomeAssigned,
		ChatID:  chatID.String(),
		AgentID: agent.UserID,
	}, nil
}

func (h *Hub) recordChatMembers(chatID string, userIDs ...string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.chatMembers[chatID] = userIDs
}

func (h *Hub) membersOf(chatID string) []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members := make([]string, len(h.chatMembers[chatID]))
	copy(members, h.chatMembers[chatID])
	return members
}

// broadcastAgentJoined pushes newAgentJoined to every connected customer.
func (h *Hub) broadcastAgentJoined(agent domain.OnlineAgent) {
	h.mutex.RLock()
	customers := make([]*wsConnection, 0)
	for _, conn := range h.connections {
		if conn.userType == "customer" {
			customers = append(customers, conn)
		}
	}
	h.mutex.RUnlock()

	response := domain.WebSocketResponse{
		Type:    domain.EventNewAgentJoined,
		Success: true,
		Data:    agent,
	}

	for _, conn := range customers {
		if err := conn.safeWriteJSON(response); err != nil {
			log.Printf("Failed to push newAgentJoined to %s: %v", conn.userID, err)
		}
	}
}

func (h *Hub) publishPresence(ctx context.Context, agent domain.OnlineAgent, online bool) {
	presence := domain.AgentPresenceMessage{
		Type:      "agent_presence",
		Agent:     agent,
		Online:    online,
		Timestamp: time.Now(),
	}
	if err := h.producer.SendMessage(ctx, presence); err != nil {
		log.Printf("Failed to publish agent presence: %v", err)
	}
}

// MessageHandler interface implementation for Kafka message processing

func (h *Hub) HandleNewMessage(msg domain.ChatMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in HandleNewMessage: %v", r)
		}
	}()

	chatID := msg.ChatID.String()
	response := domain.WebSocketResponse{
		Type:    "new_message",
		Success: true,
		Data: map[string]interface{}{
			"message_id":   msg.ID.String(),
			"chat_id":      chatID,
			"sender_id":    msg.SenderID,
			"sender_type":  msg.SenderType,
			"message":      msg.Message,
			"message_type": msg.MessageType,
			"attachments":  msg.Attachments,
			"timestamp":    msg.CreatedAt.Format(time.RFC3339),
		},
	}

	delivered := 0
	for _, userID := range h.membersOf(chatID) {
		if conn := h.connectionFor(userID); conn != nil {
			if err := conn.safeWriteJSON(response); err != nil {
				log.Printf("Failed to deliver message to %s: %v", userID, err)
				continue
			}
			delivered++
		}
	}
	log.Printf("Delivered message %s to %d members of chat %s", msg.ID, delivered, chatID)
}

func (h *Hub) HandleAgentAssignment(msg domain.AgentAssignmentMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in HandleAgentAssignment: %v", r)
		}
	}()

	// Assignments may have been made by another instance; record membership
	// so message fan-out reaches members connected here.
	h.recordChatMembers(msg.ChatID.String(), msg.CustomerID, msg.AgentID)
}

func (h *Hub) HandleAgentPresence(msg domain.AgentPresenceMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in HandleAgentPresence: %v", r)
		}
	}()

	if msg.Online {
		h.broadcastAgentJoined(msg.Agent)
	}
}

// GetActiveConnectionCount returns the number of live connections for
// monitoring.
func (h *Hub) GetActiveConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.connections)
}
