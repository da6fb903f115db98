package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"agentlink/internal/domain"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when an operation needs a live connection and
// none exists. Requests are never queued for a future connection.
var ErrNotConnected = errors.New("no active connection")

// Event is a server push translated into a typed value. Consumers receive
// these through Manager.Subscribe and drive their own state from them.
type Event interface {
	event()
}

// AgentAssigned reports that a fresh chat was opened with an agent.
type AgentAssigned struct {
	ChatID string
}

// AlreadyPendingChat reports that the customer already has an open chat to
// resume.
type AlreadyPendingChat struct {
	ChatID string
}

// AgentJoined reports a new agent coming online.
type AgentJoined struct {
	Agent domain.OnlineAgent
}

// ServerError is a protocol-level rejection pushed by the server.
type ServerError struct {
	Message string
}

// Disconnected reports that the transport failed. Deliberate disconnects do
// not produce it.
type Disconnected struct {
	Err error
}

func (AgentAssigned) event()      {}
func (AlreadyPendingChat) event() {}
func (AgentJoined) event()        {}
func (ServerError) event()        {}
func (Disconnected) event()       {}

type subscriber struct {
	ch chan Event
}

// Manager owns at most one live WebSocket connection to the support server,
// session-scoped: whoever constructs it calls Disconnect on logout. Connect
// replaces any prior connection. Server pushes fan out to every active
// subscription.
type Manager struct {
	url   string
	token string

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[*subscriber]struct{}
	roster []domain.OnlineAgent
	seen   map[string]bool // socket IDs already in the roster

	writeMux sync.Mutex
}

func NewManager(url, token string) *Manager {
	return &Manager{
		url:   url,
		token: token,
		subs:  make(map[*subscriber]struct{}),
	}
}

// Connect opens a new authenticated connection. An existing connection is
// closed first so at most one is ever live.
func (m *Manager) Connect(ctx context.Context) error {
	header := http.Header{}
	if m.token != "" {
		header.Set("Authorization", "Bearer "+m.token)
	}

	m.mu.Lock()
	m.closeLocked()
	m.mu.Unlock()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, m.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %s)", m.url, err, resp.Status)
		}
		return fmt.Errorf("dial %s: %w", m.url, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.roster = nil
	m.seen = make(map[string]bool)
	m.mu.Unlock()

	go m.readLoop(conn)
	return nil
}

// Connected reports whether a live connection exists.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Disconnect tears down the current connection, if any. Safe to call
// repeatedly and when never connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.conn == nil {
		return
	}
	m.conn.Close()
	m.conn = nil
	m.roster = nil
	m.seen = nil
}

// Subscribe registers a consumer for server pushes and returns its event
// channel with a cancel function. Cancel removes the subscription and closes
// the channel; calling it more than once is a no-op. Tie cancel to the
// consumer's lifetime so no handler outlives its screen.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, 16)}

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[sub]; ok {
			delete(m.subs, sub)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

// RequestAgent emits the connection request over the live connection. The
// outcome arrives asynchronously as an AgentAssigned or AlreadyPendingChat
// event.
func (m *Manager) RequestAgent(req domain.ConnectionRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	msg := domain.WebSocketMessage{
		Type: domain.EventRequestAgentConnection,
		Data: data,
	}

	m.writeMux.Lock()
	defer m.writeMux.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("emit %s: %w", domain.EventRequestAgentConnection, err)
	}
	return nil
}

// Roster returns a copy of the currently observed online agents.
func (m *Manager) Roster() []domain.OnlineAgent {
	m.mu.Lock()
	defer m.mu.Unlock()

	roster := make([]domain.OnlineAgent, len(m.roster))
	copy(roster, m.roster)
	return roster
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		var env domain.WebSocketResponse
		if err := conn.ReadJSON(&env); err != nil {
			// Only surface the failure if this is still the active
			// connection; Connect/Disconnect closing it is deliberate.
			m.mu.Lock()
			current := m.conn == conn
			if current {
				m.conn = nil
				m.roster = nil
				m.seen = nil
			}
			m.mu.Unlock()
			if current {
				m.publish(Disconnected{Err: err})
			}
			return
		}

		if ev := m.translate(env); ev != nil {
			m.publish(ev)
		}
	}
}

func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	channels := make([]chan Event, 0, len(m.subs))
	for sub := range m.subs {
		channels = append(channels, sub.ch)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full, drop the event rather than block the
			// read loop.
			log.Printf("Subscriber buffer full, dropping %T event", ev)
		}
	}
}

// translate maps a server envelope to a typed event, or nil for envelopes
// this flow does not consume.
func (m *Manager) translate(env domain.WebSocketResponse) Event {
	switch env.Type {
	case domain.EventAgentAssigned:
		chatID, ok := chatIDOf(env.Data)
		if !ok {
			log.Printf("agentAssigned push without chat_id, ignoring")
			return nil
		}
		return AgentAssigned{ChatID: chatID}

	case domain.EventAlreadyPendingChat:
		chatID, ok := chatIDOf(env.Data)
		if !ok {
			log.Printf("alreadyPendingChat push without chat_id, ignoring")
			return nil
		}
		return AlreadyPendingChat{ChatID: chatID}

	case domain.EventNewAgentJoined:
		agent, ok := agentOf(env.Data)
		if !ok {
			return nil
		}
		m.addToRoster(agent)
		return AgentJoined{Agent: agent}

	case domain.EventError:
		return ServerError{Message: env.Error}

	default:
		// connection_established, pong, chat traffic: not this flow's
		// concern.
		return nil
	}
}

// addToRoster appends an agent, deduplicated by socket ID.
func (m *Manager) addToRoster(agent domain.OnlineAgent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen == nil || m.seen[agent.SocketID] {
		return
	}
	m.seen[agent.SocketID] = true
	m.roster = append(m.roster, agent)
}

func chatIDOf(data interface{}) (string, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", false
	}
	var payload domain.ChatAssignedPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChatID == "" {
		return "", false
	}
	return payload.ChatID, true
}

func agentOf(data interface{}) (domain.OnlineAgent, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return domain.OnlineAgent{}, false
	}
	var agent domain.OnlineAgent
	if err := json.Unmarshal(raw, &agent); err != nil || agent.SocketID == "" {
		return domain.OnlineAgent{}, false
	}
	return agent, true
}
