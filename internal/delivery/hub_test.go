package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"agentlink/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	agents  []domain.OnlineAgent
	pending map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{pending: make(map[string]string)}
}

func (f *fakeStore) AddOnlineAgent(ctx context.Context, agent domain.OnlineAgent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents = append(f.agents, agent)
	return nil
}

func (f *fakeStore) RemoveOnlineAgent(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, agent := range f.agents {
		if agent.UserID == userID {
			f.agents = append(f.agents[:i], f.agents[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) GetOnlineAgents(ctx context.Context) ([]domain.OnlineAgent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	agents := make([]domain.OnlineAgent, len(f.agents))
	copy(agents, f.agents)
	return agents, nil
}

func (f *fakeStore) SetPendingChat(ctx context.Context, userID, chatID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[userID] = chatID
	return nil
}

func (f *fakeStore) GetPendingChat(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[userID], nil
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []interface{}
}

func (f *fakeProducer) SendMessage(ctx context.Context, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeProducer) sent() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := make([]interface{}, len(f.messages))
	copy(msgs, f.messages)
	return msgs
}

func validRequest() domain.ConnectionRequest {
	return domain.ConnectionRequest{
		DepartmentID:  "dept-1",
		CategoryID:    "cat-1",
		SubCategoryID: "sub-1",
	}
}

func TestAssignChatFreshAssignment(t *testing.T) {
	store := newFakeStore()
	store.agents = []domain.OnlineAgent{{UserID: "agent-1", SocketID: "sock-1"}}
	producer := &fakeProducer{}
	hub := NewHub(store, producer, time.Hour)

	outcome, err := hub.assignChat(context.Background(), "customer-1", validRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAssigned, outcome.Kind)
	assert.Equal(t, "agent-1", outcome.AgentID)
	_, err = uuid.Parse(outcome.ChatID)
	require.NoError(t, err, "chat ID must be a UUID")

	// The pending chat is recorded so a repeat request resumes it.
	assert.Equal(t, outcome.ChatID, store.pending["customer-1"])

	// Membership is recorded for message fan-out.
	assert.ElementsMatch(t, []string{"customer-1", "agent-1"}, hub.membersOf(outcome.ChatID))

	// The assignment was published for other instances.
	msgs := producer.sent()
	require.Len(t, msgs, 1)
	assignment, ok := msgs[0].(domain.AgentAssignmentMessage)
	require.True(t, ok)
	assert.Equal(t, "customer-1", assignment.CustomerID)
	assert.Equal(t, "agent-1", assignment.AgentID)
	assert.Equal(t, "dept-1", assignment.DepartmentID)
	assert.Equal(t, outcome.ChatID, assignment.ChatID.String())
}

func TestAssignChatResumesPendingChat(t *testing.T) {
	store := newFakeStore()
	store.agents = []domain.OnlineAgent{{UserID: "agent-1", SocketID: "sock-1"}}
	store.pending["customer-1"] = "chat-prior"
	producer := &fakeProducer{}
	hub := NewHub(store, producer, time.Hour)

	outcome, err := hub.assignChat(context.Background(), "customer-1", validRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeResumed, outcome.Kind)
	assert.Equal(t, "chat-prior", outcome.ChatID)
	assert.Empty(t, outcome.AgentID)
	// No new assignment is made or published.
	assert.Empty(t, producer.sent())
}

func TestAssignChatNoAgentsOnline(t *testing.T) {
	hub := NewHub(newFakeStore(), &fakeProducer{}, time.Hour)

	_, err := hub.assignChat(context.Background(), "customer-1", validRequest())
	require.ErrorIs(t, err, ErrNoAgentsOnline)
}

func TestAssignChatRejectsIncompleteRequest(t *testing.T) {
	store := newFakeStore()
	store.agents = []domain.OnlineAgent{{UserID: "agent-1", SocketID: "sock-1"}}
	producer := &fakeProducer{}
	hub := NewHub(store, producer, time.Hour)

	_, err := hub.assignChat(context.Background(), "customer-1", domain.ConnectionRequest{DepartmentID: "dept-1"})
	require.ErrorIs(t, err, domain.ErrMissingIdentifiers)
	assert.Empty(t, producer.sent())
	assert.Empty(t, store.pending)
}

func TestHandleAgentAssignmentRecordsMembership(t *testing.T) {
	hub := NewHub(newFakeStore(), &fakeProducer{}, time.Hour)

	chatID := uuid.New()
	hub.HandleAgentAssignment(domain.AgentAssignmentMessage{
		Type:       "agent_assignment",
		ChatID:     chatID,
		CustomerID: "customer-9",
		AgentID:    "agent-9",
	})

	assert.ElementsMatch(t, []string{"customer-9", "agent-9"}, hub.membersOf(chatID.String()))
}
