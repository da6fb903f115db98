package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"agentlink/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	connectCalls int
	requests     []domain.ConnectionRequest
	requestErr   error
	events       chan Event
	cancelCalls  int
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan Event, 16)}
}

func (f *fakeConn) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeConn) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) RequestAgent(req domain.ConnectionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := req.Validate(); err != nil {
		return err
	}
	f.requests = append(f.requests, req)
	return f.requestErr
}

func (f *fakeConn) Subscribe() (<-chan Event, func()) {
	return f.events, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelCalls++
	}
}

func (f *fakeConn) push(ev Event) {
	f.events <- ev
}

func (f *fakeConn) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeSender struct {
	mu       sync.Mutex
	calls    []string
	imageErr error
	textErr  error
	texts    []string
}

func (f *fakeSender) SendImage(ctx context.Context, chatID, filename string, image io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "image")
	return f.imageErr
}

func (f *fakeSender) SendText(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "text")
	f.texts = append(f.texts, text)
	return f.textErr
}

func (f *fakeSender) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]string, len(f.calls))
	copy(calls, f.calls)
	return calls
}

func testTimings() Timings {
	return Timings{
		AgentWait:     200 * time.Millisecond,
		BootstrapHold: time.Millisecond,
		PendingHold:   time.Millisecond,
	}
}

func validRequest() domain.ConnectionRequest {
	return domain.ConnectionRequest{
		DepartmentID:  "dept-1",
		CategoryID:    "cat-1",
		SubCategoryID: "sub-1",
	}
}

func testBootstrap() Bootstrap {
	return Bootstrap{
		IconName:      "bitcoin.png",
		Icon:          []byte{0x89, 0x50},
		Amount:        50,
		CategoryTitle: "Bitcoin",
	}
}

func TestRunAssignedPathBootstrapsInOrder(t *testing.T) {
	conn := newFakeConn()
	sender := &fakeSender{}
	orch := NewOrchestrator(conn, sender, testTimings())

	conn.push(AgentAssigned{ChatID: "chat-1"})

	outcome, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, "chat-1", outcome.ChatID)
	assert.False(t, outcome.Resumed)

	// Icon strictly before text.
	assert.Equal(t, []string{"image", "text"}, sender.callOrder())
	assert.Equal(t, []string{"I want to trade 50$ of Bitcoin"}, sender.texts)
	assert.Equal(t, StateReady, orch.State())
}

func TestRunIconFailureHaltsBootstrap(t *testing.T) {
	conn := newFakeConn()
	sender := &fakeSender{imageErr: errors.New("upload rejected")}
	orch := NewOrchestrator(conn, sender, testTimings())

	conn.push(AgentAssigned{ChatID: "chat-1"})

	_, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send icon")

	// The text send must never start once the icon send failed.
	assert.Equal(t, []string{"image"}, sender.callOrder())
	assert.Equal(t, StateFailed, orch.State())
}

func TestRunPendingChatSkipsBootstrap(t *testing.T) {
	conn := newFakeConn()
	sender := &fakeSender{}
	orch := NewOrchestrator(conn, sender, testTimings())

	conn.push(AlreadyPendingChat{ChatID: "chat-7"})

	outcome, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.NoError(t, err)
	assert.Equal(t, "chat-7", outcome.ChatID)
	assert.True(t, outcome.Resumed)
	assert.Empty(t, sender.callOrder())
	assert.Equal(t, StateReady, orch.State())
}

func TestRunPreconditionGate(t *testing.T) {
	for _, tc := range []struct {
		name string
		req  domain.ConnectionRequest
	}{
		{"missing department", domain.ConnectionRequest{CategoryID: "c", SubCategoryID: "s"}},
		{"missing category", domain.ConnectionRequest{DepartmentID: "d", SubCategoryID: "s"}},
		{"missing subcategory", domain.ConnectionRequest{DepartmentID: "d", CategoryID: "c"}},
		{"all empty", domain.ConnectionRequest{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			conn := newFakeConn()
			orch := NewOrchestrator(conn, &fakeSender{}, testTimings())

			_, err := orch.Run(context.Background(), tc.req, testBootstrap())
			require.ErrorIs(t, err, domain.ErrMissingIdentifiers)

			// Nothing may have been connected or sent.
			assert.Zero(t, conn.connectCalls)
			assert.Zero(t, conn.requestCount())
			assert.Equal(t, StateIdle, orch.State())
		})
	}
}

func TestRunTimesOutWaitingForAgent(t *testing.T) {
	conn := newFakeConn()
	timings := testTimings()
	timings.AgentWait = 20 * time.Millisecond
	orch := NewOrchestrator(conn, &fakeSender{}, timings)

	_, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.ErrorIs(t, err, ErrAgentWaitTimeout)
	assert.Equal(t, StateFailed, orch.State())
}

func TestRunFirstOutcomeWins(t *testing.T) {
	conn := newFakeConn()
	sender := &fakeSender{}
	orch := NewOrchestrator(conn, sender, testTimings())

	conn.push(AgentAssigned{ChatID: "chat-1"})
	conn.push(AlreadyPendingChat{ChatID: "chat-2"})

	outcome, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.NoError(t, err)
	assert.Equal(t, "chat-1", outcome.ChatID)
	assert.False(t, outcome.Resumed)
	assert.Equal(t, []string{"image", "text"}, sender.callOrder())
}

func TestRunIgnoresRosterEventsWhileWaiting(t *testing.T) {
	conn := newFakeConn()
	sender := &fakeSender{}
	orch := NewOrchestrator(conn, sender, testTimings())

	conn.push(AgentJoined{Agent: domain.OnlineAgent{UserID: "a1", SocketID: "s1"}})
	conn.push(AgentAssigned{ChatID: "chat-1"})

	outcome, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.NoError(t, err)
	assert.Equal(t, "chat-1", outcome.ChatID)
}

func TestRunServerErrorFailsFlow(t *testing.T) {
	conn := newFakeConn()
	orch := NewOrchestrator(conn, &fakeSender{}, testTimings())

	conn.push(ServerError{Message: "no agents online"})

	_, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no agents online")
	assert.Equal(t, StateFailed, orch.State())
}

func TestRunDisconnectFailsFlow(t *testing.T) {
	conn := newFakeConn()
	orch := NewOrchestrator(conn, &fakeSender{}, testTimings())

	conn.push(Disconnected{Err: errors.New("broken pipe")})

	_, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, StateFailed, orch.State())
}

func TestRunCancellation(t *testing.T) {
	conn := newFakeConn()
	orch := NewOrchestrator(conn, &fakeSender{}, testTimings())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := orch.Run(ctx, validRequest(), testBootstrap())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, orch.State())
}

func TestRunSkipsConnectingWhenAlreadyConnected(t *testing.T) {
	conn := newFakeConn()
	conn.connected = true
	orch := NewOrchestrator(conn, &fakeSender{}, testTimings())

	var transitions []State
	orch.OnTransition = func(from, to State) {
		transitions = append(transitions, to)
	}

	conn.push(AlreadyPendingChat{ChatID: "chat-3"})

	_, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.NoError(t, err)
	assert.Zero(t, conn.connectCalls)
	assert.NotContains(t, transitions, StateConnecting)
}

func TestRunStateSequenceForFreshAssignment(t *testing.T) {
	conn := newFakeConn()
	orch := NewOrchestrator(conn, &fakeSender{}, testTimings())

	var transitions []State
	orch.OnTransition = func(from, to State) {
		transitions = append(transitions, to)
	}

	conn.push(AgentAssigned{ChatID: "chat-1"})

	_, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateConnecting,
		StateWaitingForAgent,
		StateAgentAssigned,
		StateBootstrapping,
		StateReady,
	}, transitions)
}

func TestRunUnsubscribesOnEveryExit(t *testing.T) {
	// Successful flow.
	conn := newFakeConn()
	orch := NewOrchestrator(conn, &fakeSender{}, testTimings())
	conn.push(AlreadyPendingChat{ChatID: "chat-1"})
	_, err := orch.Run(context.Background(), validRequest(), testBootstrap())
	require.NoError(t, err)
	assert.Equal(t, 1, conn.cancelCalls)

	// Failed flow.
	conn = newFakeConn()
	timings := testTimings()
	timings.AgentWait = 10 * time.Millisecond
	orch = NewOrchestrator(conn, &fakeSender{}, timings)
	_, err = orch.Run(context.Background(), validRequest(), testBootstrap())
	require.Error(t, err)
	assert.Equal(t, 1, conn.cancelCalls)
}
