package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"agentlink/internal/domain"
)

// ErrAgentWaitTimeout is returned when no assignment outcome arrives within
// the configured wait window.
var ErrAgentWaitTimeout = errors.New("timed out waiting for an agent")

// ErrConnectionClosed is returned when the connection ends while an outcome
// is still pending.
var ErrConnectionClosed = errors.New("connection closed while waiting for an agent")

// State of the assignment flow.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateWaitingForAgent
	StateAgentAssigned
	StateAlreadyPendingChat
	StateBootstrapping
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateWaitingForAgent:
		return "WaitingForAgent"
	case StateAgentAssigned:
		return "AgentAssigned"
	case StateAlreadyPendingChat:
		return "AlreadyPendingChat"
	case StateBootstrapping:
		return "Bootstrapping"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Connection is the transport surface the orchestrator drives. *Manager
// implements it. The orchestrator never closes the connection itself; the
// connection is session-scoped and owned by whoever constructed it.
type Connection interface {
	Connect(ctx context.Context) error
	Connected() bool
	RequestAgent(req domain.ConnectionRequest) error
	Subscribe() (<-chan Event, func())
}

// MessageSender posts messages into an assigned chat. *HTTPSender
// implements it.
type MessageSender interface {
	SendImage(ctx context.Context, chatID, filename string, image io.Reader) error
	SendText(ctx context.Context, chatID, text string) error
}

// Timings holds the pacing knobs of the flow. AgentWait bounds the
// WaitingForAgent state; the two holds pace the transition into Ready so the
// UI can show its indicator.
type Timings struct {
	AgentWait     time.Duration
	BootstrapHold time.Duration
	PendingHold   time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		AgentWait:     30 * time.Second,
		BootstrapHold: 1 * time.Second,
		PendingHold:   2 * time.Second,
	}
}

// Bootstrap describes the two seed messages sent into a freshly assigned
// chat: the category icon, then the composed trade request.
type Bootstrap struct {
	IconName      string
	Icon          []byte
	Amount        int
	CategoryTitle string
}

// Outcome is the terminal result handed to the chat screen.
type Outcome struct {
	ChatID  string
	Resumed bool
}

// Orchestrator runs one assignment flow: connect, request an agent, react to
// the pushed outcome, seed the chat when it is fresh, and report the chat to
// navigate to. One Orchestrator serves one flow; construct a new one per
// screen visit.
type Orchestrator struct {
	conn    Connection
	sender  MessageSender
	timings Timings

	state State

	// OnTransition, when set, observes every state change. Used by the UI
	// to render flow progress.
	OnTransition func(from, to State)
}

func NewOrchestrator(conn Connection, sender MessageSender, timings Timings) *Orchestrator {
	return &Orchestrator{
		conn:    conn,
		sender:  sender,
		timings: timings,
		state:   StateIdle,
	}
}

// State returns the current state of the flow.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) transition(to State) {
	from := o.state
	o.state = to
	if o.OnTransition != nil {
		o.OnTransition(from, to)
	}
}

// Run drives the flow to a terminal state. It returns the outcome on
// StateReady, or an error on StateFailed. Cancelling ctx aborts the flow at
// any point; the subscription is removed before Run returns either way, the
// session connection itself stays with its owner.
func (o *Orchestrator) Run(ctx context.Context, req domain.ConnectionRequest, boot Bootstrap) (*Outcome, error) {
	// Precondition gate: an incomplete request aborts before anything is
	// connected or sent.
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Subscribe before connecting so no push is missed, and unsubscribe on
	// every exit path so no handler outlives the flow.
	events, cancel := o.conn.Subscribe()
	defer cancel()

	if !o.conn.Connected() {
		o.transition(StateConnecting)
		if err := o.conn.Connect(ctx); err != nil {
			o.transition(StateFailed)
			return nil, err
		}
	}

	if err := o.conn.RequestAgent(req); err != nil {
		o.transition(StateFailed)
		return nil, err
	}
	o.transition(StateWaitingForAgent)

	outcome, err := o.awaitOutcome(ctx, events)
	if err != nil {
		o.transition(StateFailed)
		return nil, err
	}

	if outcome.Resumed {
		o.transition(StateAlreadyPendingChat)
		if err := hold(ctx, o.timings.PendingHold); err != nil {
			o.transition(StateFailed)
			return nil, err
		}
		o.transition(StateReady)
		return outcome, nil
	}

	o.transition(StateAgentAssigned)
	o.transition(StateBootstrapping)
	if err := o.bootstrap(ctx, outcome.ChatID, boot); err != nil {
		o.transition(StateFailed)
		return nil, err
	}
	if err := hold(ctx, o.timings.BootstrapHold); err != nil {
		o.transition(StateFailed)
		return nil, err
	}

	o.transition(StateReady)
	return outcome, nil
}

// awaitOutcome consumes connection events until an assignment outcome, an
// error, the wait timeout, or cancellation. The first outcome wins; the
// caller stops consuming afterwards, so a duplicate push for the same
// request is ignored.
func (o *Orchestrator) awaitOutcome(ctx context.Context, events <-chan Event) (*Outcome, error) {
	timer := time.NewTimer(o.timings.AgentWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrAgentWaitTimeout
		case ev, ok := <-events:
			if !ok {
				return nil, ErrConnectionClosed
			}
			switch e := ev.(type) {
			case AgentAssigned:
				return &Outcome{ChatID: e.ChatID}, nil
			case AlreadyPendingChat:
				return &Outcome{ChatID: e.ChatID, Resumed: true}, nil
			case ServerError:
				return nil, fmt.Errorf("server rejected request: %s", e.Message)
			case Disconnected:
				if e.Err != nil {
					return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, e.Err)
				}
				return nil, ErrConnectionClosed
			default:
				// AgentJoined and other pushes are not outcomes.
			}
		}
	}
}

// bootstrap seeds a fresh chat: icon first, composed text second. The text
// send must not start unless the icon send succeeded.
func (o *Orchestrator) bootstrap(ctx context.Context, chatID string, boot Bootstrap) error {
	if err := o.sender.SendImage(ctx, chatID, boot.IconName, bytes.NewReader(boot.Icon)); err != nil {
		return fmt.Errorf("send icon: %w", err)
	}

	text := ComposeTradeMessage(boot.Amount, boot.CategoryTitle)
	if err := o.sender.SendText(ctx, chatID, text); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// hold pauses for d, aborting early on cancellation.
func hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
