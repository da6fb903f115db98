package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrMissingIdentifiers is returned when a ConnectionRequest is missing one
// of its three required identifiers. A request like this must never reach
// the wire.
var ErrMissingIdentifiers = errors.New("department, category and sub-category identifiers are all required")

// ConnectionRequest identifies what the customer wants help with.
type ConnectionRequest struct {
	DepartmentID  string `json:"department_id"`
	CategoryID    string `json:"category_id"`
	SubCategoryID string `json:"sub_category_id"`
}

func (r ConnectionRequest) Validate() error {
	if r.DepartmentID == "" || r.CategoryID == "" || r.SubCategoryID == "" {
		return ErrMissingIdentifiers
	}
	return nil
}

// OnlineAgent is an entry in the observed roster of support agents.
type OnlineAgent struct {
	UserID   string `json:"user_id"`
	SocketID string `json:"socket_id"`
}

type ChatMessage struct {
	ID          uuid.UUID `json:"id"`
	ChatID      uuid.UUID `json:"chat_id"`
	SenderID    string    `json:"sender_id"`
	SenderType  string    `json:"sender_type"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type"`
	Attachments []string  `json:"attachments"`
	CreatedAt   time.Time `json:"created_at"`
}

type OutcomeKind string

const (
	OutcomeAssigned OutcomeKind = "assigned"
	OutcomeResumed  OutcomeKind = "resumed"
)

// SessionOutcome is the result of resolving an agent request: either a fresh
// assignment to an online agent, or resumption of a chat the customer
// already has pending.
type SessionOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	ChatID  string      `json:"chat_id"`
	AgentID string      `json:"agent_id,omitempty"`
}
