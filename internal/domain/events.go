package domain

import (
	"time"

	"github.com/google/uuid"
)

// AgentAssignmentMessage is published to Kafka whenever a customer request
// resolves to a chat, fresh or resumed. Other instances use it to learn
// chat membership for fan-out.
type AgentAssignmentMessage struct {
	Type          string    `json:"type"`
	ChatID        uuid.UUID `json:"chat_id"`
	CustomerID    string    `json:"customer_id"`
	AgentID       string    `json:"agent_id"`
	DepartmentID  string    `json:"department_id"`
	CategoryID    string    `json:"category_id"`
	SubCategoryID string    `json:"sub_category_id"`
	Resumed       bool      `json:"resumed"`
	Timestamp     time.Time `json:"timestamp"`
}

// AgentPresenceMessage is published to Kafka when an agent connects or
// disconnects.
type AgentPresenceMessage struct {
	Type      string      `json:"type"`
	Agent     OnlineAgent `json:"agent"`
	Online    bool        `json:"online"`
	Timestamp time.Time   `json:"timestamp"`
}
