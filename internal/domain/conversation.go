package domain

import "time"

// State is the position of a conversation in the scripted flow.
type State string

const (
	StateGreeting     State = "GREETING"
	StateAwaitingCPF  State = "AWAITING_CPF"
	StateCPFValidated State = "CPF_VALIDATED"
	StateHelp         State = "HELP"
)

// Known reports whether s is one of the defined states.
func (s State) Known() bool {
	switch s {
	case StateGreeting, StateAwaitingCPF, StateCPFValidated, StateHelp:
		return true
	}
	return false
}

// Conversation is the per-phone conversation record. Phone is the identity.
type Conversation struct {
	Phone        string
	State        State
	CPF          string
	CreatedAt    time.Time
	LastActivity time.Time
}

// NewConversation returns a conversation in the initial state.
func NewConversation(phone string, now time.Time) Conversation {
	return Conversation{
		Phone:        phone,
		State:        StateGreeting,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Direction tells inbound and outbound message records apart.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Message is a single logged message. GatewayID is only set on outgoing
// messages the gateway acknowledged.
type Message struct {
	ID        string
	Phone     string
	Body      string
	Direction Direction
	GatewayID string
	Timestamp time.Time
}

// Stats aggregates counters for the admin views.
type Stats struct {
	Conversations          int `json:"total_conversations"`
	ValidatedConversations int `json:"validated_conversations"`
	Messages               int `json:"total_messages"`
}
