// Package flow implements the scripted conversation state machine.
package flow

import (
	"consignado-bot/internal/cpf"
	"consignado-bot/internal/domain"
)

// Result is the outcome of one transition.
type Result struct {
	// Next is the state to persist.
	Next domain.State
	// Reported is the state this turn answered from. It differs from Next
	// only for help, which is shown as StateHelp without being persisted.
	Reported domain.State
	// CPF is the stored CPF after the transition.
	CPF    string
	Reply  string
	Intent Intent
}

// Machine decides the next state and reply for an inbound text.
type Machine struct {
	classifier Classifier
	replies    Replies
}

type Option func(*Machine)

func WithClassifier(c Classifier) Option {
	return func(m *Machine) {
		if c != nil {
			m.classifier = c
		}
	}
}

func WithReplies(r Replies) Option {
	return func(m *Machine) {
		m.replies = r
	}
}

func New(opts ...Option) *Machine {
	m := &Machine{
		classifier: DefaultClassifier(),
		replies:    DefaultReplies(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transition is total: every (state, text) pair yields exactly one Result.
// Unknown persisted states are treated as StateGreeting.
func (m *Machine) Transition(conv domain.Conversation, text string) Result {
	current := conv.State
	if !current.Known() || current == domain.StateHelp {
		current = domain.StateGreeting
	}

	intent := m.classifier.Classify(text)
	switch intent {
	case IntentGreeting:
		return Result{
			Next:     domain.StateAwaitingCPF,
			Reported: domain.StateAwaitingCPF,
			Reply:    m.replies.Welcome,
			Intent:   intent,
		}
	case IntentHelp:
		return Result{
			Next:     current,
			Reported: domain.StateHelp,
			CPF:      conv.CPF,
			Reply:    m.replies.Help,
			Intent:   intent,
		}
	}

	switch current {
	case domain.StateAwaitingCPF:
		return m.awaitingCPF(conv, text)
	case domain.StateCPFValidated:
		return Result{
			Next:     domain.StateCPFValidated,
			Reported: domain.StateCPFValidated,
			CPF:      conv.CPF,
			Reply:    m.replies.Processing,
		}
	default:
		return Result{
			Next:     current,
			Reported: current,
			CPF:      conv.CPF,
			Reply:    m.replies.Fallback,
		}
	}
}

func (m *Machine) awaitingCPF(conv domain.Conversation, text string) Result {
	stay := Result{
		Next:     domain.StateAwaitingCPF,
		Reported: domain.StateAwaitingCPF,
		CPF:      conv.CPF,
	}

	if len(cpf.Clean(text)) < cpf.Length {
		stay.Reply = m.replies.Reminder
		return stay
	}

	digits, ok := cpf.Validate(text)
	if !ok {
		stay.Reply = m.replies.InvalidCPF
		return stay
	}
	return Result{
		Next:     domain.StateCPFValidated,
		Reported: domain.StateCPFValidated,
		CPF:      digits,
		Reply:    m.replies.confirmed(digits),
	}
}
