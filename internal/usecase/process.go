package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"consignado-bot/internal/domain"
	"consignado-bot/internal/flow"
)

// Outcome statuses reported back to the webhook caller.
const (
	StatusProcessed = "processed"
	StatusIgnored   = "ignored"
	StatusDuplicate = "duplicate"
)

// ConversationStore is the persistence collaborator. GetConversation reports
// found=false, with a nil error, for unknown phones.
type ConversationStore interface {
	GetConversation(ctx context.Context, phone string) (domain.Conversation, bool, error)
	SaveConversation(ctx context.Context, conv domain.Conversation) error
	AppendMessage(ctx context.Context, msg domain.Message) error
}

// Sender delivers a reply through the messaging gateway and returns the
// gateway's message id.
type Sender interface {
	SendText(ctx context.Context, phone, text string) (string, error)
}

// Deduper reports whether a gateway message id is seen for the first time.
// Forget releases an id whose processing failed so a redelivery is handled.
type Deduper interface {
	FirstSeen(ctx context.Context, messageID string) (bool, error)
	Forget(ctx context.Context, messageID string) error
}

// Recorder receives processing events for metrics.
type Recorder interface {
	ObserveOutcome(status string)
	ObserveTransition(from, to domain.State)
	ObserveSend(delivered bool)
}

// Transitioner is the state machine consumed by the service.
type Transitioner interface {
	Transition(conv domain.Conversation, text string) flow.Result
}

// Inbound is a parsed gateway message.
type Inbound struct {
	Phone     string
	Text      string
	MessageID string
}

// Outcome describes what happened to one inbound message.
type Outcome struct {
	Status    string
	State     domain.State
	Reply     string
	Delivered bool
}

type Service struct {
	store    ConversationStore
	sender   Sender
	machine  Transitioner
	deduper  Deduper
	recorder Recorder
	now      func() time.Time
}

type Option func(*Service)

func WithDeduper(d Deduper) Option {
	return func(s *Service) { s.deduper = d }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithMachine(m Transitioner) Option {
	return func(s *Service) {
		if m != nil {
			s.machine = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store ConversationStore, sender Sender, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if sender == nil {
		return nil, errors.New("usecase: sender must not be nil")
	}
	s := &Service{
		store:    store,
		sender:   sender,
		machine:  flow.New(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	return s, nil
}

// Process runs one inbound message through the conversation. Only
// persistence failures are returned; delivery failures are logged and the
// state transition stands.
func (s *Service) Process(ctx context.Context, in Inbound) (Outcome, error) {
	out, err := s.process(ctx, in)
	if err != nil {
		s.recorder.ObserveOutcome("error")
		return Outcome{}, err
	}
	s.recorder.ObserveOutcome(out.Status)
	return out, nil
}

func (s *Service) process(ctx context.Context, in Inbound) (Outcome, error) {
	phone := strings.TrimSpace(in.Phone)
	text := strings.TrimSpace(in.Text)
	if phone == "" || text == "" {
		return Outcome{Status: StatusIgnored}, nil
	}

	claimed := false
	if s.deduper != nil && in.MessageID != "" {
		first, err := s.deduper.FirstSeen(ctx, in.MessageID)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "dedupe check failed, processing anyway", "phone", phone, "message_id", in.MessageID, "err", err)
		case !first:
			slog.InfoContext(ctx, "duplicate delivery ignored", "phone", phone, "message_id", in.MessageID)
			return Outcome{Status: StatusDuplicate}, nil
		default:
			claimed = true
		}
	}

	res, err := s.advance(ctx, phone, text)
	if err != nil {
		if claimed {
			s.release(ctx, in.MessageID)
		}
		return Outcome{}, err
	}
	s.recorder.ObserveTransition(res.from, res.Next)
	slog.DebugContext(ctx, "conversation transition", "phone", phone, "from", res.from, "to", res.Next, "intent", res.Intent.String())

	out := Outcome{Status: StatusProcessed, State: res.Reported, Reply: res.Reply}

	gatewayID, err := s.sender.SendText(ctx, phone, res.Reply)
	s.recorder.ObserveSend(err == nil)
	if err != nil {
		slog.ErrorContext(ctx, "reply not delivered", "phone", phone, "err", newError(ErrorUpstream, "send_failed", err))
		return out, nil
	}
	out.Delivered = true

	if err := s.store.AppendMessage(ctx, newMessage(phone, res.Reply, domain.DirectionOutgoing, gatewayID, s.now().UTC())); err != nil {
		return Outcome{}, newError(ErrorInternal, "store_write_error", err)
	}
	return out, nil
}

type transition struct {
	flow.Result
	from domain.State
}

// advance logs the incoming text, runs the machine and saves the conversation.
func (s *Service) advance(ctx context.Context, phone, text string) (transition, error) {
	now := s.now().UTC()
	conv, found, err := s.store.GetConversation(ctx, phone)
	if err != nil {
		return transition{}, newError(ErrorInternal, "store_read_error", err)
	}
	if !found {
		conv = domain.NewConversation(phone, now)
		slog.InfoContext(ctx, "new conversation", "phone", phone)
	}

	if err := s.store.AppendMessage(ctx, newMessage(phone, text, domain.DirectionIncoming, "", now)); err != nil {
		return transition{}, newError(ErrorInternal, "store_write_error", err)
	}

	res := s.machine.Transition(conv, text)
	from := conv.State
	conv.State = res.Next
	conv.CPF = res.CPF
	conv.LastActivity = now
	if err := s.store.SaveConversation(ctx, conv); err != nil {
		return transition{}, newError(ErrorInternal, "store_write_error", err)
	}
	return transition{Result: res, from: from}, nil
}

// release forgets a claimed message id, even when ctx is already cancelled.
func (s *Service) release(ctx context.Context, messageID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.deduper.Forget(ctx, messageID); err != nil {
		slog.WarnContext(ctx, "dedupe release failed", "message_id", messageID, "err", err)
	}
}

func newMessage(phone, body string, dir domain.Direction, gatewayID string, ts time.Time) domain.Message {
	return domain.Message{
		ID:        newUUID(),
		Phone:     phone,
		Body:      body,
		Direction: dir,
		GatewayID: gatewayID,
		Timestamp: ts,
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(string) {}

func (nopRecorder) ObserveTransition(domain.State, domain.State) {}

func (nopRecorder) ObserveSend(bool) {}

var newUUID = func() string {
	return uuid.NewString()
}
