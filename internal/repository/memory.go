package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"consignado-bot/internal/domain"
)

// MemoryStore keeps everything in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[string]domain.Conversation
	messages map[string][]domain.Message
	ids      map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:    make(map[string]domain.Conversation),
		messages: make(map[string][]domain.Message),
		ids:      make(map[string]struct{}),
	}
}

func (m *MemoryStore) GetConversation(_ context.Context, phone string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[phone]
	return c, ok, nil
}

func (m *MemoryStore) SaveConversation(_ context.Context, conv domain.Conversation) error {
	if strings.TrimSpace(conv.Phone) == "" {
		return fmt.Errorf("repository: SaveConversation: phone is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.convs[conv.Phone]; ok && !prev.CreatedAt.IsZero() {
		conv.CreatedAt = prev.CreatedAt
	}
	m.convs[conv.Phone] = conv
	return nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg domain.Message) error {
	if msg.ID == "" || msg.Phone == "" {
		return fmt.Errorf("repository: AppendMessage: id and phone are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.ids[msg.ID]; dup {
		return fmt.Errorf("repository: AppendMessage: message %q already exists", msg.ID)
	}
	m.ids[msg.ID] = struct{}{}
	m.messages[msg.Phone] = append(m.messages[msg.Phone], msg)
	return nil
}

func (m *MemoryStore) ListConversations(_ context.Context, limit int) ([]domain.Conversation, error) {
	m.mu.RLock()
	out := make([]domain.Conversation, 0, len(m.convs))
	for _, c := range m.convs {
		out = append(out, c)
	}
	m.mu.RUnlock()

	sortByActivity(out)
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) ListMessages(_ context.Context, phone string, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[phone]
	n := normalizeLimit(limit)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]domain.Message, len(all))
	copy(out, all)
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context) (domain.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := domain.Stats{Conversations: len(m.convs), Messages: len(m.ids)}
	for _, c := range m.convs {
		if c.State == domain.StateCPFValidated {
			s.ValidatedConversations++
		}
	}
	return s, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func sortByActivity(convs []domain.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if convs[i].LastActivity.Equal(convs[j].LastActivity) {
			return convs[i].Phone < convs[j].Phone
		}
		return convs[i].LastActivity.After(convs[j].LastActivity)
	})
}
