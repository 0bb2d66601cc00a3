// Package repository persists conversations and their message log.
package repository

import (
	"context"

	"consignado-bot/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Store is implemented by every backend: DynamoDB, SQL and memory.
type Store interface {
	GetConversation(ctx context.Context, phone string) (domain.Conversation, bool, error)
	SaveConversation(ctx context.Context, conv domain.Conversation) error
	AppendMessage(ctx context.Context, msg domain.Message) error

	// ListConversations returns conversations ordered by last activity,
	// most recent first.
	ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error)
	// ListMessages returns the newest messages for phone in chronological order.
	ListMessages(ctx context.Context, phone string, limit int) ([]domain.Message, error)
	Stats(ctx context.Context) (domain.Stats, error)
	Ping(ctx context.Context) error
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
