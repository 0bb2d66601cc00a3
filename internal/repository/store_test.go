package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"consignado-bot/internal/domain"
)

var t0 = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func testMessage(id, phone string, dir domain.Direction, ts time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		Phone:     phone,
		Body:      "body " + id,
		Direction: dir,
		Timestamp: ts,
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.GetConversation(ctx, "5511000000001")
	require.NoError(t, err)
	require.False(t, found)

	conv := domain.NewConversation("5511000000001", t0)
	require.NoError(t, s.SaveConversation(ctx, conv))

	got, found, err := s.GetConversation(ctx, "5511000000001")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, conv, got)

	conv.State = domain.StateCPFValidated
	conv.CPF = "11144477735"
	conv.LastActivity = t0.Add(time.Minute)
	require.NoError(t, s.SaveConversation(ctx, conv))

	got, _, err = s.GetConversation(ctx, "5511000000001")
	require.NoError(t, err)
	require.Equal(t, domain.StateCPFValidated, got.State)
	require.Equal(t, "11144477735", got.CPF)
	require.Equal(t, t0, got.CreatedAt)
	require.Equal(t, t0.Add(time.Minute), got.LastActivity)

	other := domain.NewConversation("5511000000002", t0.Add(time.Hour))
	require.NoError(t, s.SaveConversation(ctx, other))

	convs, err := s.ListConversations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, "5511000000002", convs[0].Phone)
	require.Equal(t, "5511000000001", convs[1].Phone)

	convs, err = s.ListConversations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	for i := 0; i < 5; i++ {
		dir := domain.DirectionIncoming
		if i%2 == 1 {
			dir = domain.DirectionOutgoing
		}
		msg := testMessage(fmt.Sprintf("m-%d", i), "5511000000001", dir, t0.Add(time.Duration(i)*time.Second))
		if dir == domain.DirectionOutgoing {
			msg.GatewayID = "gw-" + msg.ID
		}
		require.NoError(t, s.AppendMessage(ctx, msg))
	}

	msgs, err := s.ListMessages(ctx, "5511000000001", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, []string{"m-2", "m-3", "m-4"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	require.Equal(t, domain.DirectionOutgoing, msgs[1].Direction)
	require.Equal(t, "gw-m-3", msgs[1].GatewayID)
	require.Equal(t, t0.Add(3*time.Second), msgs[1].Timestamp)

	msgs, err = s.ListMessages(ctx, "5511000000002", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.Error(t, s.AppendMessage(ctx, testMessage("m-0", "5511000000001", domain.DirectionIncoming, t0)))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Stats{Conversations: 2, ValidatedConversations: 1, Messages: 5}, stats)

	require.NoError(t, s.Ping(ctx))
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, defaultListLimit, normalizeLimit(0))
	require.Equal(t, defaultListLimit, normalizeLimit(-3))
	require.Equal(t, 7, normalizeLimit(7))
	require.Equal(t, maxListLimit, normalizeLimit(10_000))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_RejectsIncompleteRecords(t *testing.T) {
	s := NewMemoryStore()
	require.Error(t, s.SaveConversation(context.Background(), domain.Conversation{}))
	require.Error(t, s.AppendMessage(context.Background(), domain.Message{Phone: "5511"}))
}
