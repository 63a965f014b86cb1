package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

func uptr(v uint) *uint { return &v }

// frozenStore returns a store whose clock only moves when advance is called.
func frozenStore(t *testing.T) (*MemoryStore, func(time.Duration)) {
	t.Helper()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewMemoryStore()
	m.now = func() time.Time { return now }
	return m, func(d time.Duration) { now = now.Add(d) }
}

func chatConv(agentID uint, merchantID uint) *models.Conversation {
	return &models.Conversation{
		Type:       models.ConversationAgentMerchant,
		Category:   models.CategoryChat,
		AgentID:    agentID,
		MerchantID: uptr(merchantID),
	}
}

func TestNextMessageTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, base, nextMessageTime(base, nil))

	same := nextMessageTime(base, &base)
	assert.Equal(t, base.Add(time.Microsecond), same)

	earlier := base.Add(-time.Second)
	assert.Equal(t, base.Add(time.Microsecond), nextMessageTime(earlier, &base))

	later := base.Add(time.Second)
	assert.Equal(t, later, nextMessageTime(later, &base))

	sub := base.Add(500 * time.Nanosecond)
	assert.Equal(t, base, nextMessageTime(sub, nil), "truncated to microseconds")
}

func TestPairKey(t *testing.T) {
	p := Pair{Type: models.ConversationSuperadminAgent, OperatorID: uptr(1), AgentID: 7}
	assert.Equal(t, "SUPERADMIN_AGENT:1:7:-", p.Key())

	q := Pair{Type: models.ConversationAgentMerchant, AgentID: 7, MerchantID: uptr(42)}
	assert.Equal(t, "AGENT_MERCHANT:-:7:42", q.Key())
}

func TestMemoryStore_CreateRejectsDuplicateChatPair(t *testing.T) {
	m, _ := frozenStore(t)
	ctx := context.Background()

	require.NoError(t, m.CreateConversation(ctx, chatConv(7, 42), nil))
	assert.ErrorIs(t, m.CreateConversation(ctx, chatConv(7, 42), nil), ErrDuplicate)
	assert.NoError(t, m.CreateConversation(ctx, chatConv(7, 43), nil))

	support := chatConv(7, 42)
	support.Category = models.CategorySupport
	assert.NoError(t, m.CreateConversation(ctx, support, nil))
	again := chatConv(7, 42)
	again.Category = models.CategorySupport
	assert.NoError(t, m.CreateConversation(ctx, again, nil))
}

func TestMemoryStore_FindChatConversationMatchesNulls(t *testing.T) {
	m, _ := frozenStore(t)
	ctx := context.Background()

	conv := &models.Conversation{
		Type:       models.ConversationSuperadminAgent,
		Category:   models.CategoryChat,
		OperatorID: uptr(1),
		AgentID:    7,
	}
	require.NoError(t, m.CreateConversation(ctx, conv, nil))

	found, err := m.FindChatConversation(ctx, Pair{Type: models.ConversationSuperadminAgent, OperatorID: uptr(1), AgentID: 7})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, found.ID)

	_, err = m.FindChatConversation(ctx, Pair{Type: models.ConversationSuperadminAgent, AgentID: 7})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_AppendMessageKeepsOrderAndSummary(t *testing.T) {
	m, _ := frozenStore(t)
	ctx := context.Background()

	conv := chatConv(7, 42)
	require.NoError(t, m.CreateConversation(ctx, conv, nil))

	var last time.Time
	for _, text := range []string{"one", "two", "three"} {
		updated, err := m.AppendMessage(ctx, conv.ID, &models.Message{SenderID: 700, SenderRole: "agent", Content: text})
		require.NoError(t, err)
		assert.Equal(t, text, updated.LastMessage)
		assert.False(t, updated.IsRead)
		require.NotNil(t, updated.LastMessageAt)
		assert.True(t, updated.LastMessageAt.After(last))
		last = *updated.LastMessageAt
	}

	msgs, err := m.ListMessages(ctx, conv.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))
	assert.True(t, msgs[2].CreatedAt.After(msgs[1].CreatedAt))

	page, err := m.ListMessages(ctx, conv.ID, 2, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "three", page[0].Content)

	for _, offset := range []int{-1, -100, 3, math.MaxInt} {
		out, err := m.ListMessages(ctx, conv.ID, offset, 10)
		require.NoError(t, err)
		assert.Empty(t, out, "offset %d", offset)
	}

	_, err = m.AppendMessage(ctx, [16]byte{1}, &models.Message{Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListConversationsNewestActivityFirst(t *testing.T) {
	m, advance := frozenStore(t)
	ctx := context.Background()

	older := chatConv(7, 42)
	require.NoError(t, m.CreateConversation(ctx, older, nil))
	advance(time.Second)
	newer := chatConv(7, 43)
	require.NoError(t, m.CreateConversation(ctx, newer, nil))

	list, err := m.ListConversations(ctx, Scope{Category: models.CategoryChat, AgentID: uptr(7)})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	advance(time.Second)
	_, err = m.AppendMessage(ctx, older.ID, &models.Message{SenderID: 4200, Content: "bump"})
	require.NoError(t, err)

	list, err = m.ListConversations(ctx, Scope{Category: models.CategoryChat, AgentID: uptr(7), WithMessages: true})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	require.Len(t, list[0].Messages, 1)
	assert.Empty(t, list[1].Messages)

	none, err := m.ListConversations(ctx, Scope{Category: models.CategoryChat, MerchantID: uptr(99)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_MarkRead(t *testing.T) {
	m, _ := frozenStore(t)
	ctx := context.Background()

	conv := chatConv(7, 42)
	require.NoError(t, m.CreateConversation(ctx, conv, nil))
	_, err := m.AppendMessage(ctx, conv.ID, &models.Message{SenderID: 700, Content: "from agent"})
	require.NoError(t, err)
	_, err = m.AppendMessage(ctx, conv.ID, &models.Message{SenderID: 4200, Content: "from merchant"})
	require.NoError(t, err)

	reader := uint(700)
	n, err := m.MarkRead(ctx, conv.ID, &reader)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.MarkRead(ctx, conv.ID, &reader)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = m.MarkRead(ctx, conv.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored, err := m.FindConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	m, _ := frozenStore(t)
	ctx := context.Background()

	conv := chatConv(7, 42)
	require.NoError(t, m.CreateConversation(ctx, conv, nil))

	got, err := m.FindConversation(ctx, conv.ID)
	require.NoError(t, err)
	got.LastMessage = "tampered"

	again, err := m.FindConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, again.LastMessage)
}
