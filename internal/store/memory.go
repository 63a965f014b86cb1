package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

// MemoryStore is an in-memory store for tests and STORE_DRIVER=memory.
// It enforces the same one-CHAT-conversation-per-pair rule as the postgres index.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID][]*models.Message // keyed by conversation ID, insert order
	users         map[uint]*models.User
	agents        map[uint]*models.Agent
	merchants     map[uint]*models.Merchant

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID][]*models.Message),
		users:         make(map[uint]*models.User),
		agents:        make(map[uint]*models.Agent),
		merchants:     make(map[uint]*models.Merchant),
		now:           time.Now,
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// PutUser, PutAgent and PutMerchant seed the directory.
func (m *MemoryStore) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
}

func (m *MemoryStore) PutAgent(a models.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = &a
}

func (m *MemoryStore) PutMerchant(mc models.Merchant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merchants[mc.ID] = &mc
}

func (m *MemoryStore) FindConversation(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *conv
	return &c, nil
}

func (m *MemoryStore) FindChatConversation(_ context.Context, p Pair) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if conv := m.findChatLocked(p); conv != nil {
		c := *conv
		return &c, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) findChatLocked(p Pair) *models.Conversation {
	var found *models.Conversation
	for _, conv := range m.conversations {
		if conv.Category != models.CategoryChat || !p.matches(conv) {
			continue
		}
		if found == nil || conv.CreatedAt.Before(found.CreatedAt) {
			found = conv
		}
	}
	return found
}

func (m *MemoryStore) CreateConversation(_ context.Context, conv *models.Conversation, first *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv.Category == models.CategoryChat {
		p := Pair{Type: conv.Type, OperatorID: conv.OperatorID, AgentID: conv.AgentID, MerchantID: conv.MerchantID}
		if m.findChatLocked(p) != nil {
			return ErrDuplicate
		}
	}
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}

	at := nextMessageTime(m.now(), nil)
	conv.CreatedAt, conv.UpdatedAt = at, at
	if first != nil {
		if first.ID == uuid.Nil {
			first.ID = uuid.New()
		}
		first.ConversationID = conv.ID
		first.CreatedAt, first.UpdatedAt = at, at
		conv.LastMessage = first.Content
		conv.LastMessageAt = &at
		conv.IsRead = false
		msg := *first
		m.messages[conv.ID] = append(m.messages[conv.ID], &msg)
	}

	c := *conv
	c.Messages = nil
	m.conversations[c.ID] = &c
	return nil
}

func (m *MemoryStore) ListConversations(_ context.Context, scope Scope) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		if !scope.matches(conv) {
			continue
		}
		c := *conv
		if scope.WithMessages {
			c.Messages = make([]models.Message, 0, len(m.messages[c.ID]))
			for _, msg := range m.messages[c.ID] {
				c.Messages = append(c.Messages, *msg)
			}
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListMessages(_ context.Context, conversationID uuid.UUID, offset, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[conversationID]
	if offset < 0 || limit < 1 || offset >= len(all) {
		return []models.Message{}, nil
	}
	end := offset + limit
	if end > len(all) || end < offset {
		end = len(all)
	}
	out := make([]models.Message, 0, end-offset)
	for _, msg := range all[offset:end] {
		out = append(out, *msg)
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, conversationID uuid.UUID, msg *models.Message) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	at := nextMessageTime(m.now(), conv.LastMessageAt)
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.ConversationID = conv.ID
	msg.IsRead = false
	msg.CreatedAt, msg.UpdatedAt = at, at
	stored := *msg
	m.messages[conv.ID] = append(m.messages[conv.ID], &stored)

	conv.LastMessage = msg.Content
	conv.LastMessageAt = &at
	conv.IsRead = false
	conv.UpdatedAt = at

	c := *conv
	return &c, nil
}

func (m *MemoryStore) MarkRead(_ context.Context, conversationID uuid.UUID, exceptSender *uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var marked int64
	for _, msg := range m.messages[conversationID] {
		if msg.IsRead || (exceptSender != nil && msg.SenderID == *exceptSender) {
			continue
		}
		msg.IsRead = true
		marked++
	}
	if conv, ok := m.conversations[conversationID]; ok && (exceptSender == nil || marked > 0) {
		conv.IsRead = true
	}
	return marked, nil
}

func (m *MemoryStore) FindUser(_ context.Context, id uint) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) FindAgent(_ context.Context, id uint) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) FindMerchant(_ context.Context, id uint) (*models.Merchant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.merchants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mc
	return &cp, nil
}

func (m *MemoryStore) ListAgents(context.Context) ([]models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (m *MemoryStore) ListMerchantsByAgent(_ context.Context, agentID uint) ([]models.Merchant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Merchant, 0)
	for _, mc := range m.merchants {
		if mc.AgentID != nil && *mc.AgentID == agentID {
			out = append(out, *mc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}
