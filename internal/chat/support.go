package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/store"
)

// CreateSupportConversation opens a new SUPPORT thread seeded with the first
// message. Agents reach the platform operator; merchants reach their own agent.
// Support threads are never deduplicated.
func (s *Service) CreateSupportConversation(ctx context.Context, c *identity.Claims, content string, imageURL *string) (*models.Conversation, *models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" && imageURL == nil {
		return nil, nil, fmt.Errorf("message is required: %w", ErrInvalidRequest)
	}
	p, err := PrincipalFor(c)
	if err != nil {
		return nil, nil, err
	}

	conv := &models.Conversation{Category: models.CategorySupport}
	switch me := p.(type) {
	case Agent:
		op := s.platformOperatorID
		conv.Type = models.ConversationSuperadminAgent
		conv.OperatorID = &op
		conv.AgentID = me.AgentID
	case Merchant:
		m, err := s.store.FindMerchant(ctx, me.MerchantID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("find merchant: %w", err)
		}
		if m == nil || m.AgentID == nil {
			return nil, nil, fmt.Errorf("merchant %d has no agent: %w", me.MerchantID, ErrNotFound)
		}
		mid := me.MerchantID
		conv.Type = models.ConversationAgentMerchant
		conv.AgentID = *m.AgentID
		conv.MerchantID = &mid
	default:
		return nil, nil, fmt.Errorf("%s cannot open support threads: %w", p.Role(), ErrForbidden)
	}

	name, err := s.senderName(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	first := &models.Message{
		SenderID:   c.SubjectID,
		SenderRole: string(c.Role),
		SenderName: name,
		Content:    content,
		ImageURL:   imageURL,
	}
	if err := s.store.CreateConversation(ctx, conv, first); err != nil {
		return nil, nil, fmt.Errorf("create support conversation: %w", err)
	}

	s.logger.Info("support conversation created",
		"conversation_id", conv.ID,
		"type", conv.Type,
		"agent_id", conv.AgentID)
	return conv, first, nil
}

// GetSupportInbox lists the SUPPORT threads visible to the caller.
func (s *Service) GetSupportInbox(ctx context.Context, c *identity.Claims) ([]models.Conversation, error) {
	p, err := PrincipalFor(c)
	if err != nil {
		return nil, err
	}
	return s.store.ListConversations(ctx, p.supportScope())
}

// GetSupportMessages returns one page of a SUPPORT thread. Fetching marks the
// thread and every unread message in it as read.
func (s *Service) GetSupportMessages(ctx context.Context, id uuid.UUID, c *identity.Claims, page, pageSize int) ([]models.Message, error) {
	conv, err := s.Conversation(ctx, id, c, models.CategorySupport)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.MarkRead(ctx, conv.ID, nil); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	page, pageSize = NormalizePage(page, pageSize)
	msgs, err := s.store.ListMessages(ctx, conv.ID, pageOffset(page, pageSize), pageSize)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// SendSupportMessage appends to a SUPPORT thread.
func (s *Service) SendSupportMessage(ctx context.Context, id uuid.UUID, c *identity.Claims, content string, imageURL *string) (*models.Message, *models.Conversation, error) {
	content = strings.TrimSpace(content)
	if content == "" && imageURL == nil {
		return nil, nil, fmt.Errorf("message is required: %w", ErrInvalidRequest)
	}
	conv, err := s.Conversation(ctx, id, c, models.CategorySupport)
	if err != nil {
		return nil, nil, err
	}
	return s.appendMessage(ctx, conv, c, content, imageURL)
}
