// Package chat holds the conversation business logic shared by the HTTP facade
// and the realtime gateway.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Store is what the service needs from persistence.
type Store interface {
	Ping(ctx context.Context) error

	FindConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	FindChatConversation(ctx context.Context, p store.Pair) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation, first *models.Message) error
	ListConversations(ctx context.Context, scope store.Scope) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]models.Message, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, msg *models.Message) (*models.Conversation, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, exceptSender *uint) (int64, error)

	FindUser(ctx context.Context, id uint) (*models.User, error)
	FindAgent(ctx context.Context, id uint) (*models.Agent, error)
	FindMerchant(ctx context.Context, id uint) (*models.Merchant, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)
	ListMerchantsByAgent(ctx context.Context, agentID uint) ([]models.Merchant, error)
}

// Service implements chat and support-inbox flows. Safe for concurrent use.
type Service struct {
	store              Store
	platformOperatorID uint
	logger             *slog.Logger

	creating singleflight.Group
}

// NewService creates a Service. platformOperatorID is the singleton operator that
// agents reach when they open a SUPERADMIN_AGENT conversation.
func NewService(st Store, platformOperatorID uint, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:              st,
		platformOperatorID: platformOperatorID,
		logger:             logger.With("component", "chat"),
	}
}

func (s *Service) PlatformOperatorID() uint { return s.platformOperatorID }

// FindOrCreate returns the CHAT conversation for the pair, creating it on first
// contact. Concurrent callers for the same pair share one lookup; a unique-index
// conflict from another instance is resolved by re-reading.
func (s *Service) FindOrCreate(ctx context.Context, p store.Pair) (*models.Conversation, error) {
	if err := validatePair(p); err != nil {
		return nil, err
	}

	v, err, _ := s.creating.Do(p.Key(), func() (interface{}, error) {
		return s.findOrCreate(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	conv := *v.(*models.Conversation)
	return &conv, nil
}

func (s *Service) findOrCreate(ctx context.Context, p store.Pair) (*models.Conversation, error) {
	conv, err := s.store.FindChatConversation(ctx, p)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	conv = &models.Conversation{
		Type:       p.Type,
		Category:   models.CategoryChat,
		OperatorID: p.OperatorID,
		AgentID:    p.AgentID,
		MerchantID: p.MerchantID,
	}
	err = s.store.CreateConversation(ctx, conv, nil)
	if errors.Is(err, store.ErrDuplicate) {
		s.logger.Debug("conversation created concurrently, re-reading", "pair", p.Key())
		conv, err = s.store.FindChatConversation(ctx, p)
	}
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.logger.Info("conversation created", "conversation_id", conv.ID, "pair", p.Key())
	return conv, nil
}

func validatePair(p store.Pair) error {
	switch p.Type {
	case models.ConversationSuperadminAgent:
		if p.OperatorID == nil || p.MerchantID != nil {
			return fmt.Errorf("%s needs an operator and no merchant: %w", p.Type, ErrInvalidRequest)
		}
	case models.ConversationAgentMerchant:
		if p.MerchantID == nil || p.OperatorID != nil {
			return fmt.Errorf("%s needs a merchant and no operator: %w", p.Type, ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("conversation type %q: %w", p.Type, ErrInvalidRequest)
	}
	if p.AgentID == 0 {
		return fmt.Errorf("agent id is required: %w", ErrInvalidRequest)
	}
	return nil
}

// ResolveConversation opens (or reuses) the CHAT conversation between the caller
// and receiverID. The caller's role decides which side of the pair it fills.
func (s *Service) ResolveConversation(ctx context.Context, c *identity.Claims, receiverID uint, typ models.ConversationType) (*models.Conversation, error) {
	if receiverID == 0 || !typ.Valid() {
		return nil, fmt.Errorf("receiverId and type are required: %w", ErrInvalidRequest)
	}
	p, err := PrincipalFor(c)
	if err != nil {
		return nil, err
	}

	pair := store.Pair{Type: typ}
	switch me := p.(type) {
	case Operator:
		if typ != models.ConversationSuperadminAgent {
			return nil, fmt.Errorf("operator cannot open %s: %w", typ, ErrInvalidRequest)
		}
		op := s.platformOperatorID
		if me.OperatorID != nil {
			op = *me.OperatorID
		}
		pair.OperatorID, pair.AgentID = &op, receiverID
	case SupportOperator:
		if typ != models.ConversationSuperadminAgent {
			return nil, fmt.Errorf("support operator cannot open %s: %w", typ, ErrInvalidRequest)
		}
		op := s.platformOperatorID
		pair.OperatorID, pair.AgentID = &op, receiverID
	case Agent:
		pair.AgentID = me.AgentID
		if typ == models.ConversationSuperadminAgent {
			op := s.platformOperatorID
			pair.OperatorID = &op
		} else {
			mid := receiverID
			pair.MerchantID = &mid
		}
	case Merchant:
		if typ != models.ConversationAgentMerchant {
			return nil, fmt.Errorf("merchant cannot open %s: %w", typ, ErrInvalidRequest)
		}
		mid := me.MerchantID
		pair.AgentID, pair.MerchantID = receiverID, &mid
	}

	if pair.MerchantID != nil {
		if err := s.checkMerchantAgent(ctx, *pair.MerchantID, pair.AgentID); err != nil {
			return nil, err
		}
	}
	return s.FindOrCreate(ctx, pair)
}

func (s *Service) checkMerchantAgent(ctx context.Context, merchantID, agentID uint) error {
	m, err := s.store.FindMerchant(ctx, merchantID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("merchant %d: %w", merchantID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if m.AgentID == nil || *m.AgentID != agentID {
		return fmt.Errorf("merchant %d is not managed by agent %d: %w", merchantID, agentID, ErrForbidden)
	}
	return nil
}

// ListForCaller returns the caller's CHAT conversations, newest activity first,
// each with its messages oldest-first.
func (s *Service) ListForCaller(ctx context.Context, c *identity.Claims) ([]models.Conversation, error) {
	p, err := PrincipalFor(c)
	if err != nil {
		return nil, err
	}
	scope := p.chatScope()
	scope.WithMessages = true
	return s.store.ListConversations(ctx, scope)
}

// Conversation loads a conversation the caller may access in the given category.
func (s *Service) Conversation(ctx context.Context, id uuid.UUID, c *identity.Claims, category models.ConversationCategory) (*models.Conversation, error) {
	if c == nil {
		return nil, ErrUnauthorized
	}
	conv, err := s.store.FindConversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := ValidateParticipant(conv, c); err != nil {
		return nil, err
	}
	if conv.Category != category {
		return nil, fmt.Errorf("conversation %s is %s, not %s: %w", id, conv.Category, category, ErrForbidden)
	}
	return conv, nil
}

// GetMessages returns one page of a CHAT conversation, oldest-first, and marks the
// counterpart's messages as read.
func (s *Service) GetMessages(ctx context.Context, id uuid.UUID, c *identity.Claims, page, pageSize int) ([]models.Message, error) {
	conv, err := s.Conversation(ctx, id, c, models.CategoryChat)
	if err != nil {
		return nil, err
	}
	page, pageSize = NormalizePage(page, pageSize)
	msgs, err := s.store.ListMessages(ctx, conv.ID, pageOffset(page, pageSize), pageSize)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	reader := c.SubjectID
	if _, err := s.store.MarkRead(ctx, conv.ID, &reader); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return msgs, nil
}

// SendMessage persists a message on a CHAT conversation together with the
// conversation summary. It returns the message and the updated conversation.
func (s *Service) SendMessage(ctx context.Context, id uuid.UUID, c *identity.Claims, content string) (*models.Message, *models.Conversation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, fmt.Errorf("content is required: %w", ErrInvalidRequest)
	}
	conv, err := s.Conversation(ctx, id, c, models.CategoryChat)
	if err != nil {
		return nil, nil, err
	}
	return s.appendMessage(ctx, conv, c, content, nil)
}

func (s *Service) appendMessage(ctx context.Context, conv *models.Conversation, c *identity.Claims, content string, imageURL *string) (*models.Message, *models.Conversation, error) {
	name, err := s.senderName(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	msg := &models.Message{
		SenderID:   c.SubjectID,
		SenderRole: string(c.Role),
		SenderName: name,
		Content:    content,
		ImageURL:   imageURL,
	}
	updated, err := s.store.AppendMessage(ctx, conv.ID, msg)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("conversation %s: %w", conv.ID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("append message: %w", err)
	}

	s.logger.Debug("message stored",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"sender_id", msg.SenderID)
	return msg, updated, nil
}

func (s *Service) senderName(ctx context.Context, c *identity.Claims) (string, error) {
	u, err := s.store.FindUser(ctx, c.SubjectID)
	if errors.Is(err, store.ErrNotFound) {
		return string(c.Role), nil
	}
	if err != nil {
		return "", fmt.Errorf("find sender: %w", err)
	}
	return u.Name, nil
}

// NormalizePage clamps pageSize to [1, MaxPageSize] and page to >= 1, with page
// capped so that (page-1)*pageSize cannot overflow. A capped page is past any
// stored history and reads as empty.
func NormalizePage(page, pageSize int) (int, int) {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	if maxPage := math.MaxInt / pageSize; page > maxPage {
		page = maxPage
	}
	return page, pageSize
}

func pageOffset(page, pageSize int) int {
	return (page - 1) * pageSize
}
