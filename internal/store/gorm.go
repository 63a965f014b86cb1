package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

// GormStore is the relational store. The *gorm.DB must be opened with
// TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) FindConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.DB.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

// FindChatConversation looks up the CHAT conversation for the exact pair, nulls included.
func (s *GormStore) FindChatConversation(ctx context.Context, p Pair) (*models.Conversation, error) {
	q := s.DB.WithContext(ctx).
		Where("type = ? AND category = ? AND agent_id = ?", p.Type, models.CategoryChat, p.AgentID)
	if p.OperatorID == nil {
		q = q.Where("operator_id IS NULL")
	} else {
		q = q.Where("operator_id = ?", *p.OperatorID)
	}
	if p.MerchantID == nil {
		q = q.Where("merchant_id IS NULL")
	} else {
		q = q.Where("merchant_id = ?", *p.MerchantID)
	}

	var conv models.Conversation
	if err := q.Order("created_at ASC").First(&conv).Error; err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

// CreateConversation inserts conv and, when first is non-nil, its first message and
// summary in the same transaction.
func (s *GormStore) CreateConversation(ctx context.Context, conv *models.Conversation, first *models.Message) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if first != nil {
			at := nextMessageTime(time.Now(), nil)
			conv.LastMessage = first.Content
			conv.LastMessageAt = &at
			conv.IsRead = false
			conv.CreatedAt, conv.UpdatedAt = at, at
			first.CreatedAt, first.UpdatedAt = at, at
		}
		if err := tx.Omit(clause.Associations).Create(conv).Error; err != nil {
			return translate(err)
		}
		if first == nil {
			return nil
		}
		if first.ID == uuid.Nil {
			first.ID = uuid.New()
		}
		first.ConversationID = conv.ID
		return translate(tx.Create(first).Error)
	})
}

// ListConversations returns conversations in scope, most recently updated first.
func (s *GormStore) ListConversations(ctx context.Context, scope Scope) ([]models.Conversation, error) {
	q := s.DB.WithContext(ctx).Model(&models.Conversation{})
	if scope.Category != "" {
		q = q.Where("category = ?", scope.Category)
	}
	if scope.Type != "" {
		q = q.Where("type = ?", scope.Type)
	}
	if scope.AgentID != nil {
		q = q.Where("agent_id = ?", *scope.AgentID)
	}
	if scope.MerchantID != nil {
		q = q.Where("merchant_id = ?", *scope.MerchantID)
	}
	if scope.WithMessages {
		q = q.Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		})
	}

	var convs []models.Conversation
	if err := q.Order("updated_at DESC").Order("created_at DESC").Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

func (s *GormStore) ListMessages(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]models.Message, error) {
	// gorm drops a negative offset, which would silently return the first page
	if offset < 0 || limit < 1 {
		return []models.Message{}, nil
	}
	var msgs []models.Message
	err := s.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// AppendMessage persists msg and overwrites the conversation summary in one
// transaction, holding the conversation row lock.
func (s *GormStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, msg *models.Message) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&conv, "id = ?", conversationID).Error; err != nil {
			return translate(err)
		}

		at := nextMessageTime(time.Now(), conv.LastMessageAt)
		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}
		msg.ConversationID = conv.ID
		msg.IsRead = false
		msg.CreatedAt, msg.UpdatedAt = at, at
		if err := tx.Create(msg).Error; err != nil {
			return translate(err)
		}

		conv.LastMessage = msg.Content
		conv.LastMessageAt = &at
		conv.IsRead = false
		conv.UpdatedAt = at
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			UpdateColumns(map[string]interface{}{
				"last_message":    conv.LastMessage,
				"last_message_at": at,
				"is_read":         false,
				"updated_at":      at,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// MarkRead flags unread messages as read, skipping those sent by exceptSender when
// given. The conversation flag is set when exceptSender is nil or anything was marked.
// updated_at is left untouched so list ordering does not move.
func (s *GormStore) MarkRead(ctx context.Context, conversationID uuid.UUID, exceptSender *uint) (int64, error) {
	var marked int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND is_read = ?", conversationID, false)
		if exceptSender != nil {
			q = q.Where("sender_id <> ?", *exceptSender)
		}
		res := q.UpdateColumn("is_read", true)
		if res.Error != nil {
			return res.Error
		}
		marked = res.RowsAffected
		if exceptSender != nil && marked == 0 {
			return nil
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			UpdateColumn("is_read", true).Error
	})
	return marked, err
}

func (s *GormStore) FindUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) FindAgent(ctx context.Context, id uint) (*models.Agent, error) {
	var a models.Agent
	if err := s.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormStore) FindMerchant(ctx context.Context, id uint) (*models.Merchant, error) {
	var m models.Merchant
	if err := s.DB.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *GormStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	if err := s.DB.WithContext(ctx).Order("name ASC").Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

func (s *GormStore) ListMerchantsByAgent(ctx context.Context, agentID uint) ([]models.Merchant, error) {
	var merchants []models.Merchant
	if err := s.DB.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("name ASC").
		Find(&merchants).Error; err != nil {
		return nil, err
	}
	return merchants, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}
