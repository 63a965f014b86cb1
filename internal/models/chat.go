// internal/models/chat.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationType is the pairing shape of a conversation, fixed at creation.
type ConversationType string

const (
	ConversationSuperadminAgent ConversationType = "SUPERADMIN_AGENT"
	ConversationAgentMerchant   ConversationType = "AGENT_MERCHANT"
)

func (t ConversationType) Valid() bool {
	return t == ConversationSuperadminAgent || t == ConversationAgentMerchant
}

// ConversationCategory separates ongoing chats from support threads.
type ConversationCategory string

const (
	CategoryChat    ConversationCategory = "CHAT"
	CategorySupport ConversationCategory = "SUPPORT"
)

// Conversation represents a thread between two tenants.
// OperatorID is set only for SUPERADMIN_AGENT, MerchantID only for AGENT_MERCHANT.
type Conversation struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`

	Type     ConversationType     `gorm:"type:varchar(32);not null;index" json:"type"`
	Category ConversationCategory `gorm:"type:varchar(16);not null;default:'CHAT';index" json:"category"`

	OperatorID *uint `gorm:"index" json:"operatorId"`
	AgentID    uint  `gorm:"not null;index" json:"agentId"`
	MerchantID *uint `gorm:"index" json:"merchantId"`

	// denormalized summary of the newest message
	LastMessage   string     `gorm:"type:text" json:"lastMessage"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	IsRead        bool       `gorm:"default:false" json:"isRead"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `gorm:"index" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// Message represents a message in a conversation. Only IsRead changes after insert.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"conversationId"`
	SenderID       uint      `gorm:"not null;index" json:"senderId"`
	SenderRole     string    `gorm:"type:varchar(32);not null" json:"senderRole"`
	SenderName     string    `gorm:"type:varchar(255)" json:"senderName"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	ImageURL       *string   `gorm:"type:text" json:"imageUrl,omitempty"`
	IsRead         bool      `gorm:"default:false" json:"isRead"`

	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
