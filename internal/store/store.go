// Package store persists conversations, messages and the tenant directory.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Pair identifies the participants of a conversation of a given type.
type Pair struct {
	Type       models.ConversationType
	OperatorID *uint
	AgentID    uint
	MerchantID *uint
}

// Key is a stable string form of the pair, nulls encoded as "-".
func (p Pair) Key() string {
	return fmt.Sprintf("%s:%s:%d:%s", p.Type, optID(p.OperatorID), p.AgentID, optID(p.MerchantID))
}

func (p Pair) matches(c *models.Conversation) bool {
	return c.Type == p.Type && c.AgentID == p.AgentID &&
		sameID(c.OperatorID, p.OperatorID) && sameID(c.MerchantID, p.MerchantID)
}

// Scope filters conversation listings. Zero fields do not filter.
type Scope struct {
	Category   models.ConversationCategory
	Type       models.ConversationType
	AgentID    *uint
	MerchantID *uint

	// WithMessages preloads every message oldest-first.
	WithMessages bool
}

func (s Scope) matches(c *models.Conversation) bool {
	if s.Category != "" && c.Category != s.Category {
		return false
	}
	if s.Type != "" && c.Type != s.Type {
		return false
	}
	if s.AgentID != nil && c.AgentID != *s.AgentID {
		return false
	}
	if s.MerchantID != nil && !sameID(c.MerchantID, s.MerchantID) {
		return false
	}
	return true
}

// nextMessageTime keeps message timestamps strictly increasing per conversation so
// created_at alone gives a total order.
func nextMessageTime(now time.Time, last *time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if last != nil && !now.After(*last) {
		return last.Add(time.Microsecond)
	}
	return now
}

func optID(id *uint) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
