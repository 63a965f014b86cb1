package chat

import (
	"fmt"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/store"
)

// Principal is the closed set of caller kinds: Operator, SupportOperator, Agent
// and Merchant. Each variant owns its participation and visibility rules, so the
// HTTP facade and the realtime gateway cannot disagree.
type Principal interface {
	Role() models.Role
	UserID() uint

	participates(conv *models.Conversation) bool
	chatScope() store.Scope
	supportScope() store.Scope
}

type Operator struct {
	User       uint
	OperatorID *uint
}

type SupportOperator struct {
	User uint
}

type Agent struct {
	User    uint
	AgentID uint
}

type Merchant struct {
	User       uint
	MerchantID uint
}

func (p Operator) Role() models.Role        { return models.RoleOperator }
func (p SupportOperator) Role() models.Role { return models.RoleSupportOperator }
func (p Agent) Role() models.Role           { return models.RoleAgent }
func (p Merchant) Role() models.Role        { return models.RoleMerchant }

func (p Operator) UserID() uint        { return p.User }
func (p SupportOperator) UserID() uint { return p.User }
func (p Agent) UserID() uint           { return p.User }
func (p Merchant) UserID() uint        { return p.User }

func (p Operator) participates(conv *models.Conversation) bool {
	return conv.Type == models.ConversationSuperadminAgent
}

// Support staff see every SUPERADMIN_AGENT thread regardless of operator id.
func (p SupportOperator) participates(conv *models.Conversation) bool {
	return conv.Type == models.ConversationSuperadminAgent
}

func (p Agent) participates(conv *models.Conversation) bool {
	return conv.AgentID == p.AgentID
}

func (p Merchant) participates(conv *models.Conversation) bool {
	return conv.MerchantID != nil && *conv.MerchantID == p.MerchantID
}

func (p Operator) chatScope() store.Scope {
	return store.Scope{Category: models.CategoryChat}
}

func (p SupportOperator) chatScope() store.Scope {
	return store.Scope{Category: models.CategoryChat}
}

func (p Agent) chatScope() store.Scope {
	id := p.AgentID
	return store.Scope{Category: models.CategoryChat, AgentID: &id}
}

func (p Merchant) chatScope() store.Scope {
	id := p.MerchantID
	return store.Scope{Category: models.CategoryChat, MerchantID: &id}
}

func (p Operator) supportScope() store.Scope {
	return store.Scope{Category: models.CategorySupport, Type: models.ConversationSuperadminAgent}
}

func (p SupportOperator) supportScope() store.Scope {
	return store.Scope{Category: models.CategorySupport, Type: models.ConversationSuperadminAgent}
}

func (p Agent) supportScope() store.Scope {
	id := p.AgentID
	return store.Scope{Category: models.CategorySupport, AgentID: &id}
}

func (p Merchant) supportScope() store.Scope {
	id := p.MerchantID
	return store.Scope{Category: models.CategorySupport, MerchantID: &id}
}

// PrincipalFor maps resolved claims onto a Principal. A role whose tenant id is
// missing, or any unknown role, is rejected with ErrForbidden.
func PrincipalFor(c *identity.Claims) (Principal, error) {
	if c == nil {
		return nil, ErrUnauthorized
	}
	switch c.Role {
	case models.RoleOperator:
		return Operator{User: c.SubjectID, OperatorID: c.OperatorID}, nil
	case models.RoleSupportOperator:
		return SupportOperator{User: c.SubjectID}, nil
	case models.RoleAgent:
		if c.AgentID == nil {
			return nil, fmt.Errorf("agent claims without agent id: %w", ErrForbidden)
		}
		return Agent{User: c.SubjectID, AgentID: *c.AgentID}, nil
	case models.RoleMerchant:
		if c.MerchantID == nil {
			return nil, fmt.Errorf("merchant claims without merchant id: %w", ErrForbidden)
		}
		return Merchant{User: c.SubjectID, MerchantID: *c.MerchantID}, nil
	}
	return nil, fmt.Errorf("role %q: %w", c.Role, ErrForbidden)
}

// IsParticipant reports whether the caller described by claims belongs to conv.
func IsParticipant(conv *models.Conversation, c *identity.Claims) bool {
	p, err := PrincipalFor(c)
	if err != nil {
		return false
	}
	return p.participates(conv)
}

// ValidateParticipant is the single authorization check used by every entry point.
func ValidateParticipant(conv *models.Conversation, c *identity.Claims) error {
	if c == nil {
		return ErrUnauthorized
	}
	if !IsParticipant(conv, c) {
		return fmt.Errorf("conversation %s: %w", conv.ID, ErrForbidden)
	}
	return nil
}
