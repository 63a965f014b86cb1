package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/store"
)

const platformContactName = "Platform Support"

// Contact is a counterparty the caller may start a conversation with.
type Contact struct {
	ID   uint                    `json:"id"`
	Name string                  `json:"name"`
	Role models.Role             `json:"role"`
	Type models.ConversationType `json:"type"`
}

// Contacts lists eligible counterparties: operators and support see every agent,
// agents see their merchants plus the platform, merchants see their agent.
func (s *Service) Contacts(ctx context.Context, c *identity.Claims) ([]Contact, error) {
	p, err := PrincipalFor(c)
	if err != nil {
		return nil, err
	}

	out := make([]Contact, 0)
	switch me := p.(type) {
	case Operator, SupportOperator:
		agents, err := s.store.ListAgents(ctx)
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		for _, a := range agents {
			out = append(out, Contact{ID: a.ID, Name: a.Name, Role: models.RoleAgent, Type: models.ConversationSuperadminAgent})
		}
	case Agent:
		merchants, err := s.store.ListMerchantsByAgent(ctx, me.AgentID)
		if err != nil {
			return nil, fmt.Errorf("list merchants: %w", err)
		}
		for _, m := range merchants {
			out = append(out, Contact{ID: m.ID, Name: m.Name, Role: models.RoleMerchant, Type: models.ConversationAgentMerchant})
		}
		out = append(out, Contact{
			ID:   s.platformOperatorID,
			Name: platformContactName,
			Role: models.RoleOperator,
			Type: models.ConversationSuperadminAgent,
		})
	case Merchant:
		m, err := s.store.FindMerchant(ctx, me.MerchantID)
		if errors.Is(err, store.ErrNotFound) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find merchant: %w", err)
		}
		if m.AgentID == nil {
			return out, nil
		}
		a, err := s.store.FindAgent(ctx, *m.AgentID)
		if errors.Is(err, store.ErrNotFound) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find agent: %w", err)
		}
		out = append(out, Contact{ID: a.ID, Name: a.Name, Role: models.RoleAgent, Type: models.ConversationAgentMerchant})
	}
	return out, nil
}
