package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

func TestContacts(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	t.Run("operator sees every agent", func(t *testing.T) {
		got, err := svc.Contacts(ctx, operatorClaims())
		require.NoError(t, err)
		assert.Equal(t, []Contact{
			{ID: 8, Name: "Agent Eight", Role: models.RoleAgent, Type: models.ConversationSuperadminAgent},
			{ID: 7, Name: "Agent Seven", Role: models.RoleAgent, Type: models.ConversationSuperadminAgent},
		}, got)
	})

	t.Run("agent sees its merchants and the platform", func(t *testing.T) {
		got, err := svc.Contacts(ctx, agentClaims(7))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, Contact{ID: 42, Name: "Warung 42", Role: models.RoleMerchant, Type: models.ConversationAgentMerchant}, got[0])
		assert.Equal(t, uint(platformOperator), got[1].ID)
		assert.Equal(t, models.ConversationSuperadminAgent, got[1].Type)
	})

	t.Run("merchant sees its agent", func(t *testing.T) {
		got, err := svc.Contacts(ctx, merchantClaims(42))
		require.NoError(t, err)
		assert.Equal(t, []Contact{{ID: 7, Name: "Agent Seven", Role: models.RoleAgent, Type: models.ConversationAgentMerchant}}, got)
	})

	t.Run("merchant without agent sees nobody", func(t *testing.T) {
		st.PutMerchant(models.Merchant{ID: 50, UserID: 5000, Name: "Orphan"})
		got, err := svc.Contacts(ctx, merchantClaims(50))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing claims", func(t *testing.T) {
		_, err := svc.Contacts(ctx, nil)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}
