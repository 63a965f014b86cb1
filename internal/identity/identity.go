// Package identity turns bearer tokens into caller claims.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/utils"
)

var ErrMissingToken = errors.New("missing token")

// Claims is the identity bundle attached to a request or a duplex connection.
type Claims struct {
	SubjectID  uint
	Role       models.Role
	OperatorID *uint
	AgentID    *uint
	MerchantID *uint
}

// Resolver verifies a bearer token and returns the caller's claims.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Claims, error)
}

// JWTResolver resolves HS256 tokens signed with a shared secret.
type JWTResolver struct {
	secret string
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: secret}
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (*Claims, error) {
	token = StripBearer(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	c, err := utils.ParseJWT(r.secret, token)
	if err != nil {
		return nil, err
	}
	if c.UserID == 0 {
		return nil, utils.ErrInvalidToken
	}
	return &Claims{
		SubjectID:  c.UserID,
		Role:       models.ParseRole(c.Role),
		OperatorID: c.OperatorID,
		AgentID:    c.AgentID,
		MerchantID: c.MerchantID,
	}, nil
}

// StripBearer removes an optional "Bearer " prefix.
func StripBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}

type claimsKey struct{}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// FromContext returns the claims attached to ctx, or nil.
func FromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}
