package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleOperator        Role = "operator"
	RoleSupportOperator Role = "support_operator"
	RoleAgent           Role = "agent"
	RoleMerchant        Role = "merchant"
)

// ParseRole maps a token role claim to a Role. Case, surrounding space and the
// hyphenated "support-operator" spelling are accepted.
func ParseRole(v string) Role {
	r := strings.ToLower(strings.TrimSpace(v))
	return Role(strings.ReplaceAll(r, "-", "_"))
}

type User struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`

	Role     Role `gorm:"type:varchar(32);not null;index" json:"role"`
	IsActive bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agent manages a set of merchants.
type Agent struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index" json:"userId"`
	Name   string `gorm:"not null" json:"name"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Merchant belongs to at most one agent.
type Merchant struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	UserID  uint   `gorm:"index" json:"userId"`
	AgentID *uint  `gorm:"index" json:"agentId"`
	Name    string `gorm:"not null" json:"name"`

	Agent *Agent `gorm:"foreignKey:AgentID" json:"agent,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
