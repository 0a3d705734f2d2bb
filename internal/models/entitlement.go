package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TokenActive  = "active"
	TokenExpired = "expired"
	TokenRevoked = "revoked"
)

// Entitlement links a user to a game. One row per (user, game).
type Entitlement struct {
	ID             uint          `gorm:"primaryKey"                json:"id"`
	UserID         uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_entitlements_user_game" json:"user_id"`
	User           User          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	GameID         uint          `gorm:"not null;uniqueIndex:idx_entitlements_user_game" json:"game_id"`
	Game           Game          `gorm:"constraint:OnDelete:CASCADE" json:"game"`
	PurchaseID     *uint         `gorm:"index"                     json:"purchase_id,omitempty"`
	Purchase       *Purchase     `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	SubscriptionID *uint         `gorm:"index"                     json:"subscription_id,omitempty"`
	Subscription   *Subscription `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	IsPerpetual    bool          `gorm:"not null;default:false"    json:"is_perpetual"`
	GrantedDate    time.Time     `gorm:"not null"                  json:"granted_date"`
}

// GameToken is the bearer credential for one game. Only the digest of the raw value is stored.
// The partial unique index keeps at most one active token per (user, game).
type GameToken struct {
	ID            uint        `gorm:"primaryKey"                 json:"id"`
	UserID        uuid.UUID   `gorm:"type:uuid;not null;index;uniqueIndex:idx_game_tokens_active_pair,where:status = 'active'" json:"user_id"`
	User          User        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	GameID        uint        `gorm:"not null;uniqueIndex:idx_game_tokens_active_pair,where:status = 'active'" json:"game_id"`
	Game          Game        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	EntitlementID uint        `gorm:"not null;index"             json:"entitlement_id"`
	Entitlement   Entitlement `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	TokenHash     string      `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Prefix        string      `gorm:"size:8;not null"            json:"prefix"`
	Status        string      `gorm:"size:20;not null;default:active;index" json:"status"`
	UsageCount    int64       `gorm:"not null;default:0"         json:"usage_count"`
	LastUsedAt    *time.Time  `json:"last_used_at"`
	ExpiresAt     *time.Time  `json:"expires_at"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (t *GameToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
