package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionPending   = "pending"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
	SessionCancelled = "cancelled"
)

const (
	PurchasePending   = "pending"
	PurchaseCompleted = "completed"
	PurchaseFailed    = "failed"
	PurchaseRefunded  = "refunded"
)

const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

type PaymentSession struct {
	ID          uint       `gorm:"primaryKey"                json:"-"`
	SessionID   uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"session_id"`
	UserID      uuid.UUID  `gorm:"type:uuid;index;not null"  json:"user_id"`
	User        User       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	GameID      *uint      `gorm:"index"                     json:"game_id,omitempty"`
	Game        *Game      `gorm:"constraint:OnDelete:SET NULL" json:"game,omitempty"`
	PlanID      *uint      `gorm:"index"                     json:"plan_id,omitempty"`
	Plan        *Plan      `gorm:"constraint:OnDelete:SET NULL" json:"plan,omitempty"`
	Amount      int64      `gorm:"not null"                  json:"amount"`
	Status      string     `gorm:"size:20;not null;default:pending" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *PaymentSession) Kind() string {
	if s.PlanID != nil {
		return "plan"
	}
	return "game"
}

type Purchase struct {
	ID             uint      `gorm:"primaryKey"               json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	User           User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	GameID         uint      `gorm:"index;not null"           json:"game_id"`
	Game           Game      `gorm:"constraint:OnDelete:CASCADE" json:"game"`
	Amount         int64     `gorm:"not null"                 json:"amount"`
	Status         string    `gorm:"size:20;not null;default:pending" json:"status"`
	PurchasedAt    time.Time `gorm:"not null"                 json:"purchased_at"`
	IdempotencyKey uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"idempotency_key"`
}

type Subscription struct {
	ID               uint       `gorm:"primaryKey"              json:"id"`
	UserID           uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	User             User       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	PlanID           uint       `gorm:"index;not null"          json:"plan_id"`
	Plan             Plan       `gorm:"constraint:OnDelete:CASCADE" json:"plan"`
	Status           string     `gorm:"size:20;not null;default:active" json:"status"`
	StartDate        time.Time  `gorm:"not null"                json:"start_date"`
	CurrentPeriodEnd time.Time  `gorm:"not null"                json:"current_period_end"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	IdempotencyKey   uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"idempotency_key"`
}

// IsActive grants access until the paid period ends, even after cancellation.
func (s *Subscription) IsActive(now time.Time) bool {
	return (s.Status == SubscriptionActive || s.Status == SubscriptionCancelled) && s.CurrentPeriodEnd.After(now)
}
