package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

type GameRequest struct {
	ID        uint      `gorm:"primaryKey"                  json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null"    json:"user_id"`
	User      User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Title     string    `gorm:"size:200;not null"           json:"title"`
	Details   string    `gorm:"size:1000"                   json:"details"`
	Status    string    `gorm:"size:20;not null;default:pending;index" json:"status"`
	AdminNote string    `gorm:"size:500"                    json:"admin_note"`
	GameID    *uint     `gorm:"index"                       json:"game_id,omitempty"`
	Game      *Game     `gorm:"constraint:OnDelete:SET NULL" json:"game,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
