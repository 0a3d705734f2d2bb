package models

import "time"

type Category struct {
	ID          uint      `gorm:"primaryKey"                 json:"id"`
	Name        string    `gorm:"size:50;not null"           json:"name"`
	Description string    `json:"description"`
	Color       string    `gorm:"size:7;not null;default:#00d4ff" json:"color"`
	Icon        string    `gorm:"size:50;not null;default:fas fa-gamepad" json:"icon"`
	IsActive    bool      `gorm:"not null"                   json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Game struct {
	ID          uint       `gorm:"primaryKey"                json:"id"`
	Title       string     `gorm:"size:200;not null"         json:"title"`
	Slug        string     `gorm:"size:220;uniqueIndex;not null" json:"slug"`
	Description string     `gorm:"not null"                  json:"description"`
	Console     string     `gorm:"size:50;index;not null"    json:"console"`
	CoverImage  string     `json:"cover_image,omitempty"`
	RomURL      string     `json:"rom_url,omitempty"`
	Price       int64      `gorm:"not null"                  json:"price"` // cents
	IsActive    bool       `gorm:"not null;index"            json:"is_active"`
	Categories  []Category `gorm:"many2many:game_categories" json:"categories,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Plan struct {
	ID          uint      `gorm:"primaryKey"                 json:"id"`
	Name        string    `gorm:"size:100;not null"          json:"name"`
	Description string    `gorm:"not null"                   json:"description"`
	Price       int64     `gorm:"not null"                   json:"price"` // cents per period
	IsActive    bool      `gorm:"not null"                   json:"is_active"`
	Games       []Game    `gorm:"many2many:plan_games"       json:"games,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
