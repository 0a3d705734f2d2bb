package transport

import (
	"time"

	"github.com/google/uuid"

	cattransport "github.com/Skotchmaster/retro_games/internal/catalog/transport"
	"github.com/Skotchmaster/retro_games/internal/models"
)

type SubmitRequest struct {
	Title   string `json:"title"`
	Details string `json:"details"`
}

type ReviewRequest struct {
	AdminNote string `json:"admin_note"`
}

// CreateGameRequest carries the catalog fields plus an optional review note.
type CreateGameRequest struct {
	cattransport.GameRequest
	AdminNote string `json:"admin_note"`
}

type GameInfo struct {
	ID      uint   `json:"id"`
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Console string `json:"console"`
}

type RequestResponse struct {
	ID        uint      `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Title     string    `json:"title"`
	Details   string    `json:"details"`
	Status    string    `json:"status"`
	AdminNote string    `json:"admin_note"`
	Game      *GameInfo `json:"game,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewRequestResponse(gr models.GameRequest) RequestResponse {
	out := RequestResponse{
		ID:        gr.ID,
		UserID:    gr.UserID,
		Username:  gr.User.Username,
		Title:     gr.Title,
		Details:   gr.Details,
		Status:    gr.Status,
		AdminNote: gr.AdminNote,
		CreatedAt: gr.CreatedAt,
		UpdatedAt: gr.UpdatedAt,
	}
	if gr.Game != nil {
		out.Game = &GameInfo{ID: gr.Game.ID, Title: gr.Game.Title, Slug: gr.Game.Slug, Console: gr.Game.Console}
	}
	return out
}

func NewRequestList(items []models.GameRequest) []RequestResponse {
	out := make([]RequestResponse, 0, len(items))
	for _, gr := range items {
		out = append(out, NewRequestResponse(gr))
	}
	return out
}
