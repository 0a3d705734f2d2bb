package transport

import (
	"github.com/Skotchmaster/retro_games/internal/catalog/service"
	"github.com/Skotchmaster/retro_games/internal/models"
)

// GameRequest is used for create and patch. Absent fields are left unchanged on patch.
type GameRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Console     *string `json:"console"`
	CoverImage  *string `json:"cover_image"`
	RomURL      *string `json:"rom_url"`
	Price       *int64  `json:"price"`
	IsActive    *bool   `json:"is_active"`
	CategoryIDs []uint  `json:"category_ids"`
}

func (r GameRequest) Input() service.GameInput {
	return service.GameInput{
		Title:       r.Title,
		Description: r.Description,
		Console:     r.Console,
		CoverImage:  r.CoverImage,
		RomURL:      r.RomURL,
		Price:       r.Price,
		IsActive:    r.IsActive,
		CategoryIDs: r.CategoryIDs,
	}
}

type CreatePlanRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	GameIDs     []uint `json:"game_ids"`
}

type CreateCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
}

type PlanSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type GameDetailResponse struct {
	models.Game
	Plans []PlanSummary `json:"plans"`
}

func NewGameDetailResponse(d *service.GameDetail) GameDetailResponse {
	resp := GameDetailResponse{Game: d.Game, Plans: make([]PlanSummary, 0, len(d.Plans))}
	if resp.Categories == nil {
		resp.Categories = []models.Category{}
	}
	for _, p := range d.Plans {
		resp.Plans = append(resp.Plans, PlanSummary{ID: p.ID, Name: p.Name, Price: p.Price})
	}
	return resp
}
