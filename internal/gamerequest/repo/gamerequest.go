package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/retro_games/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) Create(ctx context.Context, gr *models.GameRequest) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(gr).Error
}

func (r *GormRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.GameRequest, error) {
	var items []models.GameRequest
	if err := r.DB.WithContext(ctx).
		Preload("Game").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) List(ctx context.Context, status string, offset, limit int) (int64, []models.GameRequest, error) {
	q := r.DB.WithContext(ctx).Model(&models.GameRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.GameRequest
	if err := q.Preload("User").Preload("Game").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) Get(ctx context.Context, id uint) (*models.GameRequest, error) {
	var gr models.GameRequest
	if err := r.DB.WithContext(ctx).Preload("User").Preload("Game").First(&gr, id).Error; err != nil {
		return nil, err
	}
	return &gr, nil
}

// Transition moves the request to status only while it is in one of from.
func (r *GormRepo) Transition(ctx context.Context, id uint, from []string, status, note string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.GameRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{"status": status, "admin_note": note})
	return res.RowsAffected == 1, res.Error
}

// LinkGame approves the request and records the created game. False when a game is already linked.
func (r *GormRepo) LinkGame(ctx context.Context, id, gameID uint, note string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.GameRequest{}).
		Where("id = ? AND game_id IS NULL", id).
		Updates(map[string]any{"status": models.RequestApproved, "game_id": gameID, "admin_note": note})
	return res.RowsAffected == 1, res.Error
}
