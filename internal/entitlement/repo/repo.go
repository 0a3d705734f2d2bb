package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/retro_games/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

// Transaction runs fn on a repo bound to one transaction. Nested calls use savepoints.
func (r *GormRepo) Transaction(ctx context.Context, fn func(tx *GormRepo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepo{DB: tx})
	})
}

func (r *GormRepo) GetEntitlement(ctx context.Context, userID uuid.UUID, gameID uint) (*models.Entitlement, error) {
	var ent models.Entitlement
	if err := r.DB.WithContext(ctx).
		Preload("Subscription").
		Where("user_id = ? AND game_id = ?", userID, gameID).
		First(&ent).Error; err != nil {
		return nil, err
	}
	return &ent, nil
}

func (r *GormRepo) CreateEntitlement(ctx context.Context, ent *models.Entitlement) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(ent).Error
}

func (r *GormRepo) UpdateEntitlementSource(ctx context.Context, id uint, perpetual bool, purchaseID, subscriptionID *uint) error {
	return r.DB.WithContext(ctx).Model(&models.Entitlement{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_perpetual":    perpetual,
			"purchase_id":     purchaseID,
			"subscription_id": subscriptionID,
		}).Error
}

func (r *GormRepo) ListEntitlements(ctx context.Context, userID uuid.UUID) ([]models.Entitlement, error) {
	var items []models.Entitlement
	if err := r.DB.WithContext(ctx).
		Preload("Game").
		Preload("Subscription").
		Preload("Subscription.Plan").
		Where("user_id = ?", userID).
		Order("granted_date DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) ActiveToken(ctx context.Context, userID uuid.UUID, gameID uint) (*models.GameToken, error) {
	var tok models.GameToken
	if err := r.DB.WithContext(ctx).
		Where("user_id = ? AND game_id = ? AND status = ?", userID, gameID, models.TokenActive).
		First(&tok).Error; err != nil {
		return nil, err
	}
	return &tok, nil
}

func (r *GormRepo) CreateToken(ctx context.Context, tok *models.GameToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(tok).Error
	})
}

// TokenByHash loads the token with its user, game and entitlement. Empty status matches any.
func (r *GormRepo) TokenByHash(ctx context.Context, tokenHash, status string) (*models.GameToken, error) {
	q := r.DB.WithContext(ctx).
		Preload("User").
		Preload("Game").
		Preload("Entitlement").
		Where("token_hash = ?", tokenHash)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var tok models.GameToken
	if err := q.First(&tok).Error; err != nil {
		return nil, err
	}
	return &tok, nil
}

func (r *GormRepo) SetTokenStatus(ctx context.Context, id uint, from, to string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.GameToken{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

func (r *GormRepo) SetTokenExpiry(ctx context.Context, id uint, expiresAt *time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.GameToken{}).
		Where("id = ?", id).
		Update("expires_at", expiresAt).Error
}

// MarkUsed bumps usage atomically. It reports false when the token left the active state concurrently.
func (r *GormRepo) MarkUsed(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.GameToken{}).
		Where("id = ? AND status = ?", id, models.TokenActive).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *GormRepo) GetToken(ctx context.Context, id uint) (*models.GameToken, error) {
	var tok models.GameToken
	if err := r.DB.WithContext(ctx).First(&tok, id).Error; err != nil {
		return nil, err
	}
	return &tok, nil
}

func (r *GormRepo) ListActiveTokens(ctx context.Context, userID uuid.UUID) ([]models.GameToken, error) {
	var items []models.GameToken
	if err := r.DB.WithContext(ctx).
		Preload("Game").
		Where("user_id = ? AND status = ?", userID, models.TokenActive).
		Order("created_at DESC").
		Order("id DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ExpireTokens flips active tokens whose expiry passed. Used by listings to keep status honest.
func (r *GormRepo) ExpireTokens(ctx context.Context, userID uuid.UUID, now time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.GameToken{}).
		Where("user_id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?", userID, models.TokenActive, now).
		Update("status", models.TokenExpired).Error
}
