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

func (r *GormRepo) ActiveGame(ctx context.Context, id uint) (*models.Game, error) {
	var g models.Game
	if err := r.DB.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GormRepo) ActivePlan(ctx context.Context, id uint) (*models.Plan, error) {
	var p models.Plan
	if err := r.DB.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// PlanGames returns the active games of a plan regardless of the plan's own state.
func (r *GormRepo) PlanGames(ctx context.Context, planID uint) ([]models.Game, error) {
	var games []models.Game
	if err := r.DB.WithContext(ctx).
		Joins("JOIN plan_games ON plan_games.game_id = games.id").
		Where("plan_games.plan_id = ? AND games.is_active = ?", planID, true).
		Order("games.title ASC").
		Find(&games).Error; err != nil {
		return nil, err
	}
	return games, nil
}

func (r *GormRepo) GetGame(ctx context.Context, id uint) (*models.Game, error) {
	var g models.Game
	if err := r.DB.WithContext(ctx).First(&g, id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GormRepo) HasPerpetualEntitlement(ctx context.Context, userID uuid.UUID, gameID uint) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Entitlement{}).
		Where("user_id = ? AND game_id = ? AND is_perpetual = ?", userID, gameID, true).
		Count(&n).Error
	return n > 0, err
}

func (r *GormRepo) HasRunningSubscription(ctx context.Context, userID uuid.UUID, planID uint, now time.Time) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND plan_id = ? AND status = ? AND current_period_end > ?",
			userID, planID, models.SubscriptionActive, now).
		Count(&n).Error
	return n > 0, err
}

func (r *GormRepo) CreateSession(ctx context.Context, s *models.PaymentSession) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(s).Error
}

func (r *GormRepo) SessionForUser(ctx context.Context, userID, sessionID uuid.UUID) (*models.PaymentSession, error) {
	var s models.PaymentSession
	if err := r.DB.WithContext(ctx).
		Preload("Game").
		Preload("Plan").
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// FinishSession moves a pending session to status. False means it was no longer pending.
func (r *GormRepo) FinishSession(ctx context.Context, id uint, status string, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.PaymentSession{}).
		Where("id = ? AND status = ?", id, models.SessionPending).
		Updates(map[string]any{"status": status, "completed_at": at})
	return res.RowsAffected == 1, res.Error
}

func (r *GormRepo) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(p).Error
}

func (r *GormRepo) CreateSubscription(ctx context.Context, s *models.Subscription) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(s).Error
}

func (r *GormRepo) SubscriptionForUser(ctx context.Context, userID uuid.UUID, id uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.DB.WithContext(ctx).
		Preload("Plan").
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormRepo) CancelSubscription(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, models.SubscriptionActive).
		Updates(map[string]any{"status": models.SubscriptionCancelled, "cancelled_at": at})
	return res.RowsAffected == 1, res.Error
}

// RunningSubscriptions are active or cancelled subscriptions whose paid period has not ended.
func (r *GormRepo) RunningSubscriptions(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.DB.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ? AND status IN ? AND current_period_end > ?",
			userID, []string{models.SubscriptionActive, models.SubscriptionCancelled}, now).
		Order("current_period_end DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *GormRepo) PurchasedEntitlements(ctx context.Context, userID uuid.UUID) ([]models.Entitlement, error) {
	var items []models.Entitlement
	if err := r.DB.WithContext(ctx).
		Preload("Game").
		Preload("Purchase").
		Where("user_id = ? AND is_perpetual = ? AND purchase_id IS NOT NULL", userID, true).
		Order("granted_date DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
