package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/retro_games/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

func activeCategories(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true).Order("name ASC")
}

func activeGames(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true).Order("title ASC")
}

func (r *GormRepo) ListGames(ctx context.Context, console string, offset, limit int) (int64, []models.Game, error) {
	q := r.DB.WithContext(ctx).Model(&models.Game{}).Where("is_active = ?", true)
	if console != "" {
		q = q.Where("console = ?", console)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Game
	if err := q.Order("title ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

// Consoles lists distinct consoles of active games. PC titles are not shown as a console filter.
func (r *GormRepo) Consoles(ctx context.Context) ([]string, error) {
	var out []string
	if err := r.DB.WithContext(ctx).Model(&models.Game{}).
		Where("is_active = ? AND console <> ?", true, "PC").
		Distinct("console").
		Order("console ASC").
		Pluck("console", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepo) ActiveGameBySlug(ctx context.Context, slug string) (*models.Game, error) {
	var g models.Game
	if err := r.DB.WithContext(ctx).
		Preload("Categories", activeCategories).
		Where("slug = ? AND is_active = ?", slug, true).
		First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GormRepo) ActiveGameByID(ctx context.Context, id uint) (*models.Game, error) {
	var g models.Game
	if err := r.DB.WithContext(ctx).
		Preload("Categories", activeCategories).
		Where("id = ? AND is_active = ?", id, true).
		First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GormRepo) GetGame(ctx context.Context, id uint) (*models.Game, error) {
	var g models.Game
	if err := r.DB.WithContext(ctx).Preload("Categories").First(&g, id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// ActiveGamesByIDs keeps the order of ids.
func (r *GormRepo) ActiveGamesByIDs(ctx context.Context, ids []uint) ([]models.Game, error) {
	if len(ids) == 0 {
		return []models.Game{}, nil
	}
	var found []models.Game
	if err := r.DB.WithContext(ctx).Where("id IN ? AND is_active = ?", ids, true).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Game, len(found))
	for _, g := range found {
		byID[g.ID] = g
	}
	out := make([]models.Game, 0, len(found))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// SearchGames is the database search used when no search cluster is configured.
func (r *GormRepo) SearchGames(ctx context.Context, q string, offset, limit int) (int64, []models.Game, error) {
	like := "%" + strings.ToLower(q) + "%"
	base := r.DB.WithContext(ctx).Model(&models.Game{}).
		Where("is_active = ?", true).
		Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(console) LIKE ?", like, like, like)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Game
	if err := base.
		Order(clause.Expr{SQL: "CASE WHEN LOWER(title) LIKE ? THEN 0 ELSE 1 END", Vars: []any{like}}).
		Order("title ASC").
		Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) SlugTaken(ctx context.Context, slug string, exceptID uint) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Game{}).
		Where("slug = ? AND id <> ?", slug, exceptID).
		Count(&n).Error
	return n > 0, err
}

func (r *GormRepo) CreateGame(ctx context.Context, g *models.Game, categoryIDs []uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(g).Error; err != nil {
			return err
		}
		return replaceCategories(tx, g, categoryIDs)
	})
}

// UpdateGame saves scalar fields. A nil categoryIDs leaves categories unchanged.
func (r *GormRepo) UpdateGame(ctx context.Context, g *models.Game, categoryIDs []uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(g).Error; err != nil {
			return err
		}
		if categoryIDs == nil {
			return nil
		}
		return replaceCategories(tx, g, categoryIDs)
	})
}

func replaceCategories(tx *gorm.DB, g *models.Game, ids []uint) error {
	var cats []models.Category
	if len(ids) > 0 {
		if err := tx.Where("id IN ?", ids).Find(&cats).Error; err != nil {
			return err
		}
	}
	if len(cats) == 0 {
		if err := tx.Model(g).Association("Categories").Clear(); err != nil {
			return err
		}
	} else if err := tx.Model(g).Association("Categories").Replace(cats); err != nil {
		return err
	}
	g.Categories = cats
	return nil
}

func (r *GormRepo) DeleteGame(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM game_categories WHERE game_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM plan_games WHERE game_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Game{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *GormRepo) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := r.DB.WithContext(ctx).
		Preload("Games", activeGames).
		Where("is_active = ?", true).
		Order("price ASC").
		Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *GormRepo) ActivePlan(ctx context.Context, id uint) (*models.Plan, error) {
	var p models.Plan
	if err := r.DB.WithContext(ctx).
		Preload("Games", activeGames).
		Where("id = ? AND is_active = ?", id, true).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormRepo) PlansWithGame(ctx context.Context, gameID uint) ([]models.Plan, error) {
	var plans []models.Plan
	if err := r.DB.WithContext(ctx).
		Joins("JOIN plan_games ON plan_games.plan_id = plans.id").
		Where("plan_games.game_id = ? AND plans.is_active = ?", gameID, true).
		Order("plans.price ASC").
		Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *GormRepo) CreatePlan(ctx context.Context, p *models.Plan, gameIDs []uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(p).Error; err != nil {
			return err
		}
		var games []models.Game
		if len(gameIDs) > 0 {
			if err := tx.Where("id IN ?", gameIDs).Order("title ASC").Find(&games).Error; err != nil {
				return err
			}
		}
		if len(games) != len(uniq(gameIDs)) {
			return gorm.ErrRecordNotFound
		}
		if len(games) > 0 {
			if err := tx.Model(p).Association("Games").Append(games); err != nil {
				return err
			}
		}
		p.Games = games
		return nil
	})
}

func (r *GormRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := activeCategories(r.DB.WithContext(ctx)).Find(&cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}

func (r *GormRepo) CreateCategory(ctx context.Context, c *models.Category) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func uniq(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
