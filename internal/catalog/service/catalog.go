package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"github.com/Skotchmaster/retro_games/internal/catalog/repo"
	"github.com/Skotchmaster/retro_games/internal/catalog/search"
	"github.com/Skotchmaster/retro_games/internal/models"
	"github.com/Skotchmaster/retro_games/pkg/events"
	"github.com/Skotchmaster/retro_games/pkg/logging"
)

var (
	ErrValidation = errors.New("validation") // 400
	ErrNotFound   = errors.New("not found")  // 404
)

// Searcher is the full text index over games. Nil means search runs on the database.
type Searcher interface {
	Search(ctx context.Context, query string, from, size int) (search.Result, error)
	IndexGame(ctx context.Context, g models.Game) error
	DeleteGame(ctx context.Context, id uint) error
}

type CatalogService struct {
	Repo   *repo.GormRepo
	Search Searcher
	Events events.Publisher
}

type GameInput struct {
	Title       *string
	Description *string
	Console     *string
	CoverImage  *string
	RomURL      *string
	Price       *int64
	IsActive    *bool
	CategoryIDs []uint
}

type GameDetail struct {
	Game  models.Game
	Plans []models.Plan
}

func (s *CatalogService) ListGames(ctx context.Context, console string, offset, limit int) (int64, []models.Game, error) {
	return s.Repo.ListGames(ctx, strings.TrimSpace(console), offset, limit)
}

func (s *CatalogService) Consoles(ctx context.Context) ([]string, error) {
	return s.Repo.Consoles(ctx)
}

// GameDetail resolves a slug or a numeric id to an active game.
func (s *CatalogService) GameDetail(ctx context.Context, ref string) (*GameDetail, error) {
	var (
		g   *models.Game
		err error
	)
	if id, perr := strconv.ParseUint(ref, 10, 64); perr == nil {
		g, err = s.Repo.ActiveGameByID(ctx, uint(id))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			g, err = s.Repo.ActiveGameBySlug(ctx, ref)
		}
	} else {
		g, err = s.Repo.ActiveGameBySlug(ctx, ref)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("game %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	plans, err := s.Repo.PlansWithGame(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	return &GameDetail{Game: *g, Plans: plans}, nil
}

// SearchGames uses the search index when configured and falls back to the database when it fails.
func (s *CatalogService) SearchGames(ctx context.Context, q string, offset, limit int) (int64, []models.Game, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.search")

	q = strings.TrimSpace(q)
	if q == "" {
		return 0, nil, fmt.Errorf("%w: query required", ErrValidation)
	}

	if s.Search != nil {
		res, err := s.Search.Search(ctx, q, offset, limit)
		if err == nil {
			games, err := s.Repo.ActiveGamesByIDs(ctx, res.IDs)
			if err != nil {
				return 0, nil, err
			}
			return res.Total, games, nil
		}
		l.Warn("search_index_failed", "reason", "falling back to database", "error", err)
	}
	return s.Repo.SearchGames(ctx, q, offset, limit)
}

func (s *CatalogService) CreateGame(ctx context.Context, in GameInput) (*models.Game, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, fmt.Errorf("%w: title required", ErrValidation)
	}
	if in.Console == nil || strings.TrimSpace(*in.Console) == "" {
		return nil, fmt.Errorf("%w: console required", ErrValidation)
	}

	g := &models.Game{IsActive: true}
	if err := applyGameInput(g, in); err != nil {
		return nil, err
	}
	slug, err := s.uniqueSlug(ctx, g.Title, 0)
	if err != nil {
		return nil, err
	}
	g.Slug = slug

	if err := s.Repo.CreateGame(ctx, g, in.CategoryIDs); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, "game_created", g)
	return g, nil
}

func (s *CatalogService) UpdateGame(ctx context.Context, id uint, in GameInput) (*models.Game, error) {
	g, err := s.Repo.GetGame(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("game %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	oldTitle := g.Title
	if err := applyGameInput(g, in); err != nil {
		return nil, err
	}
	if g.Title != oldTitle {
		if g.Slug, err = s.uniqueSlug(ctx, g.Title, g.ID); err != nil {
			return nil, err
		}
	}

	if err := s.Repo.UpdateGame(ctx, g, in.CategoryIDs); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, "game_updated", g)
	return g, nil
}

func (s *CatalogService) DeleteGame(ctx context.Context, id uint) error {
	l := logging.FromContext(ctx).With("svc", "catalog.delete_game")

	if err := s.Repo.DeleteGame(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("game %d: %w", id, ErrNotFound)
		}
		return err
	}

	if s.Search != nil {
		if err := s.Search.DeleteGame(ctx, id); err != nil {
			l.Error("search_delete_failed", "game_id", id, "error", err)
		}
	}
	events.Publish(ctx, s.Events, l, events.TopicCatalog, strconv.FormatUint(uint64(id), 10),
		events.New("game_deleted", map[string]any{"game_id": id}))
	return nil
}

func (s *CatalogService) ListPlans(ctx context.Context) ([]models.Plan, error) {
	return s.Repo.ListPlans(ctx)
}

func (s *CatalogService) GetPlan(ctx context.Context, id uint) (*models.Plan, error) {
	p, err := s.Repo.ActivePlan(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	return p, err
}

func (s *CatalogService) CreatePlan(ctx context.Context, name, description string, price int64, gameIDs []uint) (*models.Plan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: price must be >= 0", ErrValidation)
	}

	p := &models.Plan{Name: name, Description: description, Price: price, IsActive: true}
	if err := s.Repo.CreatePlan(ctx, p, gameIDs); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown game id", ErrValidation)
		}
		return nil, err
	}
	return p, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.Repo.ListCategories(ctx)
}

func (s *CatalogService) CreateCategory(ctx context.Context, c *models.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name required", ErrValidation)
	}
	if len(c.Name) > 50 {
		return fmt.Errorf("%w: name too long", ErrValidation)
	}
	if c.Color == "" {
		c.Color = "#00d4ff"
	}
	if c.Icon == "" {
		c.Icon = "fas fa-gamepad"
	}
	c.IsActive = true
	return s.Repo.CreateCategory(ctx, c)
}

func (s *CatalogService) afterWrite(ctx context.Context, typ string, g *models.Game) {
	l := logging.FromContext(ctx).With("svc", "catalog."+typ)

	if s.Search != nil {
		if err := s.Search.IndexGame(ctx, *g); err != nil {
			l.Error("search_index_failed", "game_id", g.ID, "error", err)
		}
	}
	events.Publish(ctx, s.Events, l, events.TopicCatalog, strconv.FormatUint(uint64(g.ID), 10),
		events.New(typ, map[string]any{
			"game_id":   g.ID,
			"slug":      g.Slug,
			"title":     g.Title,
			"console":   g.Console,
			"price":     g.Price,
			"is_active": g.IsActive,
		}))
}

func applyGameInput(g *models.Game, in GameInput) error {
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" || len(t) > 200 {
			return fmt.Errorf("%w: title must be 1..200 characters", ErrValidation)
		}
		g.Title = t
	}
	if in.Console != nil {
		c := strings.TrimSpace(*in.Console)
		if c == "" || len(c) > 50 {
			return fmt.Errorf("%w: console must be 1..50 characters", ErrValidation)
		}
		g.Console = c
	}
	if in.Description != nil {
		g.Description = *in.Description
	}
	if in.CoverImage != nil {
		g.CoverImage = *in.CoverImage
	}
	if in.RomURL != nil {
		g.RomURL = *in.RomURL
	}
	if in.Price != nil {
		if *in.Price < 0 {
			return fmt.Errorf("%w: price must be >= 0", ErrValidation)
		}
		g.Price = *in.Price
	}
	if in.IsActive != nil {
		g.IsActive = *in.IsActive
	}
	return nil
}

func (s *CatalogService) uniqueSlug(ctx context.Context, title string, exceptID uint) (string, error) {
	base := Slugify(title)
	slug := base
	for n := 2; ; n++ {
		taken, err := s.Repo.SlugTaken(ctx, slug, exceptID)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(n)
	}
}

// Slugify lowercases ASCII letters and digits and joins everything else with single dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "game"
	}
	return b.String()
}
