package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	catalogsvc "github.com/Skotchmaster/retro_games/internal/catalog/service"
	"github.com/Skotchmaster/retro_games/internal/gamerequest/repo"
	"github.com/Skotchmaster/retro_games/internal/models"
	"github.com/Skotchmaster/retro_games/pkg/events"
	"github.com/Skotchmaster/retro_games/pkg/logging"
)

var (
	ErrValidation = errors.New("validation") // 400
	ErrNotFound   = errors.New("not found")  // 404
	ErrConflict   = errors.New("conflict")   // 409
)

const (
	maxTitle   = 200
	maxDetails = 1000
	maxNote    = 500
)

type Service struct {
	Repo    *repo.GormRepo
	Catalog *catalogsvc.CatalogService
	Events  events.Publisher
}

func (s *Service) Submit(ctx context.Context, userID uuid.UUID, title, details string) (*models.GameRequest, error) {
	title = strings.TrimSpace(title)
	details = strings.TrimSpace(details)
	if title == "" || utf8.RuneCountInString(title) > maxTitle {
		return nil, fmt.Errorf("%w: title must be 1..%d characters", ErrValidation, maxTitle)
	}
	if utf8.RuneCountInString(details) > maxDetails {
		return nil, fmt.Errorf("%w: details must be at most %d characters", ErrValidation, maxDetails)
	}

	gr := &models.GameRequest{UserID: userID, Title: title, Details: details, Status: models.RequestPending}
	if err := s.Repo.Create(ctx, gr); err != nil {
		return nil, err
	}
	s.publish(ctx, "game_request_submitted", gr)
	return gr, nil
}

func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]models.GameRequest, error) {
	return s.Repo.ListByUser(ctx, userID)
}

func (s *Service) List(ctx context.Context, status string, offset, limit int) (int64, []models.GameRequest, error) {
	status = strings.TrimSpace(status)
	switch status {
	case "", models.RequestPending, models.RequestApproved, models.RequestRejected:
	default:
		return 0, nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.Repo.List(ctx, status, offset, limit)
}

func (s *Service) Get(ctx context.Context, id uint) (*models.GameRequest, error) {
	gr, err := s.Repo.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("game request %d: %w", id, ErrNotFound)
	}
	return gr, err
}

// Approve accepts a pending or previously rejected request.
func (s *Service) Approve(ctx context.Context, id uint, note string) (*models.GameRequest, error) {
	return s.transition(ctx, id, []string{models.RequestPending, models.RequestRejected},
		models.RequestApproved, note, "game_request_approved")
}

// Reject closes a pending request.
func (s *Service) Reject(ctx context.Context, id uint, note string) (*models.GameRequest, error) {
	return s.transition(ctx, id, []string{models.RequestPending},
		models.RequestRejected, note, "game_request_rejected")
}

// CreateGame adds the requested title to the catalog and approves the request with it.
// Title defaults to the request's title.
func (s *Service) CreateGame(ctx context.Context, id uint, in catalogsvc.GameInput, note string) (*models.GameRequest, *models.Game, error) {
	l := logging.FromContext(ctx).With("svc", "gamerequest.create_game")

	note, err := cleanNote(note)
	if err != nil {
		return nil, nil, err
	}
	gr, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if gr.GameID != nil {
		return nil, nil, fmt.Errorf("%w: request already linked to game %d", ErrConflict, *gr.GameID)
	}
	if gr.Status == models.RequestRejected {
		return nil, nil, fmt.Errorf("%w: request was rejected", ErrConflict)
	}
	if in.Title == nil {
		t := gr.Title
		in.Title = &t
	}

	g, err := s.Catalog.CreateGame(ctx, in)
	if err != nil {
		if errors.Is(err, catalogsvc.ErrValidation) {
			return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, nil, err
	}

	ok, err := s.Repo.LinkGame(ctx, id, g.ID, note)
	if err == nil && !ok {
		err = fmt.Errorf("%w: request linked concurrently", ErrConflict)
	}
	if err != nil {
		if dErr := s.Catalog.DeleteGame(ctx, g.ID); dErr != nil {
			l.Error("rollback_game_failed", "game_id", g.ID, "error", dErr)
		}
		return nil, nil, err
	}

	gr, err = s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	s.publish(ctx, "game_request_approved", gr)
	return gr, g, nil
}

func (s *Service) transition(ctx context.Context, id uint, from []string, status, note, typ string) (*models.GameRequest, error) {
	note, err := cleanNote(note)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	ok, err := s.Repo.Transition(ctx, id, from, status, note)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: request cannot become %s", ErrConflict, status)
	}

	gr, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, typ, gr)
	return gr, nil
}

func (s *Service) publish(ctx context.Context, typ string, gr *models.GameRequest) {
	l := logging.FromContext(ctx).With("svc", "gamerequest")

	data := map[string]any{
		"request_id": gr.ID,
		"user_id":    gr.UserID.String(),
		"title":      gr.Title,
		"status":     gr.Status,
	}
	if gr.GameID != nil {
		data["game_id"] = *gr.GameID
	}
	events.Publish(ctx, s.Events, l, events.TopicGameRequest, strconv.FormatUint(uint64(gr.ID), 10), events.New(typ, data))
}

func cleanNote(note string) (string, error) {
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > maxNote {
		return "", fmt.Errorf("%w: admin note must be at most %d characters", ErrValidation, maxNote)
	}
	return note, nil
}
