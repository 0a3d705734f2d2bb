package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	catalogrepo "github.com/Skotchmaster/retro_games/internal/catalog/repo"
	catalogsvc "github.com/Skotchmaster/retro_games/internal/catalog/service"
	"github.com/Skotchmaster/retro_games/internal/gamerequest/repo"
	"github.com/Skotchmaster/retro_games/internal/models"
	dbtest "github.com/Skotchmaster/retro_games/internal/testutil"
	"github.com/Skotchmaster/retro_games/pkg/events"
	"github.com/Skotchmaster/retro_games/pkg/tokens"
)

func newService(t *testing.T) (*Service, *gorm.DB, *events.Recorder) {
	t.Helper()
	db := dbtest.NewDB(t)
	rec := &events.Recorder{}
	cat := &catalogsvc.CatalogService{Repo: &catalogrepo.GormRepo{DB: db}, Events: rec}
	return &Service{Repo: &repo.GormRepo{DB: db}, Catalog: cat, Events: rec}, db, rec
}

func ptr[T any](v T) *T { return &v }

func TestSubmit_Validation(t *testing.T) {
	t.Parallel()

	svc, db, _ := newService(t)
	u := dbtest.CreateUser(t, db, "player1", tokens.RoleUser)

	tests := []struct {
		name    string
		title   string
		details string
	}{
		{name: "blank title", title: "   "},
		{name: "long title", title: strings.Repeat("a", 201)},
		{name: "long details", title: "EarthBound", details: strings.Repeat("d", 1001)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), u.ID, tt.title, tt.details)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSubmit_ListMine(t *testing.T) {
	t.Parallel()

	svc, db, rec := newService(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, db, "player1", tokens.RoleUser)
	other := dbtest.CreateUser(t, db, "player2", tokens.RoleUser)

	first, err := svc.Submit(ctx, u.ID, "  EarthBound ", "SNES version please")
	require.NoError(t, err)
	assert.Equal(t, "EarthBound", first.Title)
	assert.Equal(t, models.RequestPending, first.Status)

	_, err = svc.Submit(ctx, u.ID, "Secret of Mana", "")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, other.ID, "Contra", "")
	require.NoError(t, err)

	mine, err := svc.ListMine(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, gr := range mine {
		assert.Equal(t, u.ID, gr.UserID)
	}

	assert.Len(t, rec.OfType("game_request_submitted"), 3)
	assert.Equal(t, events.TopicGameRequest, rec.OfType("game_request_submitted")[0].Topic)
}

func TestList_StatusFilter(t *testing.T) {
	t.Parallel()

	svc, db, _ := newService(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, db, "player1", tokens.RoleUser)

	a, err := svc.Submit(ctx, u.ID, "Chrono Trigger", "")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, u.ID, "Mother 3", "")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, a.ID, "duplicate")
	require.NoError(t, err)

	total, items, err := svc.List(ctx, "", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	total, items, err = svc.List(ctx, models.RequestRejected, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "duplicate", items[0].AdminNote)
	assert.Equal(t, "player1", items[0].User.Username)

	_, _, err = svc.List(ctx, "archived", 0, 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestApproveReject(t *testing.T) {
	t.Parallel()

	svc, db, rec := newService(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, db, "player1", tokens.RoleUser)

	gr, err := svc.Submit(ctx, u.ID, "Star Fox", "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, gr.ID, strings.Repeat("n", 501))
	assert.ErrorIs(t, err, ErrValidation)

	rejected, err := svc.Reject(ctx, gr.ID, "not available")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)

	_, err = svc.Reject(ctx, gr.ID, "again")
	assert.ErrorIs(t, err, ErrConflict)

	approved, err := svc.Approve(ctx, gr.ID, "found a dump")
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, approved.Status)
	assert.Equal(t, "found a dump", approved.AdminNote)

	_, err = svc.Approve(ctx, gr.ID, "")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.Reject(ctx, gr.ID, "")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.Approve(ctx, 9999, "")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, rec.OfType("game_request_rejected"), 1)
	assert.Len(t, rec.OfType("game_request_approved"), 1)
}

func TestCreateGame(t *testing.T) {
	t.Parallel()

	svc, db, rec := newService(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, db, "player1", tokens.RoleUser)

	gr, err := svc.Submit(ctx, u.ID, "Kirby Super Star", "")
	require.NoError(t, err)

	_, _, err = svc.CreateGame(ctx, gr.ID, catalogsvc.GameInput{}, "")
	assert.ErrorIs(t, err, ErrValidation, "console is required")

	linked, g, err := svc.CreateGame(ctx, gr.ID, catalogsvc.GameInput{
		Console: ptr("SNES"),
		Price:   ptr(int64(499)),
	}, "added")
	require.NoError(t, err)
	assert.Equal(t, "Kirby Super Star", g.Title)
	assert.Equal(t, "kirby-super-star", g.Slug)
	assert.Equal(t, models.RequestApproved, linked.Status)
	require.NotNil(t, linked.GameID)
	assert.Equal(t, g.ID, *linked.GameID)
	require.NotNil(t, linked.Game)
	assert.Equal(t, "SNES", linked.Game.Console)

	_, _, err = svc.CreateGame(ctx, gr.ID, catalogsvc.GameInput{Console: ptr("SNES")}, "")
	assert.ErrorIs(t, err, ErrConflict)

	var games int64
	require.NoError(t, db.Model(&models.Game{}).Count(&games).Error)
	assert.EqualValues(t, 1, games)

	assert.Len(t, rec.OfType("game_created"), 1)
	approved := rec.OfType("game_request_approved")
	require.Len(t, approved, 1)
	assert.EqualValues(t, g.ID, approved[0].Event.Data["game_id"])
}

func TestCreateGame_RejectedRequest(t *testing.T) {
	t.Parallel()

	svc, db, _ := newService(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, db, "player1", tokens.RoleUser)

	gr, err := svc.Submit(ctx, u.ID, "Bad Game", "")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, gr.ID, "")
	require.NoError(t, err)

	_, _, err = svc.CreateGame(ctx, gr.ID, catalogsvc.GameInput{Console: ptr("NES")}, "")
	assert.ErrorIs(t, err, ErrConflict)

	_, _, err = svc.CreateGame(ctx, 4242, catalogsvc.GameInput{Console: ptr("NES")}, "")
	assert.ErrorIs(t, err, ErrNotFound)
}
