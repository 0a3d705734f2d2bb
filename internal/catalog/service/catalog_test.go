package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/retro_games/internal/catalog/repo"
	"github.com/Skotchmaster/retro_games/internal/catalog/search"
	"github.com/Skotchmaster/retro_games/internal/models"
	dbtest "github.com/Skotchmaster/retro_games/internal/testutil"
	"github.com/Skotchmaster/retro_games/pkg/events"
)

type fakeSearcher struct {
	mu      sync.Mutex
	indexed map[uint]models.Game
	deleted []uint
	result  search.Result
	err     error
}

func (f *fakeSearcher) Search(context.Context, string, int, int) (search.Result, error) {
	return f.result, f.err
}

func (f *fakeSearcher) IndexGame(_ context.Context, g models.Game) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[uint]models.Game{}
	}
	f.indexed[g.ID] = g
	return f.err
}

func (f *fakeSearcher) DeleteGame(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.err
}

func newService(t *testing.T) (*CatalogService, *gorm.DB, *events.Recorder) {
	t.Helper()
	db := dbtest.NewDB(t)
	rec := &events.Recorder{}
	return &CatalogService{Repo: &repo.GormRepo{DB: db}, Events: rec}, db, rec
}

func ptr[T any](v T) *T { return &v }

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Super Mario World", want: "super-mario-world"},
		{in: "  Street Fighter II: Turbo!  ", want: "street-fighter-ii-turbo"},
		{in: "F-Zero", want: "f-zero"},
		{in: "Castlevania III", want: "castlevania-iii"},
		{in: "!!!", want: "game"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestCreateGame_UniqueSlugIndexedAndPublished(t *testing.T) {
	t.Parallel()

	svc, _, rec := newService(t)
	fs := &fakeSearcher{}
	svc.Search = fs
	ctx := context.Background()

	first, err := svc.CreateGame(ctx, GameInput{Title: ptr("Street Fighter II"), Console: ptr("SNES"), Price: ptr(int64(799))})
	require.NoError(t, err)
	assert.Equal(t, "street-fighter-ii", first.Slug)
	assert.True(t, first.IsActive)

	second, err := svc.CreateGame(ctx, GameInput{Title: ptr("Street Fighter II"), Console: ptr("Mega Drive")})
	require.NoError(t, err)
	assert.Equal(t, "street-fighter-ii-2", second.Slug)

	third, err := svc.CreateGame(ctx, GameInput{Title: ptr("Street  Fighter II"), Console: ptr("Arcade")})
	require.NoError(t, err)
	assert.Equal(t, "street-fighter-ii-3", third.Slug)

	assert.Len(t, fs.indexed, 3)
	created := rec.OfType("game_created")
	require.Len(t, created, 3)
	assert.Equal(t, events.TopicCatalog, created[0].Topic)
}

func TestCreateGame_Validation(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   GameInput
	}{
		{name: "no title", in: GameInput{Console: ptr("NES")}},
		{name: "blank title", in: GameInput{Title: ptr("  "), Console: ptr("NES")}},
		{name: "no console", in: GameInput{Title: ptr("Contra")}},
		{name: "negative price", in: GameInput{Title: ptr("Contra"), Console: ptr("NES"), Price: ptr(int64(-1))}},
	}
	for _, tt := range tests {
		_, err := svc.CreateGame(ctx, tt.in)
		assert.ErrorIs(t, err, ErrValidation, tt.name)
	}
}

func TestCreateGame_IndexFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()

	svc, db, _ := newService(t)
	svc.Search = &fakeSearcher{err: errors.New("cluster down")}

	g, err := svc.CreateGame(context.Background(), GameInput{Title: ptr("Contra"), Console: ptr("NES")})
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&models.Game{}).Where("id = ?", g.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestUpdateGame(t *testing.T) {
	t.Parallel()

	svc, db, rec := newService(t)
	ctx := context.Background()
	action := &models.Category{Name: "Action"}
	require.NoError(t, svc.CreateCategory(ctx, action))

	g, err := svc.CreateGame(ctx, GameInput{Title: ptr("Contra"), Console: ptr("NES"), Price: ptr(int64(299))})
	require.NoError(t, err)

	updated, err := svc.UpdateGame(ctx, g.ID, GameInput{Price: ptr(int64(349)), CategoryIDs: []uint{action.ID}})
	require.NoError(t, err)
	assert.Equal(t, "contra", updated.Slug, "slug is kept while the title is unchanged")
	assert.EqualValues(t, 349, updated.Price)
	assert.Equal(t, "NES", updated.Console)

	updated, err = svc.UpdateGame(ctx, g.ID, GameInput{Title: ptr("Super Contra"), IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "super-contra", updated.Slug)

	var stored models.Game
	require.NoError(t, db.Preload("Categories").First(&stored, g.ID).Error)
	assert.False(t, stored.IsActive)
	require.Len(t, stored.Categories, 1, "categories unchanged when omitted")
	assert.Equal(t, "Action", stored.Categories[0].Name)

	_, err = svc.UpdateGame(ctx, 9999, GameInput{Price: ptr(int64(1))})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.UpdateGame(ctx, g.ID, GameInput{Price: ptr(int64(-5))})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Len(t, rec.OfType("game_updated"), 2)
}

func TestDeleteGame(t *testing.T) {
	t.Parallel()

	svc, db, rec := newService(t)
	fs := &fakeSearcher{}
	svc.Search = fs
	ctx := context.Background()

	g := dbtest.CreateGame(t, db, "Contra", "NES", 299)
	dbtest.CreatePlan(t, db, "NES Pass", 499, g)

	require.NoError(t, svc.DeleteGame(ctx, g.ID))
	assert.Equal(t, []uint{g.ID}, fs.deleted)
	assert.Len(t, rec.OfType("game_deleted"), 1)

	assert.ErrorIs(t, svc.DeleteGame(ctx, g.ID), ErrNotFound)
}

func TestListGamesAndConsoles(t *testing.T) {
	t.Parallel()

	svc, db, _ := newService(t)
	ctx := context.Background()

	dbtest.CreateGame(t, db, "Super Metroid", "SNES", 499)
	dbtest.CreateGame(t, db, "Chrono Trigger", "SNES", 699)
	dbtest.CreateGame(t, db, "Sonic 2", "Mega Drive", 399)
	dbtest.CreateGame(t, db, "Doom", "PC", 199)
	hidden := dbtest.CreateGame(t, db, "Hidden", "Virtual Boy", 99)
	require.NoError(t, db.Model(&hidden).Update("is_active", false).Error)

	total, items, err := svc.ListGames(ctx, "", 0, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, items, 2)
	assert.Equal(t, "Chrono Trigger", items[0].Title)

	total, items, err = svc.ListGames(ctx, "SNES", 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	consoles, err := svc.Consoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mega Drive", "SNES"}, consoles)
}

func TestGameDetail(t *testing.T) {
	t.Parallel()

	svc, db, _ := newService(t)
	ctx := context.Background()

	rpg := &models.Category{Name: "RPG"}
	old := &models.Category{Name: "Retired"}
	require.NoError(t, svc.CreateCategory(ctx, rpg))
	require.NoError(t, svc.CreateCategory(ctx, old))
	require.NoError(t, db.Model(old).Update("is_active", false).Error)

	g, err := svc.CreateGame(ctx, GameInput{Title: ptr("Chrono Trigger"), Console: ptr("SNES"), CategoryIDs: []uint{rpg.ID, old.ID}})
	require.NoError(t, err)
	dbtest.CreatePlan(t, db, "SNES Classics", 999, *g)

	d, err := svc.GameDetail(ctx, "chrono-trigger")
	require.NoError(t, err)
	assert.Equal(t, g.ID, d.Game.ID)
	require.Len(t, d.Game.Categories, 1)
	assert.Equal(t, "RPG", d.Game.Categories[0].Name)
	require.Len(t, d.Plans, 1)
	assert.Equal(t, "SNES Classics", d.Plans[0].Name)

	byID, err := svc.GameDetail(ctx, strconv.FormatUint(uint64(g.ID), 10))
	require.NoError(t, err)
	assert.Equal(t, g.ID, byID.Game.ID)

	_, err = svc.GameDetail(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Model(g).Update("is_active", false).Error)
	_, err = svc.GameDetail(ctx, "chrono-trigger")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchGames(t *testing.T) {
	t.Parallel()

	svc, db, _ := newService(t)
	ctx := context.Background()

	mario := dbtest.CreateGame(t, db, "Super Mario World", "SNES", 499)
	kart := dbtest.CreateGame(t, db, "Mario Kart", "SNES", 499)
	dbtest.CreateGame(t, db, "Sonic the Hedgehog", "Mega Drive", 399)

	_, _, err := svc.SearchGames(ctx, "  ", 0, 20)
	assert.ErrorIs(t, err, ErrValidation)

	total, items, err := svc.SearchGames(ctx, "MARIO", 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	total, _, err = svc.SearchGames(ctx, "mega drive", 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	svc.Search = &fakeSearcher{result: search.Result{Total: 2, IDs: []uint{kart.ID, mario.ID}}}
	total, items, err = svc.SearchGames(ctx, "mario", 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, kart.ID, items[0].ID, "index ranking is preserved")

	svc.Search = &fakeSearcher{err: errors.New("timeout")}
	total, _, err = svc.SearchGames(ctx, "sonic", 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestPlansAndCategories(t *testing.T) {
	t.Parallel()

	svc, db, _ := newService(t)
	ctx := context.Background()
	a := dbtest.CreateGame(t, db, "Metroid", "NES", 299)
	b := dbtest.CreateGame(t, db, "Kid Icarus", "NES", 299)

	_, err := svc.CreatePlan(ctx, "", "", 100, nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreatePlan(ctx, "Broken", "", 100, []uint{a.ID, 9999})
	assert.ErrorIs(t, err, ErrValidation)

	p, err := svc.CreatePlan(ctx, "NES Pass", "All NES", 499, []uint{a.ID, b.ID, a.ID})
	require.NoError(t, err)
	assert.Len(t, p.Games, 2)

	plans, err := svc.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Len(t, plans[0].Games, 2)

	got, err := svc.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "NES Pass", got.Name)
	_, err = svc.GetPlan(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	cat := &models.Category{Name: "Platformer"}
	require.NoError(t, svc.CreateCategory(ctx, cat))
	assert.Equal(t, "#00d4ff", cat.Color)
	assert.ErrorIs(t, svc.CreateCategory(ctx, &models.Category{Name: " "}), ErrValidation)

	cats, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}
