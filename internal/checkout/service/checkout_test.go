package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/retro_games/internal/checkout/repo"
	entrepo "github.com/Skotchmaster/retro_games/internal/entitlement/repo"
	entsvc "github.com/Skotchmaster/retro_games/internal/entitlement/service"
	"github.com/Skotchmaster/retro_games/internal/models"
	dbtest "github.com/Skotchmaster/retro_games/internal/testutil"
	"github.com/Skotchmaster/retro_games/pkg/events"
	"github.com/Skotchmaster/retro_games/pkg/metrics"
)

const period = 30 * 24 * time.Hour

type env struct {
	db      *gorm.DB
	svc     *Service
	ents    *entsvc.Service
	rec     *events.Recorder
	metrics *metrics.Metrics
	now     time.Time
	user    models.User
	mario   models.Game
	zelda   models.Game
	plan    models.Plan
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := dbtest.NewDB(t)
	e := &env{
		db:      db,
		rec:     &events.Recorder{},
		metrics: metrics.New(),
		now:     time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC),
	}
	clock := func() time.Time { return e.now }
	e.ents = &entsvc.Service{
		Repo:    &entrepo.GormRepo{DB: db},
		Events:  e.rec,
		Metrics: e.metrics,
		Now:     clock,
	}
	e.svc = &Service{
		Repo:               &repo.GormRepo{DB: db},
		Entitlements:       e.ents,
		Events:             e.rec,
		Metrics:            e.metrics,
		SubscriptionPeriod: period,
		Now:                clock,
	}
	e.user = dbtest.CreateUser(t, db, "player1", "user")
	e.mario = dbtest.CreateGame(t, db, "Super Mario World", "SNES", 499)
	e.zelda = dbtest.CreateGame(t, db, "A Link to the Past", "SNES", 599)
	e.plan = dbtest.CreatePlan(t, db, "SNES Classics", 999, e.mario, e.zelda)
	return e
}

func TestCheckoutGame_CompleteGrantsPerpetualAccess(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	sess, err := e.svc.CheckoutGame(ctx, e.user.ID, e.mario.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPending, sess.Status)
	assert.EqualValues(t, 499, sess.Amount)
	assert.NotEqual(t, uuid.Nil, sess.SessionID)

	conf, err := e.svc.CompleteSession(ctx, e.user.ID, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, conf.Session.Status)
	require.NotNil(t, conf.Session.CompletedAt)
	require.NotNil(t, conf.Purchase)
	assert.Equal(t, sess.SessionID, conf.Purchase.IdempotencyKey)
	assert.Nil(t, conf.Subscription)
	require.Len(t, conf.Games, 1)
	assert.Equal(t, e.mario.ID, conf.Games[0].Game.ID)
	require.True(t, conf.Games[0].Token.Created)
	assert.Nil(t, conf.Games[0].Token.Token.ExpiresAt)

	v, err := e.ents.ValidateToken(ctx, conf.Games[0].Token.Raw, &e.mario.ID)
	require.NoError(t, err)
	assert.True(t, v.Entitlement.IsPerpetual)
	require.NotNil(t, v.Entitlement.PurchaseID)
	assert.Equal(t, conf.Purchase.ID, *v.Entitlement.PurchaseID)

	assert.Len(t, e.rec.OfType("payment_completed"), 1)
	assert.Len(t, e.rec.OfType("entitlement_granted"), 1)
	assert.Len(t, e.rec.OfType("token_issued"), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Checkouts.WithLabelValues("game", models.SessionCompleted)))

	_, err = e.svc.CompleteSession(ctx, e.user.ID, sess.SessionID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = e.svc.CheckoutGame(ctx, e.user.ID, e.mario.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCheckoutGame_NotFound(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.db.Model(&models.Game{}).Where("id = ?", e.zelda.ID).Update("is_active", false).Error)

	tests := []struct {
		name   string
		gameID uint
	}{
		{name: "unknown game", gameID: 9999},
		{name: "inactive game", gameID: e.zelda.ID},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.CheckoutGame(ctx, e.user.ID, tt.gameID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}

	_, err := e.svc.CheckoutPlan(ctx, e.user.ID, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteSession_SecondSessionForOwnedGameConflicts(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.CheckoutGame(ctx, e.user.ID, e.mario.ID)
	require.NoError(t, err)
	second, err := e.svc.CheckoutGame(ctx, e.user.ID, e.mario.ID)
	require.NoError(t, err)

	_, err = e.svc.CompleteSession(ctx, e.user.ID, first.SessionID)
	require.NoError(t, err)

	_, err = e.svc.CompleteSession(ctx, e.user.ID, second.SessionID)
	assert.ErrorIs(t, err, ErrConflict)

	sess, err := e.svc.GetSession(ctx, e.user.ID, second.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPending, sess.Status)
	assert.Nil(t, sess.CompletedAt)

	var purchases int64
	require.NoError(t, e.db.Model(&models.Purchase{}).Where("user_id = ? AND game_id = ?", e.user.ID, e.mario.ID).Count(&purchases).Error)
	assert.EqualValues(t, 1, purchases)
	assert.Len(t, e.rec.OfType("payment_completed"), 1)
}

func TestCompleteSession_SecondSessionForRunningPlanConflicts(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.CheckoutPlan(ctx, e.user.ID, e.plan.ID)
	require.NoError(t, err)
	second, err := e.svc.CheckoutPlan(ctx, e.user.ID, e.plan.ID)
	require.NoError(t, err)

	_, err = e.svc.CompleteSession(ctx, e.user.ID, first.SessionID)
	require.NoError(t, err)

	_, err = e.svc.CompleteSession(ctx, e.user.ID, second.SessionID)
	assert.ErrorIs(t, err, ErrConflict)

	sess, err := e.svc.GetSession(ctx, e.user.ID, second.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPending, sess.Status)

	var subs int64
	require.NoError(t, e.db.Model(&models.Subscription{}).Where("user_id = ? AND plan_id = ?", e.user.ID, e.plan.ID).Count(&subs).Error)
	assert.EqualValues(t, 1, subs)

	e.now = e.now.Add(period + time.Minute)
	_, err = e.svc.CompleteSession(ctx, e.user.ID, second.SessionID)
	assert.NoError(t, err, "pending session completes once the first period has ended")
}

func TestGetSession_OwnerOnly(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	stranger := dbtest.CreateUser(t, e.db, "stranger", "user")

	sess, err := e.svc.CheckoutGame(ctx, e.user.ID, e.mario.ID)
	require.NoError(t, err)

	got, err := e.svc.GetSession(ctx, e.user.ID, sess.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got.Game)
	assert.Equal(t, "Super Mario World", got.Game.Title)

	_, err = e.svc.GetSession(ctx, stranger.ID, sess.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.svc.CompleteSession(ctx, stranger.ID, sess.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailSession(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	sess, err := e.svc.CheckoutGame(ctx, e.user.ID, e.mario.ID)
	require.NoError(t, err)

	failed, err := e.svc.FailSession(ctx, e.user.ID, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, failed.Status)
	assert.NotNil(t, failed.CompletedAt)
	assert.Len(t, e.rec.OfType("payment_failed"), 1)

	_, err = e.svc.CompleteSession(ctx, e.user.ID, sess.SessionID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = e.svc.FailSession(ctx, e.user.ID, sess.SessionID)
	assert.ErrorIs(t, err, ErrConflict)

	var purchases int64
	require.NoError(t, e.db.Model(&models.Purchase{}).Count(&purchases).Error)
	assert.Zero(t, purchases)

	ok, err := e.ents.HasAccess(ctx, e.user.ID, e.mario.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckoutPlan_GrantsEveryGameUntilPeriodEnd(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	sess, err := e.svc.CheckoutPlan(ctx, e.user.ID, e.plan.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 999, sess.Amount)
	assert.Equal(t, "plan", sess.Kind())

	conf, err := e.svc.CompleteSession(ctx, e.user.ID, sess.SessionID)
	require.NoError(t, err)
	require.NotNil(t, conf.Subscription)
	assert.Equal(t, models.SubscriptionActive, conf.Subscription.Status)
	assert.True(t, conf.Subscription.CurrentPeriodEnd.Equal(e.now.Add(period)))
	assert.Equal(t, sess.SessionID, conf.Subscription.IdempotencyKey)
	require.Len(t, conf.Games, 2)
	for _, g := range conf.Games {
		require.True(t, g.Token.Created)
		require.NotNil(t, g.Token.Token.ExpiresAt)
		assert.True(t, g.Token.Token.ExpiresAt.Equal(conf.Subscription.CurrentPeriodEnd))
	}

	_, err = e.svc.CheckoutPlan(ctx, e.user.ID, e.plan.ID)
	assert.ErrorIs(t, err, ErrConflict)

	raw := conf.Games[0].Token.Raw
	e.now = e.now.Add(period + time.Minute)
	_, err = e.ents.ValidateToken(ctx, raw, nil)
	assert.ErrorIs(t, err, entsvc.ErrInvalidToken)

	_, err = e.svc.CheckoutPlan(ctx, e.user.ID, e.plan.ID)
	assert.NoError(t, err, "expired subscription allows a new checkout")
}

func TestCheckoutPlan_SkipsInactiveGames(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.db.Model(&models.Game{}).Where("id = ?", e.zelda.ID).Update("is_active", false).Error)

	sess, err := e.svc.CheckoutPlan(ctx, e.user.ID, e.plan.ID)
	require.NoError(t, err)
	conf, err := e.svc.CompleteSession(ctx, e.user.ID, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, conf.Games, 1)
	assert.Equal(t, e.mario.ID, conf.Games[0].Game.ID)
}

func TestPurchaseAfterSubscriptionUpgradesToPerpetual(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	sess, err := e.svc.CheckoutPlan(ctx, e.user.ID, e.plan.ID)
	require.NoError(t, err)
	planConf, err := e.svc.CompleteSession(ctx, e.user.ID, sess.SessionID)
	require.NoError(t, err)

	var marioToken *entsvc.IssuedToken
	for _, g := range planConf.Games {
		if g.Game.ID == e.mario.ID {
			marioToken = g.Token
		}
	}
	require.NotNil(t, marioToken)

	sess, err = e.svc.CheckoutGame(ctx, e.user.ID, e.mario.ID)
	require.NoError(t, err, "subscription access does not block buying the game")
	conf, err := e.svc.CompleteSession(ctx, e.user.ID, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, conf.Games, 1)
	assert.False(t, conf.Games[0].Token.Created, "existing active token is kept")
	assert.Equal(t, marioToken.Token.ID, conf.Games[0].Token.Token.ID)

	e.now = e.now.Add(2 * period)
	v, err := e.ents.ValidateToken(ctx, marioToken.Raw, &e.mario.ID)
	require.NoError(t, err)
	assert.True(t, v.Entitlement.IsPerpetual)
	assert.Nil(t, v.Token.ExpiresAt)
}

func TestCancelSubscription_KeepsAccessUntilPeriodEnd(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	stranger := dbtest.CreateUser(t, e.db, "stranger", "user")

	sess, err := e.svc.CheckoutPlan(ctx, e.user.ID, e.plan.ID)
	require.NoError(t, err)
	conf, err := e.svc.CompleteSession(ctx, e.user.ID, sess.SessionID)
	require.NoError(t, err)
	subID := conf.Subscription.ID

	_, err = e.svc.CancelSubscription(ctx, stranger.ID, subID)
	assert.ErrorIs(t, err, ErrNotFound)

	sub, err := e.svc.CancelSubscription(ctx, e.user.ID, subID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, sub.Status)
	require.NotNil(t, sub.CancelledAt)
	assert.Len(t, e.rec.OfType("subscription_cancelled"), 1)

	_, err = e.svc.CancelSubscription(ctx, e.user.ID, subID)
	assert.ErrorIs(t, err, ErrConflict)

	ok, err := e.ents.HasAccess(ctx, e.user.ID, e.zelda.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.svc.CheckoutPlan(ctx, e.user.ID, e.plan.ID)
	assert.NoError(t, err, "a cancelled subscription can be bought again")

	e.now = e.now.Add(period)
	ok, err = e.ents.HasAccess(ctx, e.user.ID, e.zelda.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLibrary(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	sonic := dbtest.CreateGame(t, e.db, "Sonic the Hedgehog", "Mega Drive", 399)

	lib, err := e.svc.Library(ctx, e.user.ID)
	require.NoError(t, err)
	assert.Empty(t, lib.Purchased)
	assert.Empty(t, lib.Subscriptions)
	assert.Empty(t, lib.Tokens)

	sess, err := e.svc.CheckoutGame(ctx, e.user.ID, sonic.ID)
	require.NoError(t, err)
	_, err = e.svc.CompleteSession(ctx, e.user.ID, sess.SessionID)
	require.NoError(t, err)

	sess, err = e.svc.CheckoutPlan(ctx, e.user.ID, e.plan.ID)
	require.NoError(t, err)
	_, err = e.svc.CompleteSession(ctx, e.user.ID, sess.SessionID)
	require.NoError(t, err)

	lib, err = e.svc.Library(ctx, e.user.ID)
	require.NoError(t, err)
	require.Len(t, lib.Purchased, 1)
	assert.Equal(t, "Sonic the Hedgehog", lib.Purchased[0].Game.Title)
	require.Len(t, lib.Subscriptions, 1)
	assert.Equal(t, "SNES Classics", lib.Subscriptions[0].Plan.Name)
	assert.Len(t, lib.SubscriptionGames, 2)
	assert.Len(t, lib.Tokens, 3)

	e.now = e.now.Add(period + time.Hour)
	lib, err = e.svc.Library(ctx, e.user.ID)
	require.NoError(t, err)
	assert.Len(t, lib.Purchased, 1)
	assert.Empty(t, lib.Subscriptions)
	assert.Empty(t, lib.SubscriptionGames)
	assert.Len(t, lib.Tokens, 1, "subscription tokens expire with the period")
}
