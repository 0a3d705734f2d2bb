package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/retro_games/internal/checkout/repo"
	entsvc "github.com/Skotchmaster/retro_games/internal/entitlement/service"
	"github.com/Skotchmaster/retro_games/internal/models"
	"github.com/Skotchmaster/retro_games/pkg/events"
	"github.com/Skotchmaster/retro_games/pkg/logging"
	"github.com/Skotchmaster/retro_games/pkg/metrics"
)

var (
	ErrValidation = errors.New("validation") // 400
	ErrNotFound   = errors.New("not found")  // 404
	ErrConflict   = errors.New("conflict")   // 409
)

const DefaultSubscriptionPeriod = 30 * 24 * time.Hour

type Service struct {
	Repo               *repo.GormRepo
	Entitlements       *entsvc.Service
	Events             events.Publisher
	Metrics            *metrics.Metrics
	SubscriptionPeriod time.Duration
	Now                func() time.Time
}

// GrantedGame is one game unlocked by a completed session and its token.
type GrantedGame struct {
	Game  models.Game
	Token *entsvc.IssuedToken
}

type Confirmation struct {
	Session      models.PaymentSession
	Purchase     *models.Purchase
	Subscription *models.Subscription
	Games        []GrantedGame
}

type SubscriptionGame struct {
	Game         models.Game
	Subscription models.Subscription
}

type Library struct {
	Purchased         []models.Entitlement
	SubscriptionGames []SubscriptionGame
	Subscriptions     []models.Subscription
	Tokens            []models.GameToken
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) period() time.Duration {
	if s.SubscriptionPeriod > 0 {
		return s.SubscriptionPeriod
	}
	return DefaultSubscriptionPeriod
}

func (s *Service) CheckoutGame(ctx context.Context, userID uuid.UUID, gameID uint) (*models.PaymentSession, error) {
	game, err := s.Repo.ActiveGame(ctx, gameID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("game %d: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	owned, err := s.Repo.HasPerpetualEntitlement(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, fmt.Errorf("%w: game already owned", ErrConflict)
	}

	sess := &models.PaymentSession{
		SessionID: uuid.New(),
		UserID:    userID,
		GameID:    &game.ID,
		Amount:    game.Price,
		Status:    models.SessionPending,
		CreatedAt: s.now(),
	}
	if err := s.Repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	sess.Game = game
	s.count(sess, models.SessionPending)
	return sess, nil
}

func (s *Service) CheckoutPlan(ctx context.Context, userID uuid.UUID, planID uint) (*models.PaymentSession, error) {
	plan, err := s.Repo.ActivePlan(ctx, planID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("plan %d: %w", planID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	running, err := s.Repo.HasRunningSubscription(ctx, userID, planID, s.now())
	if err != nil {
		return nil, err
	}
	if running {
		return nil, fmt.Errorf("%w: subscription already active", ErrConflict)
	}

	sess := &models.PaymentSession{
		SessionID: uuid.New(),
		UserID:    userID,
		PlanID:    &plan.ID,
		Amount:    plan.Price,
		Status:    models.SessionPending,
		CreatedAt: s.now(),
	}
	if err := s.Repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	sess.Plan = plan
	s.count(sess, models.SessionPending)
	return sess, nil
}

// GetSession hides sessions of other users behind ErrNotFound.
func (s *Service) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.PaymentSession, error) {
	sess, err := s.Repo.SessionForUser(ctx, userID, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// CompleteSession simulates a successful payment. Records, entitlements and tokens commit together.
func (s *Service) CompleteSession(ctx context.Context, userID, sessionID uuid.UUID) (*Confirmation, error) {
	l := logging.FromContext(ctx).With("svc", "checkout.complete")

	sess, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionPending {
		return nil, fmt.Errorf("%w: session already %s", ErrConflict, sess.Status)
	}

	conf := &Confirmation{}
	var ents *entsvc.Service
	err = s.Repo.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := &repo.GormRepo{DB: tx}
		ents = s.Entitlements.WithTx(tx)
		now := s.now()

		ok, err := r.FinishSession(ctx, sess.ID, models.SessionCompleted, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: session already processed", ErrConflict)
		}
		sess.Status = models.SessionCompleted
		sess.CompletedAt = &now

		if sess.GameID != nil {
			return s.completeGame(ctx, r, ents, sess, now, conf)
		}
		return s.completePlan(ctx, r, ents, sess, now, conf)
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			l.Error("complete_session_error", "session_id", sessionID, "error", err)
		}
		return nil, err
	}
	conf.Session = *sess

	ents.FlushEvents(ctx)
	s.count(sess, models.SessionCompleted)

	data := map[string]any{
		"session_id": sess.SessionID.String(),
		"user_id":    userID.String(),
		"kind":       sess.Kind(),
		"amount":     sess.Amount,
		"games":      len(conf.Games),
	}
	if sess.GameID != nil {
		data["game_id"] = *sess.GameID
	}
	if sess.PlanID != nil {
		data["plan_id"] = *sess.PlanID
	}
	events.Publish(ctx, s.Events, l, events.TopicCommerce, userID.String(), events.New("payment_completed", data))

	l.Info("checkout_success", "session_id", sess.SessionID, "kind", sess.Kind(), "games", len(conf.Games))
	return conf, nil
}

func (s *Service) completeGame(ctx context.Context, r *repo.GormRepo, ents *entsvc.Service, sess *models.PaymentSession, now time.Time, conf *Confirmation) error {
	game, err := r.GetGame(ctx, *sess.GameID)
	if err != nil {
		return err
	}
	owned, err := r.HasPerpetualEntitlement(ctx, sess.UserID, game.ID)
	if err != nil {
		return err
	}
	if owned {
		return fmt.Errorf("%w: game already owned", ErrConflict)
	}

	purchase := &models.Purchase{
		UserID:         sess.UserID,
		GameID:         game.ID,
		Amount:         sess.Amount,
		Status:         models.PurchaseCompleted,
		PurchasedAt:    now,
		IdempotencyKey: sess.SessionID,
	}
	if err := r.CreatePurchase(ctx, purchase); err != nil {
		return err
	}
	conf.Purchase = purchase

	ent, err := ents.Grant(ctx, entsvc.GrantInput{
		UserID:     sess.UserID,
		GameID:     game.ID,
		PurchaseID: &purchase.ID,
		Perpetual:  true,
	})
	if err != nil {
		return err
	}
	issued, err := ents.CreateGameToken(ctx, ent)
	if err != nil {
		return err
	}
	conf.Games = append(conf.Games, GrantedGame{Game: *game, Token: issued})
	return nil
}

func (s *Service) completePlan(ctx context.Context, r *repo.GormRepo, ents *entsvc.Service, sess *models.PaymentSession, now time.Time, conf *Confirmation) error {
	running, err := r.HasRunningSubscription(ctx, sess.UserID, *sess.PlanID, now)
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("%w: subscription already active", ErrConflict)
	}

	sub := &models.Subscription{
		UserID:           sess.UserID,
		PlanID:           *sess.PlanID,
		Status:           models.SubscriptionActive,
		StartDate:        now,
		CurrentPeriodEnd: now.Add(s.period()),
		IdempotencyKey:   sess.SessionID,
	}
	if err := r.CreateSubscription(ctx, sub); err != nil {
		return err
	}
	conf.Subscription = sub

	games, err := r.PlanGames(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	for _, g := range games {
		ent, err := ents.Grant(ctx, entsvc.GrantInput{
			UserID:       sess.UserID,
			GameID:       g.ID,
			Subscription: sub,
		})
		if err != nil {
			return err
		}
		issued, err := ents.CreateGameToken(ctx, ent)
		if err != nil {
			return err
		}
		conf.Games = append(conf.Games, GrantedGame{Game: g, Token: issued})
	}
	return nil
}

func (s *Service) FailSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.PaymentSession, error) {
	l := logging.FromContext(ctx).With("svc", "checkout.fail")

	sess, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionPending {
		return nil, fmt.Errorf("%w: session already %s", ErrConflict, sess.Status)
	}

	now := s.now()
	ok, err := s.Repo.FinishSession(ctx, sess.ID, models.SessionFailed, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: session already processed", ErrConflict)
	}
	sess.Status = models.SessionFailed
	sess.CompletedAt = &now

	s.count(sess, models.SessionFailed)
	events.Publish(ctx, s.Events, l, events.TopicCommerce, userID.String(), events.New("payment_failed", map[string]any{
		"session_id": sess.SessionID.String(),
		"user_id":    userID.String(),
		"kind":       sess.Kind(),
		"amount":     sess.Amount,
	}))
	return sess, nil
}

// CancelSubscription stops renewal. Access continues until the current period ends.
func (s *Service) CancelSubscription(ctx context.Context, userID uuid.UUID, subscriptionID uint) (*models.Subscription, error) {
	l := logging.FromContext(ctx).With("svc", "checkout.cancel_subscription")

	sub, err := s.Repo.SubscriptionForUser(ctx, userID, subscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("subscription: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubscriptionActive {
		return nil, fmt.Errorf("%w: subscription is %s", ErrConflict, sub.Status)
	}

	now := s.now()
	ok, err := s.Repo.CancelSubscription(ctx, sub.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: subscription changed", ErrConflict)
	}
	sub.Status = models.SubscriptionCancelled
	sub.CancelledAt = &now

	events.Publish(ctx, s.Events, l, events.TopicCommerce, userID.String(), events.New("subscription_cancelled", map[string]any{
		"subscription_id":    sub.ID,
		"user_id":            userID.String(),
		"plan_id":            sub.PlanID,
		"current_period_end": sub.CurrentPeriodEnd,
	}))
	return sub, nil
}

func (s *Service) Library(ctx context.Context, userID uuid.UUID) (*Library, error) {
	lib := &Library{}
	var err error

	if lib.Purchased, err = s.Repo.PurchasedEntitlements(ctx, userID); err != nil {
		return nil, err
	}
	if lib.Subscriptions, err = s.Repo.RunningSubscriptions(ctx, userID, s.now()); err != nil {
		return nil, err
	}
	for _, sub := range lib.Subscriptions {
		games, err := s.Repo.PlanGames(ctx, sub.PlanID)
		if err != nil {
			return nil, err
		}
		for _, g := range games {
			lib.SubscriptionGames = append(lib.SubscriptionGames, SubscriptionGame{Game: g, Subscription: sub})
		}
	}
	if lib.Tokens, err = s.Entitlements.ListActiveTokens(ctx, userID); err != nil {
		return nil, err
	}
	return lib, nil
}

func (s *Service) count(sess *models.PaymentSession, status string) {
	if s.Metrics != nil {
		s.Metrics.Checkouts.WithLabelValues(sess.Kind(), status).Inc()
	}
}
