package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/retro_games/internal/entitlement/repo"
	"github.com/Skotchmaster/retro_games/internal/models"
	"github.com/Skotchmaster/retro_games/pkg/events"
	"github.com/Skotchmaster/retro_games/pkg/hash"
	"github.com/Skotchmaster/retro_games/pkg/logging"
	"github.com/Skotchmaster/retro_games/pkg/metrics"
)

var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	// ErrInvalidToken covers unknown, revoked, expired and wrong-game tokens alike.
	ErrInvalidToken = errors.New("invalid token")
	ErrNotEntitled  = errors.New("not entitled")
)

const (
	tokenBytes  = 32
	prefixChars = 8
)

type Service struct {
	Repo    *repo.GormRepo
	Events  events.Publisher
	Metrics *metrics.Metrics
	Now     func() time.Time

	outbox *outbox
}

type IssuedToken struct {
	Token *models.GameToken
	// Raw is set only when the token was created by this call.
	Raw     string
	Created bool
}

type Validation struct {
	Token       models.GameToken
	User        models.User
	Game        models.Game
	Entitlement models.Entitlement
}

type GrantInput struct {
	UserID       uuid.UUID
	GameID       uint
	PurchaseID   *uint
	Subscription *models.Subscription
	Perpetual    bool
}

// WithTx binds the service to an open transaction. Events are held until FlushEvents.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{
		Repo:    &repo.GormRepo{DB: tx},
		Events:  s.Events,
		Metrics: s.Metrics,
		Now:     s.Now,
		outbox:  &outbox{},
	}
}

// FlushEvents publishes events held by a transaction-bound service. Call after commit.
func (s *Service) FlushEvents(ctx context.Context) {
	if s.outbox == nil {
		return
	}
	l := logging.FromContext(ctx).With("svc", "entitlement.flush")
	for _, p := range s.outbox.drain() {
		events.Publish(ctx, s.Events, l, p.Topic, p.Key, p.Event)
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Grant gets or creates the (user, game) entitlement and relinks it to the newer source.
func (s *Service) Grant(ctx context.Context, in GrantInput) (*models.Entitlement, error) {
	if in.UserID == uuid.Nil || in.GameID == 0 {
		return nil, fmt.Errorf("%w: user and game required", ErrValidation)
	}
	if !in.Perpetual && in.Subscription == nil {
		return nil, fmt.Errorf("%w: non-perpetual grant needs a subscription", ErrValidation)
	}

	var subID *uint
	if in.Subscription != nil {
		id := in.Subscription.ID
		subID = &id
	}

	ent, err := s.Repo.GetEntitlement(ctx, in.UserID, in.GameID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ent = &models.Entitlement{
			UserID:         in.UserID,
			GameID:         in.GameID,
			PurchaseID:     in.PurchaseID,
			SubscriptionID: subID,
			IsPerpetual:    in.Perpetual,
			GrantedDate:    s.now(),
		}
		if err := s.Repo.CreateEntitlement(ctx, ent); err != nil {
			return nil, err
		}
		ent.Subscription = in.Subscription
		s.emit(ctx, events.TopicEntitlement, in.UserID.String(), events.New("entitlement_granted", map[string]any{
			"entitlement_id": ent.ID,
			"user_id":        in.UserID.String(),
			"game_id":        in.GameID,
			"is_perpetual":   in.Perpetual,
		}))
		return ent, nil
	}
	if err != nil {
		return nil, err
	}

	if ent.IsPerpetual {
		return ent, nil
	}

	var expiresAt *time.Time
	if in.Perpetual {
		ent.IsPerpetual = true
		ent.PurchaseID = in.PurchaseID
		ent.SubscriptionID = nil
		ent.Subscription = nil
	} else {
		ent.SubscriptionID = subID
		ent.Subscription = in.Subscription
		end := in.Subscription.CurrentPeriodEnd
		expiresAt = &end
	}
	if err := s.Repo.UpdateEntitlementSource(ctx, ent.ID, ent.IsPerpetual, ent.PurchaseID, ent.SubscriptionID); err != nil {
		return nil, err
	}

	active, err := s.Repo.ActiveToken(ctx, in.UserID, in.GameID)
	switch {
	case err == nil:
		if err := s.Repo.SetTokenExpiry(ctx, active.ID, expiresAt); err != nil {
			return nil, err
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	return ent, nil
}

// CreateGameToken returns the active token for the entitlement's (user, game) or issues a new one.
func (s *Service) CreateGameToken(ctx context.Context, ent *models.Entitlement) (*IssuedToken, error) {
	l := logging.FromContext(ctx).With("svc", "entitlement.create_token")

	var issued *IssuedToken
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		now := s.now()

		existing, err := tx.ActiveToken(ctx, ent.UserID, ent.GameID)
		switch {
		case err == nil && !existing.Expired(now):
			issued = &IssuedToken{Token: existing}
			return nil
		case err == nil:
			if _, err := tx.SetTokenStatus(ctx, existing.ID, models.TokenActive, models.TokenExpired); err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		expiresAt, err := s.accessUntil(ent, now)
		if err != nil {
			return err
		}

		raw, err := generateToken()
		if err != nil {
			return err
		}
		tok := &models.GameToken{
			UserID:        ent.UserID,
			GameID:        ent.GameID,
			EntitlementID: ent.ID,
			TokenHash:     hash.Sha256Hex(raw),
			Prefix:        raw[:prefixChars],
			Status:        models.TokenActive,
			ExpiresAt:     expiresAt,
		}
		if err := tx.CreateToken(ctx, tok); err != nil {
			// A concurrent issuer won the partial unique index; hand out its token.
			if winner, rerr := tx.ActiveToken(ctx, ent.UserID, ent.GameID); rerr == nil {
				issued = &IssuedToken{Token: winner}
				return nil
			}
			return err
		}
		issued = &IssuedToken{Token: tok, Raw: raw, Created: true}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotEntitled) {
			l.Error("create_token_error", "user_id", ent.UserID, "game_id", ent.GameID, "error", err)
		}
		return nil, err
	}

	if issued.Created {
		if s.Metrics != nil {
			s.Metrics.TokensIssued.Inc()
		}
		l.Info("token_issued", "user_id", ent.UserID, "game_id", ent.GameID, "prefix", issued.Token.Prefix)
		s.emit(ctx, events.TopicEntitlement, ent.UserID.String(), events.New("token_issued", map[string]any{
			"token_id": issued.Token.ID,
			"user_id":  ent.UserID.String(),
			"game_id":  ent.GameID,
			"prefix":   issued.Token.Prefix,
		}))
	}
	return issued, nil
}

// ValidateToken checks a raw token and records its use. Every rejection is ErrInvalidToken.
func (s *Service) ValidateToken(ctx context.Context, raw string, gameID *uint) (*Validation, error) {
	l := logging.FromContext(ctx).With("svc", "entitlement.validate_token")

	if raw == "" {
		s.observe(metrics.OutcomeInvalid)
		return nil, ErrInvalidToken
	}
	digest := hash.Sha256Hex(raw)

	var (
		result *Validation
		reason string
	)
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		tok, err := tx.TokenByHash(ctx, digest, models.TokenActive)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			reason = "unknown or inactive"
			return nil
		}
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(tok.TokenHash), []byte(digest)) != 1 {
			reason = "hash mismatch"
			return nil
		}

		now := s.now()
		if tok.Expired(now) {
			if _, err := tx.SetTokenStatus(ctx, tok.ID, models.TokenActive, models.TokenExpired); err != nil {
				return err
			}
			reason = "expired"
			return nil
		}
		if gameID != nil && tok.GameID != *gameID {
			reason = "game mismatch"
			return nil
		}

		ok, err := tx.MarkUsed(ctx, tok.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			reason = "state changed"
			return nil
		}

		fresh, err := tx.GetToken(ctx, tok.ID)
		if err != nil {
			return err
		}
		tok.UsageCount = fresh.UsageCount
		tok.LastUsedAt = fresh.LastUsedAt

		result = &Validation{Token: *tok, User: tok.User, Game: tok.Game, Entitlement: tok.Entitlement}
		return nil
	})
	if err != nil {
		s.observe(metrics.OutcomeError)
		l.Error("validate_token_error", "error", err)
		return nil, err
	}
	if result == nil {
		s.observe(metrics.OutcomeInvalid)
		l.Warn("validate_token_rejected", "reason", reason)
		return nil, ErrInvalidToken
	}

	s.observe(metrics.OutcomeValid)
	return result, nil
}

// RevokeToken moves the token to revoked. Revoking twice is a no-op.
func (s *Service) RevokeToken(ctx context.Context, raw string) error {
	if raw == "" {
		return ErrInvalidToken
	}
	tok, err := s.Repo.TokenByHash(ctx, hash.Sha256Hex(raw), "")
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}
	return s.revoke(ctx, tok)
}

func (s *Service) RevokeForGame(ctx context.Context, userID uuid.UUID, gameID uint) error {
	tok, err := s.Repo.ActiveToken(ctx, userID, gameID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("no active token: %w", ErrNotFound)
	}
	if err != nil {
		return err
	}
	return s.revoke(ctx, tok)
}

func (s *Service) revoke(ctx context.Context, tok *models.GameToken) error {
	if tok.Status == models.TokenRevoked {
		return nil
	}
	changed, err := s.Repo.SetTokenStatus(ctx, tok.ID, tok.Status, models.TokenRevoked)
	if err != nil {
		return err
	}
	if !changed {
		// Status moved under us; retry once from whatever it is now.
		cur, err := s.Repo.GetToken(ctx, tok.ID)
		if err != nil {
			return err
		}
		if cur.Status == models.TokenRevoked {
			return nil
		}
		if _, err := s.Repo.SetTokenStatus(ctx, cur.ID, cur.Status, models.TokenRevoked); err != nil {
			return err
		}
	}

	if s.Metrics != nil {
		s.Metrics.TokensRevoked.Inc()
	}
	logging.FromContext(ctx).Info("token_revoked", "svc", "entitlement.revoke", "prefix", tok.Prefix, "game_id", tok.GameID)
	s.emit(ctx, events.TopicEntitlement, tok.UserID.String(), events.New("token_revoked", map[string]any{
		"token_id": tok.ID,
		"user_id":  tok.UserID.String(),
		"game_id":  tok.GameID,
	}))
	return nil
}

// IssueForGame hands the caller a token for a game they are entitled to.
func (s *Service) IssueForGame(ctx context.Context, userID uuid.UUID, gameID uint) (*IssuedToken, error) {
	ent, err := s.entitlementFor(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	return s.CreateGameToken(ctx, ent)
}

// RotateToken revokes the caller's active token for the game and issues a fresh one atomically.
func (s *Service) RotateToken(ctx context.Context, userID uuid.UUID, gameID uint) (*IssuedToken, error) {
	var (
		issued *IssuedToken
		txSvc  *Service
	)
	err := s.Repo.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txSvc = s.WithTx(tx)
		ent, err := txSvc.entitlementFor(ctx, userID, gameID)
		if err != nil {
			return err
		}
		if err := txSvc.RevokeForGame(ctx, userID, gameID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		issued, err = txSvc.CreateGameToken(ctx, ent)
		return err
	})
	if err != nil {
		return nil, err
	}
	txSvc.FlushEvents(ctx)
	return issued, nil
}

func (s *Service) ListActiveTokens(ctx context.Context, userID uuid.UUID) ([]models.GameToken, error) {
	if err := s.Repo.ExpireTokens(ctx, userID, s.now()); err != nil {
		return nil, err
	}
	return s.Repo.ListActiveTokens(ctx, userID)
}

func (s *Service) ListEntitlements(ctx context.Context, userID uuid.UUID) ([]models.Entitlement, error) {
	return s.Repo.ListEntitlements(ctx, userID)
}

// HasAccess is true for perpetual entitlements and for subscriptions still inside their period.
func (s *Service) HasAccess(ctx context.Context, userID uuid.UUID, gameID uint) (bool, error) {
	_, err := s.entitlementFor(ctx, userID, gameID)
	if errors.Is(err, ErrNotEntitled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) ActiveToken(ctx context.Context, userID uuid.UUID, gameID uint) (*models.GameToken, error) {
	tok, err := s.Repo.ActiveToken(ctx, userID, gameID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if tok.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return tok, nil
}

func (s *Service) entitlementFor(ctx context.Context, userID uuid.UUID, gameID uint) (*models.Entitlement, error) {
	ent, err := s.Repo.GetEntitlement(ctx, userID, gameID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotEntitled
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.accessUntil(ent, s.now()); err != nil {
		return nil, err
	}
	return ent, nil
}

// accessUntil is nil for perpetual access and the subscription period end otherwise.
func (s *Service) accessUntil(ent *models.Entitlement, now time.Time) (*time.Time, error) {
	if ent.IsPerpetual {
		return nil, nil
	}
	if ent.Subscription == nil || !ent.Subscription.IsActive(now) {
		return nil, ErrNotEntitled
	}
	end := ent.Subscription.CurrentPeriodEnd
	return &end, nil
}

func (s *Service) observe(outcome string) {
	if s.Metrics != nil {
		s.Metrics.TokenValidations.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) emit(ctx context.Context, topic, key string, ev events.Event) {
	if s.outbox != nil {
		s.outbox.add(events.Published{Topic: topic, Key: key, Event: ev})
		return
	}
	events.Publish(ctx, s.Events, logging.FromContext(ctx), topic, key, ev)
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type outbox struct {
	mu      sync.Mutex
	pending []events.Published
}

func (o *outbox) add(p events.Published) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, p)
}

func (o *outbox) drain() []events.Published {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	return out
}
