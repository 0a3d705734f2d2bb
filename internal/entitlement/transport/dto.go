package transport

import (
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/retro_games/internal/entitlement/service"
	"github.com/Skotchmaster/retro_games/internal/models"
)

type ValidateTokenRequest struct {
	Token  string `json:"token"`
	GameID *uint  `json:"game_id"`
}

type RevokeTokenRequest struct {
	Token string `json:"token"`
}

type GameInfo struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Console     string `json:"console"`
	Description string `json:"description,omitempty"`
	RomURL      string `json:"rom_url,omitempty"`
	CoverImage  string `json:"cover_image,omitempty"`
}

type UserInfo struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type EntitlementInfo struct {
	IsPerpetual bool      `json:"is_perpetual"`
	GrantedDate time.Time `json:"granted_date"`
}

type TokenInfo struct {
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	UsageCount int64      `json:"usage_count"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

type ValidateTokenResponse struct {
	Valid       bool            `json:"valid"`
	Game        GameInfo        `json:"game"`
	User        UserInfo        `json:"user"`
	Entitlement EntitlementInfo `json:"entitlement"`
	TokenInfo   TokenInfo       `json:"token_info"`
}

type InvalidTokenResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
}

type UserToken struct {
	ID         uint       `json:"id"`
	Prefix     string     `json:"prefix"`
	Status     string     `json:"status"`
	Game       GameInfo   `json:"game"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	UsageCount int64      `json:"usage_count"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

type IssuedTokenResponse struct {
	// Token is present only in the response that created it.
	Token   string    `json:"token,omitempty"`
	Created bool      `json:"created"`
	Details UserToken `json:"details"`
}

type AccessResponse struct {
	GameID    uint       `json:"game_id"`
	HasAccess bool       `json:"has_access"`
	Token     *UserToken `json:"token,omitempty"`
}

func NewGameInfo(g models.Game) GameInfo {
	return GameInfo{
		ID:          g.ID,
		Title:       g.Title,
		Slug:        g.Slug,
		Console:     g.Console,
		Description: g.Description,
		RomURL:      g.RomURL,
		CoverImage:  g.CoverImage,
	}
}

func NewValidateTokenResponse(v *service.Validation) ValidateTokenResponse {
	return ValidateTokenResponse{
		Valid: true,
		Game:  NewGameInfo(v.Game),
		User: UserInfo{
			ID:       v.User.ID,
			Username: v.User.Username,
			Email:    v.User.Email,
		},
		Entitlement: EntitlementInfo{
			IsPerpetual: v.Entitlement.IsPerpetual,
			GrantedDate: v.Entitlement.GrantedDate,
		},
		TokenInfo: TokenInfo{
			CreatedAt:  v.Token.CreatedAt,
			LastUsedAt: v.Token.LastUsedAt,
			UsageCount: v.Token.UsageCount,
			ExpiresAt:  v.Token.ExpiresAt,
		},
	}
}

func NewUserToken(t models.GameToken) UserToken {
	return UserToken{
		ID:         t.ID,
		Prefix:     t.Prefix,
		Status:     t.Status,
		Game:       GameInfo{ID: t.GameID, Title: t.Game.Title, Slug: t.Game.Slug, Console: t.Game.Console},
		CreatedAt:  t.CreatedAt,
		LastUsedAt: t.LastUsedAt,
		UsageCount: t.UsageCount,
		ExpiresAt:  t.ExpiresAt,
	}
}

func NewIssuedTokenResponse(it *service.IssuedToken) IssuedTokenResponse {
	return IssuedTokenResponse{
		Token:   it.Raw,
		Created: it.Created,
		Details: NewUserToken(*it.Token),
	}
}
