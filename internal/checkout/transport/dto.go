package transport

import (
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/retro_games/internal/checkout/service"
	enttransport "github.com/Skotchmaster/retro_games/internal/entitlement/transport"
	"github.com/Skotchmaster/retro_games/internal/models"
)

type ItemInfo struct {
	Kind  string `json:"kind"`
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type SessionResponse struct {
	SessionID   uuid.UUID  `json:"session_id"`
	Status      string     `json:"status"`
	Amount      int64      `json:"amount"`
	Item        *ItemInfo  `json:"item,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type GrantedGame struct {
	Game  enttransport.GameInfo            `json:"game"`
	Token enttransport.IssuedTokenResponse `json:"token"`
}

type ConfirmationResponse struct {
	Session      SessionResponse      `json:"session"`
	PurchaseID   *uint                `json:"purchase_id,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
	Games        []GrantedGame        `json:"games"`
}

type SubscriptionGame struct {
	Game             enttransport.GameInfo `json:"game"`
	SubscriptionID   uint                  `json:"subscription_id"`
	PlanName         string                `json:"plan_name"`
	CurrentPeriodEnd time.Time             `json:"current_period_end"`
}

type PurchasedGame struct {
	Game        enttransport.GameInfo `json:"game"`
	PurchaseID  *uint                 `json:"purchase_id,omitempty"`
	GrantedDate time.Time             `json:"granted_date"`
}

type LibraryResponse struct {
	Purchased         []PurchasedGame          `json:"purchased_games"`
	SubscriptionGames []SubscriptionGame       `json:"subscription_games"`
	Subscriptions     []models.Subscription    `json:"active_subscriptions"`
	Tokens            []enttransport.UserToken `json:"game_tokens"`
}

func NewSessionResponse(s models.PaymentSession) SessionResponse {
	resp := SessionResponse{
		SessionID:   s.SessionID,
		Status:      s.Status,
		Amount:      s.Amount,
		CreatedAt:   s.CreatedAt,
		CompletedAt: s.CompletedAt,
	}
	switch {
	case s.Game != nil:
		resp.Item = &ItemInfo{Kind: "game", ID: s.Game.ID, Name: s.Game.Title, Price: s.Game.Price}
	case s.Plan != nil:
		resp.Item = &ItemInfo{Kind: "plan", ID: s.Plan.ID, Name: s.Plan.Name, Price: s.Plan.Price}
	}
	return resp
}

func NewConfirmationResponse(c *service.Confirmation) ConfirmationResponse {
	resp := ConfirmationResponse{
		Session:      NewSessionResponse(c.Session),
		Subscription: c.Subscription,
		Games:        make([]GrantedGame, 0, len(c.Games)),
	}
	if c.Purchase != nil {
		resp.PurchaseID = &c.Purchase.ID
	}
	for _, g := range c.Games {
		tok := enttransport.NewIssuedTokenResponse(g.Token)
		tok.Details.Game = enttransport.NewGameInfo(g.Game)
		resp.Games = append(resp.Games, GrantedGame{Game: enttransport.NewGameInfo(g.Game), Token: tok})
	}
	return resp
}

func NewLibraryResponse(lib *service.Library) LibraryResponse {
	resp := LibraryResponse{
		Purchased:         make([]PurchasedGame, 0, len(lib.Purchased)),
		SubscriptionGames: make([]SubscriptionGame, 0, len(lib.SubscriptionGames)),
		Subscriptions:     lib.Subscriptions,
		Tokens:            make([]enttransport.UserToken, 0, len(lib.Tokens)),
	}
	if resp.Subscriptions == nil {
		resp.Subscriptions = []models.Subscription{}
	}
	for _, e := range lib.Purchased {
		resp.Purchased = append(resp.Purchased, PurchasedGame{
			Game:        enttransport.NewGameInfo(e.Game),
			PurchaseID:  e.PurchaseID,
			GrantedDate: e.GrantedDate,
		})
	}
	for _, sg := range lib.SubscriptionGames {
		resp.SubscriptionGames = append(resp.SubscriptionGames, SubscriptionGame{
			Game:             enttransport.NewGameInfo(sg.Game),
			SubscriptionID:   sg.Subscription.ID,
			PlanName:         sg.Subscription.Plan.Name,
			CurrentPeriodEnd: sg.Subscription.CurrentPeriodEnd,
		})
	}
	for _, t := range lib.Tokens {
		resp.Tokens = append(resp.Tokens, enttransport.NewUserToken(t))
	}
	return resp
}
