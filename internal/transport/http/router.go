package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	authhttp "github.com/Skotchmaster/retro_games/internal/auth/httpserver"
	cataloghttp "github.com/Skotchmaster/retro_games/internal/catalog/httpserver"
	checkouthttp "github.com/Skotchmaster/retro_games/internal/checkout/httpserver"
	enthttp "github.com/Skotchmaster/retro_games/internal/entitlement/httpserver"
	gamerequesthttp "github.com/Skotchmaster/retro_games/internal/gamerequest/httpserver"
	pkgdb "github.com/Skotchmaster/retro_games/pkg/db"
	"github.com/Skotchmaster/retro_games/pkg/logging"
	"github.com/Skotchmaster/retro_games/pkg/metrics"
	authmw "github.com/Skotchmaster/retro_games/pkg/middleware/auth"
	ratelimitmw "github.com/Skotchmaster/retro_games/pkg/middleware/ratelimit"
	"github.com/Skotchmaster/retro_games/pkg/ratelimit"
)

const ValidateBucket = "validate"

type Deps struct {
	DB      *gorm.DB
	Auth    *authmw.Auth
	Limiter ratelimit.Limiter
	Metrics *metrics.Metrics

	AuthHandler        *authhttp.AuthHTTP
	CatalogHandler     *cataloghttp.CatalogHTTP
	CheckoutHandler    *checkouthttp.CheckoutHTTP
	EntitlementHandler *enthttp.EntitlementHTTP
	GameRequestHandler *gamerequesthttp.GameRequestHTTP
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := pkgdb.Ping(c.Request().Context(), d.DB); err != nil {
			logging.FromContext(c.Request().Context()).Error("ready_check_failed", "status", 503, "error", err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	v1 := e.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.LogOut)
	auth.GET("/me", d.AuthHandler.Me, d.Auth.RequireAuth)

	// static segments are registered before :ref
	games := v1.Group("/games")
	games.GET("", d.CatalogHandler.ListGames)
	games.GET("/consoles", d.CatalogHandler.Consoles)
	games.GET("/search", d.CatalogHandler.Search)
	games.GET("/:ref", d.CatalogHandler.GetGame)
	games.GET("/:id/access", d.EntitlementHandler.GameAccess, d.Auth.RequireAuth)

	v1.GET("/plans", d.CatalogHandler.ListPlans)
	v1.GET("/plans/:id", d.CatalogHandler.GetPlan)
	v1.GET("/categories", d.CatalogHandler.ListCategories)

	tokens := v1.Group("/tokens")
	tokens.POST("/validate", d.EntitlementHandler.ValidateToken,
		ratelimitmw.ByIP(d.Limiter, ValidateBucket, d.countRateLimited))
	tokens.POST("/revoke", d.EntitlementHandler.RevokeToken)

	user := d.Auth.RequireAuth
	v1.GET("/user/tokens", d.EntitlementHandler.ListUserTokens, user)
	v1.POST("/library/games/:id/token", d.EntitlementHandler.IssueToken, user)
	v1.POST("/library/games/:id/token/rotate", d.EntitlementHandler.RotateToken, user)
	v1.DELETE("/library/games/:id/token", d.EntitlementHandler.RevokeGameToken, user)
	v1.GET("/library", d.CheckoutHandler.Library, user)

	v1.POST("/checkout/games/:id", d.CheckoutHandler.CheckoutGame, user)
	v1.POST("/checkout/plans/:id", d.CheckoutHandler.CheckoutPlan, user)
	v1.GET("/checkout/sessions/:session_id", d.CheckoutHandler.GetSession, user)
	v1.POST("/checkout/sessions/:session_id/success", d.CheckoutHandler.CompleteSession, user)
	v1.POST("/checkout/sessions/:session_id/failure", d.CheckoutHandler.FailSession, user)
	v1.POST("/subscriptions/:id/cancel", d.CheckoutHandler.CancelSubscription, user)

	v1.POST("/game-requests", d.GameRequestHandler.Submit, user)
	v1.GET("/game-requests/mine", d.GameRequestHandler.ListMine, user)

	admin := v1.Group("/admin", d.Auth.RequireAdmin)
	admin.POST("/games", d.CatalogHandler.CreateGame)
	admin.PATCH("/games/:id", d.CatalogHandler.PatchGame)
	admin.DELETE("/games/:id", d.CatalogHandler.DeleteGame)
	admin.POST("/plans", d.CatalogHandler.CreatePlan)
	admin.POST("/categories", d.CatalogHandler.CreateCategory)

	admin.GET("/game-requests", d.GameRequestHandler.List)
	admin.GET("/game-requests/:id", d.GameRequestHandler.Get)
	admin.POST("/game-requests/:id/approve", d.GameRequestHandler.Approve)
	admin.POST("/game-requests/:id/reject", d.GameRequestHandler.Reject)
	admin.POST("/game-requests/:id/create-game", d.GameRequestHandler.CreateGame)
}

func (d *Deps) countRateLimited(echo.Context) {
	if d.Metrics != nil {
		d.Metrics.TokenValidations.WithLabelValues(metrics.OutcomeRateLimited).Inc()
	}
}
