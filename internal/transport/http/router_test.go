package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authhttp "github.com/Skotchmaster/retro_games/internal/auth/httpserver"
	authrepo "github.com/Skotchmaster/retro_games/internal/auth/repo"
	authsvc "github.com/Skotchmaster/retro_games/internal/auth/service"
	cataloghttp "github.com/Skotchmaster/retro_games/internal/catalog/httpserver"
	catalogrepo "github.com/Skotchmaster/retro_games/internal/catalog/repo"
	catalogsvc "github.com/Skotchmaster/retro_games/internal/catalog/service"
	checkouthttp "github.com/Skotchmaster/retro_games/internal/checkout/httpserver"
	checkoutrepo "github.com/Skotchmaster/retro_games/internal/checkout/repo"
	checkoutsvc "github.com/Skotchmaster/retro_games/internal/checkout/service"
	enthttp "github.com/Skotchmaster/retro_games/internal/entitlement/httpserver"
	entrepo "github.com/Skotchmaster/retro_games/internal/entitlement/repo"
	entsvc "github.com/Skotchmaster/retro_games/internal/entitlement/service"
	gamerequesthttp "github.com/Skotchmaster/retro_games/internal/gamerequest/httpserver"
	gamerequestrepo "github.com/Skotchmaster/retro_games/internal/gamerequest/repo"
	gamerequestsvc "github.com/Skotchmaster/retro_games/internal/gamerequest/service"
	dbtest "github.com/Skotchmaster/retro_games/internal/testutil"
	"github.com/Skotchmaster/retro_games/pkg/events"
	"github.com/Skotchmaster/retro_games/pkg/metrics"
	authmw "github.com/Skotchmaster/retro_games/pkg/middleware/auth"
	"github.com/Skotchmaster/retro_games/pkg/ratelimit"
	memorylimiter "github.com/Skotchmaster/retro_games/pkg/ratelimit/memory"
	"github.com/Skotchmaster/retro_games/pkg/tokens"
)

var secret = []byte("router-test-secret")

type server struct {
	e       *echo.Echo
	deps    *Deps
	userTok string
	admTok  string
}

func newServer(t *testing.T) *server {
	t.Helper()

	db := dbtest.NewDB(t)
	m := metrics.New()
	auth := &authsvc.AuthService{
		Repo:          &authrepo.GormRepo{DB: db},
		JWTSecret:     secret,
		RefreshSecret: []byte("refresh"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}
	catalog := &catalogsvc.CatalogService{Repo: &catalogrepo.GormRepo{DB: db}, Events: events.Nop{}}
	ents := &entsvc.Service{Repo: &entrepo.GormRepo{DB: db}, Events: events.Nop{}, Metrics: m}

	d := &Deps{
		DB:      db,
		Auth:    authmw.New(secret, auth),
		Limiter: memorylimiter.New(map[string]ratelimit.Limit{ValidateBucket: {Limit: 1, Window: time.Minute}}),
		Metrics: m,

		AuthHandler:    &authhttp.AuthHTTP{Svc: auth},
		CatalogHandler: &cataloghttp.CatalogHTTP{Svc: catalog},
		CheckoutHandler: &checkouthttp.CheckoutHTTP{Svc: &checkoutsvc.Service{
			Repo:         &checkoutrepo.GormRepo{DB: db},
			Entitlements: ents,
			Events:       events.Nop{},
			Metrics:      m,
		}},
		EntitlementHandler: &enthttp.EntitlementHTTP{Svc: ents},
		GameRequestHandler: &gamerequesthttp.GameRequestHTTP{Svc: &gamerequestsvc.Service{
			Repo:    &gamerequestrepo.GormRepo{DB: db},
			Catalog: catalog,
			Events:  events.Nop{},
		}},
	}

	e := echo.New()
	e.Use(m.Middleware())
	Register(e, d)

	user := dbtest.CreateUser(t, db, "player1", tokens.RoleUser)
	admin := dbtest.CreateUser(t, db, "admin1", tokens.RoleAdmin)
	dbtest.CreateGame(t, db, "Mega Man 2", "NES", 299)

	userTok, err := tokens.SignAccess(secret, user.ID.String(), tokens.RoleUser, time.Now().Add(time.Minute))
	require.NoError(t, err)
	admTok, err := tokens.SignAccess(secret, admin.ID.String(), tokens.RoleAdmin, time.Now().Add(time.Minute))
	require.NoError(t, err)

	return &server{e: e, deps: d, userTok: userTok, admTok: admTok}
}

func (s *server) do(method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	s := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{name: "live", method: http.MethodGet, path: "/health/live", want: http.StatusOK},
		{name: "ready", method: http.MethodGet, path: "/health/ready", want: http.StatusOK},
		{name: "games", method: http.MethodGet, path: "/api/v1/games", want: http.StatusOK},
		{name: "consoles before ref", method: http.MethodGet, path: "/api/v1/games/consoles", want: http.StatusOK},
		{name: "search before ref", method: http.MethodGet, path: "/api/v1/games/search?q=mega", want: http.StatusOK},
		{name: "game by slug", method: http.MethodGet, path: "/api/v1/games/mega-man-2", want: http.StatusOK},
		{name: "plans", method: http.MethodGet, path: "/api/v1/plans", want: http.StatusOK},
		{name: "categories", method: http.MethodGet, path: "/api/v1/categories", want: http.StatusOK},
		{name: "tokens need auth", method: http.MethodGet, path: "/api/v1/user/tokens", want: http.StatusUnauthorized},
		{name: "tokens", method: http.MethodGet, path: "/api/v1/user/tokens", token: s.userTok, want: http.StatusOK},
		{name: "library", method: http.MethodGet, path: "/api/v1/library", token: s.userTok, want: http.StatusOK},
		{name: "me", method: http.MethodGet, path: "/api/v1/auth/me", token: s.userTok, want: http.StatusOK},
		{name: "admin forbidden", method: http.MethodGet, path: "/api/v1/admin/game-requests", token: s.userTok, want: http.StatusForbidden},
		{name: "admin", method: http.MethodGet, path: "/api/v1/admin/game-requests", token: s.admTok, want: http.StatusOK},
		{name: "revoke unknown", method: http.MethodPost, path: "/api/v1/tokens/revoke", body: `{"token":"nope"}`, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestValidateIsRateLimited(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	body := `{"token":"unknown-token","game_id":1}`

	rec := s.do(http.MethodPost, "/api/v1/tokens/validate", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/tokens/validate", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.deps.Metrics.TokenValidations.WithLabelValues(metrics.OutcomeRateLimited)))

	rec = s.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "retro_token_validations_total")
}
