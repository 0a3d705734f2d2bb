package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/retro_games/pkg/logging"
	"github.com/Skotchmaster/retro_games/pkg/tokens"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Refresher rotates a refresh token into a new cookie pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error)
}

type Auth struct {
	JWTSecret       []byte
	Refresher       Refresher
	// InsecureCookies drops the Secure attribute for plain HTTP development.
	InsecureCookies bool
}

func New(secret []byte, refresher Refresher) *Auth {
	return &Auth{JWTSecret: secret, Refresher: refresher}
}

type validatorFunc func(claims *tokens.AccessClaims) error

func (m *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.require(next, nil)
}

func (m *Auth) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return m.require(next, func(claims *tokens.AccessClaims) error {
		if claims.Role != tokens.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return nil
	})
}

func (m *Auth) require(next echo.HandlerFunc, validator validatorFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		l := logging.FromContext(c.Request().Context()).With("mw", "auth")

		raw, fromCookie := accessToken(c)
		if raw == "" && !hasRefreshCookie(c) {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		var claims *tokens.AccessClaims
		var err error
		if raw != "" {
			claims, err = tokens.AccessClaimsFromToken(raw, m.JWTSecret)
		} else {
			err = jwt.ErrTokenExpired
		}

		// Bearer callers are never refreshed; browsers holding cookies are.
		canRefresh := raw == "" || fromCookie
		if err != nil {
			if !errors.Is(err, jwt.ErrTokenExpired) || !canRefresh {
				m.clearAuthCookies(c)
				l.Warn("auth_failed", "status", 401, "reason", "invalid access token", "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
			claims, err = m.refresh(c)
			if err != nil {
				m.clearAuthCookies(c)
				l.Warn("auth_failed", "status", 401, "reason", "refresh failed", "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "session expired")
			}
		}

		if validator != nil {
			if vErr := validator(claims); vErr != nil {
				return vErr
			}
		}

		setUserContext(c, claims)
		return next(c)
	}
}

func (m *Auth) refresh(c echo.Context) (*tokens.AccessClaims, error) {
	if m.Refresher == nil {
		return nil, errors.New("refresh not supported")
	}
	cookie, err := c.Cookie(tokens.RefreshCookie)
	if err != nil || cookie.Value == "" {
		return nil, errors.New("refresh token missing")
	}

	pair, err := m.Refresher.Refresh(c.Request().Context(), cookie.Value)
	if err != nil {
		return nil, err
	}

	c.SetCookie(tokens.CreateCookie(tokens.AccessCookie, pair.AccessToken, "/", pair.AccessExp, !m.InsecureCookies))
	c.SetCookie(tokens.CreateCookie(tokens.RefreshCookie, pair.RefreshToken, "/", pair.RefreshExp, !m.InsecureCookies))

	return tokens.AccessClaimsFromToken(pair.AccessToken, m.JWTSecret)
}

// accessToken prefers the cookie and falls back to an Authorization bearer header.
func accessToken(c echo.Context) (string, bool) {
	if ck, err := c.Cookie(tokens.AccessCookie); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if v, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(v), false
	}
	return "", false
}

func hasRefreshCookie(c echo.Context) bool {
	ck, err := c.Cookie(tokens.RefreshCookie)
	return err == nil && ck.Value != ""
}

func (m *Auth) clearAuthCookies(c echo.Context) {
	c.SetCookie(tokens.DeleteCookie(tokens.AccessCookie, "/", !m.InsecureCookies))
	c.SetCookie(tokens.DeleteCookie(tokens.RefreshCookie, "/", !m.InsecureCookies))
}

func setUserContext(c echo.Context, claims *tokens.AccessClaims) {
	c.Set(ctxUserID, claims.Subject)
	c.Set(ctxRole, claims.Role)
}

// UserID returns the authenticated caller set by RequireAuth.
func UserID(c echo.Context) (uuid.UUID, error) {
	s, _ := c.Get(ctxUserID).(string)
	if s == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}

func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// SetUser is used by tests and internal callers that authenticate out of band.
func SetUser(c echo.Context, userID uuid.UUID, role string) {
	c.Set(ctxUserID, userID.String())
	c.Set(ctxRole, role)
}
