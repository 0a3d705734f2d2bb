package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/retro_games/internal/entitlement/service"
	"github.com/Skotchmaster/retro_games/internal/entitlement/transport"
	"github.com/Skotchmaster/retro_games/pkg/logging"
	middleware "github.com/Skotchmaster/retro_games/pkg/middleware/auth"
)

type EntitlementHTTP struct {
	Svc *service.Service
}

// ValidateToken is called by embedded players on every access.
func (h *EntitlementHTTP) ValidateToken(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "tokens.validate")

	var req transport.ValidateTokenRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("validate_token_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		l.Warn("validate_token_failed", "status", 400, "reason", "token missing")
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	v, err := h.Svc.ValidateToken(ctx, req.Token, req.GameID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return c.JSON(http.StatusUnauthorized, transport.InvalidTokenResponse{
				Valid: false,
				Error: "invalid or expired token",
			})
		}
		l.Error("validate_token_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, transport.NewValidateTokenResponse(v))
}

// RevokeToken is unauthenticated: holding the token is the authority to kill it.
func (h *EntitlementHTTP) RevokeToken(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "tokens.revoke")

	var req transport.RevokeTokenRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("revoke_token_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		l.Warn("revoke_token_failed", "status", 400, "reason", "token missing")
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	if err := h.Svc.RevokeToken(ctx, req.Token); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			l.Warn("revoke_token_failed", "status", 404, "reason", "token not found")
			return echo.NewHTTPError(http.StatusNotFound, "token not found")
		}
		l.Error("revoke_token_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "token revoked",
	})
}

func (h *EntitlementHTTP) ListUserTokens(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "tokens.list_user")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	toks, err := h.Svc.ListActiveTokens(ctx, userID)
	if err != nil {
		l.Error("list_tokens_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list tokens")
	}

	out := make([]transport.UserToken, 0, len(toks))
	for _, t := range toks {
		out = append(out, transport.NewUserToken(t))
	}
	return c.JSON(http.StatusOK, echo.Map{"tokens": out})
}

func (h *EntitlementHTTP) IssueToken(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "library.issue_token")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	gameID, err := parseGameID(c)
	if err != nil {
		l.Warn("issue_token_failed", "status", 400, "reason", "bad game id", "error", err)
		return err
	}

	issued, err := h.Svc.IssueForGame(ctx, userID, gameID)
	if err != nil {
		return h.entitlementError(l, "issue_token_failed", err)
	}

	status := http.StatusOK
	if issued.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, transport.NewIssuedTokenResponse(issued))
}

func (h *EntitlementHTTP) RotateToken(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "library.rotate_token")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	gameID, err := parseGameID(c)
	if err != nil {
		l.Warn("rotate_token_failed", "status", 400, "reason", "bad game id", "error", err)
		return err
	}

	issued, err := h.Svc.RotateToken(ctx, userID, gameID)
	if err != nil {
		return h.entitlementError(l, "rotate_token_failed", err)
	}
	return c.JSON(http.StatusCreated, transport.NewIssuedTokenResponse(issued))
}

func (h *EntitlementHTTP) RevokeGameToken(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "library.revoke_token")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	gameID, err := parseGameID(c)
	if err != nil {
		return err
	}

	if err := h.Svc.RevokeForGame(ctx, userID, gameID); err != nil {
		return h.entitlementError(l, "revoke_game_token_failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *EntitlementHTTP) GameAccess(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "library.access")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	gameID, err := parseGameID(c)
	if err != nil {
		return err
	}

	ok, err := h.Svc.HasAccess(ctx, userID, gameID)
	if err != nil {
		l.Error("access_check_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot check access")
	}
	resp := transport.AccessResponse{GameID: gameID, HasAccess: ok}
	if ok {
		tok, err := h.Svc.ActiveToken(ctx, userID, gameID)
		switch {
		case err == nil:
			ut := transport.NewUserToken(*tok)
			resp.Token = &ut
		case !errors.Is(err, service.ErrNotFound):
			l.Error("access_check_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot check access")
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *EntitlementHTTP) entitlementError(l *slog.Logger, event string, err error) error {
	switch {
	case errors.Is(err, service.ErrNotEntitled):
		l.Warn(event, "status", 403, "reason", "no entitlement")
		return echo.NewHTTPError(http.StatusForbidden, "you do not have access to this game")
	case errors.Is(err, service.ErrNotFound):
		l.Warn(event, "status", 404, "reason", "no active token")
		return echo.NewHTTPError(http.StatusNotFound, "no active token for this game")
	default:
		l.Error(event, "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

func parseGameID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "game id must be a positive integer")
	}
	return uint(id), nil
}
