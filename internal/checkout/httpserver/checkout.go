package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/retro_games/internal/checkout/service"
	"github.com/Skotchmaster/retro_games/internal/checkout/transport"
	"github.com/Skotchmaster/retro_games/pkg/logging"
	middleware "github.com/Skotchmaster/retro_games/pkg/middleware/auth"
)

type CheckoutHTTP struct {
	Svc *service.Service
}

func (h *CheckoutHTTP) CheckoutGame(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.game")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		l.Warn("checkout_failed", "status", 400, "reason", "bad game id")
		return err
	}

	sess, err := h.Svc.CheckoutGame(ctx, userID, id)
	if err != nil {
		return checkoutError(l, "checkout_failed", err)
	}
	l.Info("checkout_started", "session_id", sess.SessionID, "game_id", id)
	return c.JSON(http.StatusCreated, transport.NewSessionResponse(*sess))
}

func (h *CheckoutHTTP) CheckoutPlan(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.plan")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		l.Warn("checkout_failed", "status", 400, "reason", "bad plan id")
		return err
	}

	sess, err := h.Svc.CheckoutPlan(ctx, userID, id)
	if err != nil {
		return checkoutError(l, "checkout_failed", err)
	}
	l.Info("checkout_started", "session_id", sess.SessionID, "plan_id", id)
	return c.JSON(http.StatusCreated, transport.NewSessionResponse(*sess))
}

func (h *CheckoutHTTP) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.get_session")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return err
	}

	sess, err := h.Svc.GetSession(ctx, userID, sessionID)
	if err != nil {
		return checkoutError(l, "get_session_failed", err)
	}
	return c.JSON(http.StatusOK, transport.NewSessionResponse(*sess))
}

func (h *CheckoutHTTP) CompleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.success")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return err
	}

	conf, err := h.Svc.CompleteSession(ctx, userID, sessionID)
	if err != nil {
		return checkoutError(l, "complete_session_failed", err)
	}
	return c.JSON(http.StatusOK, transport.NewConfirmationResponse(conf))
}

func (h *CheckoutHTTP) FailSession(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.failure")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return err
	}

	sess, err := h.Svc.FailSession(ctx, userID, sessionID)
	if err != nil {
		return checkoutError(l, "fail_session_failed", err)
	}
	return c.JSON(http.StatusOK, transport.NewSessionResponse(*sess))
}

func (h *CheckoutHTTP) CancelSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "subscriptions.cancel")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	sub, err := h.Svc.CancelSubscription(ctx, userID, id)
	if err != nil {
		return checkoutError(l, "cancel_subscription_failed", err)
	}
	l.Info("subscription_cancelled", "subscription_id", sub.ID)
	return c.JSON(http.StatusOK, sub)
}

func (h *CheckoutHTTP) Library(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "library.list")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	lib, err := h.Svc.Library(ctx, userID)
	if err != nil {
		l.Error("library_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot load library")
	}
	return c.JSON(http.StatusOK, transport.NewLibraryResponse(lib))
}

func checkoutError(l *slog.Logger, event string, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		l.Warn(event, "status", 400, "reason", "validation", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		l.Warn(event, "status", 404, "reason", "not found", "error", err)
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrConflict):
		l.Warn(event, "status", 409, "reason", "conflict", "error", err)
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		l.Error(event, "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

func parseID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a positive integer")
	}
	return uint(id), nil
}

func parseSessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	return id, nil
}
