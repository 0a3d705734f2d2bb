package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/retro_games/internal/gamerequest/service"
	"github.com/Skotchmaster/retro_games/internal/gamerequest/transport"
	"github.com/Skotchmaster/retro_games/internal/models"
	"github.com/Skotchmaster/retro_games/pkg/logging"
	middleware "github.com/Skotchmaster/retro_games/pkg/middleware/auth"
	"github.com/Skotchmaster/retro_games/pkg/util"
)

type GameRequestHTTP struct {
	Svc *service.Service
}

func (h *GameRequestHTTP) Submit(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "gamerequest.submit")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req transport.SubmitRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("bind_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	gr, err := h.Svc.Submit(ctx, userID, req.Title, req.Details)
	if err != nil {
		return requestError(l, "submit_failed", err)
	}
	l.Info("game_request_submitted", "status", 201, "request_id", gr.ID)
	return c.JSON(http.StatusCreated, transport.NewRequestResponse(*gr))
}

func (h *GameRequestHTTP) ListMine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "gamerequest.list_mine")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	items, err := h.Svc.ListMine(ctx, userID)
	if err != nil {
		return requestError(l, "list_mine_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": transport.NewRequestList(items)})
}

func (h *GameRequestHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "gamerequest.list")

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Svc.List(ctx, c.QueryParam("status"), offset, limit)
	if err != nil {
		return requestError(l, "list_failed", err)
	}
	return c.JSON(http.StatusOK, util.NewPage(transport.NewRequestList(items), page, offset, limit, total))
}

func (h *GameRequestHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "gamerequest.get")

	id, err := parseID(c)
	if err != nil {
		return err
	}
	gr, err := h.Svc.Get(ctx, id)
	if err != nil {
		return requestError(l, "get_failed", err)
	}
	return c.JSON(http.StatusOK, transport.NewRequestResponse(*gr))
}

func (h *GameRequestHTTP) Approve(c echo.Context) error {
	return h.review(c, "gamerequest.approve", h.Svc.Approve)
}

func (h *GameRequestHTTP) Reject(c echo.Context) error {
	return h.review(c, "gamerequest.reject", h.Svc.Reject)
}

func (h *GameRequestHTTP) CreateGame(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "gamerequest.create_game")

	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transport.CreateGameRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("bind_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	gr, g, err := h.Svc.CreateGame(ctx, id, req.Input(), req.AdminNote)
	if err != nil {
		return requestError(l, "create_game_failed", err)
	}
	l.Info("game_created_from_request", "status", 201, "request_id", gr.ID, "game_id", g.ID)
	return c.JSON(http.StatusCreated, echo.Map{"request": transport.NewRequestResponse(*gr), "game": g})
}

type reviewFunc func(ctx context.Context, id uint, note string) (*models.GameRequest, error)

func (h *GameRequestHTTP) review(c echo.Context, name string, fn reviewFunc) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", name)

	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transport.ReviewRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			l.Warn("bind_failed", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	gr, err := fn(ctx, id, req.AdminNote)
	if err != nil {
		return requestError(l, "review_failed", err)
	}
	l.Info("game_request_reviewed", "status", 200, "request_id", gr.ID, "state", gr.Status)
	return c.JSON(http.StatusOK, transport.NewRequestResponse(*gr))
}

func requestError(l *slog.Logger, event string, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		l.Warn(event, "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		l.Warn(event, "status", 404, "error", err)
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrConflict):
		l.Warn(event, "status", 409, "error", err)
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		l.Error(event, "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	return uint(id), nil
}
