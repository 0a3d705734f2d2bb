package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/retro_games/internal/catalog/service"
	"github.com/Skotchmaster/retro_games/internal/catalog/transport"
	"github.com/Skotchmaster/retro_games/internal/models"
	"github.com/Skotchmaster/retro_games/pkg/logging"
	"github.com/Skotchmaster/retro_games/pkg/util"
)

type CatalogHTTP struct {
	Svc *service.CatalogService
}

func (h *CatalogHTTP) ListGames(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.list_games")

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Svc.ListGames(ctx, c.QueryParam("console"), offset, limit)
	if err != nil {
		l.Error("list_games_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list games")
	}
	return c.JSON(http.StatusOK, util.NewPage(items, page, offset, limit, total))
}

func (h *CatalogHTTP) Consoles(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.consoles")

	consoles, err := h.Svc.Consoles(ctx)
	if err != nil {
		l.Error("list_consoles_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list consoles")
	}
	if consoles == nil {
		consoles = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"consoles": consoles})
}

func (h *CatalogHTTP) GetGame(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_game")

	detail, err := h.Svc.GameDetail(ctx, c.Param("ref"))
	if err != nil {
		return catalogError(l, "get_game_failed", err)
	}
	return c.JSON(http.StatusOK, transport.NewGameDetailResponse(detail))
}

func (h *CatalogHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.search")

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Svc.SearchGames(ctx, c.QueryParam("q"), offset, limit)
	if err != nil {
		return catalogError(l, "search_failed", err)
	}
	return c.JSON(http.StatusOK, util.NewPage(items, page, offset, limit, total))
}

func (h *CatalogHTTP) ListPlans(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.list_plans")

	plans, err := h.Svc.ListPlans(ctx)
	if err != nil {
		l.Error("list_plans_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list plans")
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	return c.JSON(http.StatusOK, echo.Map{"plans": plans})
}

func (h *CatalogHTTP) GetPlan(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_plan")

	id, err := parseID(c)
	if err != nil {
		return err
	}
	plan, err := h.Svc.GetPlan(ctx, id)
	if err != nil {
		return catalogError(l, "get_plan_failed", err)
	}
	return c.JSON(http.StatusOK, plan)
}

func (h *CatalogHTTP) ListCategories(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.list_categories")

	cats, err := h.Svc.ListCategories(ctx)
	if err != nil {
		l.Error("list_categories_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list categories")
	}
	if cats == nil {
		cats = []models.Category{}
	}
	return c.JSON(http.StatusOK, echo.Map{"categories": cats})
}

func (h *CatalogHTTP) CreateGame(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.create_game")

	var req transport.GameRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_game_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	g, err := h.Svc.CreateGame(ctx, req.Input())
	if err != nil {
		return catalogError(l, "create_game_error", err)
	}
	l.Info("create_game_success", "game_id", g.ID, "slug", g.Slug)
	return c.JSON(http.StatusCreated, g)
}

func (h *CatalogHTTP) PatchGame(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.patch_game")

	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transport.GameRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("patch_game_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	g, err := h.Svc.UpdateGame(ctx, id, req.Input())
	if err != nil {
		return catalogError(l, "patch_game_error", err)
	}
	l.Info("patch_game_success", "game_id", g.ID)
	return c.JSON(http.StatusOK, g)
}

func (h *CatalogHTTP) DeleteGame(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.delete_game")

	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.Svc.DeleteGame(ctx, id); err != nil {
		return catalogError(l, "delete_game_error", err)
	}
	l.Info("delete_game_success", "game_id", id)
	return c.NoContent(http.StatusNoContent)
}

func (h *CatalogHTTP) CreatePlan(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.create_plan")

	var req transport.CreatePlanRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_plan_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	p, err := h.Svc.CreatePlan(ctx, req.Name, req.Description, req.Price, req.GameIDs)
	if err != nil {
		return catalogError(l, "create_plan_error", err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *CatalogHTTP) CreateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.create_category")

	var req transport.CreateCategoryRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_category_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	cat := &models.Category{Name: req.Name, Description: req.Description, Color: req.Color, Icon: req.Icon}
	if err := h.Svc.CreateCategory(ctx, cat); err != nil {
		return catalogError(l, "create_category_error", err)
	}
	return c.JSON(http.StatusCreated, cat)
}

func catalogError(l *slog.Logger, event string, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		l.Warn(event, "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		l.Warn(event, "status", 404, "error", err)
		return echo.NewHTTPError(http.StatusNotFound, "not found")
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
