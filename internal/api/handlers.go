package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dietinsights/internal/engine"
	"dietinsights/internal/query"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// ReloadFunc reloads the dataset from the configured source.
type ReloadFunc func(ctx context.Context) (*engine.Snapshot, error)

type Handler struct {
	svc     *query.Service
	store   *engine.Store
	reload  ReloadFunc
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHandler wires the query service and store. minGap limits manual reloads;
// a nil reload disables the endpoint.
func NewHandler(svc *query.Service, store *engine.Store, reload ReloadFunc, minGap time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if minGap <= 0 {
		minGap = time.Second
	}
	return &Handler{
		svc:     svc,
		store:   store,
		reload:  reload,
		limiter: rate.NewLimiter(rate.Every(minGap), 1),
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	api := e.Group("/api")
	api.GET("/status", h.GetStatus)
	api.GET("/aggregate", h.GetAggregate)
	api.GET("/recipes", h.GetRecipes)
	api.GET("/recipes/:name", h.GetRecipe)
	api.GET("/diets", h.GetDiets)
	api.GET("/clusters", h.GetClusters)
	api.GET("/insights", h.GetInsights)
	api.POST("/reload", h.PostReload)
}

// --- HELPERS ---

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// fail maps engine and query errors onto status codes.
func (h *Handler) fail(c echo.Context, err error) error {
	var ipe *engine.InvalidParameterError
	switch {
	case errors.As(err, &ipe):
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error(), Field: ipe.Field})
	case errors.Is(err, engine.ErrNotLoaded):
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "dataset is loading, try again shortly"})
	case errors.Is(err, engine.ErrDataIntegrity):
		return c.JSON(http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, query.ErrRecipeNotFound):
		return c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
	}
	h.logger.Error("request failed",
		slog.String("path", c.Path()),
		slog.String("error", err.Error()),
	)
	return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func getPageParam(c echo.Context) int {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		page = 1
	}
	return page
}

// listParam splits a comma separated query value, dropping blanks.
func listParam(c echo.Context, name string) []string {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- HANDLERS ---

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetStatus(c echo.Context) error {
	body := map[string]interface{}{
		"loaded":      false,
		"last_reload": h.store.LastReload(),
	}
	if snap, err := h.store.Current(); err == nil {
		body["loaded"] = true
		body["version"] = snap.Version
		body["source"] = snap.Source
		body["loaded_at"] = snap.LoadedAt
		body["records"] = snap.Len()
		body["rejected"] = len(snap.Rejected)
	}
	return c.JSON(http.StatusOK, body)
}

func (h *Handler) GetAggregate(c echo.Context) error {
	req := query.Request{
		GroupBy: c.QueryParam("groupBy"),
		Metrics: listParam(c, "metrics"),
		Filter: query.FilterParams{
			DietTypes:    listParam(c, "diet"),
			CuisineTypes: listParam(c, "cuisine"),
			Keyword:      c.QueryParam("keyword"),
		},
		RankBy: c.QueryParam("rankBy"),
	}
	if raw := c.QueryParam("topN"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return h.fail(c, &engine.InvalidParameterError{Field: "topN", Value: raw})
		}
		req.TopN = &n
	}

	resp, err := h.svc.Handle(req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetRecipes(c echo.Context) error {
	page, err := h.svc.Recipes(c.QueryParam("diet"), c.QueryParam("keyword"), getPageParam(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetRecipe(c echo.Context) error {
	rec, err := h.svc.Recipe(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}
	pc, cf := engine.Ratios(rec)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"recipe":                 rec,
		"protein_to_carbs_ratio": pc,
		"carbs_to_fat_ratio":     cf,
		"dominant_macro":         engine.DominantMacro(rec),
	})
}

func (h *Handler) GetDiets(c echo.Context) error {
	diets, version, err := h.svc.Diets()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"diets":   diets,
		"version": version,
	})
}

func (h *Handler) GetClusters(c echo.Context) error {
	clusters, err := h.svc.Clusters(c.QueryParam("diet"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, clusters)
}

func (h *Handler) GetInsights(c echo.Context) error {
	ins, err := h.svc.Insights(c.QueryParam("diet"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) PostReload(c echo.Context) error {
	if h.reload == nil {
		return c.JSON(http.StatusNotImplemented, errorBody{Error: "reload is not configured"})
	}
	if !h.limiter.Allow() {
		return c.JSON(http.StatusTooManyRequests, errorBody{Error: "reload requested too often"})
	}
	snap, err := h.reload(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":  snap.Version,
		"records":  snap.Len(),
		"rejected": len(snap.Rejected),
	})
}
