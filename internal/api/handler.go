package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/uwrit/leafgo/internal/domain/cohort"
	"github.com/uwrit/leafgo/internal/domain/dataset"
	"github.com/uwrit/leafgo/internal/domain/demographic"
	"github.com/uwrit/leafgo/internal/domain/panel"
	"github.com/uwrit/leafgo/internal/platform/auth"
)

// Handler wires the cohort engine to HTTP. All routes require an
// authenticated user in context.
type Handler struct {
	counts       *cohort.CountService
	datasets     *dataset.Service
	demographics *demographic.Service
}

func NewHandler(counts *cohort.CountService, datasets *dataset.Service, demographics *demographic.Service) *Handler {
	return &Handler{counts: counts, datasets: datasets, demographics: demographics}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/cohort/count", h.Count)
	api.GET("/cohort/:queryid/demographics", h.Demographics)
	api.GET("/cohort/:queryid/dataset", h.Dataset)
	api.POST("/user/logout", h.Logout)
}

type countResponse struct {
	QueryID string               `json:"query_id"`
	Count   *cohort.PatientCount `json:"count,omitempty"`
	Errors  []preflightError     `json:"errors,omitempty"`
}

type preflightError struct {
	Ref          string `json:"ref"`
	IsPresent    bool   `json:"is_present"`
	IsAuthorized bool   `json:"is_authorized"`
}

func (h *Handler) Count(c echo.Context) error {
	user := auth.UserFromContext(c.Request().Context())
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no user in context")
	}

	var def panel.Definition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.counts.Count(c.Request().Context(), user, &def)
	if err != nil {
		return mapError(c, err)
	}

	resp := countResponse{QueryID: res.QueryID.String(), Count: res.Count}
	if !res.Context.PreflightPassed() {
		for _, e := range res.Context.Preflight.Errors() {
			resp.Errors = append(resp.Errors, preflightError{Ref: e.Ref, IsPresent: e.IsPresent, IsAuthorized: e.IsAuthorized})
		}
		return c.JSON(http.StatusBadRequest, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Demographics(c echo.Context) error {
	user := auth.UserFromContext(c.Request().Context())
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no user in context")
	}
	if h.demographics == nil {
		// Gateway nodes carry no clinical connection.
		return echo.NewHTTPError(http.StatusNotImplemented, "demographics are not served by this node")
	}
	queryID, err := uuid.Parse(c.Param("queryid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query id")
	}

	res, err := h.demographics.Demographics(c.Request().Context(), user, queryID)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Dataset(c echo.Context) error {
	user := auth.UserFromContext(c.Request().Context())
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no user in context")
	}
	if h.datasets == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "datasets are not served by this node")
	}
	queryID, err := uuid.Parse(c.Param("queryid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query id")
	}
	ref := c.QueryParam("datasetid")
	if ref == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "datasetid is required")
	}

	early, err := parseOptionalTime(c.QueryParam("early"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid early bound")
	}
	late, err := parseOptionalTime(c.QueryParam("late"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid late bound")
	}

	res, err := h.datasets.Fetch(c.Request().Context(), user, queryID, ref, early, late)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Logout(c echo.Context) error {
	user := auth.UserFromContext(c.Request().Context())
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "no user in context")
	}
	if err := h.counts.Logout(c.Request().Context(), user); err != nil {
		return mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		// The client went away; nothing useful to send.
		return c.NoContent(http.StatusNoContent)
	case panel.IsCompilerError(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, cohort.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "query not found")
	case errors.Is(err, dataset.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "dataset not found")
	case errors.Is(err, demographic.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusNotFound, "demographics not configured")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func parseOptionalTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
