package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/schedule"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/state"
)

const maxRunsLimit = 200

// JobRunner triggers and lists scheduled jobs.
type JobRunner interface {
	RunNow(ctx context.Context, name string, trigger schedule.Trigger) (state.Run, error)
	Jobs() []schedule.JobInfo
}

// RunLog reads the recorded runs.
type RunLog interface {
	RecentRuns(ctx context.Context, limit int) ([]state.Run, error)
}

// RunsHandler exposes manual triggers and the run log. When token is set
// every route requires it as a bearer token.
type RunsHandler struct {
	logger *slog.Logger
	runner JobRunner
	runs   RunLog
	token  string
}

func NewRunsHandler(log *slog.Logger, runner JobRunner, runs RunLog, token string) *RunsHandler {
	return &RunsHandler{
		logger: log.With(slog.String("handler", "runs")),
		runner: runner,
		runs:   runs,
		token:  token,
	}
}

func (h *RunsHandler) Register(e *echo.Echo) {
	var mw []echo.MiddlewareFunc
	if h.token != "" {
		mw = append(mw, middleware.KeyAuth(func(key string, _ echo.Context) (bool, error) {
			return key == h.token, nil
		}))
	}
	e.GET("/jobs", h.Jobs, mw...)
	e.GET("/runs", h.List, mw...)
	e.POST("/runs/:job", h.Trigger, mw...)
}

// RunResponse is one finished manual run.
type RunResponse struct {
	Run   state.Run `json:"run"`
	Error string    `json:"error,omitempty"`
}

func (h *RunsHandler) Jobs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"items": h.runner.Jobs()})
}

func (h *RunsHandler) List(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := h.runs.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": runs})
}

// Trigger runs a job synchronously and returns its record.
func (h *RunsHandler) Trigger(c echo.Context) error {
	name := c.Param("job")
	run, err := h.runner.RunNow(c.Request().Context(), name, schedule.TriggerManual)
	switch {
	case errors.Is(err, schedule.ErrUnknownJob):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, schedule.ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil && run.ID == "":
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	case err != nil:
		h.logger.Warn("manual run failed", slog.String("job", name), slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, RunResponse{Run: run, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, RunResponse{Run: run})
}
