package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/version"
)

// PingHandler serves /ping and HEAD /health for liveness.
type PingHandler struct {
	logger  *slog.Logger
	started time.Time
}

func NewPingHandler(log *slog.Logger) *PingHandler {
	return &PingHandler{
		logger:  log.With(slog.String("handler", "ping")),
		started: time.Now(),
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.Health)
}

// PingResponse reports the running build.
type PingResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, PingResponse{
		Status:  "ok",
		Version: version.GetInfo(),
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *PingHandler) Health(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
