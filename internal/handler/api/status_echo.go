package api

import (
	"github.com/labstack/echo/v4"

	"Nowcast/internal/usecase"
	xhttp "Nowcast/pkg/http"
	xlogger "Nowcast/pkg/logger"
)

// StatusEchoHandler reports the progress of the backtest running in this process.
type StatusEchoHandler struct {
	logger   *xlogger.Logger
	progress *usecase.Progress
}

func NewStatusEchoHandler(logger *xlogger.Logger, progress *usecase.Progress) *StatusEchoHandler {
	return &StatusEchoHandler{logger: logger, progress: progress}
}

func (h *StatusEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/ready", h.Ready)
}

// Status returns the progress snapshot.
func (h *StatusEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.progress.Snapshot())
}

// Ready answers 200 once the run has finished, 503 while it is running or failed.
func (h *StatusEchoHandler) Ready(c echo.Context) error {
	snap := h.progress.Snapshot()
	if snap.State != usecase.StateFinished {
		h.logger.Debug("status.ready not ready", xlogger.String("state", string(snap.State)))
		return xhttp.UnavailableResponse(c, snap)
	}
	return xhttp.SuccessResponse(c, snap)
}
