package api

import (
	"net/http"
	"time"

	"SwingScan/internal/domain/models"
	domrepo "SwingScan/internal/domain/repository"
	mid "SwingScan/internal/middleware"
	"SwingScan/internal/usecase"
	xhttp "SwingScan/pkg/http"
	xlogger "SwingScan/pkg/logger"
	"SwingScan/pkg/util"

	"github.com/labstack/echo/v4"
)

// SetupsHandler exposes the live setup set, manual removal, archived history,
// and operational endpoints over Echo.
type SetupsHandler struct {
	logger  *xlogger.Logger
	tracker *usecase.Tracker
	scanner *usecase.Scanner
	pipe    *mid.SignalPipeline
	archive domrepo.SignalArchive // nil when no ClickHouse is configured
	feed    *usecase.PriceFeed    // nil when the price stream is disabled
}

func NewSetupsHandler(
	logger *xlogger.Logger,
	tracker *usecase.Tracker,
	scanner *usecase.Scanner,
	pipe *mid.SignalPipeline,
	archive domrepo.SignalArchive,
	feed *usecase.PriceFeed,
) *SetupsHandler {
	return &SetupsHandler{
		logger:  logger,
		tracker: tracker,
		scanner: scanner,
		pipe:    pipe,
		archive: archive,
		feed:    feed,
	}
}

func (h *SetupsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/setups", h.ListSetups)
	g.DELETE("/setups/:symbol/:tf", h.RemoveSetup)
	g.DELETE("/setups", h.ClearSetups)
	g.GET("/history", h.History)
	g.GET("/health", h.Health)
	g.GET("/logs", h.Logs)
}

// ListSetups returns live setups, optionally filtered by timeframe and state.
func (h *SetupsHandler) ListSetups(c echo.Context) error {
	req := &models.ListSetupsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var recs []models.SetupRecord
	switch {
	case req.TF != "":
		recs = h.tracker.ByTimeframe(domrepo.Timeframe(req.TF))
	case req.State != "":
		recs = h.tracker.ByState(models.SetupState(req.State))
	default:
		recs = h.tracker.List()
	}
	if req.TF != "" && req.State != "" {
		filtered := recs[:0]
		for _, r := range recs {
			if r.State == models.SetupState(req.State) {
				filtered = append(filtered, r)
			}
		}
		recs = filtered
	}
	return xhttp.ListResponse(c, recs, len(recs))
}

// RemoveSetup closes one live setup with a manual outcome and emits the
// closed event.
func (h *SetupsHandler) RemoveSetup(c echo.Context) error {
	req := &models.RemoveSetupRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	tf := domrepo.Timeframe(req.TF)
	rec, ok := h.tracker.Remove(req.Symbol, tf)
	if !ok {
		return xhttp.NotFoundResponse(c, "setup not found")
	}
	h.scanner.Forget(req.Symbol, tf)

	ev := &models.SetupEvent{Type: models.EventClosed, At: time.Now(), Record: *rec}
	if err := h.pipe.Process(c.Request().Context(), ev); err != nil {
		h.logger.Warn("manual close event not delivered",
			xlogger.String("key", rec.Key()),
			xlogger.Error(err))
	}
	return xhttp.SuccessResponse(c, rec)
}

// ClearSetups drops the whole live set without emitting events.
func (h *SetupsHandler) ClearSetups(c echo.Context) error {
	h.tracker.Clear()
	h.scanner.ForgetAll()
	return xhttp.NoContentResponse(c)
}

// History queries archived setup transitions for one symbol.
func (h *SetupsHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.archive == nil {
		return xhttp.AppErrorResponse(c, &xhttp.AppError{
			Code:    "history_unavailable",
			Message: "no archive backend configured",
			Status:  http.StatusNotImplemented,
		})
	}

	now := time.Now()
	from := util.ParseTimeDefault(req.From, now.AddDate(0, 0, -30))
	to := util.ParseTimeDefault(req.To, now)
	evs, err := h.archive.Query(c.Request().Context(), req.Symbol, from, to, req.Limit)
	if err != nil {
		h.logger.Error("history query error",
			xlogger.String("symbol", req.Symbol),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, evs, len(evs))
}

// Health reports component status.
func (h *SetupsHandler) Health(c echo.Context) error {
	out := map[string]interface{}{
		"status":        "ok",
		"active_setups": h.tracker.Count(),
	}
	if h.archive != nil {
		if err := h.archive.Health(c.Request().Context()); err != nil {
			out["status"] = "degraded"
			out["archive"] = err.Error()
		} else {
			out["archive"] = "ok"
		}
	}
	if h.feed != nil {
		out["stream_connected"] = h.feed.IsConnected()
	}
	return xhttp.SuccessResponse(c, out)
}

// Logs returns recently collected warning and error log entries.
func (h *SetupsHandler) Logs(c echo.Context) error {
	entries := h.logger.Recent()
	return xhttp.ListResponse(c, entries, len(entries))
}
