package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"TradeFloor/internal/agents/director"
	"TradeFloor/internal/domain/models"
	"TradeFloor/internal/orchestrator"
	xhttp "TradeFloor/pkg/http"
	xlogger "TradeFloor/pkg/logger"
	"TradeFloor/pkg/substrate"
)

// StatsHandler exposes the orchestrator's aggregate view to monitoring and
// dashboard tooling.
type StatsHandler struct {
	logger *xlogger.Logger
	orc    *orchestrator.Orchestrator
	dir    *director.Director
	ts     substrate.TimeSeriesStore
}

func NewStatsHandler(logger *xlogger.Logger, orc *orchestrator.Orchestrator, dir *director.Director, ts substrate.TimeSeriesStore) *StatsHandler {
	return &StatsHandler{logger: logger, orc: orc, dir: dir, ts: ts}
}

func (h *StatsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.GET("/stats", h.Stats)
	g.GET("/agents", h.Agents)
	g.GET("/decisions", h.Decisions)
	g.GET("/winrate/:agent", h.WinRate)
}

func (h *StatsHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":  "ok",
		"running": h.orc.IsRunning(),
	})
}

func (h *StatsHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.orc.Stats(c.Request().Context()))
}

func (h *StatsHandler) Agents(c echo.Context) error {
	records := h.orc.Records()

	if tier := c.QueryParam("tier"); tier != "" {
		filtered := make([]models.AgentRecord, 0, len(records))
		for _, rec := range records {
			if rec.Tier.String() == tier {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	return xhttp.ListResponse(c, records, int64(len(records)))
}

// Decisions returns the newest entries of the director's rolling decision
// log, newest first.
func (h *StatsHandler) Decisions(c echo.Context) error {
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 20)

	log := h.dir.DecisionLog()
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	for i, j := 0, len(log)-1; i < j; i, j = i+1, j-1 {
		log[i], log[j] = log[j], log[i]
	}
	return xhttp.ListResponse(c, log, int64(len(log)))
}

// WinRate returns one agent's win-rate series over the requested window,
// defaulting to the last 24 hours.
func (h *StatsHandler) WinRate(c echo.Context) error {
	agent := c.Param("agent")
	now := time.Now()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	if !from.Before(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be earlier than to"))
	}

	points, err := h.ts.QueryRange(c.Request().Context(), "winrate:"+agent, from, to)
	if err != nil {
		h.logger.Error("winrate query failed", xlogger.String("agent", agent), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}

	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	avg := 0.0
	if len(points) > 0 {
		avg = sum / float64(len(points))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"agent":   agent,
		"samples": len(points),
		"average": avg,
		"points":  points,
	})
}
