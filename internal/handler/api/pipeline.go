package api

import (
	models "ChainPulse/internal/domain/models"
	domrepo "ChainPulse/internal/domain/repository"
	"ChainPulse/internal/usecase"
	xhttp "ChainPulse/pkg/http"
	xlogger "ChainPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PipelineHandler exposes the pipeline's read surface over Echo.
type PipelineHandler struct {
	logger *xlogger.Logger
	orch   *usecase.Orchestrator
	narr   *usecase.NarrativeJob
	recent *xlogger.RecentBuffer
}

func NewPipelineHandler(logger *xlogger.Logger, orch *usecase.Orchestrator, narr *usecase.NarrativeJob, recent *xlogger.RecentBuffer) *PipelineHandler {
	return &PipelineHandler{logger: logger, orch: orch, narr: narr, recent: recent}
}

func (h *PipelineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/signal/:asset", h.Signal)
	g.GET("/anomalies/:asset", h.Anomalies)
	g.GET("/providers/:name", h.Provider)
}

func (h *PipelineHandler) Status(c echo.Context) error {
	resp := map[string]interface{}{"pipeline": h.orch.GetStatus()}
	if h.recent != nil {
		resp["recent_errors"] = h.recent.Recent()
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *PipelineHandler) Signal(c echo.Context) error {
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sig := h.orch.GetLatestSignal(c.Request().Context(), req.Asset)

	resp := map[string]interface{}{"signal": sig}
	if h.narr != nil {
		if analysis := h.narr.Latest(req.Asset); analysis != nil {
			resp["narrative"] = analysis
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, resp)
}

func (h *PipelineHandler) Anomalies(c echo.Context) error {
	req := &models.AnomalySummaryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	window := domrepo.NormalizeWindow(req.Window)

	summary := h.orch.GetAnomalySummary(req.Asset, window)
	return xhttp.SuccessResponse(c, summary)
}

func (h *PipelineHandler) Provider(c echo.Context) error {
	req := &models.ProviderStatsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	stats, ok := h.orch.GetProviderStats(req.Name)
	if !ok {
		h.logger.Warn("unknown provider requested", xlogger.String("provider", req.Name))
		return xhttp.NotFoundResponse(c, map[string]string{"provider": req.Name})
	}
	return xhttp.SuccessResponse(c, stats)
}
