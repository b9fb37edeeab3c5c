package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "HisCollect/internal/domain/models"
	"HisCollect/internal/usecase"
	xhttp "HisCollect/pkg/http"
	xlogger "HisCollect/pkg/logger"
	"HisCollect/pkg/util"
)

// HealthChecker reports backend reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// CollectEchoHandler serves collection, frame and ranked-map routes.
type CollectEchoHandler struct {
	logger    *xlogger.Logger
	collector *usecase.Collector
	agg       *usecase.Aggregator
	health    HealthChecker
}

func NewCollectEchoHandler(logger *xlogger.Logger, collector *usecase.Collector, agg *usecase.Aggregator, health HealthChecker) *CollectEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &CollectEchoHandler{logger: logger, collector: collector, agg: agg, health: health}
}

func (h *CollectEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)

	g := e.Group("/api")
	g.POST("/collect/items", h.CollectItems)
	g.POST("/collect/frame", h.CollectFrame)
	g.GET("/hisstock/:opt/:stockid", h.HisStock)
	g.GET("/histrader/:opt/:traderid", h.HisTrader)
	g.GET("/rankmap/:opt/:category/:base", h.RankMap)
	g.DELETE("/rankmap/:opt/:category/:base", h.ClearRankMap)
}

func (h *CollectEchoHandler) CollectItems(c echo.Context) error {
	req := &models.CollectHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	creq, verr := toCollectRequest(req)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	col, err := h.collector.Collect(c.Request().Context(), creq)
	if err != nil {
		h.logger.Error("collect items usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, models.CollectItemsResponse{
		ID:       col.Request.ID,
		Status:   col.Status,
		Items:    col.Items,
		Failures: nonNilFailures(col.Failures),
	})
}

func (h *CollectEchoHandler) CollectFrame(c echo.Context) error {
	req := &models.CollectHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	creq, verr := toCollectRequest(req)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	col, table, err := h.collector.CollectFrame(c.Request().Context(), creq)
	if err != nil {
		h.logger.Error("collect frame usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, models.CollectFrameResponse{
		ID:       col.Request.ID,
		Status:   col.Status,
		Table:    table,
		Failures: nonNilFailures(col.Failures),
	})
}

func (h *CollectEchoHandler) HisStock(c echo.Context) error {
	req := &models.HisStockRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	w, verr := parseWindow(req.Start, req.End)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.collector.StockFrame(c.Request().Context(), usecase.StockFrameParams{
		Market:    models.Market(req.Opt),
		StockID:   req.StockID,
		Window:    w,
		TraderIDs: util.SplitList(req.TraderIDs),
		Limit:     req.Limit,
	})
	if err != nil {
		h.logger.Error("hisstock usecase error", xlogger.String("stockid", req.StockID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, frameResponse(res))
}

func (h *CollectEchoHandler) HisTrader(c echo.Context) error {
	req := &models.HisTraderRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	w, verr := parseWindow(req.Start, req.End)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.collector.TraderFrame(c.Request().Context(), usecase.TraderFrameParams{
		Market:   models.Market(req.Opt),
		TraderID: req.TraderID,
		Window:   w,
		StockIDs: util.SplitList(req.StockIDs),
		Limit:    req.Limit,
	})
	if err != nil {
		h.logger.Error("histrader usecase error", xlogger.String("traderid", req.TraderID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, frameResponse(res))
}

func (h *CollectEchoHandler) RankMap(c echo.Context) error {
	req := &models.RankMapRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	q := models.AliasLookup{
		Market:   models.Market(req.Opt),
		Category: models.Category(req.Category),
		Base:     models.Base(req.Base),
		GroupIDs: util.SplitList(req.IDs),
		Aliases:  util.SplitList(req.Aliases),
	}
	ids, err := h.agg.MapAlias(c.Request().Context(), q)
	if err != nil {
		h.logger.Error("rankmap usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	if ids == nil {
		ids = []string{}
	}
	return xhttp.SuccessResponse(c, models.RankMapResponse{
		Market:   q.Market,
		Category: q.Category,
		Base:     q.Base,
		Aliases:  q.Aliases,
		IDs:      ids,
	})
}

func (h *CollectEchoHandler) ClearRankMap(c echo.Context) error {
	req := &models.RankScopeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	err := h.agg.ClearRanking(c.Request().Context(),
		models.Market(req.Opt), models.Category(req.Category), models.Base(req.Base))
	if err != nil {
		h.logger.Error("rankmap clear error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "cleared"})
}

func (h *CollectEchoHandler) Healthz(c echo.Context) error {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Health(ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.Error(err))
			return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// appError maps domain errors onto HTTP statuses.
func appError(err error) *xhttp.AppError {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		return xhttp.BadRequestError(ve.Field, ve.Message).WithError(err)
	case errors.Is(err, models.ErrRankingScopeConflict):
		return xhttp.ConflictError("ranking scope busy, retry later").WithError(err)
	case errors.Is(err, models.ErrStoreUnavailable), errors.Is(err, models.ErrNotConnected),
		errors.Is(err, models.ErrQueryTimeout), errors.Is(err, models.ErrCanceled):
		return xhttp.UnavailableError("store unavailable").WithError(err)
	default:
		return xhttp.InternalErrorf("internal error").WithError(err)
	}
}

func frameResponse(res *usecase.FrameResult) models.FrameResponse {
	return models.FrameResponse{
		ID:       res.ID,
		Status:   res.Status,
		Table:    res.Table,
		Failures: nonNilFailures(res.Failures),
	}
}

func nonNilFailures(f []models.CategoryFailure) []models.CategoryFailure {
	if f == nil {
		return []models.CategoryFailure{}
	}
	return f
}
