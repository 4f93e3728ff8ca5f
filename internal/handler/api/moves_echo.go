package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"FinRange/internal/domain/errs"
	models "FinRange/internal/domain/models"
	drepo "FinRange/internal/domain/repository"
	"FinRange/internal/services/analytics"
	"FinRange/internal/services/calendar"
	"FinRange/internal/services/moves"
	"FinRange/internal/usecase"
	pkgcache "FinRange/pkg/cache"
	xhttp "FinRange/pkg/http"
	xlogger "FinRange/pkg/logger"
	"FinRange/pkg/util"
)

const expirationCacheTTL = 5 * time.Minute

// Jobs runs the nightly jobs on demand.
type Jobs interface {
	RunDailyJob(ctx context.Context) (usecase.DailyReport, error)
	RunWeeklyJob(ctx context.Context) (usecase.WeeklyReport, error)
}

// MovesHandler serves the operator API: calculators, history, manual
// settlement and job triggers.
type MovesHandler struct {
	logger    *xlogger.Logger
	contracts drepo.ContractStore
	storage   drepo.Storage
	cal       *calendar.Calendar
	registry  *analytics.Registry
	settler   *usecase.Settler
	jobs      Jobs
	cache     pkgcache.Service
	now       func() time.Time
}

// HandlerOption customizes MovesHandler.
type HandlerOption func(*MovesHandler)

// WithCache caches expiration lookups for explicit dates.
func WithCache(c pkgcache.Service) HandlerOption {
	return func(h *MovesHandler) { h.cache = c }
}

// WithNow replaces time.Now.
func WithNow(now func() time.Time) HandlerOption {
	return func(h *MovesHandler) { h.now = now }
}

func NewMovesHandler(
	logger *xlogger.Logger,
	contracts drepo.ContractStore,
	storage drepo.Storage,
	cal *calendar.Calendar,
	registry *analytics.Registry,
	settler *usecase.Settler,
	jobs Jobs,
	opts ...HandlerOption,
) *MovesHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &MovesHandler{
		logger:    logger.Component("api"),
		contracts: contracts,
		storage:   storage,
		cal:       cal,
		registry:  registry,
		settler:   settler,
		jobs:      jobs,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *MovesHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/contracts", h.Contracts)
	g.GET("/contracts/:symbol/expiration", h.Expiration)
	g.GET("/forecast", h.Forecast)
	g.GET("/range", h.Range)
	g.GET("/weekly-bands", h.WeeklyBands)
	g.GET("/records/:symbol", h.Records)
	g.PATCH("/records/:symbol/:date/close", h.SettleRecord)
	g.GET("/weekly/:symbol", h.Weekly)
	g.PATCH("/weekly/:symbol/close", h.WeeklyClose)
	g.POST("/jobs/daily", h.RunDaily)
	g.POST("/jobs/weekly", h.RunWeekly)
}

func (h *MovesHandler) fail(c echo.Context, msg string, err error) error {
	ae := appError(err)
	if ae.Status >= http.StatusInternalServerError {
		h.logger.Error(msg, xlogger.String("path", c.Path()), xlogger.Error(err))
	} else {
		h.logger.Debug(msg, xlogger.String("path", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, ae)
}

func (h *MovesHandler) Health(c echo.Context) error {
	if err := h.storage.Health(c.Request().Context()); err != nil {
		h.logger.Warn("storage health check failed", xlogger.Error(err))
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *MovesHandler) Contracts(c echo.Context) error {
	list, err := h.contracts.List(c.Request().Context())
	if err != nil {
		return h.fail(c, "list contracts", err)
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *MovesHandler) Expiration(c echo.Context) error {
	req := &models.ExpirationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	asOf := h.now()
	var key string
	if req.Date != "" {
		d, _ := util.ParseDate(req.Date)
		asOf = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, h.cal.Location())
		key = pkgcache.GenerateKeyWithParams("expiration", req.Symbol, req.Date)
		var cached models.ExpirationInfo
		if h.cache != nil && h.cache.Get(ctx, key, &cached) == nil {
			return xhttp.SuccessResponse(c, cached)
		}
	}

	info, err := h.cal.ExpirationInfo(req.Symbol, asOf)
	if err != nil {
		return h.fail(c, "expiration lookup", err)
	}
	if key != "" && h.cache != nil {
		if err := h.cache.Set(ctx, key, info, expirationCacheTTL); err != nil {
			h.logger.Warn("expiration cache set failed", xlogger.String("key", key), xlogger.Error(err))
		}
	}
	return xhttp.SuccessResponse(c, info)
}

// forecast fills missing inputs from the contract named by req.Symbol and
// runs the requested model.
func (h *MovesHandler) forecast(ctx context.Context, req *models.ForecastRequest) (models.VolatilityForecast, models.Contract, error) {
	horizon := 1
	if req.Horizon != nil {
		horizon = *req.Horizon
	}
	in := models.ForecastInput{
		Price:         req.Price,
		AnnualizedIV:  req.IV,
		HorizonDays:   horizon,
		RecentReturn:  req.Return,
		PriorForecast: req.Prior,
	}
	var ct models.Contract
	if req.Symbol != "" {
		var err error
		if ct, err = h.contracts.Get(ctx, req.Symbol); err != nil {
			return models.VolatilityForecast{}, ct, err
		}
		if in.Price == 0 {
			in.Price = ct.Price
		}
		if in.AnnualizedIV == 0 {
			in.AnnualizedIV = ct.SessionIV()
		}
		if in.PriorForecast == 0 {
			in.PriorForecast = ct.LastForecastIV
		}
	}
	if in.Price <= 0 {
		return models.VolatilityForecast{}, ct, fmt.Errorf("price is required: %w", errs.ErrInvalidArgument)
	}
	f, err := h.registry.Forecast(req.Model, in)
	return f, ct, err
}

func (h *MovesHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	f, _, err := h.forecast(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	return xhttp.SuccessResponse(c, f)
}

type rangeResponse struct {
	Forecast models.VolatilityForecast `json:"forecast"`
	Range    models.PriceRange         `json:"range"`
	Tick     float64                   `json:"tick"`
}

func (h *MovesHandler) Range(c echo.Context) error {
	req := &models.RangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	f, ct, err := h.forecast(c.Request().Context(), &req.ForecastRequest)
	if err != nil {
		return h.fail(c, "range forecast", err)
	}
	tick := req.Tick
	if tick == 0 {
		tick = ct.TickSize
	}
	r, err := moves.ExpectedRange(f.Price, f, tick)
	if err != nil {
		return h.fail(c, "range", err)
	}
	return xhttp.SuccessResponse(c, rangeResponse{Forecast: f, Range: r, Tick: tick})
}

func (h *MovesHandler) WeeklyBands(c echo.Context) error {
	req := &models.WeeklyBandsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	now := h.now()
	weekStart := moves.NextMonday(h.cal.Today(now))
	if req.WeekStart != "" {
		weekStart, _ = util.ParseDate(req.WeekStart)
	}
	open, iv, tick := req.Open, req.IV, req.Tick
	if req.Symbol != "" {
		ct, err := h.contracts.Get(c.Request().Context(), req.Symbol)
		if err != nil {
			return h.fail(c, "weekly bands contract", err)
		}
		if open == 0 {
			open = ct.Price
		}
		if iv == 0 {
			iv = ct.WeeklyIV
		}
		if tick == 0 {
			tick = ct.TickSize
		}
	}
	if open <= 0 {
		return h.fail(c, "weekly bands", fmt.Errorf("open is required: %w", errs.ErrInvalidArgument))
	}
	days, err := moves.WeeklyBands(weekStart, open, iv, tick)
	if err != nil {
		return h.fail(c, "weekly bands", err)
	}
	return xhttp.SuccessResponse(c, models.WeeklyExpectedMoves{
		Symbol:       req.Symbol,
		WeekStart:    weekStart,
		WeekOpen:     open,
		AnnualizedIV: iv,
		Days:         days,
		UpdatedAt:    now.UTC(),
	})
}

func (h *MovesHandler) Records(c echo.Context) error {
	req := &models.RecordsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	to := xhttp.ParseDateDefault(req.To, h.cal.Today(h.now()))
	from := xhttp.ParseDateDefault(req.From, to.AddDate(0, 0, 1-req.Days))
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from %s is after to %s", util.FormatDate(from), util.FormatDate(to)))
	}
	recs, err := h.storage.List(c.Request().Context(), req.Symbol, from, to)
	if err != nil {
		return h.fail(c, "list records", err)
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *MovesHandler) Weekly(c echo.Context) error {
	req := &models.WeeklyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	w, err := h.storage.GetWeekly(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.fail(c, "get weekly", err)
	}
	return xhttp.SuccessResponse(c, w)
}

func (h *MovesHandler) SettleRecord(c echo.Context) error {
	req := &models.SettleRecordRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	date, _ := util.ParseDate(req.Date)
	rec, err := h.settler.Apply(c.Request().Context(), models.Settlement{Symbol: req.Symbol, Date: date, Close: req.Close})
	if err != nil {
		return h.fail(c, "settle record", err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *MovesHandler) WeeklyClose(c echo.Context) error {
	req := &models.WeeklyCloseRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	date, _ := util.ParseDate(req.Date)
	w, err := h.settler.SetWeeklyClose(c.Request().Context(), req.Symbol, date, req.Close)
	if err != nil {
		return h.fail(c, "weekly close", err)
	}
	return xhttp.SuccessResponse(c, w)
}

func (h *MovesHandler) RunDaily(c echo.Context) error {
	report, err := h.jobs.RunDailyJob(c.Request().Context())
	if err != nil {
		return h.fail(c, "daily job", err)
	}
	return xhttp.AcceptedResponse(c, report)
}

func (h *MovesHandler) RunWeekly(c echo.Context) error {
	report, err := h.jobs.RunWeeklyJob(c.Request().Context())
	if err != nil {
		return h.fail(c, "weekly job", err)
	}
	return xhttp.AcceptedResponse(c, report)
}
