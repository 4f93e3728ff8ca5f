package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	"FinRange/internal/handler/api"
	"FinRange/internal/repository"
	"FinRange/internal/services/analytics"
	"FinRange/internal/services/calendar"
	"FinRange/internal/usecase"
	pkgcache "FinRange/pkg/cache"
	"FinRange/pkg/metrics"
	"FinRange/pkg/util"
)

type fakeJobs struct{ err error }

func (f fakeJobs) RunDailyJob(context.Context) (usecase.DailyReport, error) {
	return usecase.DailyReport{Model: analytics.ModelStandard, Created: []string{"ES"}}, f.err
}

func (f fakeJobs) RunWeeklyJob(context.Context) (usecase.WeeklyReport, error) {
	return usecase.WeeklyReport{Replaced: []string{"ES"}}, f.err
}

type downStorage struct{ *repository.MemoryStorage }

func (downStorage) Health(context.Context) error { return errors.New("connection refused") }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type apiFixture struct {
	t       *testing.T
	e       *echo.Echo
	storage *repository.MemoryStorage
	cache   *pkgcache.MemoryCache
}

func newAPI(t *testing.T, jobs api.Jobs) *apiFixture {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	cal, err := calendar.New(calendar.WithLocation(ny))
	require.NoError(t, err)
	require.NoError(t, cal.Register("ES", models.ClassIndex, models.RuleWeeklyFriday))
	require.NoError(t, cal.Register("GC", models.ClassCommodity, models.RuleThirdLastBusinessDay))

	storage := repository.NewMemoryStorage()
	contracts := repository.NewMemoryContracts([]models.Contract{
		{Symbol: "ES", TickSize: 0.25, Class: models.ClassIndex, Rule: models.RuleWeeklyFriday, Price: 6595.25, WeeklyIV: 0.16, DailyIV: 0.0245},
		{Symbol: "GC", TickSize: 0.1, Class: models.ClassCommodity, Rule: models.RuleThirdLastBusinessDay, Price: 2400.1, WeeklyIV: 0.18},
	})
	cache := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = cache.Close() })

	now := time.Date(2025, 10, 16, 18, 0, 0, 0, ny)
	h := api.NewMovesHandler(nil, contracts, storage, cal, analytics.NewRegistry(),
		usecase.NewSettler(storage, storage, metrics.Nop{}, nil), jobs,
		api.WithCache(cache), api.WithNow(func() time.Time { return now }))
	e := echo.New()
	h.RegisterRoutes(e)
	return &apiFixture{t: t, e: e, storage: storage, cache: cache}
}

func (f *apiFixture) do(method, target, body string) (int, envelope) {
	f.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (f *apiFixture) seedRecord() {
	f.t.Helper()
	_, err := f.storage.CreateIfAbsent(context.Background(), &models.ExpectedMoveRecord{
		Symbol: "ES", TradeDate: util.Date(2025, 10, 15), LastPrice: 6595.25,
		ExpectedLow: 6585, ExpectedHigh: 6605.5,
	})
	require.NoError(f.t, err)
}

func TestForecastStandard(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	code, env := f.do(http.MethodGet, "/api/forecast?price=6595.25&iv=0.16&horizon=5", "")
	require.Equal(t, http.StatusOK, code)

	var out models.VolatilityForecast
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, analytics.ModelStandard, out.Model)
	assert.Equal(t, 5, out.HorizonDays)
	assert.InDelta(t, 6595.25*0.16*math.Sqrt(5.0/252), out.ExpectedMove, 1e-9)
	assert.InDelta(t, 0.68, out.Confidence, 1e-12)
}

func TestForecastRejectsBadInput(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	for _, target := range []string{
		"/api/forecast?price=100&iv=0.2&horizon=-1",
		"/api/forecast?price=100&iv=0.2&horizon=0",
		"/api/forecast?price=100&iv=0.2&model=arima",
		"/api/forecast?iv=0.2",
		"/api/forecast?price=-5&iv=0.2",
	} {
		code, _ := f.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, code, target)
	}
}

func TestForecastHorizonDefaultsToOne(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	code, env := f.do(http.MethodGet, "/api/forecast?price=100&iv=0.2", "")
	require.Equal(t, http.StatusOK, code)

	var out models.VolatilityForecast
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 1, out.HorizonDays)
}

func TestForecastUnknownContract(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	code, _ := f.do(http.MethodGet, "/api/forecast?symbol=NQ", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRangeFillsFromContract(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	code, env := f.do(http.MethodGet, "/api/range?symbol=ES", "")
	require.Equal(t, http.StatusOK, code)

	var out struct {
		Forecast models.VolatilityForecast `json:"forecast"`
		Range    models.PriceRange         `json:"range"`
		Tick     float64                   `json:"tick"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 0.25, out.Tick)
	assert.InDelta(t, 0.0245, out.Forecast.AnnualizedIV, 1e-12)
	assert.Equal(t, 6585.0, out.Range.Low)
	assert.Equal(t, 6605.5, out.Range.High)
}

func TestExpirationIsCachedForExplicitDates(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	code, env := f.do(http.MethodGet, "/api/contracts/ES/expiration?date=2025-10-15", "")
	require.Equal(t, http.StatusOK, code)

	var info models.ExpirationInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "2025-10-17", util.FormatDate(info.Expiration))
	assert.Equal(t, 3, info.DaysRemaining)
	assert.True(t, info.IsExpirationWeek)

	ok, err := f.cache.Exists(context.Background(), pkgcache.GenerateKeyWithParams("expiration", "ES", "2025-10-15"))
	require.NoError(t, err)
	assert.True(t, ok)

	code, _ = f.do(http.MethodGet, "/api/contracts/ES/expiration?date=2025-10-15", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestExpirationCalendarGaps(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	code, _ := f.do(http.MethodGet, "/api/contracts/ZN/expiration", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = f.do(http.MethodGet, "/api/contracts/ES/expiration?date=2031-03-03", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = f.do(http.MethodGet, "/api/contracts/ES/expiration?date=03/03/2025", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWeeklyBandsEndpoint(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	code, env := f.do(http.MethodGet, "/api/weekly-bands?symbol=ES", "")
	require.Equal(t, http.StatusOK, code)

	var w models.WeeklyExpectedMoves
	require.NoError(t, json.Unmarshal(env.Data, &w))
	require.Len(t, w.Days, 5)
	assert.Equal(t, "2025-10-20", util.FormatDate(w.WeekStart))
	assert.Greater(t, w.Days[4].ExpectedHigh-w.Days[4].ExpectedLow, w.Days[0].ExpectedHigh-w.Days[0].ExpectedLow)

	code, _ = f.do(http.MethodGet, "/api/weekly-bands?symbol=ES&week_start=2025-10-21", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRecordsListAndRange(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	f.seedRecord()

	code, env := f.do(http.MethodGet, "/api/records/ES", "")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.ExpectedMoveRecord `json:"rows"`
		Total int64                       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 1, list.Total)

	code, env = f.do(http.MethodGet, "/api/records/ES?from=2025-09-01&to=2025-09-30", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 0, list.Total)

	code, _ = f.do(http.MethodGet, "/api/records/ES?from=2025-10-10&to=2025-10-01", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSettleRecordOnce(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	f.seedRecord()

	code, env := f.do(http.MethodPatch, "/api/records/ES/2025-10-15/close", `{"close": 6600}`)
	require.Equal(t, http.StatusOK, code)
	var rec models.ExpectedMoveRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	require.NotNil(t, rec.WithinRange)
	assert.True(t, *rec.WithinRange)

	code, _ = f.do(http.MethodPatch, "/api/records/ES/2025-10-15/close", `{"close": 6700}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = f.do(http.MethodPatch, "/api/records/ES/2025-10-14/close", `{"close": 6600}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodPatch, "/api/records/ES/2025-10-15/close", `{"close": 0}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWeeklyClose(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	code, _ := f.do(http.MethodPatch, "/api/weekly/ES/close", `{"date": "2025-10-20", "close": 6600}`)
	assert.Equal(t, http.StatusNotFound, code)

	require.NoError(t, f.storage.ReplaceWeekly(context.Background(), models.WeeklyExpectedMoves{
		Symbol:    "ES",
		WeekStart: util.Date(2025, 10, 20),
		Days:      []models.DayBand{{Date: util.Date(2025, 10, 20)}, {Date: util.Date(2025, 10, 21)}},
	}))
	code, env := f.do(http.MethodPatch, "/api/weekly/ES/close", `{"date": "2025-10-21", "close": 6610.25}`)
	require.Equal(t, http.StatusOK, code)
	var w models.WeeklyExpectedMoves
	require.NoError(t, json.Unmarshal(env.Data, &w))
	require.NotNil(t, w.Days[1].ActualClose)
	assert.Equal(t, 6610.25, *w.Days[1].ActualClose)

	code, _ = f.do(http.MethodGet, "/api/weekly/ES", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestJobTriggers(t *testing.T) {
	code, env := newAPI(t, fakeJobs{}).do(http.MethodPost, "/api/jobs/daily", "")
	require.Equal(t, http.StatusAccepted, code)
	var report usecase.DailyReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, []string{"ES"}, report.Created)

	code, _ = newAPI(t, fakeJobs{err: usecase.ErrJobInProgress}).do(http.MethodPost, "/api/jobs/weekly", "")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = newAPI(t, fakeJobs{err: errs.ErrUpstreamQuoteFailure}).do(http.MethodPost, "/api/jobs/daily", "")
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestHealthAndContracts(t *testing.T) {
	f := newAPI(t, fakeJobs{})
	code, _ := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)

	code, env := f.do(http.MethodGet, "/api/contracts", "")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)

	ny, _ := time.LoadLocation("America/New_York")
	cal, err := calendar.New(calendar.WithLocation(ny))
	require.NoError(t, err)
	h := api.NewMovesHandler(nil, repository.NewMemoryContracts(nil), downStorage{repository.NewMemoryStorage()},
		cal, analytics.NewRegistry(), nil, fakeJobs{})
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
