package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revplan/internal/clock"
	"github.com/smallbiznis/revplan/internal/config"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeVersionService struct {
	labels []string
	months map[string]map[int]plandomain.PlanMonth
}

func (f *fakeVersionService) EnsureSeed(ctx context.Context, year int) error { return nil }

func (f *fakeVersionService) Cutover(ctx context.Context) (string, bool, error) {
	return "", false, nil
}

func (f *fakeVersionService) ForceCreate(ctx context.Context, sourceMonth int, force bool) (string, error) {
	return "", nil
}

func (f *fakeVersionService) Recalculate(ctx context.Context, label string, month int, newInitial decimal.Decimal) error {
	return nil
}

func (f *fakeVersionService) Versions(ctx context.Context, year int) ([]string, error) {
	return f.labels, nil
}

func (f *fakeVersionService) MonthsOf(ctx context.Context, label string, year int) (map[int]plandomain.PlanMonth, error) {
	return f.months[label], nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.PlanDay{},
		&plandomain.Forecast{},
	))
	return db
}

func newTestRouter(t *testing.T, db *gorm.DB, versions *fakeVersionService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := &Server{
		db:       db,
		clock:    clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)),
		plan:     config.NewStaticPlanConfigHolder(config.DefaultPlanConfig()),
		versions: versions,
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	registerRoutes(router, srv)
	return router
}

func TestGetPlanMonthsDefaultsToNewestVersion(t *testing.T) {
	versions := &fakeVersionService{
		labels: []string{"month-0", "month-3"},
		months: map[string]map[int]plandomain.PlanMonth{
			"month-3": {
				3: {
					Version:    "month-3",
					Year:       2026,
					Month:      3,
					Initial:    decimal.NewFromInt(120),
					Adjustment: decimal.NewFromInt(110),
				},
			},
		},
	}
	router := newTestRouter(t, openTestDB(t), versions)

	req := httptest.NewRequest(http.MethodGet, "/api/plan/months", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Version string              `json:"version"`
		Months  []planMonthResponse `json:"months"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "month-3", body.Version)
	require.Len(t, body.Months, 1)
	require.Equal(t, "110", body.Months[0].Adjustment)
}

func TestGetPlanMonthsUnknownYearReturns400(t *testing.T) {
	router := newTestRouter(t, openTestDB(t), &fakeVersionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/plan/months?year=abc", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetPlanDaysReturnsLatestRows(t *testing.T) {
	db := openTestDB(t)
	day := plandomain.Date(2026, time.March, 5)
	require.NoError(t, db.Create(&plandomain.PlanDay{
		CalendarDate: day, Year: 2026, Month: 3, Day: 5, DateLabel: "Normal day",
		Initial:   decimal.NewFromInt(100),
		UpdatedAt: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}).Error)
	require.NoError(t, db.Create(&plandomain.PlanDay{
		CalendarDate: day, Year: 2026, Month: 3, Day: 5, DateLabel: "Normal day",
		Initial:    decimal.NewFromInt(100),
		Adjustment: decimal.NewNullDecimal(decimal.NewFromInt(95)),
		UpdatedAt:  time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC),
	}).Error)

	router := newTestRouter(t, db, &fakeVersionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/plan/days?year=2026&month=3", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Days []planDayResponse `json:"days"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Days, 1)
	require.Equal(t, "95", body.Days[0].Adjustment)
}

func TestGetPlanDaysEmptyMonthReturns404(t *testing.T) {
	router := newTestRouter(t, openTestDB(t), &fakeVersionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/plan/days?year=2026&month=7", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetPlanForecastsFoldsDuplicates(t *testing.T) {
	db := openTestDB(t)
	day := plandomain.Date(2026, time.March, 5)
	require.NoError(t, db.Create(&plandomain.Forecast{
		CalendarDate: day, Year: 2026, Month: 3, Day: 5,
		Channel: "OnlineStore", BrandName: "Acme", SKU: "HERO-1",
		Forecast:  decimal.NewFromInt(40),
		UpdatedAt: time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC),
	}).Error)
	require.NoError(t, db.Create(&plandomain.Forecast{
		CalendarDate: day, Year: 2026, Month: 3, Day: 5,
		Channel: "OnlineStore", BrandName: "Acme", SKU: "HERO-1",
		Forecast:  decimal.NewFromInt(55),
		UpdatedAt: time.Date(2026, time.March, 5, 18, 0, 0, 0, time.UTC),
	}).Error)

	router := newTestRouter(t, db, &fakeVersionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/plan/forecasts?year=2026&month=3", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Forecasts []planForecastResponse `json:"forecasts"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Forecasts, 1)
	require.Equal(t, "55", body.Forecasts[0].Forecast)
}
