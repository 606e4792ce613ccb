package server

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/revplan/internal/plan/domain"
)

type planMonthResponse struct {
	Version    string `json:"version"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	Initial    string `json:"initial"`
	Actual     string `json:"actual,omitempty"`
	Gap        string `json:"gap,omitempty"`
	Adjustment string `json:"adjustment"`
}

type planDayResponse struct {
	CalendarDate string `json:"calendar_date"`
	DateLabel    string `json:"date_label"`
	Initial      string `json:"initial"`
	Actual       string `json:"actual,omitempty"`
	Gap          string `json:"gap,omitempty"`
	Adjustment   string `json:"adjustment,omitempty"`
}

type planForecastResponse struct {
	CalendarDate string `json:"calendar_date"`
	Channel      string `json:"channel"`
	Brand        string `json:"brand"`
	SKU          string `json:"sku"`
	Forecast     string `json:"forecast"`
}

func (s *Server) GetPlanVersions(c *gin.Context) {
	year, err := s.yearParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	labels, err := s.versions.Versions(c.Request.Context(), year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"year": year, "versions": labels})
}

func (s *Server) GetPlanMonths(c *gin.Context) {
	year, err := s.yearParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	label := c.Query("version")
	if label == "" {
		labels, err := s.versions.Versions(c.Request.Context(), year)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if len(labels) == 0 {
			AbortWithError(c, ErrNotFound)
			return
		}
		label = labels[len(labels)-1]
	}

	months, err := s.versions.MonthsOf(c.Request.Context(), label, year)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(months) == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}

	resp := make([]planMonthResponse, 0, len(months))
	for m := 1; m <= 12; m++ {
		row, ok := months[m]
		if !ok {
			continue
		}
		out := planMonthResponse{
			Version:    row.Version,
			Year:       row.Year,
			Month:      row.Month,
			Initial:    row.Initial.String(),
			Adjustment: row.Adjustment.String(),
		}
		if row.Actual.Valid {
			out.Actual = row.Actual.Decimal.String()
		}
		if row.Gap.Valid {
			out.Gap = row.Gap.Decimal.String()
		}
		resp = append(resp, out)
	}

	c.JSON(http.StatusOK, gin.H{"version": label, "months": resp})
}

func (s *Server) GetPlanDays(c *gin.Context) {
	year, month, err := s.scopeParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var rows []plandomain.PlanDay
	err = s.db.WithContext(c.Request.Context()).
		Raw(`SELECT * FROM plan_days WHERE year = ? AND month = ? ORDER BY updated_at ASC`, year, int(month)).
		Scan(&rows).Error
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(rows) == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}

	latest := make(map[int]plandomain.PlanDay, 31)
	for _, row := range rows {
		latest[row.Day] = row
	}

	days := make([]int, 0, len(latest))
	for d := range latest {
		days = append(days, d)
	}
	sort.Ints(days)

	resp := make([]planDayResponse, 0, len(days))
	for _, d := range days {
		row := latest[d]
		out := planDayResponse{
			CalendarDate: row.CalendarDate.Format("2006-01-02"),
			DateLabel:    row.DateLabel,
			Initial:      row.Initial.String(),
		}
		if row.Actual.Valid {
			out.Actual = row.Actual.Decimal.String()
		}
		if row.Gap.Valid {
			out.Gap = row.Gap.Decimal.String()
		}
		if row.Adjustment.Valid {
			out.Adjustment = row.Adjustment.Decimal.String()
		}
		resp = append(resp, out)
	}

	c.JSON(http.StatusOK, gin.H{"year": year, "month": int(month), "days": resp})
}

func (s *Server) GetPlanForecasts(c *gin.Context) {
	year, month, err := s.scopeParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var rows []plandomain.Forecast
	err = s.db.WithContext(c.Request.Context()).
		Raw(`SELECT * FROM plan_forecasts WHERE year = ? AND month = ? ORDER BY updated_at ASC`, year, int(month)).
		Scan(&rows).Error
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(rows) == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}

	type key struct {
		day     int
		channel string
		brand   string
		sku     string
	}
	latest := make(map[key]plandomain.Forecast, len(rows))
	order := make([]key, 0, len(rows))
	for _, row := range rows {
		k := key{row.Day, row.Channel, row.BrandName, row.SKU}
		if _, ok := latest[k]; !ok {
			order = append(order, k)
		}
		latest[k] = row
	}

	resp := make([]planForecastResponse, 0, len(order))
	for _, k := range order {
		row := latest[k]
		resp = append(resp, planForecastResponse{
			CalendarDate: row.CalendarDate.Format("2006-01-02"),
			Channel:      row.Channel,
			Brand:        row.BrandName,
			SKU:          row.SKU,
			Forecast:     row.Forecast.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"year": year, "month": int(month), "forecasts": resp})
}

func (s *Server) yearParam(c *gin.Context) (int, error) {
	raw := c.Query("year")
	if raw == "" {
		return s.plan.Get().PlanYear, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2000 || year > 2100 {
		return 0, ErrInvalidRequest
	}
	return year, nil
}

func (s *Server) scopeParams(c *gin.Context) (int, time.Month, error) {
	year, err := s.yearParam(c)
	if err != nil {
		return 0, 0, err
	}

	raw := c.Query("month")
	if raw == "" {
		return year, s.clock.Now().Month(), nil
	}
	month, err := strconv.Atoi(raw)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, ErrInvalidRequest
	}
	return year, time.Month(month), nil
}
