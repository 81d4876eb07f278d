package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/trackfit/trackfit/internal/app/metricstore"
	"github.com/trackfit/trackfit/internal/domain/metric"
)

// historyLimit caps the weight history at the most recent entries;
// distance history is unbounded.
const historyLimit = 10

func (s *Server) MountMetrics() {
	loginRequired := LoginRequired(s.authService, s.sessions)

	metrics := s.handler.Group("/api/metrics", loginRequired)
	metrics.GET("/:kind", s.GetMetricState)
	metrics.POST("/:kind", s.AddMetricEntry)
	metrics.DELETE("/:kind/:id", s.DeleteMetricEntry)
	metrics.GET("/:kind/chart", s.GetMetricChart)
	metrics.GET("/:kind/history", s.GetMetricHistory)
}

func (s *Server) storeForKind(c echo.Context) (*metricstore.Store, error) {
	kind, err := metric.ParseKind(c.Param("kind"))
	if err != nil {
		return nil, err
	}
	store, ok := currentStores(c).ByKind(kind)
	if !ok {
		return nil, metric.ErrUnknownKind
	}
	return store, nil
}

// GetMetricState returns the store snapshot the widgets render from:
// the entry list, the loading and error flags, and the soft
// already-logged-today warning flag.
func (s *Server) GetMetricState(c echo.Context) error {
	store, err := s.storeForKind(c)
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}
	return c.JSON(http.StatusOK, store.Snapshot())
}

type addEntryRequest struct {
	Value float64 `json:"value" validate:"required"`
	Date  string  `json:"date" validate:"required,datetime=2006-01-02"`
}

// AddMetricEntry validates the submitted value against the kind's
// plausible range and inserts it. A same-day duplicate is allowed;
// the snapshot's has_entry_today flag is the warning, not a block.
func (s *Server) AddMetricEntry(c echo.Context) error {
	store, err := s.storeForKind(c)
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	var req addEntryRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	cfg := store.Kind().Config()
	if err := s.validator.Var(req.Value, cfg.ValueTag); err != nil {
		msg := fmt.Sprintf("value must be between %g and %g %s", cfg.Min, cfg.Max, cfg.Unit)
		return JsonError(c, http.StatusBadRequest, msg)
	}

	if !store.Add(c.Request().Context(), req.Value, req.Date) {
		return JsonError(c, http.StatusBadGateway, store.Snapshot().LastError)
	}

	return c.JSON(http.StatusCreated, store.Snapshot())
}

// DeleteMetricEntry removes one entry. Deletion is gated by an
// explicit confirmation in the UI; the X-Confirm header is the
// server-side echo of that gate.
func (s *Server) DeleteMetricEntry(c echo.Context) error {
	store, err := s.storeForKind(c)
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	if c.Request().Header.Get("X-Confirm") != "true" {
		return JsonError(c, http.StatusBadRequest, "deletion requires confirmation")
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return JsonError(c, http.StatusBadRequest, "invalid entry id")
	}

	if !store.Delete(c.Request().Context(), id) {
		return JsonError(c, http.StatusBadGateway, store.Snapshot().LastError)
	}

	return c.JSON(http.StatusOK, store.Snapshot())
}

type chartPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type chartResponse struct {
	Window metricstore.Window `json:"window"`
	Points []chartPoint       `json:"points"`
}

// GetMetricChart returns the windowed subsequence sorted ascending by
// date, ready for time-series rendering. Recomputed per request.
func (s *Server) GetMetricChart(c echo.Context) error {
	store, err := s.storeForKind(c)
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	window, err := metricstore.ParseWindow(c.QueryParam("window"))
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	entries := metricstore.FilterWindow(store.Snapshot().Entries, window, time.Now())

	return c.JSON(http.StatusOK, chartResponse{
		Window: window,
		Points: lo.Map(entries, func(e metric.Entry, _ int) chartPoint {
			return chartPoint{Date: e.Date, Value: e.Value}
		}),
	})
}

type historyRow struct {
	ID        int64    `json:"id"`
	Date      string   `json:"date"`
	Value     float64  `json:"value"`
	Variation *float64 `json:"variation"`
	Display   string   `json:"display"`
}

type historyResponse struct {
	Rows []historyRow `json:"rows"`
}

// GetMetricHistory returns the recent entries with each row's signed
// difference against the row above it. The first row shows an em dash:
// no prior value in view.
func (s *Server) GetMetricHistory(c echo.Context) error {
	store, err := s.storeForKind(c)
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	entries := store.Snapshot().Entries
	if store.Kind() == metric.KindWeight && len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	unit := store.Kind().Config().Unit
	deltas := metricstore.Variations(entries)

	rows := make([]historyRow, len(entries))
	for i, e := range entries {
		display := "—"
		if deltas[i] != nil {
			display = fmt.Sprintf("%+.1f %s", *deltas[i], unit)
		}
		rows[i] = historyRow{
			ID:        e.ID,
			Date:      e.Date,
			Value:     e.Value,
			Variation: deltas[i],
			Display:   display,
		}
	}

	return c.JSON(http.StatusOK, historyResponse{Rows: rows})
}
