package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"walk_tracker/internal/geo"
	"walk_tracker/internal/persistence"
	"walk_tracker/internal/tracking"
)

const defaultListLimit = 50

// WalkHistory is the read/edit side of the finished-walk store.
type WalkHistory interface {
	List(ctx context.Context, filter persistence.HistoryFilter) ([]tracking.WalkRecord, error)
	Get(ctx context.Context, id string) (tracking.WalkRecord, error)
	Rename(ctx context.Context, id string, name *string) error
	DeleteRecord(ctx context.Context, id string) error
	DayTotals(ctx context.Context, day time.Time) (persistence.DaySummary, error)
	Latest(ctx context.Context) (*tracking.WalkRecord, error)
}

// LatestPublisher keeps the widgets' latest walk in step with history.
type LatestPublisher interface {
	PublishLatest(ctx context.Context, record tracking.WalkRecord) error
	ClearLatest(ctx context.Context) error
}

// GoalTarget reports today's step goal.
type GoalTarget interface {
	Current(ctx context.Context) int
}

type WalkController struct {
	history WalkHistory
	goals   GoalTarget
	latest  LatestPublisher
	now     func() time.Time
}

func NewWalkController(history WalkHistory, goals GoalTarget, latest LatestPublisher) *WalkController {
	return &WalkController{history: history, goals: goals, latest: latest, now: time.Now}
}

type walkResponse struct {
	tracking.WalkRecord
	DurationSeconds float64         `json:"duration_s"`
	RouteGeoJSON    json.RawMessage `json:"route_geojson,omitempty"`
}

func newWalkResponse(r tracking.WalkRecord, withGeoJSON bool) walkResponse {
	resp := walkResponse{WalkRecord: r, DurationSeconds: r.Duration().Seconds()}
	if withGeoJSON {
		data, err := geo.GeoJSON(tracking.RoutePoints(r.Route))
		if err != nil {
			logrus.WithError(err).WithField("walk_id", r.ID).Warn("Failed to render route GeoJSON.")
		} else {
			resp.RouteGeoJSON = data
		}
	}
	return resp
}

func (w *WalkController) List(c *gin.Context) {
	filter := persistence.HistoryFilter{Limit: defaultListLimit}
	var err error
	if filter.From, err = parseDateParam(c.Query("from")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from: " + err.Error()})
		return
	}
	if filter.To, err = parseDateParam(c.Query("to")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to: " + err.Error()})
		return
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	records, err := w.history.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	out := make([]walkResponse, len(records))
	for i, r := range records {
		out[i] = newWalkResponse(r, false)
	}
	c.JSON(http.StatusOK, gin.H{"walks": out})
}

func (w *WalkController) Get(c *gin.Context) {
	record, err := w.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, newWalkResponse(record, true))
}

func (w *WalkController) Rename(c *gin.Context) {
	var body struct {
		Name *string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := w.history.Rename(ctx, id, body.Name); err != nil {
		respondError(c, err, nil)
		return
	}
	record, err := w.history.Get(ctx, id)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	w.refreshLatest(ctx)
	c.JSON(http.StatusOK, newWalkResponse(record, false))
}

func (w *WalkController) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	if err := w.history.DeleteRecord(ctx, c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	w.refreshLatest(ctx)
	c.Status(http.StatusNoContent)
}

// refreshLatest republishes the newest walk after history changed. Failures
// only leave the widget stale, so they are logged.
func (w *WalkController) refreshLatest(ctx context.Context) {
	if w.latest == nil {
		return
	}
	record, err := w.history.Latest(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Could not read latest walk for widgets.")
		return
	}
	if record == nil {
		err = w.latest.ClearLatest(ctx)
	} else {
		err = w.latest.PublishLatest(ctx, *record)
	}
	if err != nil {
		logrus.WithError(err).Warn("Could not refresh the widgets' latest walk.")
	}
}

// Today reports the day's totals against the current step goal.
func (w *WalkController) Today(c *gin.Context) {
	ctx := c.Request.Context()
	summary, err := w.history.DayTotals(ctx, w.now())
	if err != nil {
		respondError(c, err, nil)
		return
	}

	goal := w.goals.Current(ctx)
	progress := 0.0
	if goal > 0 {
		progress = float64(summary.Steps) / float64(goal)
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":  summary,
		"goal":     goal,
		"progress": progress,
	})
}

// parseDateParam accepts RFC3339 or a bare 2006-01-02 date (UTC midnight).
func parseDateParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
