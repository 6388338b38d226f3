package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"walk_tracker/internal/geo"
	"walk_tracker/internal/models"
	"walk_tracker/internal/tracking"
)

const uniqueViolation = "23505"

// HistoryFilter narrows List. Zero fields are ignored; To is exclusive.
type HistoryFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// DaySummary totals the walks finished on one calendar day.
type DaySummary struct {
	Day            time.Time `json:"day"`
	Steps          int       `json:"steps"`
	DistanceMeters float64   `json:"distance_m"`
	Walks          int       `json:"walks"`
}

// HistoryStore is the durable list of finished walks.
type HistoryStore struct {
	db *gorm.DB
}

func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (h *HistoryStore) SaveFinal(ctx context.Context, record tracking.WalkRecord) error {
	walk, err := toModel(record)
	if err != nil {
		return err
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&walk).Error; err != nil {
			return err
		}
		if len(walk.Media) > 0 {
			if err := tx.Create(&walk.Media).Error; err != nil {
				return err
			}
		}
		return nil
	})

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateWalk, record.ID)
	}
	return err
}

func (h *HistoryStore) Get(ctx context.Context, id string) (tracking.WalkRecord, error) {
	var walk models.Walk
	err := h.withMedia(ctx).First(&walk, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tracking.WalkRecord{}, ErrWalkNotFound
	}
	if err != nil {
		return tracking.WalkRecord{}, err
	}
	return fromModel(walk)
}

// List returns walks newest first.
func (h *HistoryStore) List(ctx context.Context, filter HistoryFilter) ([]tracking.WalkRecord, error) {
	q := h.withMedia(ctx)
	if !filter.From.IsZero() {
		q = q.Where("date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("date < ?", filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var walks []models.Walk
	if err := q.Order("date desc").Find(&walks).Error; err != nil {
		return nil, err
	}

	records := make([]tracking.WalkRecord, 0, len(walks))
	for _, w := range walks {
		r, err := fromModel(w)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]tracking.WalkRecord, error) {
	return h.List(ctx, HistoryFilter{Limit: limit})
}

// Latest returns nil when no walk has been saved yet.
func (h *HistoryStore) Latest(ctx context.Context) (*tracking.WalkRecord, error) {
	records, err := h.Recent(ctx, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func (h *HistoryStore) LoadHistory(ctx context.Context) ([]tracking.WalkRecord, error) {
	return h.List(ctx, HistoryFilter{})
}

func (h *HistoryStore) DeleteRecord(ctx context.Context, id string) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("walk_id = ?", id).Delete(&models.WalkMedia{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Walk{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrWalkNotFound
		}
		return nil
	})
}

// Rename sets the display name. A nil or blank name clears it.
func (h *HistoryStore) Rename(ctx context.Context, id string, name *string) error {
	var value *string
	if name != nil {
		if trimmed := strings.TrimSpace(*name); trimmed != "" {
			value = &trimmed
		}
	}

	res := h.db.WithContext(ctx).Model(&models.Walk{}).Where("id = ?", id).Update("name", value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWalkNotFound
	}
	return nil
}

// DayTotals sums the walks dated on day's calendar date in day's location.
func (h *HistoryStore) DayTotals(ctx context.Context, day time.Time) (DaySummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	summary := DaySummary{Day: start}
	err := h.db.WithContext(ctx).Model(&models.Walk{}).
		Select("COALESCE(SUM(steps), 0) AS steps, COALESCE(SUM(distance_meters), 0) AS distance_meters, COUNT(*) AS walks").
		Where("date >= ? AND date < ?", start, end).
		Scan(&summary).Error
	if err != nil {
		return DaySummary{}, err
	}
	summary.Day = start
	return summary, nil
}

func (h *HistoryStore) withMedia(ctx context.Context) *gorm.DB {
	return h.db.WithContext(ctx).Preload("Media", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

func toModel(r tracking.WalkRecord) (models.Walk, error) {
	route, err := geo.EncodeWKB(tracking.RoutePoints(r.Route))
	if err != nil {
		return models.Walk{}, fmt.Errorf("encode route: %w", err)
	}

	walk := models.Walk{
		ID:             r.ID,
		Date:           r.Date,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		Steps:          r.StepCount,
		DistanceMeters: r.DistanceMeters,
		MaxSpeedMps:    r.MaxSpeedMps,
		ElevationGain:  r.ElevationGainMeters,
		ElevationLoss:  r.ElevationLossMeters,
		Route:          route,
		Name:           r.DisplayName,
	}
	for i, m := range r.AttachedMedia {
		walk.Media = append(walk.Media, models.WalkMedia{
			ID:              m.ID,
			WalkID:          r.ID,
			Kind:            string(m.Kind),
			LocalIdentifier: m.LocalIdentifier,
			Position:        i,
		})
	}
	return walk, nil
}

func fromModel(w models.Walk) (tracking.WalkRecord, error) {
	points, err := geo.DecodeWKB(w.Route)
	if err != nil {
		return tracking.WalkRecord{}, fmt.Errorf("decode route of walk %s: %w", w.ID, err)
	}

	r := tracking.WalkRecord{
		ID:                  w.ID,
		Date:                w.Date,
		StartTime:           w.StartTime,
		EndTime:             w.EndTime,
		StepCount:           w.Steps,
		DistanceMeters:      w.DistanceMeters,
		MaxSpeedMps:         w.MaxSpeedMps,
		ElevationGainMeters: w.ElevationGain,
		ElevationLossMeters: w.ElevationLoss,
		Route:               tracking.RouteFromPoints(points),
		AttachedMedia:       make([]tracking.MediaRef, 0, len(w.Media)),
		DisplayName:         w.Name,
	}
	for _, m := range w.Media {
		r.AttachedMedia = append(r.AttachedMedia, tracking.MediaRef{
			ID:              m.ID,
			Kind:            tracking.MediaKind(m.Kind),
			LocalIdentifier: m.LocalIdentifier,
		})
	}
	return r, nil
}
