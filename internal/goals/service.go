package goals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"walk_tracker/internal/models"
)

var ErrInvalidGoal = errors.New("goal must be a positive step count")

// Override is where the chosen goal is published for widgets.
type Override interface {
	SetGoalOverride(ctx context.Context, goal int) error
	ClearGoalOverride(ctx context.Context) error
	GoalTarget(ctx context.Context) int
}

type Service struct {
	db       *gorm.DB
	override Override
}

func NewService(db *gorm.DB, override Override) *Service {
	return &Service{db: db, override: override}
}

// Use records that goal was chosen and makes it the current target.
func (s *Service) Use(ctx context.Context, goal int) (models.GoalHistory, error) {
	if goal <= 0 {
		return models.GoalHistory{}, ErrInvalidGoal
	}

	var entry models.GoalHistory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("goal = ?", goal).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry = models.GoalHistory{ID: uuid.NewString(), Goal: goal, NumberOfUses: 1}
			return tx.Create(&entry).Error
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&entry).Update("number_of_uses", gorm.Expr("number_of_uses + 1")).Error; err != nil {
			return err
		}
		entry.NumberOfUses++
		return nil
	})
	if err != nil {
		return models.GoalHistory{}, err
	}

	if err := s.override.SetGoalOverride(ctx, goal); err != nil {
		return entry, err
	}
	return entry, nil
}

// Frequent lists goals by how often they were chosen.
func (s *Service) Frequent(ctx context.Context, limit int) ([]models.GoalHistory, error) {
	q := s.db.WithContext(ctx).Order("number_of_uses desc").Order("goal asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.GoalHistory
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) ClearOverride(ctx context.Context) error {
	return s.override.ClearGoalOverride(ctx)
}

func (s *Service) Current(ctx context.Context) int {
	return s.override.GoalTarget(ctx)
}
