package models

import "time"

// GoalHistory counts how often a daily step goal was chosen.
type GoalHistory struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Goal         int       `json:"goal" gorm:"uniqueIndex"`
	NumberOfUses int       `json:"number_of_uses"`
	UpdatedAt    time.Time `json:"updated_at"`
}
