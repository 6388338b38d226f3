package models

import "time"

// Walk is a finished walking session. Route holds the polyline as XYZM WKB
// (lon, lat, altitude, epoch seconds).
type Walk struct {
	ID             string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Date           time.Time   `json:"date" gorm:"index"`
	StartTime      time.Time   `json:"start_time"`
	EndTime        time.Time   `json:"end_time"`
	Steps          int         `json:"steps"`
	DistanceMeters float64     `json:"distance_m"`
	MaxSpeedMps    float64     `json:"max_speed_mps"`
	ElevationGain  float64     `json:"elevation_gain_m"`
	ElevationLoss  float64     `json:"elevation_loss_m"`
	Route          []byte      `json:"-" gorm:"type:bytea"`
	Name           *string     `json:"name,omitempty"`
	Media          []WalkMedia `json:"media" gorm:"foreignKey:WalkID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt      time.Time   `json:"created_at"`
}
