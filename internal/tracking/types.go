package tracking

import (
	"slices"
	"time"

	"walk_tracker/internal/geo"
)

// LocationFix is a single position reading from the location service.
type LocationFix struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude"`
	HorizontalAccuracy float64   `json:"accuracy"`
	Speed              float64   `json:"speed"`
	Timestamp          time.Time `json:"timestamp"`
}

// Coordinate is an accepted fix as retained in the route polyline.
type Coordinate struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Timestamp time.Time `json:"timestamp"`
}

func coordinateOf(fix LocationFix) Coordinate {
	return Coordinate{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Altitude:  fix.Altitude,
		Timestamp: fix.Timestamp,
	}
}

// MediaKind tells where an attached photo came from.
type MediaKind string

const (
	MediaCamera  MediaKind = "camera"
	MediaGallery MediaKind = "gallery"
)

// MediaRef is an opaque reference to a photo attached to a walk. The media
// service owns the bytes; the tracker only carries the identifier.
type MediaRef struct {
	ID              string    `json:"id"`
	Kind            MediaKind `json:"kind"`
	LocalIdentifier string    `json:"local_identifier"`
}

// SessionMetrics are the cumulative figures of one session. Every
// accumulator is non-decreasing until the next Reset.
type SessionMetrics struct {
	Route               []Coordinate `json:"route"`
	TotalDistanceMeters float64      `json:"total_distance_m"`
	MaxSpeedMps         float64      `json:"max_speed_mps"`
	ElevationGainMeters float64      `json:"elevation_gain_m"`
	ElevationLossMeters float64      `json:"elevation_loss_m"`
	StepCount           int          `json:"step_count"`
	StartTime           time.Time    `json:"start_time"`
	EndTime             *time.Time   `json:"end_time,omitempty"`
}

// Clone returns a copy that shares no slices or pointers with m.
func (m SessionMetrics) Clone() SessionMetrics {
	out := m
	out.Route = slices.Clone(m.Route)
	if m.EndTime != nil {
		end := *m.EndTime
		out.EndTime = &end
	}
	return out
}

// InFlight is the durable form of an active or paused session.
type InFlight struct {
	// WalkID is the id the finished record will carry, fixed at start so a
	// replayed final write is detected as a duplicate.
	WalkID    string
	Metrics   SessionMetrics
	StartTime time.Time
	SavedAt   time.Time
	Media     []MediaRef
}

// WalkRecord is the immutable result of a finished session.
type WalkRecord struct {
	ID                  string       `json:"id"`
	Date                time.Time    `json:"date"`
	StartTime           time.Time    `json:"start_time"`
	EndTime             time.Time    `json:"end_time"`
	StepCount           int          `json:"step_count"`
	DistanceMeters      float64      `json:"distance_m"`
	MaxSpeedMps         float64      `json:"max_speed_mps"`
	ElevationGainMeters float64      `json:"elevation_gain_m"`
	ElevationLossMeters float64      `json:"elevation_loss_m"`
	Route               []Coordinate `json:"route"`
	AttachedMedia       []MediaRef   `json:"attached_media"`
	DisplayName         *string      `json:"display_name,omitempty"`
}

// Duration is the wall-clock length of the walk, pauses included.
func (r WalkRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// RoutePoints converts the route for geometry encoding.
func RoutePoints(route []Coordinate) []geo.Point {
	points := make([]geo.Point, len(route))
	for i, c := range route {
		points[i] = geo.Point{Lat: c.Latitude, Lon: c.Longitude, Alt: c.Altitude, Time: c.Timestamp}
	}
	return points
}

// RouteFromPoints is the inverse of RoutePoints.
func RouteFromPoints(points []geo.Point) []Coordinate {
	route := make([]Coordinate, len(points))
	for i, p := range points {
		route[i] = Coordinate{Latitude: p.Lat, Longitude: p.Lon, Altitude: p.Alt, Timestamp: p.Time}
	}
	return route
}
