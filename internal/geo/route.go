package geo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Point is one route vertex: WGS84 position, altitude in meters and the
// time the fix was taken.
type Point struct {
	Lat  float64
	Lon  float64
	Alt  float64
	Time time.Time
}

var errNotLineString = errors.New("route geometry is not a LineString")

// EncodeWKB stores a route as an XYZM LineString (lon, lat, altitude, epoch seconds).
func EncodeWKB(points []Point) ([]byte, error) {
	if len(points) == 0 {
		return nil, nil
	}
	flat := make([]float64, 0, len(points)*4)
	for _, p := range points {
		flat = append(flat, p.Lon, p.Lat, p.Alt, EpochSeconds(p.Time))
	}
	return wkb.Marshal(geom.NewLineStringFlat(geom.XYZM, flat), binary.LittleEndian)
}

// DecodeWKB reverses EncodeWKB. Empty input yields an empty route.
func DecodeWKB(b []byte) ([]Point, error) {
	if len(b) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	ls, ok := g.(*geom.LineString)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", errNotLineString, g)
	}

	stride := ls.Stride()
	flat := ls.FlatCoords()
	points := make([]Point, 0, ls.NumCoords())
	for i := 0; i+stride <= len(flat); i += stride {
		p := Point{Lon: flat[i], Lat: flat[i+1]}
		if stride > 2 {
			p.Alt = flat[i+2]
		}
		if stride > 3 {
			p.Time = FromEpochSeconds(flat[i+3])
		}
		points = append(points, p)
	}
	return points, nil
}

// GeoJSON renders the route as a GeoJSON LineString with altitude, the form
// map renderers consume.
func GeoJSON(points []Point) ([]byte, error) {
	flat := make([]float64, 0, len(points)*3)
	for _, p := range points {
		flat = append(flat, p.Lon, p.Lat, p.Alt)
	}
	return gjson.Marshal(geom.NewLineStringFlat(geom.XYZ, flat))
}

// EpochSeconds converts t to fractional epoch seconds; the zero time maps to 0.
func EpochSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

// FromEpochSeconds converts fractional epoch seconds back to a UTC time,
// rounded to the microsecond so float64 noise does not leak into nanoseconds.
func FromEpochSeconds(v float64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	micros := int64(math.Round(v * 1e6))
	return time.UnixMicro(micros).UTC()
}
