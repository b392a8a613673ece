package geo

import (
	"math"
	"testing"
	"time"

	"runstr-engine/internal/track"
)

func TestHaversine(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := Haversine(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100000 || d > 140000 {
		t.Fatalf("unexpected distance: %v", d)
	}
	if Haversine(1, 1, 1, 1) != 0 {
		t.Fatalf("expected zero distance for identical coordinates")
	}
}

func TestDistanceMatchesPairwiseSum(t *testing.T) {
	base := time.Now()
	points := []track.GPSPoint{
		{Lat: 0, Lng: 0, Timestamp: base},
		{Lat: 0.000045, Lng: 0, Timestamp: base.Add(2 * time.Second)},
		{Lat: 0.000090, Lng: 0, Timestamp: base.Add(4 * time.Second)},
	}

	want := 0.0
	for i := 1; i < len(points); i++ {
		want += Haversine(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
	}
	got := Distance(points)
	if math.Abs(got-want) > want*1e-6 {
		t.Fatalf("distance %v, want %v", got, want)
	}
	// ~5 m per 0.000045 deg of latitude
	if got < 9 || got > 11 {
		t.Fatalf("expected roughly 10 m, got %v", got)
	}
}

func TestDistanceEmpty(t *testing.T) {
	if Distance(nil) != 0 {
		t.Fatalf("expected zero distance")
	}
	if Distance([]track.GPSPoint{{Lat: 1, Lng: 1}}) != 0 {
		t.Fatalf("expected zero distance for single point")
	}
}

func TestElevationGain(t *testing.T) {
	points := []track.GPSPoint{
		{AltitudeM: 100, HasAlt: true},
		{AltitudeM: 101.5, HasAlt: true}, // +1.5, below noise floor
		{AltitudeM: 106, HasAlt: true},   // +4.5, counted
		{AltitudeM: 90, HasAlt: true},    // descent, ignored
		{AltitudeM: 95, HasAlt: true},    // +5, counted
	}
	got := ElevationGain(points)
	if math.Abs(got-9.5) > 1e-9 {
		t.Fatalf("elevation gain %v, want 9.5", got)
	}
}

func TestElevationGainSkipsMissingAltitude(t *testing.T) {
	points := []track.GPSPoint{
		{AltitudeM: 100, HasAlt: true},
		{},
		{AltitudeM: 110, HasAlt: true},
	}
	if got := ElevationGain(points); got != 10 {
		t.Fatalf("elevation gain %v, want 10", got)
	}
}

func TestSplits(t *testing.T) {
	base := time.Now()
	// ~0.009 deg latitude ~ 1001 m per step
	var points []track.GPSPoint
	for i := 0; i < 3; i++ {
		points = append(points, track.GPSPoint{
			Lat:       float64(i) * 0.009,
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
		})
	}

	splits := Splits(points)
	if len(splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(splits))
	}
	for i, s := range splits {
		if s.Km != i+1 {
			t.Fatalf("unexpected split km %d", s.Km)
		}
		if s.Duration < 4*time.Minute || s.Duration > 6*time.Minute {
			t.Fatalf("unexpected split duration %v", s.Duration)
		}
	}
}

func TestSplitsShortSession(t *testing.T) {
	if Splits(nil) != nil {
		t.Fatalf("expected no splits")
	}
}
