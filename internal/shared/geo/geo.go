package geo

import (
	"math"
	"time"

	"runstr-engine/internal/track"
)

const earthRadiusM = 6371000.0

// elevation deltas at or below this are barometric noise and ignored
const elevationNoiseM = 2.0

// Haversine returns the great-circle distance in meters between two coordinates.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Distance sums pairwise haversine distances over an ordered point sequence.
func Distance(points []track.GPSPoint) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Haversine(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
	}
	return total
}

// ElevationGain sums positive altitude deltas between consecutive points.
// Deltas of 2 m or less, negative deltas, and points without altitude are
// ignored entirely, never subtracted.
func ElevationGain(points []track.GPSPoint) float64 {
	gain := 0.0
	var last float64
	haveLast := false
	for _, p := range points {
		if !p.HasAlt {
			continue
		}
		if haveLast {
			if delta := p.AltitudeM - last; delta > elevationNoiseM {
				gain += delta
			}
		}
		last = p.AltitudeM
		haveLast = true
	}
	return gain
}

// Splits walks the point sequence and records the duration of each completed
// kilometer. The boundary crossing is interpolated between the two points
// straddling it.
func Splits(points []track.GPSPoint) []track.Split {
	if len(points) < 2 {
		return nil
	}

	var splits []track.Split
	cum := 0.0
	kmStart := points[0].Timestamp
	for i := 1; i < len(points); i++ {
		seg := Haversine(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
		if seg <= 0 {
			continue
		}
		for cum+seg >= float64(len(splits)+1)*1000 {
			need := float64(len(splits)+1)*1000 - cum
			frac := need / seg
			segDur := points[i].Timestamp.Sub(points[i-1].Timestamp)
			crossAt := points[i-1].Timestamp.Add(time.Duration(frac * float64(segDur)))
			splits = append(splits, track.Split{
				Km:       len(splits) + 1,
				Duration: crossAt.Sub(kmStart),
			})
			kmStart = crossAt
		}
		cum += seg
	}
	return splits
}
