package geo

import (
	"math"

	"github.com/bosqueabierto/mtbmap/pkg/core"
)

// EarthRadiusM is the mean Earth radius used by the haversine formula.
const EarthRadiusM = 6371000.0

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Haversine returns the great-circle distance in metres between two positions in degrees.
//
// a = sin²(Δφ/2) + cos φ1 ⋅ cos φ2 ⋅ sin²(Δλ/2)
// c = 2 ⋅ atan2(√a, √(1−a))
// d = R ⋅ c
func Haversine(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := degreesToRadians(lat1)
	phi2 := degreesToRadians(lat2)
	dPhi := degreesToRadians(lat2 - lat1)
	dLambda := degreesToRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// accumulator sums raw metres and elevation deltas before rounding.
type accumulator struct {
	distance float64
	ascent   float64
	descent  float64
}

func (acc *accumulator) add(line core.Polyline) {
	for i := 1; i < len(line); i++ {
		prev, cur := line[i-1], line[i]
		acc.distance += Haversine(prev.Lon, prev.Lat, cur.Lon, cur.Lat)
		diff := cur.Ele - prev.Ele
		if diff > 0 {
			acc.ascent += diff
		} else {
			acc.descent += -diff
		}
	}
}

func (acc accumulator) metrics() core.Metrics {
	return core.Metrics{
		DistanceKm: acc.distance / 1000,
		Ascent:     int(math.Round(acc.ascent)),
		Descent:    int(math.Round(acc.descent)),
	}
}

// PathMetrics computes distance and elevation totals of one continuous path.
// Fewer than two points yield zero metrics.
func PathMetrics(line core.Polyline) core.Metrics {
	var acc accumulator
	acc.add(line)
	return acc.metrics()
}

// MultiMetrics computes totals over several paths. Gaps between paths do not
// count towards distance or elevation.
func MultiMetrics(lines core.MultiPolyline) core.Metrics {
	var acc accumulator
	for _, line := range lines {
		acc.add(line)
	}
	return acc.metrics()
}

// GeometryMetrics computes totals for a single trail geometry.
func GeometryMetrics(g core.TrailGeometry) core.Metrics {
	return MultiMetrics(g.Segments())
}

// TrailMetrics computes totals over every geometry extracted for one trail.
func TrailMetrics(geoms []core.TrailGeometry) core.Metrics {
	var acc accumulator
	for _, g := range geoms {
		for _, seg := range g.Segments() {
			acc.add(seg)
		}
	}
	return acc.metrics()
}
