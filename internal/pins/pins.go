// Package pins builds trail markers and spreads markers that would be drawn on
// top of each other.
package pins

import (
	"fmt"
	"math"
	"math/big"

	"github.com/bosqueabierto/mtbmap/internal/catalog"
	"github.com/bosqueabierto/mtbmap/pkg/core"
)

const (
	// OffsetRadius is the displacement of every duplicate pin, in degrees.
	OffsetRadius = 0.015
	// GoldenAngle is the angular step between successive duplicates, in degrees.
	GoldenAngle = 137.5
	// minLatitudeScale bounds the longitude stretch near the poles.
	minLatitudeScale = 0.25
)

// Key is the grouping key of a position: both coordinates at 4 decimals.
func Key(lng, lat float64) string {
	return fixed4(lng) + "," + fixed4(lat)
}

// fixed4 formats v with 4 decimals, rounding exact ties away from zero.
// fmt rounds those ties to even, so -72.03125 would give -72.0312 there.
func fixed4(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%.4f", v)
	}
	sign := ""
	if v < 0 {
		sign = "-"
	}
	// a float64 times 10^4 fits in 256 bits, so scaling and adding are exact
	scaled := new(big.Float).SetPrec(256).SetFloat64(math.Abs(v))
	scaled.Mul(scaled, big.NewFloat(1e4))
	scaled.Add(scaled, big.NewFloat(0.5))
	n, _ := scaled.Int(nil)
	whole, frac := new(big.Int).QuoRem(n, big.NewInt(1e4), new(big.Int))
	return fmt.Sprintf("%s%s.%04d", sign, whole, frac.Int64())
}

// Offset returns the displacement of the n-th duplicate at latitude lat.
// n = 0 is the original pin and is not displaced.
func Offset(n int, lat float64) (dLng, dLat float64) {
	if n <= 0 {
		return 0, 0
	}
	angle := float64(n) * GoldenAngle * math.Pi / 180
	scale := math.Max(minLatitudeScale, math.Cos(lat*math.Pi/180))
	return OffsetRadius * math.Cos(angle) / scale, OffsetRadius * math.Sin(angle)
}

// SeparateOverlapping moves pins that share a position onto a golden-angle
// spiral around it. The first pin of each group stays put. Pins are changed in
// place and the slice order is kept.
func SeparateOverlapping(features []*core.PinFeature) {
	buckets := make(map[string]int, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		lng, lat := f.Lng, f.Lat
		key := Key(lng, lat)
		n := buckets[key]
		buckets[key] = n + 1
		if n == 0 {
			continue
		}
		dLng, dLat := Offset(n, lat)
		f.Lng = lng + dLng
		f.Lat = lat + dLat
	}
}

// Build creates one pin per trail in catalog order and separates overlapping
// ones. A trail's position is taken from starts when present there, otherwise
// from its declared start or its town.
func Build(trails []core.TrailRecord, starts map[string]core.LngLat) []*core.PinFeature {
	out := make([]*core.PinFeature, 0, len(trails))
	for _, t := range trails {
		pos, ok := starts[t.ID]
		if !ok {
			pos = catalog.PinPosition(t)
		}
		out = append(out, core.NewPin(t, pos))
	}
	SeparateOverlapping(out)
	return out
}
