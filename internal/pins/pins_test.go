package pins

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosqueabierto/mtbmap/pkg/core"
)

func pin(id string, lng, lat float64) *core.PinFeature {
	return core.NewPin(core.TrailRecord{ID: id}, core.LngLat{Lng: lng, Lat: lat})
}

func TestKey(t *testing.T) {
	assert.Equal(t, "-72.9950,-36.7400", Key(-72.995, -36.74))
	assert.Equal(t, Key(-72.99501, -36.74002), Key(-72.99499, -36.73998))

	// exact binary ties round away from zero
	assert.Equal(t, "-72.0313,36.0313", Key(-72.03125, 36.03125))
	assert.Equal(t, "0.0001,-0.0000", Key(0.00005, -0.00001))
	assert.Equal(t, "-180.0000,90.0000", Key(-180, 90))
}

func TestSeparateOverlapping_ThreeIdenticalPins(t *testing.T) {
	const lng, lat = -72.9950, -36.7400
	features := []*core.PinFeature{pin("a", lng, lat), pin("b", lng, lat), pin("c", lng, lat)}

	SeparateOverlapping(features)

	assert.Equal(t, lng, features[0].Lng)
	assert.Equal(t, lat, features[0].Lat)

	scale := math.Cos(lat * math.Pi / 180)
	for i, deg := range map[int]float64{1: 137.5, 2: 275} {
		a := deg * math.Pi / 180
		f := features[i]
		assert.InDelta(t, lng+0.015*math.Cos(a)/scale, f.Lng, 1e-12, "pin %d lng", i)
		assert.InDelta(t, lat+0.015*math.Sin(a), f.Lat, 1e-12, "pin %d lat", i)

		// undo the longitude compression: the displacement radius is exactly 0.015
		dx := (f.Lng - lng) * scale
		dy := f.Lat - lat
		assert.InDelta(t, 0.015, math.Hypot(dx, dy), 1e-12)
	}

	assert.Equal(t, []string{"a", "b", "c"}, []string{features[0].TrailID(), features[1].TrailID(), features[2].TrailID()})
}

func TestSeparateOverlapping_DistinctPinsUntouched(t *testing.T) {
	features := []*core.PinFeature{pin("a", -72.1, -36.1), pin("b", -72.2, -36.2)}
	SeparateOverlapping(features)

	assert.Equal(t, core.LngLat{Lng: -72.1, Lat: -36.1}, features[0].Position())
	assert.Equal(t, core.LngLat{Lng: -72.2, Lat: -36.2}, features[1].Position())
}

func TestSeparateOverlapping_GroupsByOriginalCoordinates(t *testing.T) {
	// the second pin of group A lands near B after displacement; B must still
	// count as the first pin of its own group
	const lng, lat = 0.0, 0.0
	dLng, dLat := Offset(1, lat)
	features := []*core.PinFeature{
		pin("a1", lng, lat),
		pin("a2", lng, lat),
		pin("b", lng+dLng, lat+dLat),
	}

	SeparateOverlapping(features)

	assert.Equal(t, core.LngLat{Lng: lng + dLng, Lat: lat + dLat}, features[2].Position())
}

func TestOffset_HighLatitudeClamp(t *testing.T) {
	dLng, _ := Offset(4, 89)
	a := 4 * GoldenAngle * math.Pi / 180
	assert.InDelta(t, 0.015*math.Cos(a)/0.25, dLng, 1e-12)

	dLng, dLat := Offset(0, 10)
	assert.Zero(t, dLng)
	assert.Zero(t, dLat)
}

func TestBuild(t *testing.T) {
	trails := []core.TrailRecord{
		{ID: "declared", Location: "PENCO", StartCoords: []float64{-72.5, -36.5}},
		{ID: "town", Location: "PENCO"},
		{ID: "real", Location: "PENCO", StartCoords: []float64{-72.5, -36.5}},
		{ID: "same-town", Location: "PENCO"},
	}
	starts := map[string]core.LngLat{"real": {Lng: -73, Lat: -37}}

	got := Build(trails, starts)
	require.Len(t, got, 4)

	assert.Equal(t, core.LngLat{Lng: -72.5, Lat: -36.5}, got[0].Position())
	assert.Equal(t, core.LngLat{Lng: -72.9950, Lat: -36.7400}, got[1].Position())
	assert.Equal(t, core.LngLat{Lng: -73, Lat: -37}, got[2].Position())
	assert.NotEqual(t, core.LngLat{Lng: -72.9950, Lat: -36.7400}, got[3].Position(), "second pin in PENCO is displaced")
	assert.Equal(t, "same-town", got[3].TrailID())
	assert.Equal(t, "same-town", got[3].Properties.ID)
}
