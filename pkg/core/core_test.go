package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatElevation(t *testing.T) {
	tests := []struct {
		ascent, descent int
		want            string
	}{
		{0, 0, "N/A"},
		{120, 0, "+120m"},
		{0, 270, "-270m"},
		{29, 270, "+29m/-270m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatElevation(tt.ascent, tt.descent))
		})
	}
}

func TestDifficulty(t *testing.T) {
	assert.Equal(t, "FÁCIL", Green.Label())
	assert.Equal(t, "INTERMEDIO", Blue.Label())
	assert.Equal(t, "DIFÍCIL", Black.Label())
	assert.True(t, Black.Valid())
	assert.False(t, Difficulty("rojo").Valid())
	assert.Empty(t, Difficulty("rojo").Label())

	assert.True(t, Downhill.Valid())
	assert.False(t, Discipline("EN").Valid())
}

func TestTrailRecord_Start(t *testing.T) {
	trail := TrailRecord{StartCoords: []float64{-72.93, -36.54}}
	pos, ok := trail.Start()
	require.True(t, ok)
	assert.Equal(t, LngLat{Lng: -72.93, Lat: -36.54}, pos)
	assert.NoError(t, trail.ValidateStart())

	_, ok = TrailRecord{}.Start()
	assert.False(t, ok)
	assert.NoError(t, TrailRecord{}.ValidateStart())

	assert.Error(t, TrailRecord{StartCoords: []float64{-72.93}}.ValidateStart())
	assert.Error(t, TrailRecord{StartCoords: []float64{math.NaN(), -36.54}}.ValidateStart())
	assert.Error(t, TrailRecord{StartCoords: []float64{-72.93, math.Inf(1)}}.ValidateStart())
}

func TestTrailRecord_Properties(t *testing.T) {
	trail := TrailRecord{
		ID: "ruta-001", Name: "Pista Dichato Clasica", Discipline: Downhill, Club: "SKILL BIKE",
		Difficulty: Black, DistanceKm: 2.42, Ascent: 29, Descent: 270,
		Location: "DICHATO", Region: "Biobío", ArchivePath: "kmz/dichato.kmz", ExportPath: "gpx/dichato.gpx",
	}
	props := trail.Properties()
	assert.Equal(t, "DIFÍCIL", props.DifficultyLabel)
	assert.Equal(t, "gpx/dichato.gpx", props.ExportPath)
	assert.Equal(t, 270, props.Descent)
}

func TestTrailGeometry_Segments(t *testing.T) {
	line := TrailGeometry{Kind: KindLineString, Line: Polyline{{Lon: 1, Lat: 2}}}
	assert.Equal(t, MultiPolyline{{{Lon: 1, Lat: 2}}}, line.Segments())

	multi := TrailGeometry{Kind: KindMultiLineString, Lines: MultiPolyline{{}, {{Lon: 3, Lat: 4, Ele: 5}}}}
	assert.Len(t, multi.Segments(), 2)

	first, ok := multi.First()
	require.True(t, ok, "empty leading segments are skipped")
	assert.Equal(t, Point{Lon: 3, Lat: 4, Ele: 5}, first)

	_, ok = TrailGeometry{Kind: KindMultiLineString}.First()
	assert.False(t, ok)
}

func TestTrailGeometry_Clone(t *testing.T) {
	g := TrailGeometry{
		Kind:  KindMultiLineString,
		Lines: MultiPolyline{{{Lon: 1, Lat: 1}, {Lon: 2, Lat: 2}}},
	}
	c := g.Clone()
	c.Lines[0][0].Lon = 99
	assert.Equal(t, 1.0, g.Lines[0][0].Lon)

	l := TrailGeometry{Kind: KindLineString, Line: Polyline{{Lon: 1}}}
	lc := l.Clone()
	lc.Line[0].Lon = 99
	assert.Equal(t, 1.0, l.Line[0].Lon)
}

func TestNewPin(t *testing.T) {
	trail := TrailRecord{ID: "ruta-002", Name: "Villa Esperanza", Difficulty: Black}
	pin := NewPin(trail, LngLat{Lng: -72.8167, Lat: -39.85})

	assert.Equal(t, "ruta-002", pin.TrailID())
	assert.Equal(t, LngLat{Lng: -72.8167, Lat: -39.85}, pin.Position())

	pin.Lng, pin.Lat = 0, 0
	assert.Equal(t, "ruta-002", pin.TrailID(), "moving a pin keeps its trail")
	assert.Equal(t, "Villa Esperanza", pin.Properties.Name)
}
