// Package render turns trails and pins into GeoJSON feature collections and
// computes map viewports around them.
package render

import (
	"github.com/bosqueabierto/mtbmap/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func lineString(line core.Polyline) orb.LineString {
	ls := make(orb.LineString, len(line))
	for i, p := range line {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	return ls
}

// Geometry converts a trail geometry to its orb equivalent.
// Elevation is dropped.
func Geometry(g core.TrailGeometry) orb.Geometry {
	if g.Kind == core.KindLineString {
		return lineString(g.Line)
	}
	mls := make(orb.MultiLineString, len(g.Lines))
	for i, seg := range g.Lines {
		mls[i] = lineString(seg)
	}
	return mls
}

// Properties returns the GeoJSON properties shared by trail lines and pins.
func Properties(p core.TrailProperties) geojson.Properties {
	props := geojson.Properties{
		"id":              p.ID,
		"name":            p.Name,
		"type":            string(p.Discipline),
		"club":            p.Club,
		"difficulty":      string(p.Difficulty),
		"difficultyLabel": p.DifficultyLabel,
		"distanceKm":      p.DistanceKm,
		"ascent":          p.Ascent,
		"descent":         p.Descent,
		"elevation":       core.FormatElevation(p.Ascent, p.Descent),
		"location":        p.Location,
		"region":          p.Region,
	}
	if p.ExportPath != "" {
		props["gpx"] = p.ExportPath
	}
	return props
}

// TrailCollection renders trail geometries as line features, in order.
func TrailCollection(geoms []core.TrailGeometry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, g := range geoms {
		f := geojson.NewFeature(Geometry(g))
		f.Properties = Properties(g.Properties)
		fc.Append(f)
	}
	return fc
}

// PinCollection renders pins as point features, in order.
func PinCollection(pins []*core.PinFeature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range pins {
		f := geojson.NewFeature(orb.Point{p.Lng, p.Lat})
		f.ID = p.TrailID()
		f.Properties = Properties(p.Properties)
		fc.Append(f)
	}
	return fc
}
