package kml

import (
	"fmt"
	"io"

	gokml "github.com/twpayne/go-kml/v3"

	"github.com/bosqueabierto/mtbmap/pkg/core"
)

func coordinates(line core.Polyline) gokml.CoordinatesElement {
	coords := make([]gokml.Coordinate, len(line))
	for i, p := range line {
		coords[i] = gokml.Coordinate{Lon: p.Lon, Lat: p.Lat, Alt: p.Ele}
	}
	return gokml.Coordinates(coords...)
}

func placemark(g core.TrailGeometry) gokml.Element {
	var shape gokml.Element
	if g.Kind == core.KindLineString {
		shape = gokml.LineString(gokml.Tessellate(true), coordinates(g.Line))
	} else {
		lines := make([]gokml.Element, 0, len(g.Lines))
		for _, seg := range g.Lines {
			lines = append(lines, gokml.LineString(gokml.Tessellate(true), coordinates(seg)))
		}
		shape = gokml.MultiGeometry(lines...)
	}
	return gokml.Placemark(
		gokml.Name(g.Properties.Name),
		gokml.Description(fmt.Sprintf("%s · %s · %s",
			g.Properties.Club, g.Properties.Location, g.Properties.DifficultyLabel)),
		shape,
	)
}

// Write encodes geometries as a KML document with one folder per trail.
// Trails without geometry are omitted.
func Write(w io.Writer, name string, trails []core.TrailRecord, geoms map[string][]core.TrailGeometry) error {
	folders := make([]gokml.Element, 0, len(trails)+1)
	folders = append(folders, gokml.Name(name))
	for _, trail := range trails {
		tg := geoms[trail.ID]
		if len(tg) == 0 {
			continue
		}
		children := make([]gokml.Element, 0, len(tg)+1)
		children = append(children, gokml.Name(trail.Name))
		for _, g := range tg {
			children = append(children, placemark(g))
		}
		folders = append(folders, gokml.Folder(children...))
	}

	doc := gokml.KML(gokml.Document(folders...))
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}
