// Package kml reads trail geometry out of KML documents and KMZ archives,
// and writes loaded geometry back out as KML.
package kml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/bosqueabierto/mtbmap/internal/geo"
	"github.com/bosqueabierto/mtbmap/pkg/core"
)

// kmlLineString is a KML <LineString>; only the coordinates matter here.
type kmlLineString struct {
	Coordinates string `xml:"coordinates"`
}

// kmlMultiGeometry collects the line strings of a <MultiGeometry> in document
// order. Nested multi geometries are flattened into their parent.
type kmlMultiGeometry struct {
	Lines []kmlLineString
}

func (m *kmlMultiGeometry) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	return walkChildren(d, func(el xml.StartElement) error {
		switch el.Name.Local {
		case "LineString":
			var ls kmlLineString
			if err := d.DecodeElement(&ls, &el); err != nil {
				return err
			}
			m.Lines = append(m.Lines, ls)
		case "MultiGeometry":
			var nested kmlMultiGeometry
			if err := d.DecodeElement(&nested, &el); err != nil {
				return err
			}
			m.Lines = append(m.Lines, nested.Lines...)
		default:
			return d.Skip()
		}
		return nil
	})
}

// placemarkPath is one path-bearing child of a placemark.
type placemarkPath struct {
	line  *kmlLineString
	multi *kmlMultiGeometry
}

// kmlPlacemark keeps its direct LineString and MultiGeometry children in document order.
type kmlPlacemark struct {
	Name  string
	Paths []placemarkPath
}

func (p *kmlPlacemark) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	return walkChildren(d, func(el xml.StartElement) error {
		switch el.Name.Local {
		case "name":
			return d.DecodeElement(&p.Name, &el)
		case "LineString":
			var ls kmlLineString
			if err := d.DecodeElement(&ls, &el); err != nil {
				return err
			}
			p.Paths = append(p.Paths, placemarkPath{line: &ls})
		case "MultiGeometry":
			var mg kmlMultiGeometry
			if err := d.DecodeElement(&mg, &el); err != nil {
				return err
			}
			p.Paths = append(p.Paths, placemarkPath{multi: &mg})
		default:
			return d.Skip()
		}
		return nil
	})
}

// walkChildren calls fn for every direct child element until the enclosing end element.
func walkChildren(d *xml.Decoder, fn func(xml.StartElement) error) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := fn(t); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

// Extract reads a KML document and returns every path of every placemark as a
// trail geometry tagged with trail's properties, in document order.
//
// Placemarks are found at any depth. Malformed coordinate tuples are dropped and
// empty paths are skipped. When the document itself is broken, the geometries
// read before the failure are returned together with the error.
func Extract(r io.Reader, trail core.TrailRecord) ([]core.TrailGeometry, error) {
	d := xml.NewDecoder(r)
	d.Strict = false

	props := trail.Properties()
	var out []core.TrailGeometry

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("reading kml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Placemark" {
			continue
		}
		var pm kmlPlacemark
		if err := d.DecodeElement(&pm, &start); err != nil {
			// the paths decoded before the failure are still usable
			out = append(out, placemarkGeometries(pm, trail.ID, props)...)
			return out, fmt.Errorf("decoding placemark %q: %w", pm.Name, err)
		}
		out = append(out, placemarkGeometries(pm, trail.ID, props)...)
	}
}

func placemarkGeometries(pm kmlPlacemark, trailID string, props core.TrailProperties) []core.TrailGeometry {
	var out []core.TrailGeometry
	for _, path := range pm.Paths {
		switch {
		case path.line != nil:
			line := geo.ParseCoordinates(path.line.Coordinates)
			if len(line) == 0 {
				continue
			}
			out = append(out, core.TrailGeometry{
				TrailID:    trailID,
				Kind:       core.KindLineString,
				Line:       line,
				Properties: props,
			})
		case path.multi != nil:
			var lines core.MultiPolyline
			for _, ls := range path.multi.Lines {
				line := geo.ParseCoordinates(ls.Coordinates)
				if len(line) == 0 {
					continue
				}
				lines = append(lines, line)
			}
			if len(lines) == 0 {
				continue
			}
			out = append(out, core.TrailGeometry{
				TrailID:    trailID,
				Kind:       core.KindMultiLineString,
				Lines:      lines,
				Properties: props,
			})
		}
	}
	return out
}
