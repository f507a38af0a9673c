package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bosqueabierto/mtbmap/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Trail geometry stays in EPSG:4326 degrees everywhere. Conversion to 3857 only
// happens when fitting a viewport, since map clients zoom in Web Mercator.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParsePoint parses a "long,lat" or "long,lat,elev" KML tuple into a core.Point.
// Longitude and latitude must be finite. A missing or unparseable elevation is 0.
func ParsePoint(coords string) (core.Point, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return core.Point{}, ErrInvalidCoordinates
	}
	long, ok := parseFinite(coordsSplit[0])
	if !ok {
		return core.Point{}, ErrInvalidCoordinates
	}
	lat, ok := parseFinite(coordsSplit[1])
	if !ok {
		return core.Point{}, ErrInvalidCoordinates
	}
	var elev float64
	if len(coordsSplit) > 2 {
		if v, ok := parseFinite(coordsSplit[2]); ok {
			elev = v
		}
	}
	return core.Point{Lon: long, Lat: lat, Ele: elev}, nil
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseCoordinates parses the text of a KML <coordinates> element.
// Tuples are whitespace separated; tuples that fail to parse are dropped.
func ParseCoordinates(text string) core.Polyline {
	fields := strings.Fields(text)
	line := make(core.Polyline, 0, len(fields))
	for _, field := range fields {
		p, err := ParsePoint(field)
		if err != nil {
			continue
		}
		line = append(line, p)
	}
	return line
}

// ToLineString converts a polyline into a simplefeatures XYZ line string.
// simplefeatures needs at least two distinct points.
func ToLineString(line core.Polyline) (geom.LineString, error) {
	flat := make([]float64, 0, len(line)*3)
	for _, p := range line {
		flat = append(flat, p.Lon, p.Lat, p.Ele)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ))
}

// ToGeometry converts a trail geometry into its simplefeatures equivalent.
// A segment that is not a valid line string fails the whole conversion.
func ToGeometry(g core.TrailGeometry) (geom.Geometry, error) {
	segs := g.Segments()
	lines := make([]geom.LineString, 0, len(segs))
	for i, seg := range segs {
		ls, err := ToLineString(seg)
		if err != nil {
			return geom.Geometry{}, fmt.Errorf("segment %d: %w", i, err)
		}
		lines = append(lines, ls)
	}
	if g.Kind == core.KindLineString && len(lines) == 1 {
		return lines[0].AsGeometry(), nil
	}
	return geom.NewMultiLineString(lines).AsGeometry(), nil
}

// Envelope returns the bounding box of every point of the given geometries in
// degrees, single-point segments included. ok is false when there is nothing
// to bound.
func Envelope(geoms []core.TrailGeometry) (min, max core.LngLat, ok bool) {
	var env geom.Envelope
	for _, g := range geoms {
		for _, seg := range g.Segments() {
			for _, p := range seg {
				next, err := env.ExtendToIncludeXY(geom.XY{X: p.Lon, Y: p.Lat})
				if err != nil {
					continue
				}
				env = next
			}
		}
	}
	lo, hi, ok := env.MinMaxXYs()
	if !ok {
		return core.LngLat{}, core.LngLat{}, false
	}
	return core.LngLat{Lng: lo.X, Lat: lo.Y}, core.LngLat{Lng: hi.X, Lat: hi.Y}, true
}

// ToWebMercator projects a WGS84 position to EPSG:3857 metres.
func ToWebMercator(pos core.LngLat) (x, y float64) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ = f(pos.Lng, pos.Lat, 0)
	return x, y
}

// FromWebMercator converts EPSG:3857 metres back to a WGS84 position.
func FromWebMercator(x, y float64) core.LngLat {
	epsg := wgs84.EPSG()
	f := epsg.Transform(3857, 4326)
	lng, lat, _ := f(x, y, 0)
	return core.LngLat{Lng: lng, Lat: lat}
}
