// pkg/core/geometry.go
package core

// Point is a single trail vertex. Ele is 0 when the source had no elevation.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
	Ele float64 `json:"ele"`
}

// Polyline is an ordered sequence of points.
type Polyline []Point

// MultiPolyline is an ordered collection of non-empty polylines.
type MultiPolyline []Polyline

// GeometryKind names the GeoJSON geometry type a TrailGeometry renders as.
type GeometryKind string

const (
	KindLineString      GeometryKind = "LineString"
	KindMultiLineString GeometryKind = "MultiLineString"
)

// TrailGeometry is one path extracted from a trail archive.
// Exactly one of Line or Lines is set, according to Kind.
type TrailGeometry struct {
	TrailID    string
	Kind       GeometryKind
	Line       Polyline
	Lines      MultiPolyline
	Properties TrailProperties
}

// Segments returns the geometry as a list of polylines regardless of kind.
func (g TrailGeometry) Segments() MultiPolyline {
	if g.Kind == KindLineString {
		return MultiPolyline{g.Line}
	}
	return g.Lines
}

// First returns the first vertex of the geometry.
func (g TrailGeometry) First() (Point, bool) {
	for _, seg := range g.Segments() {
		if len(seg) > 0 {
			return seg[0], true
		}
	}
	return Point{}, false
}

// Clone returns a deep copy so renderers never hold the cached slices.
func (g TrailGeometry) Clone() TrailGeometry {
	out := g
	if g.Line != nil {
		out.Line = append(Polyline(nil), g.Line...)
	}
	if g.Lines != nil {
		out.Lines = make(MultiPolyline, len(g.Lines))
		for i, seg := range g.Lines {
			out.Lines[i] = append(Polyline(nil), seg...)
		}
	}
	return out
}

// Metrics are the distance and elevation totals of a path.
type Metrics struct {
	DistanceKm float64 `json:"distanceKm"`
	Ascent     int     `json:"ascent"`
	Descent    int     `json:"descent"`
}
