package render

import (
	"math"

	"github.com/bosqueabierto/mtbmap/internal/geo"
	"github.com/bosqueabierto/mtbmap/pkg/core"
	"github.com/paulmach/orb"
)

const (
	// tileSize is the world size in pixels at zoom 0.
	tileSize = 512
	// webMercatorWorld is the width of the EPSG:3857 plane in metres.
	webMercatorWorld = 2 * math.Pi * 6378137

	// TrailZoom is the zoom used when a trail has no geometry to fit.
	TrailZoom = 12
	// TrailMaxZoom caps the zoom when fitting a trail.
	TrailMaxZoom = 14
	// TrailPadding is the padding around a fitted trail, in pixels.
	TrailPadding = 120

	// Zoom range used to show every pin at once.
	PinsMinZoom = 6
	PinsMaxZoom = 9

	// MobileWidth is the widest viewport laid out as a phone screen.
	MobileWidth = 768
)

// Desktop screens keep the left side clear for the trail list.
var (
	desktopPinsPadding = Padding{Top: 80, Bottom: 80, Left: 400, Right: 50}
	mobilePinsPadding  = Padding{Top: 100, Bottom: 60, Left: 30, Right: 30}
)

// Size is a viewport size in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Padding is the screen space to keep clear around fitted bounds, in pixels.
type Padding struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// UniformPadding pads every side by p.
func UniformPadding(p float64) Padding {
	return Padding{Top: p, Bottom: p, Left: p, Right: p}
}

// Viewport is a map camera position.
type Viewport struct {
	Center core.LngLat `json:"center"`
	Zoom   float64     `json:"zoom"`
}

// Bounds returns the bounding box of trail geometries.
func Bounds(geoms []core.TrailGeometry) (orb.Bound, bool) {
	lo, hi, ok := geo.Envelope(geoms)
	if !ok {
		return orb.Bound{}, false
	}
	return orb.Bound{Min: orb.Point{lo.Lng, lo.Lat}, Max: orb.Point{hi.Lng, hi.Lat}}, true
}

// PinBounds returns the bounding box of pins.
func PinBounds(pins []*core.PinFeature) (orb.Bound, bool) {
	if len(pins) == 0 {
		return orb.Bound{}, false
	}
	b := orb.Point{pins[0].Lng, pins[0].Lat}.Bound()
	for _, p := range pins[1:] {
		b = b.Extend(orb.Point{p.Lng, p.Lat})
	}
	return b, true
}

// FitBounds returns the viewport that shows b inside size minus padding,
// with the zoom clamped to [minZoom, maxZoom].
func FitBounds(b orb.Bound, size Size, pad Padding, minZoom, maxZoom float64) Viewport {
	x0, y0 := geo.ToWebMercator(core.LngLat{Lng: b.Min[0], Lat: b.Min[1]})
	x1, y1 := geo.ToWebMercator(core.LngLat{Lng: b.Max[0], Lat: b.Max[1]})
	center := geo.FromWebMercator((x0+x1)/2, (y0+y1)/2)

	w := math.Max(1, size.Width-pad.Left-pad.Right)
	h := math.Max(1, size.Height-pad.Top-pad.Bottom)
	dx, dy := math.Abs(x1-x0), math.Abs(y1-y0)

	zoom := maxZoom
	if dx > 0 || dy > 0 {
		scale := math.Inf(1)
		if dx > 0 {
			scale = w / dx
		}
		if dy > 0 {
			scale = math.Min(scale, h/dy)
		}
		zoom = math.Log2(scale * webMercatorWorld / tileSize)
	}
	zoom = math.Max(minZoom, math.Min(maxZoom, zoom))

	return Viewport{Center: center, Zoom: zoom}
}

// CenterOnTrail fits the view to a trail's geometry. Without geometry it
// centres on fallback at TrailZoom.
func CenterOnTrail(geoms []core.TrailGeometry, fallback core.LngLat, size Size) Viewport {
	b, ok := Bounds(geoms)
	if !ok {
		return Viewport{Center: fallback, Zoom: TrailZoom}
	}
	return FitBounds(b, size, UniformPadding(TrailPadding), 0, TrailMaxZoom)
}

// FitPins frames every pin. ok is false when there are none.
func FitPins(pins []*core.PinFeature, size Size) (v Viewport, ok bool) {
	b, ok := PinBounds(pins)
	if !ok {
		return Viewport{}, false
	}
	pad := desktopPinsPadding
	if size.Width <= MobileWidth {
		pad = mobilePinsPadding
	}
	return FitBounds(b, size, pad, PinsMinZoom, PinsMaxZoom), true
}
