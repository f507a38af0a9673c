// pkg/core/pin.go
package core

// PinFeature is a clickable trail marker. Lng and Lat may be moved by the
// collision resolver; the trail reference never changes.
type PinFeature struct {
	Lng        float64
	Lat        float64
	Properties TrailProperties

	trailID string
}

// NewPin creates a pin for the given trail at pos.
func NewPin(trail TrailRecord, pos LngLat) *PinFeature {
	return &PinFeature{
		Lng:        pos.Lng,
		Lat:        pos.Lat,
		Properties: trail.Properties(),
		trailID:    trail.ID,
	}
}

// TrailID returns the id of the catalog entry the pin belongs to.
func (p *PinFeature) TrailID() string {
	return p.trailID
}

// Position returns the current (possibly displaced) coordinates.
func (p *PinFeature) Position() LngLat {
	return LngLat{Lng: p.Lng, Lat: p.Lat}
}
