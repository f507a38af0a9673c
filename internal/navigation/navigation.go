// Package navigation builds hand-off links to external navigation apps.
package navigation

import (
	"fmt"
	"strconv"

	"github.com/bosqueabierto/mtbmap/pkg/core"
)

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// GoogleMapsURL returns driving directions to lat,lon.
func GoogleMapsURL(lat, lon float64) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%s,%s&travelmode=driving", coord(lat), coord(lon))
}

// WazeURL returns a Waze navigation deeplink to lat,lon.
func WazeURL(lat, lon float64) string {
	return fmt.Sprintf("https://www.waze.com/ul?ll=%s,%s&navigate=yes", coord(lat), coord(lon))
}

// Links is the navigation data shown for a trail.
type Links struct {
	TrailID    string      `json:"trailId"`
	Name       string      `json:"name"`
	Position   core.LngLat `json:"position"`
	GoogleMaps string      `json:"googleMaps"`
	Waze       string      `json:"waze"`
}

// For returns the links to a trail's start position.
func For(trail core.TrailRecord, pos core.LngLat) Links {
	return Links{
		TrailID:    trail.ID,
		Name:       trail.Name,
		Position:   pos,
		GoogleMaps: GoogleMapsURL(pos.Lat, pos.Lng),
		Waze:       WazeURL(pos.Lat, pos.Lng),
	}
}
