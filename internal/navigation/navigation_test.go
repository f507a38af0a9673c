package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bosqueabierto/mtbmap/pkg/core"
)

func TestGoogleMapsURL(t *testing.T) {
	assert.Equal(t,
		"https://www.google.com/maps/dir/?api=1&destination=-36.74,-72.995&travelmode=driving",
		GoogleMapsURL(-36.74, -72.995))
}

func TestWazeURL(t *testing.T) {
	assert.Equal(t,
		"https://www.waze.com/ul?ll=-36.5489,-72.9308&navigate=yes",
		WazeURL(-36.5489, -72.9308))
}

func TestFor(t *testing.T) {
	trail := core.TrailRecord{ID: "ruta-016", Name: "Meloza"}
	links := For(trail, core.LngLat{Lng: -71.4167, Lat: -35.6833})

	assert.Equal(t, "ruta-016", links.TrailID)
	assert.Equal(t, "Meloza", links.Name)
	assert.Equal(t, "https://www.waze.com/ul?ll=-35.6833,-71.4167&navigate=yes", links.Waze)
	assert.Contains(t, links.GoogleMaps, "destination=-35.6833,-71.4167")
}
