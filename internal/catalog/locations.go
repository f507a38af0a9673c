package catalog

import "github.com/bosqueabierto/mtbmap/pkg/core"

// DefaultLocation is used for towns missing from the table.
var DefaultLocation = core.LngLat{Lng: -73.3, Lat: -37.5}

var locationCoords = map[string]core.LngLat{
	"DICHATO":      {Lng: -72.9308, Lat: -36.5489},
	"LOS LAGOS":    {Lng: -72.8167, Lat: -39.8500},
	"CAUQUENES":    {Lng: -72.3167, Lat: -35.9667},
	"CORONEL":      {Lng: -73.1500, Lat: -37.0167},
	"PENCO":        {Lng: -72.9950, Lat: -36.7400},
	"ARAUCO":       {Lng: -73.3167, Lat: -37.2500},
	"LEBU":         {Lng: -73.6500, Lat: -37.6000},
	"GORBEA":       {Lng: -72.6800, Lat: -39.1000},
	"MAFIL":        {Lng: -72.9500, Lat: -39.6667},
	"CUREPTO":      {Lng: -72.0167, Lat: -35.0833},
	"CONSTITUCIÓN": {Lng: -72.4167, Lat: -35.3333},
	"COELEMU":      {Lng: -72.7000, Lat: -36.4833},
	"COLBÚN":       {Lng: -71.4167, Lat: -35.6833},
	"OSORNO":       {Lng: -73.1333, Lat: -40.5667},
}

// ApproximateCoords returns the town centre for a trail location.
// Names match exactly; anything else gets DefaultLocation.
func ApproximateCoords(location string) core.LngLat {
	if c, ok := locationCoords[location]; ok {
		return c
	}
	return DefaultLocation
}

// PinPosition is where a trail's pin goes before any geometry is loaded:
// its declared start, or the approximate town position.
func PinPosition(t core.TrailRecord) core.LngLat {
	if start, ok := t.Start(); ok {
		return start
	}
	return ApproximateCoords(t.Location)
}
