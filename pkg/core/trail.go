// pkg/core/trail.go
package core

import (
	"fmt"
	"math"
	"strings"
)

// Discipline is the riding discipline of a trail.
type Discipline string

const (
	CrossCountry Discipline = "XC"
	Downhill     Discipline = "DH"
)

// Valid reports whether d is a known discipline.
func (d Discipline) Valid() bool {
	return d == CrossCountry || d == Downhill
}

// Difficulty is the colour grade of a trail.
type Difficulty string

const (
	Green Difficulty = "verde"
	Blue  Difficulty = "azul"
	Black Difficulty = "negro"
)

var difficultyLabels = map[Difficulty]string{
	Green: "FÁCIL",
	Blue:  "INTERMEDIO",
	Black: "DIFÍCIL",
}

// Label returns the easy/intermediate/hard label shown next to the grade.
func (d Difficulty) Label() string {
	return difficultyLabels[d]
}

// Valid reports whether d is a known grade.
func (d Difficulty) Valid() bool {
	_, ok := difficultyLabels[d]
	return ok
}

// LngLat is a WGS84 position in degrees, longitude first.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// TrailRecord is one entry of the trail catalog.
type TrailRecord struct {
	ID          string     `json:"id" mapstructure:"id"`
	Name        string     `json:"name" mapstructure:"name"`
	Discipline  Discipline `json:"type" mapstructure:"type"`
	Club        string     `json:"club" mapstructure:"club"`
	Difficulty  Difficulty `json:"difficulty" mapstructure:"difficulty"`
	DistanceKm  float64    `json:"distanceKm" mapstructure:"distanceKm"`
	Ascent      int        `json:"ascent" mapstructure:"ascent"`
	Descent     int        `json:"descent" mapstructure:"descent"`
	Location    string     `json:"location" mapstructure:"location"`
	Region      string     `json:"region" mapstructure:"region"`
	ArchivePath string     `json:"kmz" mapstructure:"kmz"`
	ExportPath  string     `json:"gpx" mapstructure:"gpx"`
	StartCoords []float64  `json:"startCoords,omitempty" mapstructure:"startCoords"`
}

// Start returns the declared start coordinates, if any.
func (t TrailRecord) Start() (LngLat, bool) {
	if len(t.StartCoords) != 2 {
		return LngLat{}, false
	}
	return LngLat{Lng: t.StartCoords[0], Lat: t.StartCoords[1]}, true
}

// ValidateStart checks that StartCoords is absent or a pair of finite numbers.
func (t TrailRecord) ValidateStart() error {
	if t.StartCoords == nil {
		return nil
	}
	if len(t.StartCoords) != 2 {
		return fmt.Errorf("start coordinates must have 2 components, got %d", len(t.StartCoords))
	}
	for _, v := range t.StartCoords {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("start coordinates must be finite, got %v", t.StartCoords)
		}
	}
	return nil
}

// Properties returns the display metadata copied onto every geometry and pin of the trail.
func (t TrailRecord) Properties() TrailProperties {
	return TrailProperties{
		ID:              t.ID,
		Name:            t.Name,
		Discipline:      t.Discipline,
		Club:            t.Club,
		Difficulty:      t.Difficulty,
		DifficultyLabel: t.Difficulty.Label(),
		DistanceKm:      t.DistanceKm,
		Ascent:          t.Ascent,
		Descent:         t.Descent,
		Location:        t.Location,
		Region:          t.Region,
		ExportPath:      t.ExportPath,
	}
}

// TrailProperties is the denormalized trail metadata carried by rendered features.
type TrailProperties struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Discipline      Discipline `json:"type"`
	Club            string     `json:"club"`
	Difficulty      Difficulty `json:"difficulty"`
	DifficultyLabel string     `json:"difficultyLabel"`
	DistanceKm      float64    `json:"distanceKm"`
	Ascent          int        `json:"ascent"`
	Descent         int        `json:"descent"`
	Location        string     `json:"location"`
	Region          string     `json:"region"`
	ExportPath      string     `json:"gpx,omitempty"`
}

// FormatElevation renders ascent and descent the way trail cards show them.
func FormatElevation(ascent, descent int) string {
	var parts []string
	if ascent != 0 {
		parts = append(parts, fmt.Sprintf("+%dm", ascent))
	}
	if descent != 0 {
		parts = append(parts, fmt.Sprintf("-%dm", descent))
	}
	if len(parts) == 0 {
		return "N/A"
	}
	return strings.Join(parts, "/")
}
