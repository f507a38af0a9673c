// Package export serves the GPX track of a trail as a download.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bosqueabierto/mtbmap/internal/fetch"
	"github.com/bosqueabierto/mtbmap/internal/geo"
	"github.com/bosqueabierto/mtbmap/pkg/core"
	"github.com/tkrajina/gpxgo/gpx"
)

// ErrNoExport is returned for trails without a GPX path.
var ErrNoExport = errors.New("trail has no GPX export")

// ContentType is the media type of GPX downloads.
const ContentType = "application/gpx+xml"

// FileName returns the download name for a trail: every character outside
// [A-Za-z0-9] becomes '_', the result is lower-cased and ends in ".gpx".
func FileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + ".gpx"
}

// Download fetches a trail's GPX file unchanged and returns it with its download name.
func Download(ctx context.Context, src fetch.Source, trail core.TrailRecord) ([]byte, string, error) {
	if trail.ExportPath == "" {
		return nil, "", fmt.Errorf("%s: %w", trail.ID, ErrNoExport)
	}
	data, err := src.Fetch(ctx, trail.ExportPath)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", trail.ID, err)
	}
	return data, FileName(trail.Name), nil
}

// Summary describes the content of a GPX file.
type Summary struct {
	Name     string       `json:"name"`
	Tracks   int          `json:"tracks"`
	Segments int          `json:"segments"`
	Points   int          `json:"points"`
	Start    *core.LngLat `json:"start,omitempty"`
	Metrics  core.Metrics `json:"metrics"`
}

// Summarize parses a GPX file and computes its distance and elevation totals
// over every track segment.
func Summarize(data []byte) (Summary, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to parse GPX: %w", err)
	}

	s := Summary{Name: g.Name, Tracks: len(g.Tracks)}
	var lines core.MultiPolyline
	for _, track := range g.Tracks {
		if s.Name == "" {
			s.Name = track.Name
		}
		for _, segment := range track.Segments {
			s.Segments++
			line := make(core.Polyline, 0, len(segment.Points))
			for _, point := range segment.Points {
				p := core.Point{Lon: point.Longitude, Lat: point.Latitude}
				if point.Elevation.NotNull() {
					p.Ele = point.Elevation.Value()
				}
				line = append(line, p)
			}
			s.Points += len(line)
			if len(line) > 0 {
				if s.Start == nil {
					s.Start = &core.LngLat{Lng: line[0].Lon, Lat: line[0].Lat}
				}
				lines = append(lines, line)
			}
		}
	}
	s.Metrics = geo.MultiMetrics(lines)
	return s, nil
}
