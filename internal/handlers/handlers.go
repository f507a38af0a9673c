package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bosqueabierto/mtbmap/internal/dispatcher"
	"github.com/bosqueabierto/mtbmap/internal/loader"
	"github.com/bosqueabierto/mtbmap/internal/navigation"
	"github.com/bosqueabierto/mtbmap/internal/render"
	"github.com/bosqueabierto/mtbmap/pkg/core"
)

// Commands understood by the viewer.
const (
	CommandViewportZoom = "viewport.zoom"
	CommandPinClick     = "pin.click"
	CommandFitPins      = "pins.fit"
)

// DefaultZoomThreshold is the zoom at which routes start loading.
const DefaultZoomThreshold = 9.5

// DefaultSize is the viewport size assumed when an event carries none.
var DefaultSize = render.Size{Width: 1280, Height: 800}

// ErrInvalidArgs is returned when an event's arguments cannot be parsed.
var ErrInvalidArgs = errors.New("invalid event arguments")

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Session       *loader.Session
	ZoomThreshold float64
	Logger        *slog.Logger
}

// Service turns viewer events into session operations.
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.ZoomThreshold <= 0 {
		deps.ZoomThreshold = DefaultZoomThreshold
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// Register wires the viewer commands into d. Zoom events arrive on every
// camera move, so only the newest pending one is kept.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(CommandViewportZoom, s.ViewportZoom, dispatcher.Buffered(1), dispatcher.Coalesced(), dispatcher.Logged())
	d.Register(CommandPinClick, s.PinClick, dispatcher.Logged())
	d.Register(CommandFitPins, s.FitPins)
}

// ZoomResult is the outcome of a zoom event.
type ZoomResult struct {
	Zoom         float64 `json:"zoom"`
	RoutesLoaded bool    `json:"routesLoaded"`
}

// ViewportZoom loads every route the first time the map is zoomed in past
// the threshold.
//
// Args: zoom
func (s *Service) ViewportZoom(ctx context.Context, e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, fmt.Errorf("%w: %s expects a zoom level", ErrInvalidArgs, e.Command)
	}
	zoom, err := strconv.ParseFloat(strings.TrimSpace(e.Args[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: error converting zoom to float: %v", ErrInvalidArgs, err)
	}

	session := s.deps.Session
	if zoom < s.deps.ZoomThreshold || session.RoutesLoaded() {
		return ZoomResult{Zoom: zoom, RoutesLoaded: session.RoutesLoaded()}, nil
	}

	s.deps.Logger.Debug("zoom threshold crossed", "zoom", zoom, "threshold", s.deps.ZoomThreshold)
	if err := session.LoadRoutesIfNeeded(ctx); err != nil {
		return nil, err
	}
	return ZoomResult{Zoom: zoom, RoutesLoaded: true}, nil
}

// PinClickResult is everything the viewer shows after a pin is clicked.
type PinClickResult struct {
	Trail          core.TrailProperties   `json:"trail"`
	Elevation      string                 `json:"elevation"`
	Viewport       render.Viewport        `json:"viewport"`
	Navigation     navigation.Links       `json:"navigation"`
	Geometries     int                    `json:"geometries"`
	Reconciliation *loader.Reconciliation `json:"reconciliation,omitempty"`
}

// PinClick loads routes if needed and centres the map on the trail.
//
// Args: trailId [width height]
func (s *Service) PinClick(ctx context.Context, e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 || strings.TrimSpace(e.Args[0]) == "" {
		return nil, fmt.Errorf("%w: %s expects a trail id", ErrInvalidArgs, e.Command)
	}
	trailID := strings.TrimSpace(e.Args[0])

	size, err := parseSize(e.Args[1:])
	if err != nil {
		return nil, err
	}

	session := s.deps.Session
	trail, err := session.Catalog().Get(trailID)
	if err != nil {
		return nil, err
	}

	if err := session.LoadRoutesIfNeeded(ctx); err != nil {
		return nil, err
	}

	pos, _ := session.NavigationCoords(trailID)
	geoms := session.FeaturesForTrail(trailID)

	result := PinClickResult{
		Trail:      trail.Properties(),
		Elevation:  core.FormatElevation(trail.Ascent, trail.Descent),
		Viewport:   render.CenterOnTrail(geoms, pos, size),
		Navigation: navigation.For(trail, pos),
		Geometries: len(geoms),
	}
	if r, ok := session.Reconciliation(trailID); ok {
		result.Reconciliation = &r
		result.Elevation = core.FormatElevation(r.Effective.Ascent, r.Effective.Descent)
	}
	return result, nil
}

// FitPins returns the viewport that shows every pin.
//
// Args: [width height]
func (s *Service) FitPins(_ context.Context, e dispatcher.Event) (any, error) {
	size, err := parseSize(e.Args)
	if err != nil {
		return nil, err
	}
	vp, ok := render.FitPins(s.deps.Session.Pins(), size)
	if !ok {
		return nil, nil
	}
	return vp, nil
}

func parseSize(args []string) (render.Size, error) {
	if len(args) == 0 {
		return DefaultSize, nil
	}
	if len(args) != 2 {
		return render.Size{}, fmt.Errorf("%w: expected width and height", ErrInvalidArgs)
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
	if err != nil {
		return render.Size{}, fmt.Errorf("%w: error converting width to float: %v", ErrInvalidArgs, err)
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
	if err != nil {
		return render.Size{}, fmt.Errorf("%w: error converting height to float: %v", ErrInvalidArgs, err)
	}
	if w <= 0 || h <= 0 {
		return render.Size{}, fmt.Errorf("%w: size must be positive", ErrInvalidArgs)
	}
	return render.Size{Width: w, Height: h}, nil
}
