package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosqueabierto/mtbmap/internal/catalog"
	"github.com/bosqueabierto/mtbmap/internal/dispatcher"
	"github.com/bosqueabierto/mtbmap/internal/loader"
	"github.com/bosqueabierto/mtbmap/internal/render"
	"github.com/bosqueabierto/mtbmap/pkg/core"
)

type mapSource map[string][]byte

func (m mapSource) Fetch(_ context.Context, path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, errors.New("404 " + path)
	}
	return data, nil
}

func kmz(t *testing.T, doc string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("doc.kml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const pencoDoc = `<kml><Document><Placemark><name>Penco</name>
<LineString><coordinates>-72.9,-36.7,120 -72.91,-36.71,80 -72.92,-36.72,40</coordinates></LineString>
</Placemark></Document></kml>`

func newTestService(t *testing.T) *Service {
	t.Helper()
	cat, err := catalog.New([]core.TrailRecord{
		{
			ID: "ruta-006", Name: "Dh antigua P1 2022", Discipline: core.Downhill, Difficulty: core.Black,
			Location: "PENCO", ArchivePath: "kmz/penco.kmz", StartCoords: []float64{-72.995, -36.74},
		},
		{
			ID: "ruta-005", Name: "FUNDO MANCO", Discipline: core.Downhill, Difficulty: core.Black,
			Location: "CORONEL", ArchivePath: "kmz/missing.kmz", Ascent: 50, Descent: 300,
		},
	})
	require.NoError(t, err)

	session, err := loader.NewSession(cat, mapSource{"kmz/penco.kmz": kmz(t, pencoDoc)}, loader.Options{Concurrency: 2})
	require.NoError(t, err)

	return NewService(Dependencies{Session: session})
}

func TestNewService_Defaults(t *testing.T) {
	svc := newTestService(t)
	assert.Equal(t, DefaultZoomThreshold, svc.deps.ZoomThreshold)
	assert.NotNil(t, svc.deps.Logger)
}

func TestViewportZoom_BelowThreshold(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.ViewportZoom(context.Background(), dispatcher.Event{Command: CommandViewportZoom, Args: []string{"8"}})
	require.NoError(t, err)
	assert.Equal(t, ZoomResult{Zoom: 8, RoutesLoaded: false}, res)
	assert.False(t, svc.deps.Session.RoutesLoaded())
}

func TestViewportZoom_LoadsAtThreshold(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.ViewportZoom(context.Background(), dispatcher.Event{Command: CommandViewportZoom, Args: []string{"9.5"}})
	require.NoError(t, err)
	assert.Equal(t, ZoomResult{Zoom: 9.5, RoutesLoaded: true}, res)
	assert.True(t, svc.deps.Session.RoutesLoaded())
	assert.Len(t, svc.deps.Session.Routes(), 1)
}

func TestViewportZoom_InvalidArgs(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ViewportZoom(context.Background(), dispatcher.Event{Command: CommandViewportZoom})
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = svc.ViewportZoom(context.Background(), dispatcher.Event{Command: CommandViewportZoom, Args: []string{"high"}})
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestPinClick_CentresOnGeometry(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.PinClick(context.Background(), dispatcher.Event{Command: CommandPinClick, Args: []string{"ruta-006"}})
	require.NoError(t, err)
	click := res.(PinClickResult)

	assert.Equal(t, "ruta-006", click.Trail.ID)
	assert.Equal(t, 1, click.Geometries)
	assert.InDelta(t, -72.91, click.Viewport.Center.Lng, 1e-6)
	assert.LessOrEqual(t, click.Viewport.Zoom, float64(render.TrailMaxZoom))

	// navigation goes to the real start, not the declared one
	assert.Equal(t, core.LngLat{Lng: -72.9, Lat: -36.7}, click.Navigation.Position)
	assert.Contains(t, click.Navigation.Waze, "ll=-36.7,-72.9")

	// declared zeros are filled from the archive
	require.NotNil(t, click.Reconciliation)
	assert.Equal(t, "-80m", click.Elevation)
}

func TestPinClick_NoGeometryFallsBack(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.PinClick(context.Background(), dispatcher.Event{Command: CommandPinClick, Args: []string{"ruta-005", "390", "844"}})
	require.NoError(t, err)
	click := res.(PinClickResult)

	coronel := catalog.ApproximateCoords("CORONEL")
	assert.Equal(t, 0, click.Geometries)
	assert.Equal(t, render.Viewport{Center: coronel, Zoom: render.TrailZoom}, click.Viewport)
	assert.Equal(t, coronel, click.Navigation.Position)
	assert.Nil(t, click.Reconciliation)
	assert.Equal(t, "+50m/-300m", click.Elevation)
}

func TestPinClick_Errors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.PinClick(ctx, dispatcher.Event{Command: CommandPinClick, Args: []string{"ruta-404"}})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.False(t, svc.deps.Session.RoutesLoaded(), "unknown trail should not trigger a load")

	_, err = svc.PinClick(ctx, dispatcher.Event{Command: CommandPinClick})
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = svc.PinClick(ctx, dispatcher.Event{Command: CommandPinClick, Args: []string{"ruta-006", "100"}})
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = svc.PinClick(ctx, dispatcher.Event{Command: CommandPinClick, Args: []string{"ruta-006", "0", "100"}})
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestFitPins(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.FitPins(context.Background(), dispatcher.Event{Command: CommandFitPins})
	require.NoError(t, err)
	vp := res.(render.Viewport)
	assert.GreaterOrEqual(t, vp.Zoom, float64(render.PinsMinZoom))
	assert.LessOrEqual(t, vp.Zoom, float64(render.PinsMaxZoom))
}

func TestRegister(t *testing.T) {
	svc := newTestService(t)
	d, err := dispatcher.New(svc.deps.Logger)
	require.NoError(t, err)

	svc.Register(d)
	// sorted: "pin.click" < "pins.fit"
	assert.Equal(t, []string{CommandPinClick, CommandFitPins, CommandViewportZoom}, d.Commands())

	res, err := d.Dispatch(context.Background(), dispatcher.Event{Command: CommandViewportZoom, Args: []string{"11"}})
	require.NoError(t, err)
	assert.Equal(t, "queued", res)

	assert.Eventually(t, svc.deps.Session.RoutesLoaded, time.Second, 5*time.Millisecond)
}
