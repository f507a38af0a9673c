package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosqueabierto/mtbmap/internal/catalog"
)

const pencoDoc = `<kml><Document><Placemark><name>Penco</name>
<LineString><coordinates>-72.9,-36.7,120 -72.91,-36.71,80 -72.92,-36.72,40</coordinates></LineString>
</Placemark></Document></kml>`

const pencoGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="mtbmap-test" xmlns="http://www.topografix.com/GPX/1/1">
<trk><name>Dh antigua</name><trkseg>
<trkpt lat="-36.7" lon="-72.9"><ele>120</ele></trkpt>
<trkpt lat="-36.71" lon="-72.91"><ele>80</ele></trkpt>
</trkseg></trk>
</gpx>`

const testTrails = `[
  {"id": "ruta-006", "name": "Dh antigua P1 2022", "type": "DH", "club": "PENCO MTB", "difficulty": "negro",
   "distanceKm": 3.3, "ascent": 0, "descent": 200, "location": "PENCO", "region": "Biobío",
   "kmz": "kmz/penco.kmz", "gpx": "gpx/penco.gpx", "startCoords": [-72.995, -36.74]},
  {"id": "ruta-005", "name": "FUNDO MANCO", "type": "DH", "club": "CORONEL MTB", "difficulty": "negro",
   "distanceKm": 2.1, "ascent": 10, "descent": 250, "location": "CORONEL", "region": "Biobío",
   "kmz": "kmz/missing.kmz", "gpx": ""}
]`

// workspace lays out a config dir, an asset dir and a catalog file under a
// temp dir and returns the config dir.
func workspace(t *testing.T, overrides map[string]any) string {
	t.Helper()
	dir := t.TempDir()

	public := filepath.Join(dir, "public")
	require.NoError(t, os.MkdirAll(filepath.Join(public, "kmz"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(public, "gpx"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(public, "kmz", "penco.kmz"), kmz(t, pencoDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(public, "gpx", "penco.gpx"), []byte(pencoGPX), 0o644))

	trailsPath := filepath.Join(dir, "trails.json")
	require.NoError(t, os.WriteFile(trailsPath, []byte(testTrails), 0o644))

	cfg := map[string]any{
		"logLevel": "debug",
		"logsDir":  filepath.Join(dir, "logs"),
		"catalog":  map[string]any{"source": "file", "path": trailsPath},
		"assets":   map[string]any{"dir": public},
		"routes":   map[string]any{"concurrency": 2},
		"db": map[string]any{
			"host":       "127.0.0.1",
			"port":       "1",
			"sqlitePath": filepath.Join(dir, "mtbmap.db"),
		},
	}
	for k, v := range overrides {
		cfg[k] = v
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mtbmap.cfg.json"), data, 0o644))
	return dir
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

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newRootCommand(&out).ParseAndRun(context.Background(), args)
	return out.String(), err
}

func TestRoot_NoSubcommand(t *testing.T) {
	_, err := run(t)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestStats(t *testing.T) {
	dir := workspace(t, nil)

	out, err := run(t, "-config", dir, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `Trails:\s+2`, out)
	assert.Regexp(t, `Distance:\s+5\.4 km`, out)
	assert.Regexp(t, `Ascent:\s+10 m`, out)
	assert.NotContains(t, out, "Loaded:")

	logs, err := filepath.Glob(filepath.Join(dir, "logs", "mtbmap.*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, logs, "a session log file should be created")
}

func TestStats_Load(t *testing.T) {
	dir := workspace(t, nil)

	out, err := run(t, "-config", dir, "stats", "-load")
	require.NoError(t, err)
	assert.Regexp(t, `Loaded:\s+1 geometries, 1 failed`, out)
	// declared 200 m of descent against 80 m in the archive
	assert.Contains(t, out, "COMPUTED")
	assert.Contains(t, out, "ruta-006")
}

func TestStats_UnknownCatalogSource(t *testing.T) {
	dir := workspace(t, map[string]any{"catalog": map[string]any{"source": "ftp"}})

	_, err := run(t, "-config", dir, "stats")
	assert.ErrorContains(t, err, `unknown catalog source "ftp"`)
}

func TestExportKML(t *testing.T) {
	dir := workspace(t, nil)
	path := filepath.Join(t.TempDir(), "routes.kml")

	out, err := run(t, "-config", dir, "export-kml", "-out", path, "-name", "Biobío")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 1 of 2 trails")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<name>Biobío</name>")
	assert.Contains(t, string(data), "<name>Dh antigua P1 2022</name>")
	assert.NotContains(t, string(data), "FUNDO MANCO")
}

func TestGPX(t *testing.T) {
	dir := workspace(t, nil)
	outDir := t.TempDir()

	out, err := run(t, "-config", dir, "gpx", "-dir", outDir, "ruta-006")
	require.NoError(t, err)
	assert.Regexp(t, `Name:\s+Dh antigua`, out)
	assert.Contains(t, out, "1 segments, 2 points")
	assert.Contains(t, out, "-40m")
	assert.Contains(t, out, "Saved")

	saved, err := os.ReadFile(filepath.Join(outDir, "dh_antigua_p1_2022.gpx"))
	require.NoError(t, err)
	assert.Equal(t, pencoGPX, string(saved), "the export is saved unchanged")
}

func TestGPX_SummaryOnly(t *testing.T) {
	dir := workspace(t, nil)
	outDir := t.TempDir()

	out, err := run(t, "-config", dir, "gpx", "-dir", outDir, "-summary", "ruta-006")
	require.NoError(t, err)
	assert.NotContains(t, out, "Saved")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGPX_Errors(t *testing.T) {
	dir := workspace(t, nil)

	_, err := run(t, "-config", dir, "gpx")
	assert.ErrorContains(t, err, "need exactly one trail id")

	_, err = run(t, "-config", dir, "gpx", "ruta-404")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = run(t, "-config", dir, "gpx", "ruta-005")
	assert.Error(t, err, "a trail without export has nothing to download")
}

func TestImportCatalog(t *testing.T) {
	dir := workspace(t, nil)

	out, err := run(t, "-config", dir, "import-catalog", "-file", filepath.Join(dir, "trails.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 trails into sqlite")

	// read it back through the database source
	dbCfg := map[string]any{
		"source": "database",
	}
	rewriteCatalog(t, dir, dbCfg)

	out, err = run(t, "-config", dir, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `Trails:\s+2`, out)
	assert.Regexp(t, `Distance:\s+5\.4 km`, out)
}

// rewriteCatalog replaces the catalog section of the config in dir.
func rewriteCatalog(t *testing.T, dir string, section map[string]any) {
	t.Helper()
	path := filepath.Join(dir, "mtbmap.cfg.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	cfg["catalog"] = section

	data, err = json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestServe(t *testing.T) {
	dir := workspace(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, appOptions{configDir: dir})
	require.NoError(t, err)
	defer a.Close(context.Background())

	handler, err := newHandler(ctx, a)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, ln, handler) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/stats")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"trails": 2`)
	assert.Contains(t, string(body), `"routesLoaded": false`)

	resp, err = http.Get("http://" + ln.Addr().String() + "/healthcheck")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "the asset directory needs no healthcheck")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
