package kml

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bosqueabierto/mtbmap/pkg/core"
)

// ErrNoKML is returned when a KMZ archive holds no .kml document.
var ErrNoKML = errors.New("no KML file found in KMZ archive")

// OpenArchive opens the KML document inside a KMZ archive held in memory.
// The first entry whose name ends in .kml, ignoring case, is used.
// The caller must close the returned reader.
func OpenArchive(data []byte) (io.ReadCloser, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open KMZ archive: %w", err)
	}

	var kmlFile *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(f.Name), ".kml") {
			kmlFile = f
			break
		}
	}
	if kmlFile == nil {
		return nil, "", ErrNoKML
	}

	rc, err := kmlFile.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open KML in KMZ: %w", err)
	}
	return rc, kmlFile.Name, nil
}

// ExtractArchive extracts the trail geometry of a KMZ archive held in memory.
func ExtractArchive(data []byte, trail core.TrailRecord) ([]core.TrailGeometry, error) {
	rc, name, err := OpenArchive(data)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	geoms, err := Extract(rc, trail)
	if err != nil {
		return geoms, fmt.Errorf("%s: %w", name, err)
	}
	return geoms, nil
}
