package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bosqueabierto/mtbmap/pkg/core"
)

//go:embed trails.json
var embeddedTrails []byte

// Decode reads a JSON array of trail records and validates it.
func Decode(r io.Reader) (*Catalog, error) {
	var trails []core.TrailRecord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&trails); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return New(trails)
}

// Embedded returns the catalog compiled into the binary.
func Embedded() (*Catalog, error) {
	var trails []core.TrailRecord
	if err := json.Unmarshal(embeddedTrails, &trails); err != nil {
		return nil, fmt.Errorf("failed to decode embedded catalog: %w", err)
	}
	return New(trails)
}

// LoadFile reads a catalog from a JSON file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
