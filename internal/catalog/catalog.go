// Package catalog holds the registry of trail records and the sources it can
// be loaded from: the embedded default list, a JSON file or a database table.
package catalog

import (
	"errors"
	"fmt"
	"math"

	"github.com/bosqueabierto/mtbmap/pkg/core"
	"github.com/dustin/go-humanize"
)

var (
	// ErrNotFound is returned when no trail has the requested id.
	ErrNotFound = errors.New("trail not found")
	// ErrDuplicateID is returned when two records share an id.
	ErrDuplicateID = errors.New("duplicate trail id")
	// ErrInvalidStart is returned when a record's start coordinates are malformed.
	ErrInvalidStart = errors.New("invalid start coordinates")
	// ErrInvalidRecord is returned for records with an empty id, negative stats
	// or an unknown discipline or grade.
	ErrInvalidRecord = errors.New("invalid trail record")
)

// Catalog is an ordered, read-only set of trail records.
type Catalog struct {
	trails []core.TrailRecord
	byID   map[string]int
}

// New validates trails and builds a catalog keeping their order.
func New(trails []core.TrailRecord) (*Catalog, error) {
	c := &Catalog{
		trails: make([]core.TrailRecord, 0, len(trails)),
		byID:   make(map[string]int, len(trails)),
	}
	for i, t := range trails {
		if t.ID == "" {
			return nil, fmt.Errorf("record %d: empty id: %w", i, ErrInvalidRecord)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("%s: %w", t.ID, ErrDuplicateID)
		}
		if err := t.ValidateStart(); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", t.ID, ErrInvalidStart, err)
		}
		if t.DistanceKm < 0 || math.IsNaN(t.DistanceKm) || t.Ascent < 0 || t.Descent < 0 {
			return nil, fmt.Errorf("%s: negative distance or elevation: %w", t.ID, ErrInvalidRecord)
		}
		if !t.Discipline.Valid() {
			return nil, fmt.Errorf("%s: unknown type %q: %w", t.ID, t.Discipline, ErrInvalidRecord)
		}
		if !t.Difficulty.Valid() {
			return nil, fmt.Errorf("%s: unknown difficulty %q: %w", t.ID, t.Difficulty, ErrInvalidRecord)
		}
		c.byID[t.ID] = len(c.trails)
		c.trails = append(c.trails, t)
	}
	return c, nil
}

// All returns the records in catalog order. The slice is a copy.
func (c *Catalog) All() []core.TrailRecord {
	out := make([]core.TrailRecord, len(c.trails))
	copy(out, c.trails)
	return out
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	return len(c.trails)
}

// Lookup returns the record with the given id.
func (c *Catalog) Lookup(id string) (core.TrailRecord, bool) {
	i, ok := c.byID[id]
	if !ok {
		return core.TrailRecord{}, false
	}
	return c.trails[i], true
}

// Get is Lookup for callers that need an error.
func (c *Catalog) Get(id string) (core.TrailRecord, error) {
	t, ok := c.Lookup(id)
	if !ok {
		return core.TrailRecord{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return t, nil
}

// Totals summarises the whole catalog.
type Totals struct {
	Trails     int     `json:"trails"`
	Kilometers float64 `json:"kilometers"`
	Ascent     int     `json:"ascent"`
}

func (t Totals) String() string {
	return fmt.Sprintf("%d trails, %s km, %s m ascent",
		t.Trails, humanize.FormatFloat("#,###.#", t.Kilometers), humanize.Comma(int64(t.Ascent)))
}

// Totals returns the trail count, the summed distance rounded to one decimal
// and the summed declared ascent.
func (c *Catalog) Totals() Totals {
	var km float64
	var ascent int
	for _, t := range c.trails {
		km += t.DistanceKm
		ascent += t.Ascent
	}
	return Totals{
		Trails:     len(c.trails),
		Kilometers: math.Round(km*10) / 10,
		Ascent:     ascent,
	}
}
