package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/bosqueabierto/mtbmap/pkg/core"
)

const instrumentationName = "github.com/bosqueabierto/mtbmap/internal/cache"

// LoaderFunc fetches and extracts the geometry of one trail archive.
type LoaderFunc func(ctx context.Context, archivePath string) ([]core.TrailGeometry, error)

// Status describes what the cache holds for a trail.
type Status string

const (
	StatusMissing Status = "missing"
	StatusLoaded  Status = "loaded"
	StatusEmpty   Status = "empty"
	StatusFailed  Status = "failed"
)

type entry struct {
	geoms []core.TrailGeometry
	err   error
}

// GeometryCache memoizes extracted trail geometry per trail id for the session.
// Each id is loaded at most once; empty and failed results are remembered too.
// Entries are never evicted; Forget drops one explicitly.
type GeometryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
	logger  *slog.Logger

	hits     metric.Int64Counter
	misses   metric.Int64Counter
	failures metric.Int64Counter
}

// New creates an empty cache.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger *slog.Logger) (*GeometryCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &GeometryCache{
		entries: make(map[string]entry),
		logger:  logger,
	}

	m := otel.Meter(instrumentationName)
	var err error

	c.hits, err = m.Int64Counter(
		"cache.geometry.hits",
		metric.WithDescription("Geometry lookups served from the cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating hits counter: %w", err)
	}

	c.misses, err = m.Int64Counter(
		"cache.geometry.misses",
		metric.WithDescription("Geometry lookups that started an archive load"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating misses counter: %w", err)
	}

	c.failures, err = m.Int64Counter(
		"cache.geometry.failures",
		metric.WithDescription("Archive loads that failed and were stored as empty"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}

	return c, nil
}

func (c *GeometryCache) lookup(trailID string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[trailID]
	return e, ok
}

// GetOrLoad returns the cached geometry of a trail, calling load on the first
// request only. Concurrent first requests for the same id share one load.
//
// Load errors are logged and stored as an empty result; they never reach the
// caller. If ctx ends while waiting, an empty result is returned and the load
// keeps running to completion in the background.
func (c *GeometryCache) GetOrLoad(ctx context.Context, trailID, archivePath string, load LoaderFunc) []core.TrailGeometry {
	idAttr := metric.WithAttributes(attribute.String("trail", trailID))

	if e, ok := c.lookup(trailID); ok {
		c.hits.Add(ctx, 1, idAttr)
		return e.geoms
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(trailID, func() (any, error) {
		// a load that finished between lookup and DoChan has already stored its entry
		if e, ok := c.lookup(trailID); ok {
			return e.geoms, nil
		}
		c.misses.Add(loadCtx, 1, idAttr)

		geoms, err := safeLoad(loadCtx, archivePath, load)
		if err != nil {
			c.failures.Add(loadCtx, 1, idAttr)
			c.logger.Warn("failed to load trail geometry",
				"trail", trailID, "archive", archivePath, "error", err)
			geoms = nil
		}
		if geoms == nil {
			geoms = []core.TrailGeometry{}
		}

		c.mu.Lock()
		c.entries[trailID] = entry{geoms: geoms, err: err}
		c.mu.Unlock()
		return geoms, nil
	})

	select {
	case res := <-ch:
		geoms, _ := res.Val.([]core.TrailGeometry)
		return geoms
	case <-ctx.Done():
		return []core.TrailGeometry{}
	}
}

func safeLoad(ctx context.Context, archivePath string, load LoaderFunc) (geoms []core.TrailGeometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			geoms, err = nil, fmt.Errorf("loader panic: %v", r)
		}
	}()
	return load(ctx, archivePath)
}

// Peek returns the cached geometry without loading.
func (c *GeometryCache) Peek(trailID string) ([]core.TrailGeometry, bool) {
	e, ok := c.lookup(trailID)
	return e.geoms, ok
}

// Status reports whether a trail is cached and with what outcome.
func (c *GeometryCache) Status(trailID string) Status {
	e, ok := c.lookup(trailID)
	switch {
	case !ok:
		return StatusMissing
	case e.err != nil:
		return StatusFailed
	case len(e.geoms) == 0:
		return StatusEmpty
	default:
		return StatusLoaded
	}
}

// Err returns the error of a failed load, or nil.
func (c *GeometryCache) Err(trailID string) error {
	e, _ := c.lookup(trailID)
	return e.err
}

// Len returns the number of cached trails, including empty and failed ones.
func (c *GeometryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Forget drops a trail so that the next GetOrLoad loads it again.
// It reports whether the trail was cached.
func (c *GeometryCache) Forget(trailID string) bool {
	c.mu.Lock()
	_, ok := c.entries[trailID]
	delete(c.entries, trailID)
	c.mu.Unlock()
	c.group.Forget(trailID)
	return ok
}
