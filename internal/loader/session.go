// Package loader owns the per-session trail state: the geometry cache, the
// one-shot route load and the pins derived from it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bosqueabierto/mtbmap/internal/cache"
	"github.com/bosqueabierto/mtbmap/internal/catalog"
	"github.com/bosqueabierto/mtbmap/internal/fetch"
	"github.com/bosqueabierto/mtbmap/internal/geo"
	"github.com/bosqueabierto/mtbmap/internal/kml"
	"github.com/bosqueabierto/mtbmap/internal/pins"
	"github.com/bosqueabierto/mtbmap/pkg/core"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// LoadRecorder receives the outcome of every archive load.
type LoadRecorder interface {
	RecordLoad(ctx context.Context, trailID string, elapsed time.Duration, geometries int, err error)
}

// ErrorReporter forwards non-fatal per-trail failures.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// Options configures a Session. Zero values are usable.
type Options struct {
	Concurrency int
	Logger      *slog.Logger
	Recorder    LoadRecorder
	Reporter    ErrorReporter
}

// Session is the state of one map session.
type Session struct {
	id          string
	catalog     *catalog.Catalog
	source      fetch.Source
	cache       *cache.GeometryCache
	logger      *slog.Logger
	concurrency int
	recorder    LoadRecorder
	reporter    ErrorReporter

	// refreshMu keeps one refresh from reading the cache to writing its result
	refreshMu sync.Mutex

	mu         sync.RWMutex
	loaded     bool
	loading    chan struct{}
	starts     map[string]core.LngLat
	pins       []*core.PinFeature
	reconciled map[string]Reconciliation
}

// NewSession creates a session over cat that fetches archives from src.
// Pins start at the catalog positions.
func NewSession(cat *catalog.Catalog, src fetch.Source, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("session", id)

	gc, err := cache.New(logger)
	if err != nil {
		return nil, fmt.Errorf("creating geometry cache: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Session{
		id:          id,
		catalog:     cat,
		source:      src,
		cache:       gc,
		logger:      logger,
		concurrency: concurrency,
		recorder:    opts.Recorder,
		reporter:    opts.Reporter,
		starts:      map[string]core.LngLat{},
		pins:        pins.Build(cat.All(), nil),
		reconciled:  map[string]Reconciliation{},
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Catalog returns the session's catalog.
func (s *Session) Catalog() *catalog.Catalog {
	return s.catalog
}

// Cache returns the session's geometry cache.
func (s *Session) Cache() *cache.GeometryCache {
	return s.cache
}

// loaderFor returns the cache loader of one trail.
func (s *Session) loaderFor(trail core.TrailRecord) cache.LoaderFunc {
	return func(ctx context.Context, archivePath string) ([]core.TrailGeometry, error) {
		if archivePath == "" {
			return nil, nil
		}
		start := time.Now()
		geoms, err := s.loadArchive(ctx, trail, archivePath)
		if s.recorder != nil {
			s.recorder.RecordLoad(ctx, trail.ID, time.Since(start), len(geoms), err)
		}
		if err != nil && s.reporter != nil {
			s.reporter.Report(ctx, err, map[string]string{"trail": trail.ID, "archive": archivePath})
		}
		return geoms, err
	}
}

func (s *Session) loadArchive(ctx context.Context, trail core.TrailRecord, archivePath string) ([]core.TrailGeometry, error) {
	data, err := s.source.Fetch(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	geoms, err := kml.ExtractArchive(data, trail)
	if err != nil {
		if len(geoms) > 0 {
			s.logger.Warn("archive partially read", "trail", trail.ID, "geometries", len(geoms), "error", err)
			return geoms, nil
		}
		return nil, err
	}
	return geoms, nil
}

// LoadTrail returns the geometry of one trail, loading its archive on first use.
func (s *Session) LoadTrail(ctx context.Context, trailID string) ([]core.TrailGeometry, error) {
	trail, err := s.catalog.Get(trailID)
	if err != nil {
		return nil, err
	}
	geoms := s.cache.GetOrLoad(ctx, trail.ID, trail.ArchivePath, s.loaderFor(trail))
	s.refresh()
	return cloneAll(geoms), nil
}

// Reload forgets a trail's cached geometry and loads it again.
func (s *Session) Reload(ctx context.Context, trailID string) ([]core.TrailGeometry, error) {
	if _, ok := s.catalog.Lookup(trailID); !ok {
		return nil, fmt.Errorf("%s: %w", trailID, catalog.ErrNotFound)
	}
	s.cache.Forget(trailID)
	return s.LoadTrail(ctx, trailID)
}

// LoadAll loads every trail concurrently and returns all geometries in
// catalog order. A failing trail contributes nothing and never stops the others.
func (s *Session) LoadAll(ctx context.Context) []core.TrailGeometry {
	trails := s.catalog.All()
	results := make([][]core.TrailGeometry, len(trails))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, t := range trails {
		g.Go(func() error {
			results[i] = s.cache.GetOrLoad(ctx, t.ID, t.ArchivePath, s.loaderFor(t))
			return nil
		})
	}
	_ = g.Wait()

	s.refresh()

	var out []core.TrailGeometry
	for _, r := range results {
		out = append(out, cloneAll(r)...)
	}
	return out
}

// LoadRoutesIfNeeded loads every route once per session. Later calls return
// immediately; calls made while the load runs wait for it. If ctx ends first
// the load continues in the background and ctx's error is returned.
func (s *Session) LoadRoutesIfNeeded(ctx context.Context) error {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return nil
	}
	done := s.loading
	if done == nil {
		done = make(chan struct{})
		s.loading = done
		go s.loadRoutes(context.WithoutCancel(ctx), done)
	}
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) loadRoutes(ctx context.Context, done chan struct{}) {
	defer close(done)

	start := time.Now()
	s.logger.Info("loading routes", "trails", s.catalog.Len())
	geoms := s.LoadAll(ctx)

	s.mu.Lock()
	s.loaded = true
	s.loading = nil
	s.mu.Unlock()

	s.logger.Info("routes loaded",
		"trails", s.catalog.Len(),
		"geometries", len(geoms),
		"duration", time.Since(start))
}

// RoutesLoaded reports whether LoadRoutesIfNeeded has completed.
func (s *Session) RoutesLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// refresh recomputes real start positions, pins and reconciled stats from
// whatever the cache holds. Refreshes run one at a time so a stale snapshot
// never overwrites a newer one.
func (s *Session) refresh() {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	trails := s.catalog.All()
	starts := make(map[string]core.LngLat, len(trails))
	recs := make(map[string]Reconciliation, len(trails))

	for _, t := range trails {
		geoms, ok := s.cache.Peek(t.ID)
		if !ok || len(geoms) == 0 {
			continue
		}
		if p, ok := geoms[0].First(); ok {
			starts[t.ID] = core.LngLat{Lng: p.Lon, Lat: p.Lat}
		}
		recs[t.ID] = Reconcile(t, geo.TrailMetrics(geoms))
	}
	built := pins.Build(trails, starts)

	s.mu.Lock()
	previous := s.reconciled
	s.starts = starts
	s.pins = built
	s.reconciled = recs
	s.mu.Unlock()

	for id, r := range recs {
		if _, seen := previous[id]; seen || !r.Disagrees() {
			continue
		}
		s.logger.Info("declared stats differ from archive",
			"trail", id,
			"declaredKm", r.Declared.DistanceKm, "computedKm", r.Computed.DistanceKm,
			"declaredAscent", r.Declared.Ascent, "computedAscent", r.Computed.Ascent,
			"declaredDescent", r.Declared.Descent, "computedDescent", r.Computed.Descent)
	}
}

// Routes returns every cached geometry in catalog order.
func (s *Session) Routes() []core.TrailGeometry {
	var out []core.TrailGeometry
	for _, t := range s.catalog.All() {
		geoms, _ := s.cache.Peek(t.ID)
		out = append(out, cloneAll(geoms)...)
	}
	return out
}

// FeaturesForTrail returns the cached geometry of one trail, or nil.
func (s *Session) FeaturesForTrail(trailID string) []core.TrailGeometry {
	geoms, _ := s.cache.Peek(trailID)
	return cloneAll(geoms)
}

// StartCoords returns the first vertex of a trail's loaded geometry.
func (s *Session) StartCoords(trailID string) (core.LngLat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.starts[trailID]
	return p, ok
}

// Pins returns a copy of the current pins.
func (s *Session) Pins() []*core.PinFeature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.PinFeature, len(s.pins))
	for i, p := range s.pins {
		c := *p
		out[i] = &c
	}
	return out
}

// NavigationCoords returns where to navigate to for a trail: the real start
// when routes are loaded, else the declared start, else the town position.
func (s *Session) NavigationCoords(trailID string) (core.LngLat, bool) {
	if p, ok := s.StartCoords(trailID); ok {
		return p, true
	}
	trail, ok := s.catalog.Lookup(trailID)
	if !ok {
		return core.LngLat{}, false
	}
	return catalog.PinPosition(trail), true
}

// Reconciliation returns the stats reconciliation of a loaded trail.
func (s *Session) Reconciliation(trailID string) (Reconciliation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reconciled[trailID]
	return r, ok
}

// IsNotFound reports whether err is a missing catalog entry.
func IsNotFound(err error) bool {
	return errors.Is(err, catalog.ErrNotFound)
}

func cloneAll(geoms []core.TrailGeometry) []core.TrailGeometry {
	if len(geoms) == 0 {
		return nil
	}
	out := make([]core.TrailGeometry, len(geoms))
	for i, g := range geoms {
		out[i] = g.Clone()
	}
	return out
}
