// Package api serves the trail map over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bosqueabierto/mtbmap/internal/catalog"
	"github.com/bosqueabierto/mtbmap/internal/dispatcher"
	"github.com/bosqueabierto/mtbmap/internal/export"
	"github.com/bosqueabierto/mtbmap/internal/fetch"
	"github.com/bosqueabierto/mtbmap/internal/handlers"
	"github.com/bosqueabierto/mtbmap/internal/loader"
	"github.com/bosqueabierto/mtbmap/internal/logging"
	"github.com/bosqueabierto/mtbmap/internal/navigation"
	"github.com/bosqueabierto/mtbmap/internal/render"
	"github.com/bosqueabierto/mtbmap/pkg/core"
)

const geoJSONContentType = "application/geo+json"

// Dependencies holds everything the HTTP layer needs.
type Dependencies struct {
	Session    *loader.Session
	Source     fetch.Source
	Dispatcher *dispatcher.Dispatcher
	Logger     *slog.Logger
	// Healthcheck checks the asset origin. Optional.
	Healthcheck func(ctx context.Context) error
}

// Server exposes a Session over HTTP.
type Server struct {
	deps Dependencies
}

// NewServer creates a Server.
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{deps: deps}
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", s.handleHealthcheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/pins", s.handlePins)
		r.Get("/routes", s.handleRoutes)
		r.Post("/events/{command}", s.handleEvent)

		r.Route("/trails", func(r chi.Router) {
			r.Get("/", s.handleTrails)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleTrail)
				r.Get("/geometry", s.handleGeometry)
				r.Get("/gpx", s.handleGPX)
				r.Get("/navigation", s.handleNavigation)
				r.Post("/reload", s.handleReload)
			})
		})
	})

	return r
}

// requestLogger tags every record logged while serving a request with its id
// and logs the request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithAttrs(r.Context(), slog.String("request", middleware.GetReqID(r.Context())))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		s.deps.Logger.DebugContext(ctx, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

// TrailView is a catalog entry as the trail list shows it.
type TrailView struct {
	core.TrailProperties
	Elevation string      `json:"elevation"`
	Pin       core.LngLat `json:"pin"`
	Status    string      `json:"status"`
}

// TrailDetail adds the load outcome of one trail.
type TrailDetail struct {
	TrailView
	Navigation     *core.LngLat           `json:"navigation,omitempty"`
	Reconciliation *loader.Reconciliation `json:"reconciliation,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// Stats summarises the catalog and the session.
type Stats struct {
	Trails       int     `json:"trails"`
	Kilometers   float64 `json:"kilometers"`
	Ascent       int     `json:"ascent"`
	Summary      string  `json:"summary"`
	RoutesLoaded bool    `json:"routesLoaded"`
	Cached       int     `json:"cached"`
	Session      string  `json:"session"`
}

func (s *Server) view(t core.TrailRecord) TrailView {
	return TrailView{
		TrailProperties: t.Properties(),
		Elevation:       core.FormatElevation(t.Ascent, t.Descent),
		Pin:             catalog.PinPosition(t),
		Status:          string(s.deps.Session.Cache().Status(t.ID)),
	}
}

func (s *Server) handleTrails(w http.ResponseWriter, r *http.Request) {
	trails := s.deps.Session.Catalog().All()
	out := make([]TrailView, 0, len(trails))
	for _, t := range trails {
		out = append(out, s.view(t))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrail(w http.ResponseWriter, r *http.Request) {
	session := s.deps.Session
	id := chi.URLParam(r, "id")
	trail, err := session.Catalog().Get(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	detail := TrailDetail{TrailView: s.view(trail)}
	if pos, ok := session.NavigationCoords(id); ok {
		detail.Navigation = &pos
	}
	if rec, ok := session.Reconciliation(id); ok {
		detail.Reconciliation = &rec
		detail.Elevation = core.FormatElevation(rec.Effective.Ascent, rec.Effective.Descent)
	}
	if err := session.Cache().Err(id); err != nil {
		detail.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handlePins(w http.ResponseWriter, r *http.Request) {
	respondGeoJSON(w, render.PinCollection(s.deps.Session.Pins()))
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.LoadRoutesIfNeeded(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondGeoJSON(w, render.TrailCollection(s.deps.Session.Routes()))
}

func (s *Server) handleGeometry(w http.ResponseWriter, r *http.Request) {
	geoms, err := s.deps.Session.LoadTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondGeoJSON(w, render.TrailCollection(geoms))
}

func (s *Server) handleGPX(w http.ResponseWriter, r *http.Request) {
	trail, err := s.deps.Session.Catalog().Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data, name, err := export.Download(r.Context(), s.deps.Source, trail)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	session := s.deps.Session
	id := chi.URLParam(r, "id")
	trail, err := session.Catalog().Get(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	pos, _ := session.NavigationCoords(id)
	respondJSON(w, http.StatusOK, navigation.For(trail, pos))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	geoms, err := s.deps.Session.Reload(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := struct {
		TrailID    string `json:"trailId"`
		Geometries int    `json:"geometries"`
		Status     string `json:"status"`
		Error      string `json:"error,omitempty"`
	}{
		TrailID:    id,
		Geometries: len(geoms),
		Status:     string(s.deps.Session.Cache().Status(id)),
	}
	if err := s.deps.Session.Cache().Err(id); err != nil {
		out.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, out)
}

// eventRequest is the body of POST /api/events/{command}.
type eventRequest struct {
	Args []string `json:"args"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event body"})
			return
		}
	}

	result, err := s.deps.Dispatcher.Dispatch(r.Context(), dispatcher.Event{
		Command:   chi.URLParam(r, "command"),
		Args:      req.Args,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if result == dispatcher.Queued {
		status = http.StatusAccepted
	}
	respondJSON(w, status, map[string]any{"result": result})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	session := s.deps.Session
	totals := session.Catalog().Totals()
	respondJSON(w, http.StatusOK, Stats{
		Trails:       totals.Trails,
		Kilometers:   totals.Kilometers,
		Ascent:       totals.Ascent,
		Summary:      totals.String(),
		RoutesLoaded: session.RoutesLoaded(),
		Cached:       session.Cache().Len(),
		Session:      session.ID(),
	})
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.Healthcheck != nil {
		if err := s.deps.Healthcheck(r.Context()); err != nil {
			s.deps.Logger.WarnContext(r.Context(), "healthcheck failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: "asset origin unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var httpErr *fetch.HTTPError
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, export.ErrNoExport),
		errors.Is(err, dispatcher.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, handlers.ErrInvalidArgs):
		return http.StatusBadRequest
	case errors.Is(err, dispatcher.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.As(err, &httpErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.deps.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, errorBody{Error: err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func respondGeoJSON(w http.ResponseWriter, payload json.Marshaler) {
	data, err := payload.MarshalJSON()
	if err != nil {
		http.Error(w, "encoding geojson", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", geoJSONContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
