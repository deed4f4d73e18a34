package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/lvv/cache"
	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/tile"
	"github.com/rs/cors"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"
)

// WebAPIPath is the prefix of all HTTP API endpoints.
const WebAPIPath = "/api/"

func (s *Service) routes() http.Handler {
	m := web.New()
	m.Use(middleware.Recoverer)
	m.Use(logRequests)

	m.Get(WebAPIPath+"server/info", s.serverInfoHandler)
	m.Get(WebAPIPath+"cache/stats", s.statsHandler)
	m.Get(WebAPIPath+"cache/keys", s.keysHandler)
	m.Get(WebAPIPath+"cache/neighborhood", s.neighborhoodHandler)
	m.Get(WebAPIPath+"cache/tile/:zoom/:x/:y/:z", s.tileHandler)
	m.Post(WebAPIPath+"cache/focus", s.focusHandler)
	m.Post(WebAPIPath+"cache/zoom", s.zoomHandler)
	m.Post(WebAPIPath+"cache/prefetch", s.prefetchHandler)
	m.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, r, http.StatusNotFound, fmt.Sprintf("unknown endpoint %s %q", r.Method, r.URL.Path))
	})

	if len(s.config.Cors.Domains) == 0 {
		return m
	}
	lvv.Infof("Allowing cross-origin requests from %v\n", s.config.Cors.Domains)
	return cors.New(cors.Options{
		AllowedOrigins:   s.config.Cors.Domains,
		AllowedMethods:   []string{"GET", "POST", "HEAD"},
		AllowCredentials: true,
	}).Handler(m)
}

func logRequests(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		lvv.Debugf("HTTP %s %s (%s)\n", r.Method, r.URL, time.Since(start))
	}
	return http.HandlerFunc(fn)
}

// BadRequest writes an error message with status 400 and logs it.
func BadRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	httpError(w, r, http.StatusBadRequest, fmt.Sprintf(format, args...))
}

func httpError(w http.ResponseWriter, r *http.Request, status int, message string) {
	errorMsg := fmt.Sprintf("%s (%s).", message, r.URL.Path)
	lvv.Errorf("%s\n", errorMsg)
	http.Error(w, errorMsg, status)
}

// statusFor maps an error from the cache to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, cache.ErrClosed), errors.Is(err, lvv.ErrResource):
		return http.StatusServiceUnavailable
	case errors.Is(err, lvv.ErrDecode), errors.Is(err, lvv.ErrContract):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lvv.Errorf("Unable to write JSON response to %s: %v\n", r.URL.Path, err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

type tileJSON struct {
	Tile string `json:"tile"`
	Path string `json:"path"`
	Zoom int    `json:"zoom"`
	X    int32  `json:"x"`
	Y    int32  `json:"y"`
	Z    int32  `json:"z"`
}

func tilesJSON(indices []tile.Index) []tileJSON {
	out := make([]tileJSON, len(indices))
	for i, idx := range indices {
		out[i] = tileJSON{
			Tile: idx.String(),
			Path: idx.RelativePath(),
			Zoom: idx.Zoom,
			X:    idx.X,
			Y:    idx.Y,
			Z:    idx.Z,
		}
	}
	return out
}

func (s *Service) serverInfoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]interface{}{
		"note":     s.config.Server.Note,
		"config":   s.config.Location(),
		"dataset":  s.config.Dataset.Location,
		"session":  s.cache.Session(),
		"format":   s.cache.Format().String(),
		"uptime":   time.Since(s.started).String(),
		"started":  humanize.Time(s.started),
		"prefetch": s.cache.Prefetch(),
	})
}

func (s *Service) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.cache.Stats())
}

func (s *Service) keysHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, tilesJSON(s.cache.DumpKeys()))
}

func (s *Service) neighborhoodHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, tilesJSON(s.cache.Neighborhood()))
}

func (s *Service) tileHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var coords [4]int
	for i, name := range []string{"zoom", "x", "y", "z"} {
		v, err := strconv.Atoi(c.URLParams[name])
		if err != nil {
			BadRequest(w, r, "bad %s %q in tile request", name, c.URLParams[name])
			return
		}
		coords[i] = v
	}
	format := s.cache.Format()
	axis, _ := s.config.axis()
	if a := r.URL.Query().Get("axis"); a != "" {
		if err := axis.UnmarshalText([]byte(a)); err != nil {
			BadRequest(w, r, "bad slice axis: %v", err)
			return
		}
	}
	idx := tile.Index{
		X:       int32(coords[1]),
		Y:       int32(coords[2]),
		Z:       int32(coords[3]),
		Zoom:    coords[0],
		MaxZoom: format.MaxZoom(),
		Axis:    axis,
		Style:   format.Style(),
	}
	t, err := s.cache.Get(r.Context(), idx)
	if err != nil {
		httpError(w, r, statusFor(err), fmt.Sprintf("tile %s: %v", idx, err))
		return
	}
	resp := map[string]interface{}{
		"tile":         idx.String(),
		"path":         idx.RelativePath(),
		"state":        s.cache.State(idx).String(),
		"voxels":       t.Voxels,
		"stored_bytes": t.StoredBytes,
		"stored_size":  humanize.Bytes(uint64(t.StoredBytes)),
		"loaded":       t.LoadedAt.Format(time.RFC3339),
	}
	if t.Masks != nil {
		resp["mask_counts"] = t.Masks.Counts()
		if bounds, ok := t.Masks.Bounds(); ok {
			resp["bounds"] = bounds.String()
		}
	}
	writeJSON(w, r, resp)
}

func (s *Service) focusHandler(w http.ResponseWriter, r *http.Request) {
	var focus struct {
		X, Y, Z *float64
	}
	if err := decodeJSON(r, &focus); err != nil {
		BadRequest(w, r, "bad focus JSON: %v", err)
		return
	}
	if focus.X == nil || focus.Y == nil || focus.Z == nil {
		BadRequest(w, r, "focus requires x, y and z in micrometers")
		return
	}
	s.cache.SetFocus(*focus.X, *focus.Y, *focus.Z)
	writeJSON(w, r, map[string]int{"neighborhood": len(s.cache.Neighborhood())})
}

func (s *Service) zoomHandler(w http.ResponseWriter, r *http.Request) {
	var zoom struct {
		Zoom        *float64 `json:"zoom"`
		PixelsPerUm *float64 `json:"pixels_per_um"`
	}
	if err := decodeJSON(r, &zoom); err != nil {
		BadRequest(w, r, "bad zoom JSON: %v", err)
		return
	}
	switch {
	case zoom.Zoom != nil && zoom.PixelsPerUm != nil:
		BadRequest(w, r, "give either zoom or pixels_per_um, not both")
		return
	case zoom.Zoom != nil:
		if *zoom.Zoom < 0 {
			BadRequest(w, r, "zoom %g must not be negative", *zoom.Zoom)
			return
		}
		s.cache.SetCameraZoom(*zoom.Zoom)
	case zoom.PixelsPerUm != nil:
		s.cache.SetPixelsPerSceneUnit(*zoom.PixelsPerUm)
	default:
		BadRequest(w, r, "zoom requires zoom or pixels_per_um")
		return
	}
	writeJSON(w, r, map[string]int{"neighborhood": len(s.cache.Neighborhood())})
}

func (s *Service) prefetchHandler(w http.ResponseWriter, r *http.Request) {
	var prefetch struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(r, &prefetch); err != nil || prefetch.Enabled == nil {
		BadRequest(w, r, "prefetch requires JSON with boolean 'enabled'")
		return
	}
	s.cache.SetPrefetch(*prefetch.Enabled)
	writeJSON(w, r, map[string]bool{"prefetch": *prefetch.Enabled})
}
