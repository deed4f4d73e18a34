package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/janelia-flyem/lvv/cache"
	"github.com/janelia-flyem/lvv/lvv"
	"github.com/janelia-flyem/lvv/neighborhood"
)

// Service exposes one tile cache over HTTP.
type Service struct {
	config  *Config
	cache   *cache.Cache
	handler http.Handler
	started time.Time
}

// NewService opens the configured dataset and sets up the web routes.
func NewService(ctx context.Context, config *Config) (*Service, error) {
	c, err := cache.Open(ctx, config.Dataset.Location, config.CacheConfig())
	if err != nil {
		return nil, err
	}
	if config.Cache.Neighborhood == "stack" {
		axis, _ := config.axis()
		c.SetNeighborhoodBuilder(&neighborhood.StackBuilder{Format: c.Format(), Axis: axis})
	}
	s := &Service{config: config, cache: c, started: time.Now()}
	s.handler = s.routes()
	return s, nil
}

// Cache returns the tile cache the service exposes.
func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// ServeHTTP dispatches a single request, which is handy for tests.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Serve listens on the configured address until the context is done, then shuts down
// the web server and the cache.
func (s *Service) Serve(ctx context.Context) error {
	address := s.config.HTTPAddress()
	srv := &http.Server{
		Addr:        address,
		Handler:     s.handler,
		ReadTimeout: 1 * time.Hour,
	}
	errc := make(chan error, 1)
	go func() {
		lvv.Infof("Web server listening at %s ...\n", address)
		errc <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		lvv.Infof("Shutting down web server at %s ...\n", address)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = srv.Shutdown(shutdownCtx)
		cancel()
	}
	if cerr := s.cache.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the cache without serving.
func (s *Service) Close() error {
	return s.cache.Close()
}
