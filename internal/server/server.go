package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/wp-composer/package-bridge/internal/authn"
	"github.com/wp-composer/package-bridge/internal/config"
	"github.com/wp-composer/package-bridge/internal/packages"
	"github.com/wp-composer/package-bridge/internal/storage"
	"github.com/wp-composer/package-bridge/internal/transform"
)

// ArtifactBuilder is the subset of the archive builder the request
// handlers need.
type ArtifactBuilder interface {
	transform.ArtifactBuilder
	Rebuild(ctx context.Context, release *packages.Release) error
}

type Server struct {
	router      chi.Router
	log         *logrus.Logger
	packages    packages.Packages
	storage     storage.Storage
	builder     ArtifactBuilder
	transformer *transform.Transformer
	keys        authn.Repository
	config      *config.ServerConfig
	cache       *cache.Cache
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"service": "package-bridge composer repository",
		"stage":   s.config.Stage,
		"version": s.config.Version,
	})
}

func New(log *logrus.Logger, pkgs packages.Packages, st storage.Storage, builder ArtifactBuilder, transformer *transform.Transformer, keys authn.Repository, serverCfg *config.ServerConfig) *Server {
	router := chi.NewRouter()
	server := &Server{
		router:      router,
		log:         log,
		packages:    pkgs,
		storage:     st,
		builder:     builder,
		transformer: transformer,
		keys:        keys,
		config:      serverCfg,
		cache:       cache.New(5*time.Minute, 10*time.Minute),
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(server.logMiddleware)
	router.Use(server.recoverMiddleware)

	router.Use(middleware.Timeout(5 * time.Minute))

	router.NotFound(server.notFoundHandler)
	router.MethodNotAllowed(server.methodNotAllowedHandler)

	router.Get("/", server.indexHandler)

	// the whole repository surface sits behind the API key gate
	router.Group(func(r chi.Router) {
		r.Use(server.authMiddleware)

		r.With(server.cacheMiddleware).Get("/packages.json", server.getRepositoryIndex)
		r.Get("/dist/{slug}/{file}", server.downloadArtifact)

		r.Route("/packages", func(r chi.Router) {
			r.Get("/", server.listPackages)
			r.Put("/{slug}/versions/{version}/artifact", server.rebuildArtifact)
			r.Delete("/{slug}/versions/{version}/artifact", server.deleteArtifact)
		})
	})

	return server
}
