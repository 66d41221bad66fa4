package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wp-composer/package-bridge/internal/archiver"
	"github.com/wp-composer/package-bridge/internal/packages"
)

func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	res := make([]string, 0)
	for _, p := range s.packages {
		res = append(res, p.FullName())
	}
	s.writeJSON(w, res)
}

func (s *Server) getRepositoryIndex(w http.ResponseWriter, r *http.Request) {
	repo, err := s.transformer.BuildIndex(r.Context(), s.packages)
	if err != nil {
		s.writeJSONError(w, r, buildErrorStatus(err), err, "could not build repository index")
		return
	}
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), repo)
	s.writeJSON(w, repo)
}

// resolveRelease maps slug+version URL params to a release, writing
// the error response itself when resolution fails.
func (s *Server) resolveRelease(w http.ResponseWriter, r *http.Request) *packages.Release {
	slug := chi.URLParam(r, "slug")
	version := chi.URLParam(r, "version")
	p := s.packages.Find(slug)
	if p == nil {
		s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("package %s not found", slug))
		return nil
	}
	release, err := p.Release(version)
	if err != nil {
		s.writeJSONError(w, r, http.StatusNotFound, err)
		return nil
	}
	return release
}

func (s *Server) rebuildArtifact(w http.ResponseWriter, r *http.Request) {
	release := s.resolveRelease(w, r)
	if release == nil {
		return
	}
	reqLogger := s.requestLogger(r)
	reqLogger.Infof("rebuilding artifact %s", release.File())

	if err := s.builder.Rebuild(r.Context(), release); err != nil {
		s.writeJSONError(w, r, buildErrorStatus(err), err, "could not rebuild artifact")
		return
	}
	s.invalidateIndex()
	s.writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) deleteArtifact(w http.ResponseWriter, r *http.Request) {
	release := s.resolveRelease(w, r)
	if release == nil {
		return
	}
	if !s.storage.Delete(r.Context(), release.File()) {
		s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("artifact %s not found", release.File()))
		return
	}
	s.invalidateIndex()
	s.writeJSON(w, map[string]bool{"ok": true})
}

// buildErrorStatus maps archiving failures to response codes. Remote
// fetch problems are upstream failures, everything else on the build
// path is internal.
func buildErrorStatus(err error) int {
	switch {
	case errors.Is(err, packages.ErrNotInstalled), errors.Is(err, packages.ErrInvalidReleaseVersion), errors.Is(err, packages.ErrNoReleases):
		return http.StatusBadRequest
	case errors.Is(err, archiver.ErrFileDownloadFailed), errors.Is(err, archiver.ErrFileArchiveInvalid):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
