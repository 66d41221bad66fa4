package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wp-composer/package-bridge/internal/metrics"
	"github.com/wp-composer/package-bridge/internal/storage"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

// downloadArtifact streams a stored artifact to the client. The file
// name must match the deterministic slug/slug-version.zip layout, so
// only known artifact paths ever reach storage.
func (s *Server) downloadArtifact(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	file := chi.URLParam(r, "file")
	if slug == "" || file == "" {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("missing slug or file"))
		return
	}

	p := s.packages.Find(slug)
	if p == nil {
		s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("package %s not found", slug))
		return
	}
	version, ok := artifactVersion(slug, file)
	if !ok {
		s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("unknown artifact %s", file))
		return
	}
	release, err := p.Release(version)
	if err != nil {
		s.writeJSONError(w, r, http.StatusNotFound, err)
		return
	}

	if err := s.builder.Ensure(r.Context(), release); err != nil {
		s.writeJSONError(w, r, buildErrorStatus(err), err, "could not build artifact")
		return
	}

	tagCtx, _ := tag.New(r.Context(), tag.Upsert(metrics.TagPackage, slug))
	stats.Record(tagCtx, metrics.CounterArtifactDownloads.M(1))

	if err := s.storage.Send(r.Context(), w, release.File()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeJSONError(w, r, http.StatusNotFound, err)
			return
		}
		s.requestLogger(r).Errorf("could not send %s: %v", release.File(), err)
	}
}

// artifactVersion extracts the version from a file named
// "{slug}-{version}.zip".
func artifactVersion(slug, file string) (string, bool) {
	rest, ok := strings.CutPrefix(file, slug+"-")
	if !ok {
		return "", false
	}
	version, ok := strings.CutSuffix(rest, ".zip")
	if !ok || version == "" {
		return "", false
	}
	return version, true
}
