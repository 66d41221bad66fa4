package archiver

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/wp-composer/package-bridge/internal/metrics"
	"github.com/wp-composer/package-bridge/internal/packages"
	"github.com/wp-composer/package-bridge/internal/storage"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/sync/singleflight"
)

// Builder makes sure a release's artifact exists in storage, building
// it on first request. Builds are serialized per artifact path via
// singleflight so concurrent requests for the same release share one
// build while unrelated packages proceed independently.
type Builder struct {
	log      *logrus.Logger
	archiver *Archiver
	storage  storage.Storage
	filter   ExcludeFilter
	group    singleflight.Group
}

func NewBuilder(log *logrus.Logger, a *Archiver, st storage.Storage, filter ExcludeFilter) *Builder {
	return &Builder{log: log, archiver: a, storage: st, filter: filter}
}

// Ensure builds the artifact for a release unless storage already has
// it. Installed packages are archived from local source, others from
// their remote source URL.
func (b *Builder) Ensure(ctx context.Context, release *packages.Release) error {
	file := release.File()
	if b.storage.Exists(ctx, file) {
		return nil
	}
	_, err, _ := b.group.Do(file, func() (any, error) {
		// Re-check under the flight lock, a concurrent build may have
		// committed the artifact already.
		if b.storage.Exists(ctx, file) {
			return nil, nil
		}
		tmpPath, err := b.build(ctx, release)
		if err != nil {
			return nil, err
		}
		if !b.storage.Move(ctx, tmpPath, file) {
			_ = os.Remove(tmpPath)
			return nil, fmt.Errorf("%w: could not move artifact %s into storage", ErrFileOperationFailed, file)
		}
		tagCtx, _ := tag.New(ctx, tag.Upsert(metrics.TagPackage, release.Package.Slug))
		stats.Record(tagCtx, metrics.CounterArtifactBuilds.M(1))
		return nil, nil
	})
	return err
}

// Rebuild forces a fresh artifact even when one exists. The previous
// artifact stays in place until the new one is moved over it.
func (b *Builder) Rebuild(ctx context.Context, release *packages.Release) error {
	file := release.File()
	_, err, _ := b.group.Do(file, func() (any, error) {
		tmpPath, err := b.build(ctx, release)
		if err != nil {
			return nil, err
		}
		if !b.storage.Move(ctx, tmpPath, file) {
			_ = os.Remove(tmpPath)
			return nil, fmt.Errorf("%w: could not move artifact %s into storage", ErrFileOperationFailed, file)
		}
		tagCtx, _ := tag.New(ctx, tag.Upsert(metrics.TagPackage, release.Package.Slug))
		stats.Record(tagCtx, metrics.CounterArtifactBuilds.M(1))
		return nil, nil
	})
	return err
}

func (b *Builder) build(ctx context.Context, release *packages.Release) (string, error) {
	p := release.Package
	if p.IsInstalled() {
		return b.archiver.ArchiveFromSource(ctx, p, release.Version, b.filter)
	}
	if release.SourceURL != "" {
		return b.archiver.ArchiveFromURL(ctx, release)
	}
	return "", fmt.Errorf("%w: %s@%s has neither local source nor a source url", packages.ErrNotInstalled, p.Slug, release.Version)
}
