// Package transform converts internal packages into the Composer
// repository wire format and assembles the packages.json index.
package transform

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/wp-composer/package-bridge/internal/packages"
	"github.com/wp-composer/package-bridge/internal/storage"
	"github.com/wp-composer/package-bridge/pkg/composer"
)

// checksumAlgorithm is fixed to sha1 for Composer dist compatibility.
const checksumAlgorithm = "sha1"

// ArtifactBuilder materializes a release's artifact in storage before
// its checksum can be computed.
type ArtifactBuilder interface {
	Ensure(ctx context.Context, release *packages.Release) error
}

// Options configures the transformer. Vendor must already be validated
// against the Composer vendor grammar.
type Options struct {
	// Vendor is the namespace every package is exposed under.
	Vendor string
	// BaseURL is the public address dist URLs point at.
	BaseURL string
	// Strict fails the whole index when one release cannot be built or
	// checksummed; otherwise the broken release is skipped and logged.
	Strict bool
}

type Transformer struct {
	log     *logrus.Logger
	storage storage.Storage
	builder ArtifactBuilder
	opts    Options
}

func New(log *logrus.Logger, st storage.Storage, builder ArtifactBuilder, opts Options) (*Transformer, error) {
	if err := composer.ValidateVendor(opts.Vendor); err != nil {
		return nil, err
	}
	return &Transformer{log: log, storage: st, builder: builder, opts: opts}, nil
}

// composerName is the "{vendor}/{slug}" identity of a package in the
// repository index.
func (t *Transformer) composerName(p *packages.Package) string {
	return fmt.Sprintf("%s/%s", t.opts.Vendor, p.Slug)
}

func (t *Transformer) distURL(release *packages.Release) (string, error) {
	return url.JoinPath(t.opts.BaseURL, "dist", release.File())
}

// TransformRelease emits the metadata record for one release, building
// the artifact on demand. A missing checksum is a hard failure; no
// partial record is ever returned.
func (t *Transformer) TransformRelease(ctx context.Context, release *packages.Release) (*composer.PackageVersion, error) {
	if err := t.builder.Ensure(ctx, release); err != nil {
		return nil, fmt.Errorf("could not build artifact for %s@%s: %w", release.Package.Slug, release.Version, err)
	}
	shasum, err := t.storage.Checksum(ctx, checksumAlgorithm, release.File())
	if err != nil {
		return nil, fmt.Errorf("could not checksum artifact for %s@%s: %w", release.Package.Slug, release.Version, err)
	}
	distURL, err := t.distURL(release)
	if err != nil {
		return nil, fmt.Errorf("could not build dist url for %s@%s: %w", release.Package.Slug, release.Version, err)
	}
	return &composer.PackageVersion{
		Name:    t.composerName(release.Package),
		Version: release.Version,
		Type:    release.Package.Type.ComposerType(),
		Dist: &composer.Dist{
			URL:    distURL,
			Type:   composer.DistType,
			Shasum: shasum,
		},
	}, nil
}

// TransformPackage emits all releases of a package, newest first.
func (t *Transformer) TransformPackage(ctx context.Context, p *packages.Package) (composer.PackageVersions, error) {
	versions := make(composer.PackageVersions, len(p.Releases))
	for _, release := range p.Releases {
		meta, err := t.TransformRelease(ctx, release)
		if err != nil {
			if t.opts.Strict {
				return nil, err
			}
			t.log.WithFields(logrus.Fields{
				"package": p.Slug,
				"version": release.Version,
			}).Errorf("skipping release: %v", err)
			continue
		}
		versions[release.Version] = meta
	}
	return versions, nil
}

// BuildIndex assembles the repository index document for the given
// package set. Packages whose releases all failed are left out rather
// than listed empty.
func (t *Transformer) BuildIndex(ctx context.Context, pkgs packages.Packages) (*composer.Repository, error) {
	repo := composer.NewRepository()
	for _, p := range pkgs {
		versions, err := t.TransformPackage(ctx, p)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			continue
		}
		repo.Packages[t.composerName(p)] = versions
	}
	return repo, nil
}
