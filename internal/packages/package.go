// Package packages holds the internal model of the plugins and themes
// exposed through the repository, together with their releases.
package packages

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrNotInstalled is returned when an operation needs local source
	// files but the package has none on disk.
	ErrNotInstalled = errors.New("package is not installed")
	// ErrInvalidReleaseVersion is returned for a version that is not
	// part of a package's release set.
	ErrInvalidReleaseVersion = errors.New("invalid release version")
	// ErrNoReleases is returned when a package has an empty release set.
	ErrNoReleases = errors.New("package has no releases")
)

// Type discriminates the package variants.
type Type string

const (
	TypePlugin Type = "plugin"
	TypeTheme  Type = "theme"
)

// ComposerType maps the internal package type to the Composer package
// type consumed by installer plugins.
func (t Type) ComposerType() string {
	switch t {
	case TypeTheme:
		return "wordpress-theme"
	default:
		return "wordpress-plugin"
	}
}

// Package is an installable unit tracked by the repository. It is
// immutable once constructed by the manifest loader.
type Package struct {
	Name        string
	Slug        string
	Type        Type
	Author      string
	AuthorURL   string
	Description string
	Homepage    string

	// Directory is the absolute path to the package source root. Empty
	// when the package is only known through remote release URLs.
	Directory string

	// SingleFile marks a plugin that consists of one PHP file directly
	// in the plugins directory rather than its own folder.
	SingleFile bool

	// GitHubRepo ("owner/repo") lets releases be resolved from GitHub
	// release assets instead of being listed in the manifest.
	GitHubRepo string

	// Releases are ordered newest-first.
	Releases []*Release
}

// Release is one version of a package. Immutable after construction.
type Release struct {
	Package   *Package
	Version   string
	SourceURL string
}

// File is the relative artifact path of this release in storage.
func (r *Release) File() string {
	return fmt.Sprintf("%s/%s-%s.zip", r.Package.Slug, r.Package.Slug, r.Version)
}

// IsInstalled reports whether local source files exist for the package.
func (p *Package) IsInstalled() bool {
	return p.Directory != ""
}

// FullName is the unique identity of a package across the whole set.
func (p *Package) FullName() string {
	return fmt.Sprintf("%s/%s", p.Type, p.Slug)
}

// Release resolves a version string to its release.
func (p *Package) Release(version string) (*Release, error) {
	for _, r := range p.Releases {
		if r.Version == version {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s@%s", ErrInvalidReleaseVersion, p.Slug, version)
}

// LatestRelease returns the newest release of the package.
func (p *Package) LatestRelease() (*Release, error) {
	if len(p.Releases) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoReleases, p.Slug)
	}
	return p.Releases[0], nil
}

// AddRelease appends a release and restores newest-first ordering.
// Versions that do not parse as semver sort last in input order.
func (p *Package) AddRelease(version, sourceURL string) {
	p.Releases = append(p.Releases, &Release{Package: p, Version: version, SourceURL: sourceURL})
	sortReleases(p.Releases)
}

func sortReleases(releases []*Release) {
	sort.SliceStable(releases, func(i, j int) bool {
		vi, errI := semver.NewVersion(releases[i].Version)
		vj, errJ := semver.NewVersion(releases[j].Version)
		if errI != nil || errJ != nil {
			return errJ != nil && errI == nil
		}
		return vi.GreaterThan(vj)
	})
}

// Packages is the full set handed over by the discovery collaborator.
type Packages []*Package

// Find looks a package up by slug, case-insensitively.
func (l Packages) Find(slug string) *Package {
	for _, p := range l {
		if strings.EqualFold(p.Slug, slug) {
			return p
		}
	}
	return nil
}

// Whitelisted returns the subset of installed packages whose slugs are
// on the whitelist; packages that are not installed are always kept,
// their releases only exist remotely.
func (l Packages) Whitelisted(slugs []string) Packages {
	allowed := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		allowed[strings.ToLower(s)] = struct{}{}
	}
	out := make(Packages, 0, len(l))
	for _, p := range l {
		if !p.IsInstalled() {
			out = append(out, p)
			continue
		}
		if _, ok := allowed[strings.ToLower(p.Slug)]; ok {
			out = append(out, p)
		}
	}
	return out
}
