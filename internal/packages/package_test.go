package packages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPackage(slug string, versions ...string) *Package {
	p := &Package{
		Name:      slug,
		Slug:      slug,
		Type:      TypePlugin,
		Directory: "/tmp/" + slug,
	}
	for _, v := range versions {
		p.AddRelease(v, "")
	}
	return p
}

func TestReleaseOrderingNewestFirst(t *testing.T) {
	p := newTestPackage("acme-widget", "1.0.0", "2.0.0", "1.5.0")
	require.Len(t, p.Releases, 3)
	require.Equal(t, "2.0.0", p.Releases[0].Version)
	require.Equal(t, "1.5.0", p.Releases[1].Version)
	require.Equal(t, "1.0.0", p.Releases[2].Version)

	latest, err := p.LatestRelease()
	require.NoError(t, err)
	require.Equal(t, "2.0.0", latest.Version)
}

func TestLatestReleaseEmpty(t *testing.T) {
	p := newTestPackage("acme-widget")
	_, err := p.LatestRelease()
	require.ErrorIs(t, err, ErrNoReleases)
}

func TestReleaseLookup(t *testing.T) {
	p := newTestPackage("acme-widget", "1.0.0")
	r, err := p.Release("1.0.0")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", r.Version)
	require.Same(t, p, r.Package)

	_, err = p.Release("9.9.9")
	require.ErrorIs(t, err, ErrInvalidReleaseVersion)
}

func TestReleaseFile(t *testing.T) {
	p := newTestPackage("acme-widget", "1.2.0")
	r, err := p.Release("1.2.0")
	require.NoError(t, err)
	require.Equal(t, "acme-widget/acme-widget-1.2.0.zip", r.File())
}

func TestComposerType(t *testing.T) {
	require.Equal(t, "wordpress-plugin", TypePlugin.ComposerType())
	require.Equal(t, "wordpress-theme", TypeTheme.ComposerType())
}

func TestFind(t *testing.T) {
	pkgs := Packages{newTestPackage("acme-widget", "1.0.0"), newTestPackage("other", "1.0.0")}
	require.NotNil(t, pkgs.Find("Acme-Widget"))
	require.Nil(t, pkgs.Find("missing"))
}

func TestWhitelisted(t *testing.T) {
	remote := &Package{Slug: "remote-only", Type: TypePlugin}
	remote.AddRelease("1.0.0", "https://example.com/remote-only.zip")
	pkgs := Packages{
		newTestPackage("acme-widget", "1.0.0"),
		newTestPackage("hidden", "1.0.0"),
		remote,
	}

	filtered := pkgs.Whitelisted([]string{"acme-widget"})
	require.Len(t, filtered, 2)
	require.NotNil(t, filtered.Find("acme-widget"))
	require.Nil(t, filtered.Find("hidden"))
	// packages without local source are always exposed
	require.NotNil(t, filtered.Find("remote-only"))
}
