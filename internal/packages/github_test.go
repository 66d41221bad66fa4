package packages

import (
	"context"
	"testing"

	"github.com/google/go-github/v59/github"
	"github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/stretchr/testify/require"
)

func TestGetOwnerRepo(t *testing.T) {
	owner, repo := getOwnerRepo("owner/repo")
	require.Equal(t, "owner", owner)
	require.Equal(t, "repo", repo)

	owner, repo = getOwnerRepo("invalid")
	require.Empty(t, owner)
	require.Empty(t, repo)
}

func TestResolveGitHubReleases(t *testing.T) {
	zipAsset := &github.ReleaseAsset{
		Name:               github.String("acme-widget-release.zip"),
		BrowserDownloadURL: github.String("https://download.example/acme-widget-release.zip"),
	}
	binaryAsset := &github.ReleaseAsset{
		Name:               github.String("acme-widget_linux_amd64"),
		BrowserDownloadURL: github.String("https://download.example/acme-widget_linux_amd64"),
	}
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetReposReleasesByOwnerByRepo,
			[]*github.RepositoryRelease{
				{Draft: github.Bool(false), TagName: github.String("v1.0.0"), Assets: []*github.ReleaseAsset{zipAsset}},
				{Draft: github.Bool(true), TagName: github.String("v1.1.0"), Assets: []*github.ReleaseAsset{zipAsset}},
				{Draft: github.Bool(false), Prerelease: github.Bool(true), TagName: github.String("v2.0.0-beta"), Assets: []*github.ReleaseAsset{zipAsset}},
				{Draft: github.Bool(false), TagName: github.String("not-a-version"), Assets: []*github.ReleaseAsset{zipAsset}},
				{Draft: github.Bool(false), TagName: github.String("v1.2.0"), Assets: []*github.ReleaseAsset{binaryAsset}},
				{Draft: github.Bool(false), TagName: github.String("v2.0.0"), Assets: []*github.ReleaseAsset{binaryAsset, zipAsset}},
			},
		),
	)
	ghClient := github.NewClient(mockedHTTPClient)

	p := &Package{Slug: "acme-widget", Type: TypePlugin, GitHubRepo: "acme/acme-widget"}
	require.NoError(t, ResolveGitHubReleases(context.Background(), ghClient, p))

	require.Len(t, p.Releases, 2)
	require.Equal(t, "2.0.0", p.Releases[0].Version)
	require.Equal(t, "1.0.0", p.Releases[1].Version)
	require.Equal(t, "https://download.example/acme-widget-release.zip", p.Releases[0].SourceURL)
}

func TestResolveGitHubReleasesMissingRepo(t *testing.T) {
	p := &Package{Slug: "acme-widget", Type: TypePlugin}
	err := ResolveGitHubReleases(context.Background(), github.NewClient(nil), p)
	require.ErrorContains(t, err, "no github repository")

	p.GitHubRepo = "invalid"
	err = ResolveGitHubReleases(context.Background(), github.NewClient(nil), p)
	require.ErrorContains(t, err, "invalid github repository")
}
