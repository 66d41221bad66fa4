package packages

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v59/github"
)

func getOwnerRepo(fullRepo string) (string, string) {
	owner, repo, found := strings.Cut(fullRepo, "/")
	if !found {
		return "", ""
	}
	return owner, repo
}

// findZipAsset picks the release asset that holds the distributable
// archive. Exactly one .zip asset is expected per release.
func findZipAsset(assets []*github.ReleaseAsset) *github.ReleaseAsset {
	for _, asset := range assets {
		if strings.HasSuffix(strings.ToLower(asset.GetName()), ".zip") {
			return asset
		}
	}
	return nil
}

// ResolveGitHubReleases populates a package's release set from the
// GitHub releases of its configured repository. Drafts, prereleases,
// non-semver tags and releases without a zip asset are skipped.
func ResolveGitHubReleases(ctx context.Context, ghClient *github.Client, p *Package) error {
	if p.GitHubRepo == "" {
		return fmt.Errorf("package %s has no github repository configured", p.Slug)
	}
	owner, repo := getOwnerRepo(p.GitHubRepo)
	if owner == "" {
		return fmt.Errorf("package %s has an invalid github repository %q", p.Slug, p.GitHubRepo)
	}

	opts := &github.ListOptions{Page: 1, PerPage: 100}
	for {
		releases, resp, err := ghClient.Repositories.ListReleases(ctx, owner, repo, opts)
		if err != nil {
			return fmt.Errorf("could not list releases of %s: %w", p.GitHubRepo, err)
		}
		for _, release := range releases {
			if release.GetDraft() || release.GetPrerelease() {
				continue
			}
			version, err := semver.NewVersion(release.GetTagName())
			if err != nil {
				continue
			}
			asset := findZipAsset(release.Assets)
			if asset == nil {
				continue
			}
			p.AddRelease(version.String(), asset.GetBrowserDownloadURL())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil
}
