package packages

import (
	"context"

	"github.com/google/go-github/v59/github"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ResolveAll fills in the release sets of all packages that declare a
// GitHub repository. GitHub API calls are throttled by a weighted
// semaphore so a large manifest does not burst the rate limit.
func ResolveAll(ctx context.Context, ghClient *github.Client, pkgs Packages, maxConcurrent int64) error {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	sem := semaphore.NewWeighted(maxConcurrent)
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range pkgs {
		if p.GitHubRepo == "" {
			continue
		}
		p := p
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return ResolveGitHubReleases(ctx, ghClient, p)
		})
	}
	return g.Wait()
}
