package packages

import (
	"encoding/json"
	"fmt"
	"os"
)

// manifestEntry is the JSON shape produced by the package discovery
// step that runs outside this service.
type manifestEntry struct {
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Type        Type              `json:"type"`
	Author      string            `json:"author,omitempty"`
	AuthorURL   string            `json:"author_url,omitempty"`
	Description string            `json:"description,omitempty"`
	Homepage    string            `json:"homepage,omitempty"`
	Directory   string            `json:"directory,omitempty"`
	SingleFile  bool              `json:"single_file,omitempty"`
	GitHubRepo  string            `json:"github_repo,omitempty"`
	Releases    map[string]string `json:"releases"`
}

// LoadManifest reads the package list from a JSON manifest file. Each
// entry carries a slug, a type, an optional source directory and a
// mapping of version to remote source URL (empty URL means the release
// is built from local source).
func LoadManifest(path string) (Packages, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read manifest: %w", err)
	}
	var entries []*manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("could not parse manifest: %w", err)
	}

	seen := make(map[string]struct{}, len(entries))
	pkgs := make(Packages, 0, len(entries))
	for _, e := range entries {
		if e.Slug == "" {
			return nil, fmt.Errorf("manifest entry %q is missing a slug", e.Name)
		}
		if e.Type != TypePlugin && e.Type != TypeTheme {
			return nil, fmt.Errorf("package %s has unknown type %q", e.Slug, e.Type)
		}
		p := &Package{
			Name:        e.Name,
			Slug:        e.Slug,
			Type:        e.Type,
			Author:      e.Author,
			AuthorURL:   e.AuthorURL,
			Description: e.Description,
			Homepage:    e.Homepage,
			Directory:   e.Directory,
			SingleFile:  e.SingleFile,
			GitHubRepo:  e.GitHubRepo,
		}
		if _, dup := seen[p.FullName()]; dup {
			return nil, fmt.Errorf("duplicate package %s in manifest", p.FullName())
		}
		seen[p.FullName()] = struct{}{}

		for version, url := range e.Releases {
			p.AddRelease(version, url)
		}
		if p.Name == "" {
			p.Name = p.Slug
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}
