package archiver

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
)

// DistIgnoreFile is the per-package ignore file listing paths that are
// excluded from built artifacts, one glob pattern per line.
const DistIgnoreFile = ".distignore"

// DefaultExcludes applies when a package ships no ignore file:
// version-control directories, OS metadata and dependency caches.
var DefaultExcludes = []string{
	".git",
	".svn",
	".hg",
	".DS_Store",
	"Thumbs.db",
	"node_modules",
	DistIgnoreFile,
}

// ExcludeFilter lets callers augment or replace the computed exclude
// list before the archive is built. A nil filter keeps the list as is.
type ExcludeFilter func(excludes []string) []string

// parseDistIgnore reads an ignore file. Blank lines and lines starting
// with # are skipped.
func parseDistIgnore(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open ignore file: %w", err)
	}
	defer f.Close()

	patterns := make([]string, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read ignore file: %w", err)
	}
	return patterns, nil
}

// excluded reports whether a slash-separated path relative to the
// package root matches any exclude pattern. Patterns match the full
// relative path or any single path segment, so ".git" prunes the
// directory and everything below it. A trailing slash restricts a
// pattern to a directory prefix.
func excluded(patterns []string, relPath string) bool {
	segments := strings.Split(relPath, "/")
	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(pattern, "/")
		if dir, ok := strings.CutSuffix(pattern, "/"); ok {
			if relPath == dir || strings.HasPrefix(relPath, dir+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, relPath); ok {
			return true
		}
		for _, segment := range segments {
			if ok, _ := path.Match(pattern, segment); ok {
				return true
			}
		}
	}
	return false
}
