package archiver

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/wp-composer/package-bridge/internal/packages"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

// writeTree creates files below root; map keys are slash-separated
// relative paths.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func newInstalledPackage(t *testing.T, slug string, files map[string]string, versions ...string) *packages.Package {
	t.Helper()
	dir := filepath.Join(t.TempDir(), slug)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeTree(t, dir, files)
	p := &packages.Package{Name: slug, Slug: slug, Type: packages.TypePlugin, Directory: dir}
	for _, v := range versions {
		p.AddRelease(v, "")
	}
	return p
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	entries := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		entries = append(entries, f.Name)
	}
	sort.Strings(entries)
	return entries
}

func TestArchiveFromSourceDefaultExcludes(t *testing.T) {
	p := newInstalledPackage(t, "acme-widget", map[string]string{
		"widget.php": "<?php",
		"readme.txt": "readme",
		".git/config": "[core]",
	}, "1.2.0")

	a := New(testLogger(), t.TempDir())
	artifact, err := a.ArchiveFromSource(context.Background(), p, "1.2.0", nil)
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(artifact))

	require.Equal(t, []string{
		"acme-widget/readme.txt",
		"acme-widget/widget.php",
	}, zipEntries(t, artifact))
}

func TestArchiveFromSourceDistIgnore(t *testing.T) {
	p := newInstalledPackage(t, "acme-widget", map[string]string{
		"widget.php":      "<?php",
		"readme.txt":      "readme",
		"assets/logo.png": "png",
		"tests/unit.php":  "<?php",
		"notes.md":        "notes",
		".distignore":     "# development files\n\ntests/\n*.md\n",
	}, "1.0.0")

	a := New(testLogger(), t.TempDir())
	artifact, err := a.ArchiveFromSource(context.Background(), p, "1.0.0", nil)
	require.NoError(t, err)

	require.Equal(t, []string{
		"acme-widget/.distignore",
		"acme-widget/assets/logo.png",
		"acme-widget/readme.txt",
		"acme-widget/widget.php",
	}, zipEntries(t, artifact))
}

func TestArchiveFromSourceExcludeFilter(t *testing.T) {
	p := newInstalledPackage(t, "acme-widget", map[string]string{
		"widget.php": "<?php",
		"secret.txt": "secret",
	}, "1.0.0")

	filter := func(excludes []string) []string {
		return append(excludes, "secret.txt")
	}
	a := New(testLogger(), t.TempDir())
	artifact, err := a.ArchiveFromSource(context.Background(), p, "1.0.0", filter)
	require.NoError(t, err)
	require.Equal(t, []string{"acme-widget/widget.php"}, zipEntries(t, artifact))
}

func TestArchiveFromSourceSingleFile(t *testing.T) {
	p := newInstalledPackage(t, "hello-dolly", map[string]string{
		"hello.php": "<?php",
	}, "1.7.2")
	p.SingleFile = true

	a := New(testLogger(), t.TempDir())
	artifact, err := a.ArchiveFromSource(context.Background(), p, "1.7.2", nil)
	require.NoError(t, err)
	// no top-level folder for single-file plugins
	require.Equal(t, []string{"hello.php"}, zipEntries(t, artifact))
}

func TestArchiveFromSourceNotInstalled(t *testing.T) {
	p := &packages.Package{Slug: "ghost", Type: packages.TypePlugin}
	p.AddRelease("1.0.0", "")

	a := New(testLogger(), t.TempDir())
	_, err := a.ArchiveFromSource(context.Background(), p, "1.0.0", nil)
	require.ErrorIs(t, err, packages.ErrNotInstalled)
}

func TestArchiveFromSourceUnknownVersion(t *testing.T) {
	p := newInstalledPackage(t, "acme-widget", map[string]string{"widget.php": "<?php"}, "1.0.0")
	a := New(testLogger(), t.TempDir())
	_, err := a.ArchiveFromSource(context.Background(), p, "9.9.9", nil)
	require.ErrorIs(t, err, packages.ErrInvalidReleaseVersion)
}

func TestArchiveFromSourceEmptyResult(t *testing.T) {
	p := newInstalledPackage(t, "acme-widget", map[string]string{".git/config": "[core]"}, "1.0.0")
	a := New(testLogger(), t.TempDir())
	_, err := a.ArchiveFromSource(context.Background(), p, "1.0.0", nil)
	require.ErrorIs(t, err, ErrFileOperationFailed)
}

func TestArchiveFromSourceIdempotent(t *testing.T) {
	p := newInstalledPackage(t, "acme-widget", map[string]string{
		"widget.php": "<?php",
		"readme.txt": "readme",
	}, "1.0.0")

	a := New(testLogger(), t.TempDir())
	first, err := a.ArchiveFromSource(context.Background(), p, "1.0.0", nil)
	require.NoError(t, err)
	firstEntries := zipEntries(t, first)

	second, err := a.ArchiveFromSource(context.Background(), p, "1.0.0", nil)
	require.NoError(t, err)
	require.Equal(t, firstEntries, zipEntries(t, second))
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func newRemotePackage(slug, version, url string) *packages.Package {
	p := &packages.Package{Name: slug, Slug: slug, Type: packages.TypePlugin}
	p.AddRelease(version, url)
	return p
}

func TestArchiveFromURL(t *testing.T) {
	payload := buildZip(t, map[string]string{"dusk/style.css": "body{}"})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	p := newRemotePackage("dusk", "1.1.0", ts.URL+"/dusk-1.1.0.zip")
	a := New(testLogger(), t.TempDir())
	artifact, err := a.ArchiveFromURL(context.Background(), p.Releases[0])
	require.NoError(t, err)
	require.FileExists(t, artifact)
	require.Equal(t, []string{"dusk/style.css"}, zipEntries(t, artifact))
}

func TestArchiveFromURLInvalidZip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "this is not a zip file")
	}))
	defer ts.Close()

	workDir := t.TempDir()
	p := newRemotePackage("dusk", "1.1.0", ts.URL+"/dusk-1.1.0.zip")
	a := New(testLogger(), workDir)
	_, err := a.ArchiveFromURL(context.Background(), p.Releases[0])
	require.ErrorIs(t, err, ErrFileArchiveInvalid)

	// no artifact may be left at the destination path
	dest := filepath.Join(workDir, "downloads", "dusk", "dusk-1.1.0.zip")
	require.NoFileExists(t, dest)
}

func TestArchiveFromURLMissingURL(t *testing.T) {
	p := &packages.Package{Slug: "dusk", Type: packages.TypeTheme}
	p.AddRelease("1.0.0", "")
	a := New(testLogger(), t.TempDir())
	_, err := a.ArchiveFromURL(context.Background(), p.Releases[0])
	require.ErrorIs(t, err, ErrFileDownloadFailed)
}

func TestArchiveFromURLServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	p := newRemotePackage("dusk", "1.1.0", ts.URL+"/gone.zip")
	a := New(testLogger(), t.TempDir())
	_, err := a.ArchiveFromURL(context.Background(), p.Releases[0])
	require.ErrorIs(t, err, ErrFileDownloadFailed)
}
