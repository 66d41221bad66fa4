// Package archiver builds zip artifacts for package releases, either
// from local source files or from a remote release URL. Artifacts are
// written to a scratch directory; moving them into permanent storage
// is the caller's job.
package archiver

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/wp-composer/package-bridge/internal/packages"
)

var (
	// ErrFileOperationFailed covers directory creation, zip creation
	// and rename failures on the local filesystem.
	ErrFileOperationFailed = errors.New("file operation failed")
	// ErrFileDownloadFailed is returned when fetching a remote release
	// asset fails.
	ErrFileDownloadFailed = errors.New("file download failed")
	// ErrFileArchiveInvalid is returned when a downloaded asset is not
	// a well-formed zip archive.
	ErrFileArchiveInvalid = errors.New("file archive invalid")
)

var (
	defaultRetryableClient     *retryablehttp.Client
	defaultRetryableClientInit sync.Once
)

func getDefaultRetryableClient() *retryablehttp.Client {
	defaultRetryableClientInit.Do(func() {
		defaultRetryableClient = retryablehttp.NewClient()
		defaultRetryableClient.Logger = nil
		defaultRetryableClient.HTTPClient.Timeout = 3 * time.Minute
	})
	return defaultRetryableClient
}

// Archiver produces zip artifacts in a scratch directory.
type Archiver struct {
	log        *logrus.Logger
	workDir    string
	httpClient *retryablehttp.Client
}

func New(log *logrus.Logger, workDir string) *Archiver {
	return &Archiver{
		log:        log,
		workDir:    workDir,
		httpClient: getDefaultRetryableClient(),
	}
}

// computeExcludes resolves the exclude list for a package: the
// .distignore file if present (directory packages only), the default
// set otherwise, then the caller-supplied filter.
func computeExcludes(p *packages.Package, filter ExcludeFilter) ([]string, error) {
	excludes := DefaultExcludes
	if !p.SingleFile {
		ignorePath := filepath.Join(p.Directory, DistIgnoreFile)
		if _, err := os.Stat(ignorePath); err == nil {
			parsed, err := parseDistIgnore(ignorePath)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrFileOperationFailed, err)
			}
			excludes = parsed
		}
	}
	if filter != nil {
		excludes = filter(excludes)
	}
	return excludes, nil
}

// collectFiles walks the package directory and returns the
// slash-separated relative paths of every file that survives the
// exclude list, in lexicographic order.
func collectFiles(ctx context.Context, root string, excludes []string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if excluded(excludes, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func writeZipEntry(zw *zip.Writer, srcPath, entryName string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = entryName
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// ArchiveFromSource builds a zip artifact for a release from the
// package's local source tree and returns the absolute path of the
// produced file inside the scratch directory.
//
// The archive contains a top-level folder named after the slug, except
// for single-file plugins whose files are stored without a folder.
func (a *Archiver) ArchiveFromSource(ctx context.Context, p *packages.Package, version string, filter ExcludeFilter) (string, error) {
	if !p.IsInstalled() {
		return "", fmt.Errorf("%w: %s", packages.ErrNotInstalled, p.Slug)
	}
	release, err := p.Release(version)
	if err != nil {
		return "", err
	}

	excludes, err := computeExcludes(p, filter)
	if err != nil {
		return "", err
	}
	files, err := collectFiles(ctx, p.Directory, excludes)
	if err != nil {
		return "", fmt.Errorf("%w: could not collect files of %s: %s", ErrFileOperationFailed, p.Slug, err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: no files to archive for %s@%s", ErrFileOperationFailed, p.Slug, version)
	}

	destPath := filepath.Join(a.workDir, "build", filepath.FromSlash(release.File()))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: could not create destination directory: %s", ErrFileOperationFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".*")
	if err != nil {
		return "", fmt.Errorf("%w: could not create temp file: %s", ErrFileOperationFailed, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	zw := zip.NewWriter(tmp)
	for _, rel := range files {
		entryName := rel
		if !p.SingleFile {
			entryName = p.Slug + "/" + rel
		}
		if err := writeZipEntry(zw, filepath.Join(p.Directory, filepath.FromSlash(rel)), entryName); err != nil {
			_ = zw.Close()
			return "", fmt.Errorf("%w: could not add %s to archive: %s", ErrFileOperationFailed, rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("%w: could not finalize archive: %s", ErrFileOperationFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: could not close archive: %s", ErrFileOperationFailed, err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return "", fmt.Errorf("%w: could not move archive into place: %s", ErrFileOperationFailed, err)
	}

	a.log.Infof("archived %s@%s from source (%d files)", p.Slug, version, len(files))
	return destPath, nil
}

// ArchiveFromURL downloads the prebuilt artifact of a release,
// validates that it is a well-formed zip archive and moves it to its
// destination inside the scratch directory.
func (a *Archiver) ArchiveFromURL(ctx context.Context, release *packages.Release) (string, error) {
	if release.SourceURL == "" {
		return "", fmt.Errorf("%w: release %s@%s has no source url", ErrFileDownloadFailed, release.Package.Slug, release.Version)
	}

	destPath := filepath.Join(a.workDir, "downloads", filepath.FromSlash(release.File()))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: could not create destination directory: %s", ErrFileOperationFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".*")
	if err != nil {
		return "", fmt.Errorf("%w: could not create temp file: %s", ErrFileOperationFailed, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err := a.download(ctx, release.SourceURL, tmp); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: could not close download: %s", ErrFileOperationFailed, err)
	}

	if err := validateZip(tmp.Name()); err != nil {
		return "", err
	}

	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return "", fmt.Errorf("%w: could not move download into place: %s", ErrFileOperationFailed, err)
	}

	a.log.Infof("archived %s@%s from %s", release.Package.Slug, release.Version, release.SourceURL)
	return destPath, nil
}

func (a *Archiver) download(ctx context.Context, url string, dst io.Writer) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFileDownloadFailed, err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFileDownloadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status code %d from %s", ErrFileDownloadFailed, resp.StatusCode, url)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("%w: %s", ErrFileDownloadFailed, err)
	}
	return nil
}

// validateZip checks the internal integrity of a downloaded archive by
// reading the central directory and every entry's checksummed body.
func validateZip(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFileArchiveInvalid, err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: entry %s: %s", ErrFileArchiveInvalid, f.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("%w: entry %s: %s", ErrFileArchiveInvalid, f.Name, err)
		}
		if strings.Contains(f.Name, "..") {
			return fmt.Errorf("%w: unsafe entry path %s", ErrFileArchiveInvalid, f.Name)
		}
	}
	return nil
}
