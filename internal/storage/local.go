package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Local stores artifacts on the local filesystem under a root
// directory. Moves within the root use rename, so readers never see a
// partially written file.
type Local struct {
	log  *logrus.Logger
	root string
}

func NewLocal(log *logrus.Logger, root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("could not create storage root: %w", err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Local{log: log, root: absRoot}, nil
}

// absPath resolves a relative storage path and rejects traversal out
// of the root.
func (l *Local) absPath(file string) (string, error) {
	clean := path.Clean("/" + file)
	if clean == "/" {
		return "", fmt.Errorf("empty storage path")
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

func (l *Local) Checksum(ctx context.Context, algorithm, file string) (string, error) {
	p, err := l.absPath(file)
	if err != nil {
		return "", err
	}
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, file)
	}
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (l *Local) Exists(_ context.Context, file string) bool {
	p, err := l.absPath(file)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func (l *Local) ListFiles(_ context.Context, prefix string) ([]string, error) {
	start, err := l.absPath(prefix)
	if prefix == "" || prefix == "." {
		start, err = l.root, nil
	}
	if err != nil {
		return nil, err
	}
	files := make([]string, 0)
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) && p == start {
			return filepath.SkipAll
		}
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (l *Local) Move(_ context.Context, sourceAbsPath, destRelPath string) bool {
	dest, err := l.absPath(destRelPath)
	if err != nil {
		l.log.Errorf("invalid storage path %s: %v", destRelPath, err)
		return false
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		l.log.Errorf("could not create storage directory for %s: %v", destRelPath, err)
		return false
	}
	if err := os.Rename(sourceAbsPath, dest); err == nil {
		return true
	} else if !isCrossDevice(err) {
		l.log.Errorf("could not move %s into storage: %v", destRelPath, err)
		return false
	}
	// Source lives on a different filesystem. Copy next to the
	// destination first so the final rename stays atomic.
	if err := l.copyThenRename(sourceAbsPath, dest); err != nil {
		l.log.Errorf("could not move %s into storage: %v", destRelPath, err)
		return false
	}
	return true
}

func (l *Local) copyThenRename(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, in); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	return os.Remove(src)
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr) && strings.Contains(linkErr.Err.Error(), "cross-device")
}

func (l *Local) Delete(_ context.Context, file string) bool {
	p, err := l.absPath(file)
	if err != nil {
		return false
	}
	if err := os.Remove(p); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.log.Errorf("could not delete %s: %v", file, err)
		}
		return false
	}
	return true
}

func (l *Local) Send(_ context.Context, w http.ResponseWriter, file string) error {
	p, err := l.absPath(file)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, file)
	}
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	setDownloadHeaders(w, path.Base(file), info.Size())
	_, err = io.Copy(w, f)
	return err
}
