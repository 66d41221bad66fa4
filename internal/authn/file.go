package authn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileRepository keeps API keys in a JSON file so the admin CLI and
// the server share one key set. Lookups read from memory; mutations
// rewrite the file through a temp-file rename.
type FileRepository struct {
	path string

	mu   sync.RWMutex
	keys []*Key
}

func NewFileRepository(path string) (*FileRepository, error) {
	r := &FileRepository{path: path}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRepository) load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.keys = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read key file: %w", err)
	}
	var keys []*Key
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("could not parse key file: %w", err)
	}
	r.keys = keys
	return nil
}

func (r *FileRepository) save() error {
	data, err := json.MarshalIndent(r.keys, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*")
	if err != nil {
		return fmt.Errorf("could not write key file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("could not write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write key file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("could not write key file: %w", err)
	}
	return nil
}

func (r *FileRepository) FindByToken(token string) (*Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return NewMemoryRepository(r.keys...).FindByToken(token)
}

// List returns a copy of all keys.
func (r *FileRepository) List() []*Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Key, len(r.keys))
	copy(out, r.keys)
	return out
}

// Add creates a key for a user with a fresh token and persists it.
func (r *FileRepository) Add(user, name string) (*Key, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	key := &Key{
		Token:     token,
		User:      user,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	if err := r.save(); err != nil {
		r.keys = r.keys[:len(r.keys)-1]
		return nil, err
	}
	return key, nil
}

// Revoke deletes the key with the given token. It reports whether a
// key was removed.
func (r *FileRepository) Revoke(token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, k := range r.keys {
		if k.Token == token {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			return true, r.save()
		}
	}
	return false, nil
}
