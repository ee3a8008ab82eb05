package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// FileCache stores one JSON file per layout entry below a directory. The
// colon-separated namespace of a key ("evocity:layout:<hash>") becomes the
// directory path, so scoped stores can share one directory:
//
//	<dir>/evocity/layout/3f/a09c...e1.json
type FileCache struct {
	dir string
	now func() time.Time
}

// NewFileCache opens (and creates) a file store rooted at dir.
func NewFileCache(dir string) (Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

// fileEntry is the on-disk form. Key is kept so a file can be traced back to
// its layout key.
type fileEntry struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var e fileEntry
	if json.Unmarshal(raw, &e) != nil || e.Key != key || c.expired(e) {
		// Corrupt, colliding or stale: drop it and report a miss.
		_ = os.Remove(path)
		return nil, false, nil
	}
	return e.Data, true, nil
}

// Set writes the entry through a temporary file, so concurrent precompute
// workers never observe a half-written layout.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	e := fileEntry{Key: key, Data: data}
	if ttl > 0 {
		e.ExpiresAt = c.now().Add(ttl)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *FileCache) Delete(ctx context.Context, key string) error {
	err := os.Remove(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Dir returns the store's root directory.
func (c *FileCache) Dir() string { return c.dir }

func (c *FileCache) Close() error { return nil }

func (c *FileCache) expired(e fileEntry) bool {
	return !e.ExpiresAt.IsZero() && c.now().After(e.ExpiresAt)
}

// path maps a key to <dir>/<namespace...>/<shard>/<rest>.json. The last key
// segment is hashed; the namespace segments are kept readable.
func (c *FileCache) path(key string) string {
	parts := strings.Split(key, ":")
	elems := []string{c.dir}
	for _, ns := range parts[:len(parts)-1] {
		elems = append(elems, segment(ns))
	}
	h := Hash([]byte(key))
	elems = append(elems, h[:2], h[2:]+".json")
	return filepath.Join(elems...)
}

// segment makes a namespace usable as a single directory name.
func segment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "_"
	}
	return s
}

var _ Cache = (*FileCache)(nil)

// ClearDir removes every stored layout below dir, prunes the emptied
// namespace directories and returns how many entries were deleted. A missing
// directory is an empty store.
func ClearDir(dir string) (int, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	count := 0
	var dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			if path != dir {
				dirs = append(dirs, path)
			}
		case filepath.Ext(path) == ".json" || strings.HasPrefix(d.Name(), ".tmp-"):
			if err := os.Remove(path); err != nil {
				return err
			}
			if filepath.Ext(path) == ".json" {
				count++
			}
		}
		return nil
	})

	// Deepest first, so parents are empty by the time they are visited.
	slices.Reverse(dirs)
	for _, d := range dirs {
		_ = os.Remove(d)
	}
	return count, err
}
