// Package imagecache stores normalized images for one session. Each session
// gets its own directory, removed when the session closes.
package imagecache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user-none/slidefx/logging"
)

const (
	sessionsDir = "sessions"

	// StaleAfter is the age past which a leftover session directory is
	// removed when a new cache opens.
	StaleAfter = 24 * time.Hour

	keyLen = 20
	ext    = ".png"
)

var ErrClosed = errors.New("image cache closed")

// Asset identifies a source image by location, size and modification time.
type Asset struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Stat identifies a file on the local filesystem.
func Stat(path string) (Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return Asset{Path: abs, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// StatFS identifies a file inside fsys. prefix distinguishes assets from
// different filesystems that share a name.
func StatFS(fsys fs.FS, prefix, name string) (Asset, error) {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Path: prefix + ":" + name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Key derives the cache key for an asset rendered at aspect and tier.
func Key(a Asset, aspect float64, tier string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%s|%s", a.Path, a.Size, a.ModTime.UnixNano(),
		strconv.FormatFloat(aspect, 'g', -1, 64), tier)
	return hex.EncodeToString(h.Sum(nil))[:keyLen]
}

// Cache is a session-scoped directory of normalized images. Safe for
// concurrent use.
type Cache struct {
	mu     sync.Mutex
	id     string
	dir    string
	closed bool
}

// Open creates a new session directory under root. Session directories left
// behind by earlier runs are swept first.
func Open(root string) (*Cache, error) {
	if n := sweep(filepath.Join(root, sessionsDir), time.Now()); n > 0 {
		logging.Logger().Info("removed stale cache sessions", "count", n)
	}

	id := uuid.New().String()
	dir := filepath.Join(root, sessionsDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	logging.Logger().Debug("cache session opened", "dir", dir)
	return &Cache{id: id, dir: dir}, nil
}

// ID returns the session id.
func (c *Cache) ID() string { return c.id }

// Dir returns the session directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns where the image for key is stored. The file may not exist.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key+ext)
}

// Lookup returns the path of the cached image for key if it exists.
func (c *Cache) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", false
	}
	p := c.Path(key)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ext {
			n++
		}
	}
	return n
}

// Close deletes the session directory. Calling it again is a no-op.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to remove cache directory: %w", err)
	}
	logging.Logger().Debug("cache session closed", "dir", c.dir)
	return nil
}

// sweep removes session directories last modified before now-StaleAfter and
// returns how many were removed.
func sweep(sessions string, now time.Time) int {
	entries, err := os.ReadDir(sessions)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < StaleAfter {
			continue
		}
		if err := os.RemoveAll(filepath.Join(sessions, e.Name())); err != nil {
			logging.Logger().Warn("failed to remove stale cache session", "name", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed
}
