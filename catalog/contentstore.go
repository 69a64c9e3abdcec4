/*
	Photoledger
	Copyright (c) 2024 The Photoledger Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package catalog

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// DirCache remembers which shard directories are known to exist, so that
// hot paths can skip the shard locks and directory creation. It is only an
// optimization: a cold, empty, or stale cache still results in correct
// directories.
type DirCache struct {
	mu    sync.RWMutex
	known map[string]struct{}
}

// NewDirCache returns an empty cache.
func NewDirCache() *DirCache {
	return &DirCache{known: make(map[string]struct{})}
}

// Has reports whether dir was recorded as existing.
func (c *DirCache) Has(dir string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.known[dir]
	return ok
}

// Add records that dir exists.
func (c *DirCache) Add(dir string) {
	c.mu.Lock()
	c.known[dir] = struct{}{}
	c.mu.Unlock()
}

// Forget drops the record for dir.
func (c *DirCache) Forget(dir string) {
	c.mu.Lock()
	delete(c.known, dir)
	c.mu.Unlock()
}

// ContentStore lays out item bytes on disk in a two-level sharded tree
// keyed by the last two characters of the item ID.
type ContentStore struct {
	baseDir    string
	cache      *DirCache
	shardLocks *mapMutex
}

// NewContentStore returns a content store rooted at baseDir. If cache is
// nil, the store uses a private one.
func NewContentStore(baseDir string, cache *DirCache) *ContentStore {
	if cache == nil {
		cache = NewDirCache()
	}
	return &ContentStore{
		baseDir:    baseDir,
		cache:      cache,
		shardLocks: newMapMutex(),
	}
}

// BaseDir returns the root of the store.
func (cs *ContentStore) BaseDir() string { return cs.baseDir }

// shardPath returns the shard directory for itemID relative to the base
// dir, one level for each of the last two characters of the ID. IDs
// shorter than two characters are left-padded with underscores.
func shardPath(itemID string) (string, error) {
	if itemID == "" {
		return "", errors.New("empty item ID")
	}
	if !utf8.ValidString(itemID) || strings.ContainsAny(itemID, `/\`) {
		return "", fmt.Errorf("invalid item ID %q", itemID)
	}
	runes := []rune(itemID)
	for len(runes) < 2 {
		runes = append([]rune{'_'}, runes...)
	}
	n := len(runes)
	return filepath.Join(string(runes[n-2]), string(runes[n-1])), nil
}

// ResolveDir returns the shard directory for itemID, creating it if it
// does not exist yet.
func (cs *ContentStore) ResolveDir(itemID string) (string, error) {
	rel, err := shardPath(itemID)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(cs.baseDir, rel)

	if cs.cache.Has(dir) {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
		// removed behind our back
		cs.cache.Forget(dir)
	}

	return dir, cs.makeShard(rel, dir)
}

func (cs *ContentStore) makeShard(rel, dir string) error {
	cs.shardLocks.Lock(rel)
	defer cs.shardLocks.Unlock(rel)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating shard directory %s: %w", dir, err)
	}
	cs.cache.Add(dir)
	return nil
}

// Write stores the content of r at dest, a path returned by
// DestinationPath, and returns the hex-encoded BLAKE3 checksum of the
// content and its size. If the shard directory disappeared since dest
// was resolved, it is created again and the write is retried once.
func (cs *ContentStore) Write(dest string, r io.Reader) (checksum string, n int64, err error) {
	checksum, n, err = WriteFileAtomic(dest, r)
	if err == nil || n > 0 || !errors.Is(err, fs.ErrNotExist) {
		return checksum, n, err
	}

	dir := filepath.Dir(dest)
	rel, relErr := filepath.Rel(cs.baseDir, dir)
	if relErr != nil || strings.HasPrefix(rel, "..") {
		return "", 0, err
	}
	cs.cache.Forget(dir)
	if mkErr := cs.makeShard(rel, dir); mkErr != nil {
		return "", 0, mkErr
	}
	return WriteFileAtomic(dest, r)
}

// DestinationPath returns where the bytes of itemID belong; the file name
// is the item ID plus the extension of its original file name.
func (cs *ContentStore) DestinationPath(itemID, originalFileName string) (string, error) {
	dir, err := cs.ResolveDir(itemID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, itemID+filepath.Ext(originalFileName)), nil
}

// CopyIn copies the file at src into the store as the bytes of itemID.
// The source file is left in place. It returns the destination path and
// the hex-encoded BLAKE3 checksum of the content.
func (cs *ContentStore) CopyIn(src, itemID, fileName string) (dest string, checksum string, err error) {
	dest, err = cs.DestinationPath(itemID, fileName)
	if err != nil {
		return "", "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", "", fmt.Errorf("opening source file: %w", err)
	}
	defer in.Close()

	checksum, _, err = cs.Write(dest, in)
	if err != nil {
		return "", "", err
	}
	return dest, checksum, nil
}

// WriteFileAtomic streams r into a temporary ".part" file next to dest and
// renames it into place once everything was written. It returns the
// hex-encoded BLAKE3 checksum and the number of bytes written.
func WriteFileAtomic(dest string, r io.Reader) (checksum string, n int64, err error) {
	partPath := dest + ".part"

	part, err := os.Create(partPath)
	if err != nil {
		return "", 0, fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			part.Close()
			os.Remove(partPath)
		}
	}()

	h := blake3.New()
	n, err = io.Copy(io.MultiWriter(part, h), r)
	if err != nil {
		return "", n, fmt.Errorf("writing %s: %w", partPath, err)
	}
	if err = part.Sync(); err != nil {
		return "", n, fmt.Errorf("syncing %s: %w", partPath, err)
	}
	if err = part.Close(); err != nil {
		return "", n, fmt.Errorf("closing %s: %w", partPath, err)
	}
	if err = os.Rename(partPath, dest); err != nil {
		return "", n, fmt.Errorf("moving %s into place: %w", partPath, err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// RemoveFiles removes every file in paths. Each removal is independent of
// the others; files that are already gone are not failures.
func (cs *ContentStore) RemoveFiles(paths []string) []ItemFailure {
	var failures []ItemFailure
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failures = append(failures, ItemFailure{Path: p, Err: err})
		}
	}
	return failures
}

// fileExists returns true if there is a regular file at path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
