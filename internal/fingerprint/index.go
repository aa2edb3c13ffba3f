// Package fingerprint keeps the content hashes of local feed files for one
// sync invocation.
package fingerprint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	md5simd "github.com/minio/md5-simd"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("fingerprint index closed")

// Fingerprint is the content identity of one local file.
type Fingerprint struct {
	Path    string
	Hash    string
	Size    int64
	ModTime time.Time
}

// Index hashes files with MD5 and memoises results by (size, mtime) for the
// lifetime of a single invocation. Create one per run and Close it afterwards.
type Index struct {
	mu      sync.Mutex
	server  md5simd.Server
	entries map[string]Fingerprint
	closed  bool
}

// NewIndex starts an index backed by an md5-simd hashing server.
func NewIndex() *Index {
	return &Index{
		server:  md5simd.NewServer(),
		entries: make(map[string]Fingerprint),
	}
}

// Fingerprint returns the hash of path, reusing a cached value when the file
// size and modification time are unchanged. Safe for concurrent use.
func (ix *Index) Fingerprint(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}

	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return Fingerprint{}, ErrClosed
	}
	if fp, ok := ix.entries[path]; ok && fp.Size == info.Size() && fp.ModTime.Equal(info.ModTime()) {
		ix.mu.Unlock()
		return fp, nil
	}
	h := ix.server.NewHash()
	ix.mu.Unlock()
	defer h.Close()

	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, fmt.Errorf("hash %s: %w", path, err)
	}

	fp := Fingerprint{
		Path:    path,
		Hash:    hex.EncodeToString(h.Sum(nil)),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	ix.mu.Lock()
	ix.entries[path] = fp
	ix.mu.Unlock()
	return fp, nil
}

// Len returns the number of cached fingerprints.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}

// Snapshot copies the current hash set. Later updates to the index do not
// affect the returned value.
func (ix *Index) Snapshot() Snapshot {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make(map[string]Fingerprint, len(ix.entries))
	for k, v := range ix.entries {
		out[k] = v
	}
	return Snapshot{entries: out}
}

// Close releases the hashing server. The index cannot be used afterwards.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	ix.server.Close()
	return nil
}

// Snapshot is an immutable view of an Index.
type Snapshot struct {
	entries map[string]Fingerprint
}

// Get returns the fingerprint recorded for path.
func (s Snapshot) Get(path string) (Fingerprint, bool) {
	fp, ok := s.entries[path]
	return fp, ok
}

// Len returns the number of recorded fingerprints.
func (s Snapshot) Len() int { return len(s.entries) }
