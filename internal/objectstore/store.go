// Package objectstore provides the remote object store used for raw feed files
// and report artifacts, backed by MinIO/S3 or a local directory.
package objectstore

import (
	"context"
	"io"
	"strings"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Hash         string    `json:"hash"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the minimal object store surface used by sync, load and reporting.
// Implementations are bound to a single bucket.
type Store interface {
	Ping(ctx context.Context) error
	EnsureBucket(ctx context.Context) error
	// Put streams size bytes from r to key and returns the stored MD5 (hex).
	// When md5Hex is set it is recorded with the object and verified where
	// the backend allows.
	Put(ctx context.Context, key string, r io.Reader, size int64, md5Hex string) (string, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Bucket() string
}

// JoinKey joins key segments with '/' and drops empty parts.
func JoinKey(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
