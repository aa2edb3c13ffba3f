package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore persists objects on disk to mimic MinIO behaviour for dev runs and tests.
type LocalStore struct {
	root   string
	bucket string
}

// NewLocalStore creates a local object store rooted at root/bucket.
func NewLocalStore(root, bucket string) *LocalStore {
	if root == "" {
		root = filepath.Join(os.TempDir(), "keiba-objects")
	}
	if bucket == "" {
		bucket = "keiba-raw-data"
	}
	_ = os.MkdirAll(root, 0o755)
	return &LocalStore{root: root, bucket: sanitizePath(bucket)}
}

func (s *LocalStore) Bucket() string { return s.bucket }

func (s *LocalStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(s.root, 0o755)
}

func (s *LocalStore) EnsureBucket(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.bucketPath(), 0o755); err != nil {
		return wrapError(CodePermissionDenied, false, err)
	}
	return nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, md5Hex string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrapError(CodeCancelled, false, err)
	}
	fullPath, err := s.objectPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", wrapError(CodePermissionDenied, false, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", wrapError(CodeTransferFailed, true, err)
	}
	defer os.Remove(tmp.Name())

	h := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", wrapError(CodeTransferFailed, true, err)
	}
	if size >= 0 && n != size {
		return "", wrapError(CodeTransferFailed, true, fmt.Errorf("short write for %s: %d of %d bytes", key, n, size))
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if md5Hex != "" && !strings.EqualFold(md5Hex, sum) {
		return "", wrapError(CodeChecksumMismatch, true, fmt.Errorf("%s: expected md5 %s, wrote %s", key, md5Hex, sum))
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", wrapError(CodeTransferFailed, true, err)
	}
	return sum, nil
}

func (s *LocalStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapError(CodeCancelled, false, err)
	}
	fullPath, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapError(CodeObjectNotFound, false, err)
		}
		return nil, wrapError(CodeTransferFailed, true, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, wrapError(CodeTransferFailed, true, err)
	}
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, wrapError(CodeTransferFailed, true, err)
	}
	return &ObjectInfo{
		Key:          key,
		Hash:         hex.EncodeToString(h.Sum(nil)),
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
	}, nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapError(CodeCancelled, false, err)
	}
	fullPath, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapError(CodeObjectNotFound, false, err)
		}
		return nil, wrapError(CodeTransferFailed, true, err)
	}
	return data, nil
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapError(CodeCancelled, false, err)
	}
	base := s.bucketPath()
	root := filepath.Join(base, filepath.FromSlash(strings.Trim(prefix, "/")))

	var objects []ObjectInfo
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return relErr
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		objects = append(objects, ObjectInfo{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, wrapError(CodeTransferFailed, true, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *LocalStore) bucketPath() string {
	return filepath.Join(s.root, s.bucket)
}

func (s *LocalStore) objectPath(key string) (string, error) {
	clean := strings.Trim(key, "/")
	if clean == "" || strings.Contains(clean, "..") {
		return "", wrapError(CodeInvalidKey, false, fmt.Errorf("invalid object key %q", key))
	}
	return filepath.Join(s.bucketPath(), filepath.FromSlash(clean)), nil
}

func sanitizePath(p string) string {
	p = strings.ReplaceAll(p, "..", "")
	p = strings.ReplaceAll(p, string(os.PathSeparator), "_")
	return strings.Trim(p, "/")
}
