package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// md5MetaKey is stored as x-amz-meta-md5 so multipart uploads keep a comparable hash.
const md5MetaKey = "md5"

// S3Client implements Store using the minio-go SDK.
type S3Client struct {
	client *minio.Client
	cfg    Config
}

// NewS3Client creates a MinIO/S3 client bound to cfg.Bucket.
func NewS3Client(cfg Config) (*S3Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, wrapError(CodeEndpointUnreachable, false, fmt.Errorf("invalid endpoint URL: %w", err))
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}
	useSSL := cfg.UseSSL
	if u.Scheme == "https" {
		useSSL = true
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("failed to create minio client: %w", err))
	}
	return &S3Client{client: client, cfg: cfg}, nil
}

func (s *S3Client) Bucket() string { return s.cfg.Bucket }

func (s *S3Client) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.cfg.Bucket); err != nil {
		return classifyMinioError(err)
	}
	return nil
}

func (s *S3Client) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return classifyMinioError(err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return classifyMinioError(err)
	}
	return nil
}

func (s *S3Client) Put(ctx context.Context, key string, r io.Reader, size int64, md5Hex string) (string, error) {
	if key == "" {
		return "", wrapError(CodeInvalidKey, false, fmt.Errorf("object key is required"))
	}
	opts := minio.PutObjectOptions{ContentType: contentType(key)}
	if md5Hex != "" {
		opts.UserMetadata = map[string]string{md5MetaKey: md5Hex}
	}
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, r, size, opts)
	if err != nil {
		return "", classifyMinioError(err)
	}
	if md5Hex != "" {
		if etag := plainETag(info.ETag); etag != "" && !strings.EqualFold(etag, md5Hex) {
			return "", wrapError(CodeChecksumMismatch, true, fmt.Errorf("%s: expected md5 %s, stored etag %s", key, md5Hex, etag))
		}
		return strings.ToLower(md5Hex), nil
	}
	return plainETag(info.ETag), nil
}

func (s *S3Client) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, classifyMinioError(err)
	}
	return &ObjectInfo{
		Key:          key,
		Hash:         objectHash(info),
		Size:         info.Size,
		LastModified: info.LastModified.UTC(),
	}, nil
}

func (s *S3Client) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, wrapError(CodeInvalidKey, false, fmt.Errorf("object key is required"))
	}
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyMinioError(err)
	}
	return data, nil
}

func (s *S3Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    strings.TrimPrefix(prefix, "/"),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, classifyMinioError(obj.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Hash:         plainETag(obj.ETag),
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC(),
		})
	}
	return objects, nil
}

// objectHash prefers the recorded md5 and falls back to a single-part ETag.
func objectHash(info minio.ObjectInfo) string {
	for k, v := range info.UserMetadata {
		if strings.EqualFold(k, md5MetaKey) || strings.EqualFold(k, "X-Amz-Meta-Md5") {
			return strings.ToLower(v)
		}
	}
	if v := info.Metadata.Get("X-Amz-Meta-Md5"); v != "" {
		return strings.ToLower(v)
	}
	return plainETag(info.ETag)
}

// plainETag returns the ETag when it is a bare MD5; multipart ETags carry a "-N" suffix.
func plainETag(etag string) string {
	etag = strings.Trim(etag, `"`)
	if etag == "" || strings.Contains(etag, "-") {
		return ""
	}
	return strings.ToLower(etag)
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".csv"), strings.HasSuffix(key, ".txt"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// classifyMinioError converts minio-go errors to the structured Error type.
func classifyMinioError(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return wrapError(CodeCancelled, false, err)
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchBucket":
		return wrapError(CodeBucketNotFound, false, err)
	case "NoSuchKey", "NotFound":
		return wrapError(CodeObjectNotFound, false, err)
	case "AccessDenied":
		return wrapError(CodePermissionDenied, false, err)
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		return wrapError(CodeAuthInvalid, false, err)
	case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout":
		return wrapError(CodeTransferFailed, true, err)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return wrapError(CodeObjectNotFound, false, err)
	case http.StatusUnauthorized:
		return wrapError(CodeAuthInvalid, false, err)
	case http.StatusForbidden:
		return wrapError(CodePermissionDenied, false, err)
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "no such bucket") {
		return wrapError(CodeBucketNotFound, false, err)
	}
	if strings.Contains(errStr, "no such key") || strings.Contains(errStr, "does not exist") {
		return wrapError(CodeObjectNotFound, false, err)
	}
	if strings.Contains(errStr, "access denied") || strings.Contains(errStr, "permission") {
		return wrapError(CodePermissionDenied, false, err)
	}
	if strings.Contains(errStr, "invalid access key") || strings.Contains(errStr, "signature") || strings.Contains(errStr, "authentication") {
		return wrapError(CodeAuthInvalid, false, err)
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline") {
		return wrapError(CodeTimeout, true, err)
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "unreachable") || strings.Contains(errStr, "no such host") {
		return wrapError(CodeEndpointUnreachable, true, err)
	}
	return wrapError(CodeTransferFailed, true, err)
}
