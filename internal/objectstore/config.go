package objectstore

import (
	"fmt"
	"net/url"
)

// Config captures MinIO/S3 connection settings.
type Config struct {
	Endpoint  string
	Region    string
	UseSSL    bool
	AccessKey string
	SecretKey string
	Bucket    string
}

// Configured reports whether enough is set to talk to a real endpoint.
func (c Config) Configured() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Validate enforces required fields.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return wrapError(CodeEndpointUnreachable, false, fmt.Errorf("endpoint is required"))
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		return wrapError(CodeEndpointUnreachable, false, fmt.Errorf("invalid endpoint: %w", err))
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return wrapError(CodeAuthInvalid, false, fmt.Errorf("access key and secret key are required"))
	}
	if c.Bucket == "" {
		return wrapError(CodeBucketNotFound, false, fmt.Errorf("bucket is required"))
	}
	return nil
}

// Open returns an S3 client when cfg is configured and a LocalStore rooted at
// localRoot otherwise.
func Open(cfg Config, localRoot string) (Store, error) {
	if cfg.Configured() {
		return NewS3Client(cfg)
	}
	return NewLocalStore(localRoot, cfg.Bucket), nil
}
