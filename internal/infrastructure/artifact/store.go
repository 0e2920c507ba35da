// Package artifact stores deployed HTML artifacts in an S3-compatible object
// store.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

const scheme = "s3://"

// Config configures the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Validate checks required fields.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("artifact endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("artifact bucket is required")
	}
	return nil
}

// Store implements ArtifactStore on MinIO. Artifact URLs have the form
// s3://<bucket>/<key>; plain http(s) URLs recorded by older deployments are
// fetched directly.
type Store struct {
	client *minio.Client
	bucket string
	region string
	http   *http.Client
	logger *slog.Logger
}

// Ensure Store implements the interface.
var _ ports.ArtifactStore = (*Store)(nil)

// New creates a Store. It does not contact the server.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default().With("component", "artifact_store"),
	}, nil
}

// Ping reports whether the artifact bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

// EnsureBucket creates the artifact bucket when missing.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("created artifact bucket", "bucket", s.bucket)
	return nil
}

// Put uploads body under key.
func (s *Store) Put(ctx context.Context, key string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "text/html; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return scheme + s.bucket + "/" + key, nil
}

// Fetch downloads an artifact. A missing object yields nil.
func (s *Store) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return s.fetchHTTP(ctx, url)
	}

	bucket, key, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return data, nil
}

func (s *Store) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ParseURL splits an s3:// artifact URL into bucket and key.
func ParseURL(url string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(url, scheme)
	if !ok {
		return "", "", fmt.Errorf("unsupported artifact url %q", url)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed artifact url %q", url)
	}
	return bucket, key, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
