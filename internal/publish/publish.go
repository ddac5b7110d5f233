// Package publish mirrors a finished run folder into an S3-compatible
// bucket.
package publish

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the subset of *minio.Client the publisher uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher uploads run folders.
type Publisher struct {
	store  ObjectStore
	cfg    Config
	logger *slog.Logger
}

// Summary reports what Mirror uploaded.
type Summary struct {
	Bucket  string
	Prefix  string
	Objects int
	Bytes   int64
}

// New connects to the store described by cfg.
func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("publish config: %w", err)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	return NewWithStore(client, cfg, logger), nil
}

// NewWithStore creates a publisher over an existing store.
func NewWithStore(store ObjectStore, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, cfg: cfg, logger: logger}
}

// ObjectKey is the key a run file is stored under: prefix/runID/rel with
// forward slashes.
func ObjectKey(prefix, runID, rel string) string {
	parts := []string{}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, runID, filepath.ToSlash(rel))
	return path.Join(parts...)
}

// Mirror uploads every file under root, creating the bucket if needed.
func (p *Publisher) Mirror(ctx context.Context, root, runID string) (Summary, error) {
	sum := Summary{Bucket: p.cfg.Bucket, Prefix: ObjectKey(p.cfg.Prefix, runID, "")}
	if err := p.ensureBucket(ctx); err != nil {
		return sum, err
	}

	err := filepath.WalkDir(root, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, file)
		if err != nil {
			return err
		}
		key := ObjectKey(p.cfg.Prefix, runID, rel)
		info, err := p.store.FPutObject(ctx, p.cfg.Bucket, key, file, minio.PutObjectOptions{
			ContentType: ContentType(file),
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		sum.Objects++
		sum.Bytes += info.Size
		p.logger.Debug("uploaded", "key", key, "size", humanize.Bytes(uint64(info.Size)))
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("mirror %s: %w", filepath.Base(root), err)
	}
	p.logger.Info("run published",
		"bucket", sum.Bucket,
		"prefix", sum.Prefix,
		"objects", sum.Objects,
		"size", humanize.Bytes(uint64(sum.Bytes)))
	return sum, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	exists, err := p.store.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := p.store.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", p.cfg.Bucket, err)
	}
	return nil
}

// ContentType maps run artifact extensions onto MIME types.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".geojson":
		return "application/geo+json"
	case ".csv":
		return "text/csv"
	case ".jsonl":
		return "application/x-ndjson"
	case ".db":
		return "application/vnd.sqlite3"
	}
	return "application/octet-stream"
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
