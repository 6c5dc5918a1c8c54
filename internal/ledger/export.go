package ledger

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JonMunkholm/crmwriter/internal/logging"
)

// ExportConfig locates the bucket the finished ledger is uploaded to.
type ExportConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Exporter uploads ledger files to <bucket>/<prefix>/<run_id>/.
type Exporter struct {
	store  objectStore
	bucket string
	prefix string
}

// NewExporter creates an Exporter backed by a MinIO/S3 client.
func NewExporter(cfg ExportConfig) (*Exporter, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("export endpoint and bucket are required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("export credentials are required")
	}

	// Accept either host:port or a URL
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return newExporter(client, cfg.Bucket, cfg.Prefix), nil
}

func newExporter(store objectStore, bucket, prefix string) *Exporter {
	return &Exporter{store: store, bucket: bucket, prefix: prefix}
}

// ObjectKey returns the key a file is stored under for a run.
func (e *Exporter) ObjectKey(runID, file string) string {
	return path.Join(e.prefix, runID, filepath.Base(file))
}

// Export uploads each file. It stops at the first failure.
func (e *Exporter) Export(ctx context.Context, runID string, files ...string) error {
	exists, err := e.store.BucketExists(ctx, e.bucket)
	if err != nil {
		return fmt.Errorf("check export bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("export bucket %s does not exist", e.bucket)
	}

	for _, file := range files {
		if err := e.upload(ctx, runID, file); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) upload(ctx context.Context, runID, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", file, err)
	}

	key := e.ObjectKey(runID, file)
	contentType := "text/csv"
	if filepath.Ext(file) == ManifestSuffix {
		contentType = "application/json"
	}

	if _, err := e.store.PutObject(ctx, e.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	logging.FromContext(ctx).Info("exported ledger file", "bucket", e.bucket, "key", key, "bytes", info.Size())
	return nil
}
