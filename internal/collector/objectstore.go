package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// ObjectStoreConfig configures an S3-compatible source.
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Validate checks the required fields.
func (c ObjectStoreConfig) Validate() error {
	var errs []error
	switch {
	case c.Endpoint == "":
		errs = append(errs, errors.New("endpoint is required"))
	case strings.Contains(c.Endpoint, "://"):
		errs = append(errs, fmt.Errorf("endpoint %q must be host[:port] without a scheme; use use_ssl for https", c.Endpoint))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	return errors.Join(errs...)
}

// ObjectLister lists objects in a bucket. *minio.Client satisfies it.
type ObjectLister interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// ObjectStoreCollector turns every object under a bucket prefix into an asset.
type ObjectStoreCollector struct {
	name   string
	cfg    ObjectStoreConfig
	client ObjectLister
	logger *slog.Logger
}

// NewObjectStoreCollector connects a minio client for cfg.
func NewObjectStoreCollector(name string, cfg ObjectStoreConfig, logger *slog.Logger) (*ObjectStoreCollector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("source %s: failed to create minio client: %w", name, err)
	}
	return NewObjectStoreCollectorWithClient(name, cfg, client, logger), nil
}

// NewObjectStoreCollectorWithClient uses an existing lister.
func NewObjectStoreCollectorWithClient(name string, cfg ObjectStoreConfig, client ObjectLister, logger *slog.Logger) *ObjectStoreCollector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ObjectStoreCollector{name: name, cfg: cfg, client: client, logger: logger}
}

// Name returns the source name.
func (c *ObjectStoreCollector) Name() string { return c.name }

// Collect lists the objects under the configured prefix.
func (c *ObjectStoreCollector) Collect(ctx context.Context) ([]*core.Asset, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := c.client.ListObjects(ctx, c.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    c.cfg.Prefix,
		Recursive: true,
	})

	var assets []*core.Asset
	for obj := range objects {
		if obj.Err != nil {
			return nil, fmt.Errorf("source %s: failed to list s3://%s/%s: %w", c.name, c.cfg.Bucket, c.cfg.Prefix, obj.Err)
		}
		if obj.Key == "" || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		assets = append(assets, c.objectAsset(obj))
	}
	c.logger.Debug("listed objects", "bucket", c.cfg.Bucket, "prefix", c.cfg.Prefix, "objects", len(assets))
	return assets, nil
}

func (c *ObjectStoreCollector) objectAsset(obj minio.ObjectInfo) *core.Asset {
	return &core.Asset{
		ID:   core.NewAssetID(c.name, c.cfg.Bucket, obj.Key),
		Type: core.AssetObject,
		Name: path.Base(obj.Key),
		Technical: core.TechnicalMetadata{
			Source:      c.name,
			Location:    "s3://" + c.cfg.Bucket + "/" + obj.Key,
			Format:      FormatOf(obj.Key),
			SizeBytes:   obj.Size,
			Checksum:    strings.Trim(obj.ETag, `"`),
			ContentType: obj.ContentType,
		},
		Operational: core.OperationalMetadata{
			UpdatedAt: obj.LastModified,
		},
	}
}
