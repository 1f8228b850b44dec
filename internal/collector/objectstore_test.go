package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

type fakeLister struct {
	objects []minio.ObjectInfo
	bucket  string
	opts    minio.ListObjectsOptions
}

func (f *fakeLister) ListObjects(_ context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.bucket, f.opts = bucket, opts
	ch := make(chan minio.ObjectInfo, len(f.objects))
	for _, o := range f.objects {
		ch <- o
	}
	close(ch)
	return ch
}

func TestObjectStoreConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ObjectStoreConfig
		wantErr []string
	}{
		{name: "valid", cfg: ObjectStoreConfig{Endpoint: "minio:9000", Bucket: "raw"}},
		{name: "missing everything", cfg: ObjectStoreConfig{}, wantErr: []string{"endpoint is required", "bucket is required"}},
		{name: "scheme", cfg: ObjectStoreConfig{Endpoint: "https://s3.amazonaws.com", Bucket: "raw"}, wantErr: []string{"without a scheme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestObjectStoreCollector_Collect(t *testing.T) {
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{objects: []minio.ObjectInfo{
		{Key: "landing/", Size: 0},
		{Key: "landing/orders.csv", Size: 120, ETag: `"abc123"`, ContentType: "text/csv", LastModified: modified},
		{Key: "landing/img/Logo.PNG", Size: 9, ContentType: "image/png"},
	}}
	cfg := ObjectStoreConfig{Endpoint: "minio:9000", Bucket: "raw", Prefix: "landing/"}

	c := NewObjectStoreCollectorWithClient("lake", cfg, lister, nil)
	assets, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "raw", lister.bucket)
	assert.Equal(t, "landing/", lister.opts.Prefix)
	assert.True(t, lister.opts.Recursive)

	require.Len(t, assets, 2)
	orders := assets[0]
	assert.Equal(t, "lake.raw.landing_orders_csv", orders.ID)
	assert.Equal(t, core.AssetObject, orders.Type)
	assert.Equal(t, "orders.csv", orders.Name)
	assert.Equal(t, "s3://raw/landing/orders.csv", orders.Technical.Location)
	assert.Equal(t, core.FormatCSV, orders.Technical.Format)
	assert.EqualValues(t, 120, orders.Technical.SizeBytes)
	assert.Equal(t, "abc123", orders.Technical.Checksum)
	assert.Equal(t, "text/csv", orders.Technical.ContentType)
	assert.Equal(t, modified, orders.Operational.UpdatedAt)
	require.NoError(t, orders.Validate())

	logo := assets[1]
	assert.Equal(t, core.FormatImage, logo.Technical.Format)
	assert.Equal(t, "Logo.PNG", logo.Name)
}

func TestObjectStoreCollector_ListError(t *testing.T) {
	lister := &fakeLister{objects: []minio.ObjectInfo{{Err: errors.New("access denied")}}}
	c := NewObjectStoreCollectorWithClient("lake", ObjectStoreConfig{Endpoint: "minio:9000", Bucket: "raw"}, lister, nil)

	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
