package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
)

func TestExportObjectKey(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	assert.Equal(t, "exports/admin/20260304T050607.008.csv", ExportObjectKey("admin", now))
	assert.True(t, strings.HasPrefix(ExportObjectKey("", now), ExportPrefix+"anonymous/"))
}

func TestIsNoSuchKey(t *testing.T) {
	assert.False(t, IsNoSuchKey(nil))
	assert.True(t, IsNoSuchKey(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, IsNoSuchKey(fmt.Errorf("wrap: %w", minio.ErrorResponse{Code: "NotFound"})))
	assert.True(t, IsNoSuchKey(errors.New("The specified key does not exist.")))
	assert.False(t, IsNoSuchKey(errors.New("access denied")))
}

func TestIsNoSuchBucket(t *testing.T) {
	assert.False(t, IsNoSuchBucket(nil))
	assert.True(t, IsNoSuchBucket(fmt.Errorf("list: %w", minio.ErrorResponse{Code: "NoSuchBucket"})))
	assert.False(t, IsNoSuchBucket(minio.ErrorResponse{Code: "NoSuchKey"}))
}

func TestExpiredExports(t *testing.T) {
	now := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	objects := []ObjectMeta{
		{Key: "exports/admin/old.csv", LastModified: now.Add(-48 * time.Hour)},
		{Key: "exports/admin/new.csv", LastModified: now.Add(-time.Hour)},
		{Key: "other/old.csv", LastModified: now.Add(-48 * time.Hour)},
	}
	assert.Equal(t, []string{"exports/admin/old.csv"}, ExpiredExports(objects, now.Add(-24*time.Hour)))
	assert.Empty(t, ExpiredExports(nil, now))
}

func TestParseBucketLookup(t *testing.T) {
	for in, want := range map[string]minio.BucketLookupType{
		"":       minio.BucketLookupAuto,
		" Path ": minio.BucketLookupPath,
		"dns":    minio.BucketLookupDNS,
	} {
		got, err := parseBucketLookup(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseBucketLookup("virtual")
	assert.Error(t, err)
}
