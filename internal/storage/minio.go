// Package storage 封装 MinIO，用于保存向量集导出文件并生成限时下载链接。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vectorAdmin/internal/config"
)

// ExportPrefix 导出文件的对象前缀。
const ExportPrefix = "exports/"

// Client 导出文件存储。objects 使用内部地址读写，signer 使用公网地址签发链接，
// 两者未分开配置时是同一个客户端。
type Client struct {
	objects *minio.Client
	signer  *minio.Client
	bucket  string
}

// ObjectMeta 导出文件的对象信息。
type ObjectMeta struct {
	Key          string
	Size         int64
	LastModified time.Time
}

func parseBucketLookup(v string) (minio.BucketLookupType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "auto":
		return minio.BucketLookupAuto, nil
	case "dns":
		return minio.BucketLookupDNS, nil
	case "path":
		return minio.BucketLookupPath, nil
	}
	return 0, fmt.Errorf("invalid minio bucket lookup %q", v)
}

// NewClient 连接 MinIO 并确认导出 Bucket 可用，按配置自动创建。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	lookup, err := parseBucketLookup(cfg.BucketLookup)
	if err != nil {
		return nil, err
	}
	creds := credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	dial := func(endpoint string, secure bool) (*minio.Client, error) {
		return minio.New(endpoint, &minio.Options{
			Creds:        creds,
			Secure:       secure,
			Region:       cfg.Region,
			BucketLookup: lookup,
		})
	}

	objects, err := dial(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	signer := objects
	if cfg.PublicEndpoint != "" {
		public, err := url.Parse(cfg.PublicEndpoint)
		if err != nil {
			return nil, fmt.Errorf("parse minio public endpoint: %w", err)
		}
		if public.Host == "" {
			return nil, fmt.Errorf("minio public endpoint %q has no host", cfg.PublicEndpoint)
		}
		if signer, err = dial(public.Host, public.Scheme == "https"); err != nil {
			return nil, fmt.Errorf("init public minio client: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ensureBucket(ctx, objects, cfg); err != nil {
		return nil, err
	}
	return &Client{objects: objects, signer: signer, bucket: cfg.Bucket}, nil
}

func ensureBucket(ctx context.Context, mc *minio.Client, cfg config.MinIOConfig) error {
	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	switch {
	case err != nil:
		return fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	case exists:
		return nil
	case !cfg.AutoCreateBucket:
		return fmt.Errorf("bucket %q does not exist and auto create is off", cfg.Bucket)
	}
	if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
	}
	return nil
}

// ExportObjectKey 生成导出文件的对象名：exports/<用户>/<时间戳>.csv。
func ExportObjectKey(username string, now time.Time) string {
	if username == "" {
		username = "anonymous"
	}
	return ExportPrefix + username + "/" + now.UTC().Format("20060102T150405.000") + ".csv"
}

// UploadBytes 上传一份导出文件。
func (c *Client) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.objects.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType, ContentDisposition: `attachment; filename="vectors.csv"`})
	if err != nil {
		return fmt.Errorf("upload export %q: %w", key, err)
	}
	return nil
}

// GeneratePresignedURL 为导出文件签发限时下载链接。
func (c *Client) GeneratePresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := c.signer.PresignedGetObject(ctx, c.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign export %q: %w", key, err)
	}
	return u.String(), nil
}

// ExpiredExports 挑出最后修改时间早于 cutoff 的导出文件。
func ExpiredExports(objects []ObjectMeta, cutoff time.Time) []string {
	var keys []string
	for _, o := range objects {
		if strings.HasPrefix(o.Key, ExportPrefix) && o.LastModified.Before(cutoff) {
			keys = append(keys, o.Key)
		}
	}
	return keys
}

// PruneExports 删除超过保留时长的导出文件，返回删除数量。Bucket 不存在时视为无文件。
// 单个对象删除失败时继续处理其余对象，并返回第一个错误。
func (c *Client) PruneExports(ctx context.Context, retention time.Duration, now time.Time) (int, error) {
	objects, err := c.ListObjects(ctx, ExportPrefix, 0)
	if IsNoSuchBucket(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var (
		deleted  int
		firstErr error
	)
	for _, key := range ExpiredExports(objects, now.Add(-retention)) {
		if err := c.DeleteObject(ctx, key); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted++
	}
	return deleted, firstErr
}

// ListObjects 列出前缀下的对象，limit<=0 表示不限。
func (c *Client) ListObjects(ctx context.Context, prefix string, limit int) ([]ObjectMeta, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []ObjectMeta
	for obj := range c.objects.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list exports under %q: %w", prefix, obj.Err)
		}
		out = append(out, ObjectMeta{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DeleteObject 删除一份导出文件，已不存在时不报错。
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	err := c.objects.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !IsNoSuchKey(err) {
		return fmt.Errorf("delete export %q: %w", key, err)
	}
	return nil
}
