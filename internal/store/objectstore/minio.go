package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roach88/entq/internal/store"
)

// etagMetaKey is the user metadata entry holding the entity ETag.
const etagMetaKey = "Entq-Etag"

// Config holds MinIO connection settings.
type Config struct {
	Endpoint        string // e.g. "minio:9000" or "localhost:9000"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
}

// MinioBucket is a Bucket on an S3-compatible server.
type MinioBucket struct {
	mc     *minio.Client
	bucket string
}

var _ Bucket = (*MinioBucket)(nil)

// NewMinioBucket connects to the server and creates the bucket if it does
// not exist.
func NewMinioBucket(ctx context.Context, cfg Config) (*MinioBucket, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio: endpoint and bucket are required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket %s: %w", cfg.Bucket, classify(err))
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket %s: %w", cfg.Bucket, err)
		}
		slog.Info("created bucket", "bucket", cfg.Bucket)
	}
	return &MinioBucket{mc: mc, bucket: cfg.Bucket}, nil
}

// List implements Bucket. The listing goroutine owned by minio-go is
// stopped when the consumer stops pulling.
func (b *MinioBucket) List(ctx context.Context, withTags bool) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch := b.mc.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Recursive: true, WithMetadata: true})
		for info := range ch {
			if info.Err != nil {
				yield(Object{}, fmt.Errorf("list %s: %w", b.bucket, classify(info.Err)))
				return
			}
			obj := Object{Key: info.Key, ETag: metaETag(info.UserMetadata)}
			if obj.ETag == "" {
				// Servers without metadata listings need a stat per object.
				st, err := b.Stat(ctx, info.Key)
				if err != nil {
					yield(Object{}, err)
					return
				}
				obj.ETag = st.ETag
			}
			if withTags {
				tags, err := b.tags(ctx, info)
				if err != nil {
					yield(Object{}, err)
					return
				}
				obj.Tags = tags
			}
			if !yield(obj, nil) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield(Object{}, err)
		}
	}
}

// tags returns the object tags, from the listing when the server includes
// them and from a tagging request otherwise.
func (b *MinioBucket) tags(ctx context.Context, info minio.ObjectInfo) (map[string]string, error) {
	out := make(map[string]string, len(info.UserTags))
	if info.UserTagCount > 0 && len(info.UserTags) > 0 {
		for k, v := range info.UserTags {
			out[k] = v
		}
		return out, nil
	}
	t, err := b.mc.GetObjectTagging(ctx, b.bucket, info.Key, minio.GetObjectTaggingOptions{})
	if err != nil {
		return nil, fmt.Errorf("tags of %s: %w", info.Key, classify(err))
	}
	for k, v := range t.ToMap() {
		out[k] = v
	}
	return out, nil
}

// Get implements Bucket.
func (b *MinioBucket) Get(ctx context.Context, key string) ([]byte, Object, error) {
	obj, err := b.mc.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, fmt.Errorf("get %s: %w", key, classify(err))
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, Object{}, fmt.Errorf("get %s: %w", key, classify(err))
	}
	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, Object{}, fmt.Errorf("read %s: %w", key, classify(err))
	}
	return body, Object{Key: key, ETag: metaETag(info.UserMetadata)}, nil
}

// Stat implements Bucket.
func (b *MinioBucket) Stat(ctx context.Context, key string) (Object, error) {
	info, err := b.mc.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return Object{}, fmt.Errorf("stat %s: %w", key, classify(err))
	}
	return Object{Key: key, ETag: metaETag(info.UserMetadata)}, nil
}

// Put implements Bucket.
func (b *MinioBucket) Put(ctx context.Context, obj Object, body []byte) error {
	_, err := b.mc.PutObject(ctx, b.bucket, obj.Key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{etagMetaKey: obj.ETag},
		UserTags:     obj.Tags,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", obj.Key, classify(err))
	}
	return nil
}

// Remove implements Bucket using a multi-object delete.
func (b *MinioBucket) Remove(ctx context.Context, keys []string) error {
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	var errs []string
	for rerr := range b.mc.RemoveObjects(ctx, b.bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Sprintf("%s: %v", rerr.ObjectName, rerr.Err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("remove objects: %s", strings.Join(errs, "; "))
	}
	return nil
}

// metaETag finds the entity ETag in user metadata. Listings report keys
// with the X-Amz-Meta- prefix, stat responses without it.
func metaETag(meta map[string]string) string {
	for k, v := range meta {
		k = strings.TrimPrefix(http.CanonicalHeaderKey(k), "X-Amz-Meta-")
		if strings.EqualFold(k, etagMetaKey) {
			return v
		}
	}
	return ""
}

// classify maps minio errors onto store errors.
func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	case resp.StatusCode >= 500 || resp.Code == "SlowDown" || resp.Code == "RequestTimeout":
		return fmt.Errorf("%w: %v", errTransient, err)
	}
	return err
}
