/*
Package blob lets the cache hold pages larger than memcached's item limit.

Values above a threshold are written to an S3 compatible bucket and only a
small pointer is kept in the wrapped Store, so the pointer's expiry still
governs when the page is considered cached. Objects outlive their pointers;
the bucket should carry a lifecycle rule that removes old objects.
*/
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/microcosm-cc/pagecache/cache"
	h "github.com/microcosm-cc/pagecache/helpers"
)

// DefaultThreshold stays under memcached's default 1MB item size once the
// key and flags are accounted for
const DefaultThreshold = 900 * 1024

// Pointers start with a NUL so they cannot be mistaken for a gob stream
const pointerPrefix = "\x00blob:"

// Config is the connection information for the bucket
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Secure          bool
	Threshold       int
}

// OverflowStore wraps a cache.Store, moving large values into a bucket
type OverflowStore struct {
	cache.Store

	client    *minio.Client
	bucket    string
	threshold int
}

// NewOverflowStore connects to the bucket and wraps store
func NewOverflowStore(store cache.Store, c Config) (*OverflowStore, error) {
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKeyID, c.SecretAccessKey, ""),
		Secure: c.Secure,
	})
	if err != nil {
		return nil, err
	}

	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &OverflowStore{
		Store:     store,
		client:    client,
		bucket:    c.Bucket,
		threshold: threshold,
	}, nil
}

// CheckBucket returns an error if the bucket does not exist or cannot be
// reached
func (s *OverflowStore) CheckBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

// SetWithExpiry implements cache.Store
func (s *OverflowStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) <= s.threshold {
		return s.Store.SetWithExpiry(ctx, key, value, ttl)
	}

	// Content addressed, so concurrent writers of the same page agree
	name := objectName(key, value)
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		name,
		bytes.NewReader(value),
		int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"},
	)
	if err != nil {
		return fmt.Errorf("PutObject(%s): %w", name, err)
	}

	if glog.V(2) {
		glog.Infof("Stored %d bytes for %s in %s/%s", len(value), key, s.bucket, name)
	}

	return s.Store.SetWithExpiry(ctx, key, encodePointer(name), ttl)
}

// Get implements cache.Store
func (s *OverflowStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := s.Store.Get(ctx, key)
	if err != nil || !ok {
		return value, ok, err
	}

	name, isPointer := decodePointer(value)
	if !isPointer {
		return value, true, nil
	}

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("GetObject(%s): %w", name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		// The object was removed underneath the pointer, treat as a miss
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			glog.Warningf("Object %s for %s is missing", name, key)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("GetObject(%s): %w", name, err)
	}

	return data, true, nil
}

func objectName(key string, value []byte) string {
	return "pages/" + h.Sha1([]byte(key)) + "/" + h.Sha1(value)
}

func encodePointer(name string) []byte {
	return []byte(pointerPrefix + name)
}

func decodePointer(value []byte) (string, bool) {
	s := string(value)
	if !strings.HasPrefix(s, pointerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, pointerPrefix), true
}
