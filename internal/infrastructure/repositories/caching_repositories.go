package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/maphash"
	"io"
	"maps"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/storage"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
)

// Utility helpers
func cacheSetSilently(c ports.Cache, ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(ctx, key, b, ttl)
}

func cacheGet[T any](c ports.Cache, ctx context.Context, key string) (*T, bool) {
	if c == nil {
		return nil, false
	}
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// DefaultMetadataLoadTimeout bounds a shared metadata load once it no longer follows any caller's context.
const DefaultMetadataLoadTimeout = 30 * time.Second

// generationStripes is the number of write counters keys are hashed onto. Two keys sharing a
// stripe only cost a skipped cache fill.
const generationStripes = 256

// CachingStorageClient decorates a CloudStorageClient with a cache-aside blob metadata cache.
// Writes through this client invalidate the affected entry. DeleteBlobs and DeleteContainer
// do not enumerate keys, so entries under them expire with the TTL.
type CachingStorageClient struct {
	ports.CloudStorageClient
	cache       ports.Cache
	ttl         time.Duration
	loadTimeout time.Duration
	sf          singleflight.Group

	// generations are bumped by every write; a load only fills the cache when the
	// generation of its key did not move while it ran.
	seed        maphash.Seed
	generations [generationStripes]atomic.Uint64
}

func NewCachingStorageClient(inner ports.CloudStorageClient, cache ports.Cache, ttl time.Duration) *CachingStorageClient {
	return &CachingStorageClient{
		CloudStorageClient: inner,
		cache:              cache,
		ttl:                ttl,
		loadTimeout:        DefaultMetadataLoadTimeout,
		seed:               maphash.MakeSeed(),
	}
}

var _ ports.CloudStorageClient = (*CachingStorageClient)(nil)

func (c *CachingStorageClient) metadataKey(containerID, blobID string) string {
	return fmt.Sprintf("blobmeta:%s:%s/%s", c.AccountName(), containerID, blobID)
}

func (c *CachingStorageClient) generation(key string) *atomic.Uint64 {
	return &c.generations[maphash.String(c.seed, key)%generationStripes]
}

// written marks key as changed and detaches it from any load already in flight.
// It must run after the backend write and before the cache is touched.
func (c *CachingStorageClient) written(key string) {
	c.generation(key).Add(1)
	c.sf.Forget(key)
}

func (c *CachingStorageClient) invalidate(ctx context.Context, containerID, blobID string) {
	key := c.metadataKey(containerID, blobID)
	c.written(key)
	if c.cache != nil {
		_ = c.cache.Delete(ctx, key)
	}
}

// GetMetadata serves metadata from cache; concurrent misses for one blob share a single load.
// The shared load is detached from the caller that started it, so one caller giving up does
// not fail the others.
func (c *CachingStorageClient) GetMetadata(ctx context.Context, containerID, blobID string) (map[string]string, error) {
	key := c.metadataKey(containerID, blobID)
	if v, ok := cacheGet[map[string]string](c.cache, ctx, key); ok {
		return *v, nil
	}
	ch := c.sf.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		if v, ok := cacheGet[map[string]string](c.cache, loadCtx, key); ok {
			return *v, nil
		}
		gen := c.generation(key)
		before := gen.Load()
		md, err := c.CloudStorageClient.GetMetadata(loadCtx, containerID, blobID)
		if err != nil {
			return nil, err
		}
		if gen.Load() == before {
			cacheSetSilently(c.cache, loadCtx, key, md, c.ttl)
			// a write that landed between the check and the fill wins
			if gen.Load() != before && c.cache != nil {
				_ = c.cache.Delete(loadCtx, key)
			}
		}
		return md, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		md, ok := res.Val.(map[string]string)
		if !ok {
			return nil, fmt.Errorf("unexpected type from singleflight result")
		}
		// callers sharing a load must not see each other's mutations
		return maps.Clone(md), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *CachingStorageClient) SetMetadata(ctx context.Context, containerID, blobID string, metadata map[string]string, conditions *storage.RequestConditions) (string, error) {
	version, err := c.CloudStorageClient.SetMetadata(ctx, containerID, blobID, metadata, conditions)
	if err != nil {
		return "", err
	}
	key := c.metadataKey(containerID, blobID)
	c.written(key)
	cacheSetSilently(c.cache, ctx, key, metadata, c.ttl)
	return version, nil
}

func (c *CachingStorageClient) Upload(ctx context.Context, containerID, blobID string, body io.Reader, opts *storage.UploadOptions) (string, error) {
	version, err := c.CloudStorageClient.Upload(ctx, containerID, blobID, body, opts)
	c.invalidate(ctx, containerID, blobID)
	return version, err
}

func (c *CachingStorageClient) UploadContent(ctx context.Context, containerID, blobID, content string, opts *storage.UploadOptions) (string, error) {
	version, err := c.CloudStorageClient.UploadContent(ctx, containerID, blobID, content, opts)
	c.invalidate(ctx, containerID, blobID)
	return version, err
}

func (c *CachingStorageClient) UploadFile(ctx context.Context, containerID, blobID, sourcePath string, opts *storage.UploadOptions) (string, error) {
	version, err := c.CloudStorageClient.UploadFile(ctx, containerID, blobID, sourcePath, opts)
	c.invalidate(ctx, containerID, blobID)
	return version, err
}

func (c *CachingStorageClient) DeleteBlob(ctx context.Context, containerID, blobID string) error {
	if err := c.CloudStorageClient.DeleteBlob(ctx, containerID, blobID); err != nil {
		return err
	}
	c.invalidate(ctx, containerID, blobID)
	return nil
}
