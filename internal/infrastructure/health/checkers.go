package health

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
)

// BlobStorageProbe checks that a storage account is reachable and, optionally, that a
// container exists. Listing one container page is used instead of reading service
// properties, which needs a stronger role than blob data access.
type BlobStorageProbe struct {
	client        ports.CloudStorageClient
	containerName string
	isProduction  bool
}

// NewBlobStorageProbe creates a probe for client. Production probes omit account and
// container names from their descriptions.
func NewBlobStorageProbe(client ports.CloudStorageClient, containerName string, isProduction bool) *BlobStorageProbe {
	return &BlobStorageProbe{client: client, containerName: containerName, isProduction: isProduction}
}

func (p *BlobStorageProbe) Probe(ctx context.Context) (health.Result, error) {
	if err := p.client.PingService(ctx); err != nil {
		return health.Result{}, err
	}

	if p.containerName == "" {
		if p.isProduction {
			return health.Healthy("Connected to storage service"), nil
		}
		return health.Healthy(fmt.Sprintf("Connected to azure storage service: %s", p.client.AccountName())), nil
	}

	if _, err := p.client.GetContainerProperties(ctx, p.containerName); err != nil {
		return health.Result{}, err
	}
	if p.isProduction {
		return health.Healthy("Connected to storage service and container."), nil
	}
	return health.Healthy(fmt.Sprintf("Connected to azure storage service: %s with Container: %s",
		p.client.AccountName(), p.containerName)), nil
}

// redisProbe pings the cache backend.
type redisProbe struct{ client redis.Cmdable }

func (r *redisProbe) Probe(ctx context.Context) (health.Result, error) {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return health.Result{}, err
	}
	return health.Healthy("Connected to redis"), nil
}

// NewRedisProbe creates a probe for Redis.
func NewRedisProbe(client redis.Cmdable) ports.Probe {
	return &redisProbe{client: client}
}

var _ ports.Probe = (*BlobStorageProbe)(nil)
