package ports

import (
	"context"
	"io"
	"time"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/storage"
)

// CloudStorageClient is the provider-neutral blob storage contract.
// Implementations are safe for concurrent use and are shared as process-wide singletons.
// Missing containers or blobs are reported as storage.ErrNotFound.
type CloudStorageClient interface {
	AccountName() string

	// PingService performs the cheapest authenticated call the service accepts.
	PingService(ctx context.Context) error
	GetContainerProperties(ctx context.Context, containerID string) (*storage.ContainerProperties, error)
	CreateContainerIfNotExists(ctx context.Context, containerID string) error
	DeleteContainer(ctx context.Context, containerID string) error

	// DeleteBlobs removes every blob whose name starts with prefix and returns how many were deleted.
	DeleteBlobs(ctx context.Context, containerID, prefix string) (int, error)
	// DeleteBlob removes a blob and its snapshots; a missing blob is not an error.
	DeleteBlob(ctx context.Context, containerID, blobID string) error

	// Upload variants return the version id of the written blob, empty when versioning is off.
	Upload(ctx context.Context, containerID, blobID string, body io.Reader, opts *storage.UploadOptions) (string, error)
	UploadContent(ctx context.Context, containerID, blobID, content string, opts *storage.UploadOptions) (string, error)
	UploadFile(ctx context.Context, containerID, blobID, sourcePath string, opts *storage.UploadOptions) (string, error)

	Download(ctx context.Context, containerID, blobID string, opts *storage.DownloadOptions) (io.ReadCloser, error)
	DownloadFile(ctx context.Context, containerID, blobID, destinationPath string, opts *storage.DownloadOptions) error
	Exists(ctx context.Context, containerID, blobID string) (bool, error)

	GetMetadata(ctx context.Context, containerID, blobID string) (map[string]string, error)
	SetMetadata(ctx context.Context, containerID, blobID string, metadata map[string]string, conditions *storage.RequestConditions) (string, error)
	SetTags(ctx context.Context, containerID, blobID string, tags map[string]string, conditions *storage.RequestConditions) error

	// AcquireLease takes a lease for duration (storage.InfiniteLease for no expiry).
	AcquireLease(ctx context.Context, containerID, blobID string, duration time.Duration, conditions *storage.Conditions) (*storage.LeaseInfo, error)
	RenewLease(ctx context.Context, containerID, blobID, leaseID string, conditions *storage.Conditions) (*storage.LeaseInfo, error)
	ReleaseLease(ctx context.Context, containerID, blobID, leaseID string) (*storage.LeaseInfo, error)
	// BreakLease breaks the current lease; a nil breakPeriod uses the service default.
	BreakLease(ctx context.Context, containerID, blobID string, breakPeriod *time.Duration, conditions *storage.Conditions) (*storage.LeaseInfo, error)
}

// StorageProviders resolves configured storage clients by instance key.
type StorageProviders interface {
	// Client returns storage.ErrProviderNotFound for an unknown key.
	Client(key string) (CloudStorageClient, error)
	Keys() []string
}
