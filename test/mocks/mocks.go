package mocks

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/storage"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
)

// HealthEvaluatorMock is a lightweight mock for ports.HealthEvaluator
type HealthEvaluatorMock struct {
	EvaluateFn func(ctx context.Context, check health.CheckContext) (health.Result, error)
}

func (m *HealthEvaluatorMock) Evaluate(ctx context.Context, check health.CheckContext) (health.Result, error) {
	if m.EvaluateFn != nil {
		return m.EvaluateFn(ctx, check)
	}
	return health.Healthy(""), nil
}

// CacheMock is an in-memory ports.Cache that ignores TTLs
type CacheMock struct {
	mu   sync.Mutex
	data map[string][]byte
	Sets int
}

func NewCacheMock() *CacheMock {
	return &CacheMock{data: map[string][]byte{}}
}

func (m *CacheMock) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}
func (m *CacheMock) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.Sets++
	return nil
}
func (m *CacheMock) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
func (m *CacheMock) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// StorageClientMock is a lightweight mock for ports.CloudStorageClient
type StorageClientMock struct {
	Account                      string
	PingServiceFn                func(ctx context.Context) error
	GetContainerPropertiesFn     func(ctx context.Context, containerID string) (*storage.ContainerProperties, error)
	CreateContainerIfNotExistsFn func(ctx context.Context, containerID string) error
	DeleteContainerFn            func(ctx context.Context, containerID string) error
	DeleteBlobsFn                func(ctx context.Context, containerID, prefix string) (int, error)
	DeleteBlobFn                 func(ctx context.Context, containerID, blobID string) error
	UploadFn                     func(ctx context.Context, containerID, blobID string, body io.Reader, opts *storage.UploadOptions) (string, error)
	UploadContentFn              func(ctx context.Context, containerID, blobID, content string, opts *storage.UploadOptions) (string, error)
	UploadFileFn                 func(ctx context.Context, containerID, blobID, sourcePath string, opts *storage.UploadOptions) (string, error)
	DownloadFn                   func(ctx context.Context, containerID, blobID string, opts *storage.DownloadOptions) (io.ReadCloser, error)
	DownloadFileFn               func(ctx context.Context, containerID, blobID, destinationPath string, opts *storage.DownloadOptions) error
	ExistsFn                     func(ctx context.Context, containerID, blobID string) (bool, error)
	GetMetadataFn                func(ctx context.Context, containerID, blobID string) (map[string]string, error)
	SetMetadataFn                func(ctx context.Context, containerID, blobID string, metadata map[string]string, conditions *storage.RequestConditions) (string, error)
	SetTagsFn                    func(ctx context.Context, containerID, blobID string, tags map[string]string, conditions *storage.RequestConditions) error
	AcquireLeaseFn               func(ctx context.Context, containerID, blobID string, duration time.Duration, conditions *storage.Conditions) (*storage.LeaseInfo, error)
	RenewLeaseFn                 func(ctx context.Context, containerID, blobID, leaseID string, conditions *storage.Conditions) (*storage.LeaseInfo, error)
	ReleaseLeaseFn               func(ctx context.Context, containerID, blobID, leaseID string) (*storage.LeaseInfo, error)
	BreakLeaseFn                 func(ctx context.Context, containerID, blobID string, breakPeriod *time.Duration, conditions *storage.Conditions) (*storage.LeaseInfo, error)
}

func (m *StorageClientMock) AccountName() string {
	if m.Account == "" {
		return "devstoreaccount1"
	}
	return m.Account
}
func (m *StorageClientMock) PingService(ctx context.Context) error {
	if m.PingServiceFn != nil {
		return m.PingServiceFn(ctx)
	}
	return nil
}
func (m *StorageClientMock) GetContainerProperties(ctx context.Context, containerID string) (*storage.ContainerProperties, error) {
	if m.GetContainerPropertiesFn != nil {
		return m.GetContainerPropertiesFn(ctx, containerID)
	}
	return &storage.ContainerProperties{}, nil
}
func (m *StorageClientMock) CreateContainerIfNotExists(ctx context.Context, containerID string) error {
	if m.CreateContainerIfNotExistsFn != nil {
		return m.CreateContainerIfNotExistsFn(ctx, containerID)
	}
	return nil
}
func (m *StorageClientMock) DeleteContainer(ctx context.Context, containerID string) error {
	if m.DeleteContainerFn != nil {
		return m.DeleteContainerFn(ctx, containerID)
	}
	return nil
}
func (m *StorageClientMock) DeleteBlobs(ctx context.Context, containerID, prefix string) (int, error) {
	if m.DeleteBlobsFn != nil {
		return m.DeleteBlobsFn(ctx, containerID, prefix)
	}
	return 0, nil
}
func (m *StorageClientMock) DeleteBlob(ctx context.Context, containerID, blobID string) error {
	if m.DeleteBlobFn != nil {
		return m.DeleteBlobFn(ctx, containerID, blobID)
	}
	return nil
}
func (m *StorageClientMock) Upload(ctx context.Context, containerID, blobID string, body io.Reader, opts *storage.UploadOptions) (string, error) {
	if m.UploadFn != nil {
		return m.UploadFn(ctx, containerID, blobID, body, opts)
	}
	return "", nil
}
func (m *StorageClientMock) UploadContent(ctx context.Context, containerID, blobID, content string, opts *storage.UploadOptions) (string, error) {
	if m.UploadContentFn != nil {
		return m.UploadContentFn(ctx, containerID, blobID, content, opts)
	}
	return "", nil
}
func (m *StorageClientMock) UploadFile(ctx context.Context, containerID, blobID, sourcePath string, opts *storage.UploadOptions) (string, error) {
	if m.UploadFileFn != nil {
		return m.UploadFileFn(ctx, containerID, blobID, sourcePath, opts)
	}
	return "", nil
}
func (m *StorageClientMock) Download(ctx context.Context, containerID, blobID string, opts *storage.DownloadOptions) (io.ReadCloser, error) {
	if m.DownloadFn != nil {
		return m.DownloadFn(ctx, containerID, blobID, opts)
	}
	return io.NopCloser(strings.NewReader("")), nil
}
func (m *StorageClientMock) DownloadFile(ctx context.Context, containerID, blobID, destinationPath string, opts *storage.DownloadOptions) error {
	if m.DownloadFileFn != nil {
		return m.DownloadFileFn(ctx, containerID, blobID, destinationPath, opts)
	}
	return nil
}
func (m *StorageClientMock) Exists(ctx context.Context, containerID, blobID string) (bool, error) {
	if m.ExistsFn != nil {
		return m.ExistsFn(ctx, containerID, blobID)
	}
	return false, nil
}
func (m *StorageClientMock) GetMetadata(ctx context.Context, containerID, blobID string) (map[string]string, error) {
	if m.GetMetadataFn != nil {
		return m.GetMetadataFn(ctx, containerID, blobID)
	}
	return map[string]string{}, nil
}
func (m *StorageClientMock) SetMetadata(ctx context.Context, containerID, blobID string, metadata map[string]string, conditions *storage.RequestConditions) (string, error) {
	if m.SetMetadataFn != nil {
		return m.SetMetadataFn(ctx, containerID, blobID, metadata, conditions)
	}
	return "", nil
}
func (m *StorageClientMock) SetTags(ctx context.Context, containerID, blobID string, tags map[string]string, conditions *storage.RequestConditions) error {
	if m.SetTagsFn != nil {
		return m.SetTagsFn(ctx, containerID, blobID, tags, conditions)
	}
	return nil
}
func (m *StorageClientMock) AcquireLease(ctx context.Context, containerID, blobID string, duration time.Duration, conditions *storage.Conditions) (*storage.LeaseInfo, error) {
	if m.AcquireLeaseFn != nil {
		return m.AcquireLeaseFn(ctx, containerID, blobID, duration, conditions)
	}
	return &storage.LeaseInfo{}, nil
}
func (m *StorageClientMock) RenewLease(ctx context.Context, containerID, blobID, leaseID string, conditions *storage.Conditions) (*storage.LeaseInfo, error) {
	if m.RenewLeaseFn != nil {
		return m.RenewLeaseFn(ctx, containerID, blobID, leaseID, conditions)
	}
	return &storage.LeaseInfo{LeaseID: leaseID}, nil
}
func (m *StorageClientMock) ReleaseLease(ctx context.Context, containerID, blobID, leaseID string) (*storage.LeaseInfo, error) {
	if m.ReleaseLeaseFn != nil {
		return m.ReleaseLeaseFn(ctx, containerID, blobID, leaseID)
	}
	return &storage.LeaseInfo{LeaseID: leaseID}, nil
}
func (m *StorageClientMock) BreakLease(ctx context.Context, containerID, blobID string, breakPeriod *time.Duration, conditions *storage.Conditions) (*storage.LeaseInfo, error) {
	if m.BreakLeaseFn != nil {
		return m.BreakLeaseFn(ctx, containerID, blobID, breakPeriod, conditions)
	}
	return &storage.LeaseInfo{}, nil
}

var _ ports.CloudStorageClient = (*StorageClientMock)(nil)
var _ ports.Cache = (*CacheMock)(nil)
var _ ports.HealthEvaluator = (*HealthEvaluatorMock)(nil)

// StorageProvidersMock resolves clients from a fixed map
type StorageProvidersMock struct {
	Clients map[string]ports.CloudStorageClient
}

func (m *StorageProvidersMock) Client(key string) (ports.CloudStorageClient, error) {
	c, ok := m.Clients[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrProviderNotFound, key)
	}
	return c, nil
}
func (m *StorageProvidersMock) Keys() []string {
	keys := make([]string, 0, len(m.Clients))
	for k := range m.Clients {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RateLimitRepositoryMock counts increments in memory, one counter per subject
type RateLimitRepositoryMock struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
	Start  time.Time
}

func (m *RateLimitRepositoryMock) IncrementWindow(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	if m.Err != nil {
		return 0, m.Start, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[keyPrefix+":"+subject]++
	return m.counts[keyPrefix+":"+subject], m.Start, nil
}

// RateLimiterMock is a lightweight mock for ports.RateLimiter
type RateLimiterMock struct {
	AllowFn  func(ctx context.Context, subject string) (bool, int, int, time.Time, error)
	mu       sync.Mutex
	Subjects []string
}

func (m *RateLimiterMock) Allow(ctx context.Context, subject string) (bool, int, int, time.Time, error) {
	m.mu.Lock()
	m.Subjects = append(m.Subjects, subject)
	m.mu.Unlock()
	if m.AllowFn != nil {
		return m.AllowFn(ctx, subject)
	}
	return true, 100, 1000, time.Now().Add(time.Minute), nil
}

var _ ports.RateLimitRepository = (*RateLimitRepositoryMock)(nil)
var _ ports.RateLimiter = (*RateLimiterMock)(nil)
