package azure

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/lease"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/storage"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
)

// deleteConcurrency bounds parallel deletes in DeleteBlobs.
const deleteConcurrency = 8

// BlobStorageClient implements ports.CloudStorageClient on top of the Azure blob SDK.
type BlobStorageClient struct {
	client  *azblob.Client
	account string
	logger  *logrus.Logger
}

// NewBlobStorageClient wraps an SDK client bound to the given account.
func NewBlobStorageClient(client *azblob.Client, account string, logger *logrus.Logger) *BlobStorageClient {
	return &BlobStorageClient{client: client, account: account, logger: logger}
}

var _ ports.CloudStorageClient = (*BlobStorageClient)(nil)

func (c *BlobStorageClient) AccountName() string {
	return c.account
}

// PingService lists at most one container, which proves reachability and authorization.
func (c *BlobStorageClient) PingService(ctx context.Context) error {
	pager := c.client.NewListContainersPager(&azblob.ListContainersOptions{MaxResults: to.Ptr[int32](1)})
	if _, err := pager.NextPage(ctx); err != nil {
		return translateError("list containers", err)
	}
	return nil
}

func (c *BlobStorageClient) GetContainerProperties(ctx context.Context, containerID string) (*storage.ContainerProperties, error) {
	resp, err := c.client.ServiceClient().NewContainerClient(containerID).GetProperties(ctx, nil)
	if err != nil {
		return nil, translateError("get container properties", err)
	}
	return &storage.ContainerProperties{
		ETag:         etagString(resp.ETag),
		LastModified: timeValue(resp.LastModified),
	}, nil
}

func (c *BlobStorageClient) CreateContainerIfNotExists(ctx context.Context, containerID string) error {
	_, err := c.client.CreateContainer(ctx, containerID, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return translateError("create container", err)
	}
	return nil
}

func (c *BlobStorageClient) DeleteContainer(ctx context.Context, containerID string) error {
	if _, err := c.client.DeleteContainer(ctx, containerID, nil); err != nil {
		return translateError("delete container", err)
	}
	return nil
}

// DeleteBlobs removes every blob under prefix, including snapshots, and returns how many were deleted.
func (c *BlobStorageClient) DeleteBlobs(ctx context.Context, containerID, prefix string) (int, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}
	pager := c.client.NewListBlobsFlatPager(containerID, opts)

	deleted := 0
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return deleted, translateError("list blobs", err)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(deleteConcurrency)
		count := 0
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			name := *item.Name
			count++
			g.Go(func() error {
				return c.DeleteBlob(gctx, containerID, name)
			})
		}
		if err := g.Wait(); err != nil {
			return deleted, err
		}
		deleted += count
	}
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"account":   c.account,
			"container": containerID,
			"prefix":    prefix,
			"deleted":   deleted,
		}).Debug("Deleted blobs by prefix")
	}
	return deleted, nil
}

// DeleteBlob deletes a blob and its snapshots. A missing blob is not an error.
func (c *BlobStorageClient) DeleteBlob(ctx context.Context, containerID, blobID string) error {
	_, err := c.client.DeleteBlob(ctx, containerID, blobID, &azblob.DeleteBlobOptions{
		DeleteSnapshots: to.Ptr(blob.DeleteSnapshotsOptionTypeInclude),
	})
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return translateError("delete blob", err)
	}
	return nil
}

func (c *BlobStorageClient) Upload(ctx context.Context, containerID, blobID string, body io.Reader, opts *storage.UploadOptions) (string, error) {
	o := &azblob.UploadStreamOptions{AccessConditions: uploadConditions(opts)}
	if opts != nil {
		o.Metadata = toPtrMap(opts.Metadata)
		o.Tags = opts.Tags
		o.BlockSize = opts.Transfer.BlockSize
		o.Concurrency = opts.Transfer.Concurrency
	}
	resp, err := c.client.UploadStream(ctx, containerID, blobID, body, o)
	if err != nil {
		return "", translateError("upload blob", err)
	}
	return stringValue(resp.VersionID, ""), nil
}

func (c *BlobStorageClient) UploadContent(ctx context.Context, containerID, blobID, content string, opts *storage.UploadOptions) (string, error) {
	o := &azblob.UploadBufferOptions{AccessConditions: uploadConditions(opts)}
	if opts != nil {
		o.Metadata = toPtrMap(opts.Metadata)
		o.Tags = opts.Tags
		o.BlockSize = opts.Transfer.BlockSize
		o.Concurrency = uint16(opts.Transfer.Concurrency)
	}
	resp, err := c.client.UploadBuffer(ctx, containerID, blobID, []byte(content), o)
	if err != nil {
		return "", translateError("upload content", err)
	}
	return stringValue(resp.VersionID, ""), nil
}

func (c *BlobStorageClient) UploadFile(ctx context.Context, containerID, blobID, sourcePath string, opts *storage.UploadOptions) (string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	o := &azblob.UploadFileOptions{AccessConditions: uploadConditions(opts)}
	if opts != nil {
		o.Metadata = toPtrMap(opts.Metadata)
		o.Tags = opts.Tags
		o.BlockSize = opts.Transfer.BlockSize
		o.Concurrency = uint16(opts.Transfer.Concurrency)
	}
	resp, err := c.client.UploadFile(ctx, containerID, blobID, f, o)
	if err != nil {
		return "", translateError("upload file", err)
	}
	return stringValue(resp.VersionID, ""), nil
}

// Download opens a stream over the blob content; the caller closes it.
func (c *BlobStorageClient) Download(ctx context.Context, containerID, blobID string, opts *storage.DownloadOptions) (io.ReadCloser, error) {
	o := &azblob.DownloadStreamOptions{}
	if opts != nil {
		o.AccessConditions = accessConditions(opts.Conditions)
	}
	resp, err := c.client.DownloadStream(ctx, containerID, blobID, o)
	if err != nil {
		return nil, translateError("download blob", err)
	}
	return resp.Body, nil
}

// DownloadFile writes the blob to destinationPath. A partially written file is removed on failure.
func (c *BlobStorageClient) DownloadFile(ctx context.Context, containerID, blobID, destinationPath string, opts *storage.DownloadOptions) error {
	f, err := os.Create(destinationPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	o := &azblob.DownloadFileOptions{}
	if opts != nil {
		o.AccessConditions = accessConditions(opts.Conditions)
		o.BlockSize = opts.Transfer.BlockSize
		o.Concurrency = uint16(opts.Transfer.Concurrency)
	}
	_, err = c.client.DownloadFile(ctx, containerID, blobID, f, o)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(destinationPath)
		return translateError("download file", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close destination file: %w", closeErr)
	}
	return nil
}

func (c *BlobStorageClient) Exists(ctx context.Context, containerID, blobID string) (bool, error) {
	_, err := c.blobClient(containerID, blobID).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return false, nil
	}
	return false, translateError("check blob", err)
}

func (c *BlobStorageClient) GetMetadata(ctx context.Context, containerID, blobID string) (map[string]string, error) {
	resp, err := c.blobClient(containerID, blobID).GetProperties(ctx, nil)
	if err != nil {
		return nil, translateError("get blob metadata", err)
	}
	return fromPtrMap(resp.Metadata), nil
}

// SetMetadata replaces the blob metadata and returns the new version id, if versioning is on.
func (c *BlobStorageClient) SetMetadata(ctx context.Context, containerID, blobID string, metadata map[string]string, conditions *storage.RequestConditions) (string, error) {
	resp, err := c.blobClient(containerID, blobID).SetMetadata(ctx, toPtrMap(metadata), &blob.SetMetadataOptions{
		AccessConditions: accessConditions(conditions),
	})
	if err != nil {
		return "", translateError("set blob metadata", err)
	}
	return stringValue(resp.VersionID, ""), nil
}

func (c *BlobStorageClient) SetTags(ctx context.Context, containerID, blobID string, tags map[string]string, conditions *storage.RequestConditions) error {
	_, err := c.blobClient(containerID, blobID).SetTags(ctx, tags, &blob.SetTagsOptions{
		AccessConditions: accessConditions(conditions),
	})
	if err != nil {
		return translateError("set blob tags", err)
	}
	return nil
}

// AcquireLease takes a lease for duration (15-60s) or storage.InfiniteLease.
// The lease id is proposed client side.
func (c *BlobStorageClient) AcquireLease(ctx context.Context, containerID, blobID string, duration time.Duration, conditions *storage.Conditions) (*storage.LeaseInfo, error) {
	lc, err := c.leaseClient(containerID, blobID, uuid.NewString())
	if err != nil {
		return nil, err
	}
	resp, err := lc.AcquireLease(ctx, leaseDurationSeconds(duration), &lease.BlobAcquireOptions{
		ModifiedAccessConditions: modifiedAccessConditions(conditions),
	})
	if err != nil {
		return nil, translateError("acquire lease", err)
	}
	return &storage.LeaseInfo{
		LeaseID:      stringValue(resp.LeaseID, stringValue(lc.LeaseID(), "")),
		LastModified: timeValue(resp.LastModified),
		ETag:         etagString(resp.ETag),
	}, nil
}

func (c *BlobStorageClient) RenewLease(ctx context.Context, containerID, blobID, leaseID string, conditions *storage.Conditions) (*storage.LeaseInfo, error) {
	lc, err := c.leaseClient(containerID, blobID, leaseID)
	if err != nil {
		return nil, err
	}
	resp, err := lc.RenewLease(ctx, &lease.BlobRenewOptions{
		ModifiedAccessConditions: modifiedAccessConditions(conditions),
	})
	if err != nil {
		return nil, translateError("renew lease", err)
	}
	return &storage.LeaseInfo{
		LeaseID:      stringValue(resp.LeaseID, leaseID),
		LastModified: timeValue(resp.LastModified),
		ETag:         etagString(resp.ETag),
	}, nil
}

func (c *BlobStorageClient) ReleaseLease(ctx context.Context, containerID, blobID, leaseID string) (*storage.LeaseInfo, error) {
	lc, err := c.leaseClient(containerID, blobID, leaseID)
	if err != nil {
		return nil, err
	}
	resp, err := lc.ReleaseLease(ctx, nil)
	if err != nil {
		return nil, translateError("release lease", err)
	}
	return &storage.LeaseInfo{
		LeaseID:      leaseID,
		LastModified: timeValue(resp.LastModified),
		ETag:         etagString(resp.ETag),
	}, nil
}

// BreakLease ends the current lease. A nil breakPeriod lets the service pick the
// remaining lease period; the returned LeaseTime is how long until the lease is broken.
func (c *BlobStorageClient) BreakLease(ctx context.Context, containerID, blobID string, breakPeriod *time.Duration, conditions *storage.Conditions) (*storage.LeaseInfo, error) {
	lc, err := c.leaseClient(containerID, blobID, "")
	if err != nil {
		return nil, err
	}
	opts := &lease.BlobBreakOptions{ModifiedAccessConditions: modifiedAccessConditions(conditions)}
	if breakPeriod != nil {
		opts.BreakPeriod = to.Ptr(int32(*breakPeriod / time.Second))
	}
	resp, err := lc.BreakLease(ctx, opts)
	if err != nil {
		return nil, translateError("break lease", err)
	}
	info := &storage.LeaseInfo{
		LastModified: timeValue(resp.LastModified),
		ETag:         etagString(resp.ETag),
	}
	if resp.LeaseTime != nil {
		remaining := time.Duration(*resp.LeaseTime) * time.Second
		info.LeaseTime = &remaining
	}
	return info, nil
}

func (c *BlobStorageClient) blobClient(containerID, blobID string) *blob.Client {
	return c.client.ServiceClient().NewContainerClient(containerID).NewBlobClient(blobID)
}

func (c *BlobStorageClient) leaseClient(containerID, blobID, leaseID string) (*lease.BlobClient, error) {
	var opts *lease.BlobClientOptions
	if leaseID != "" {
		opts = &lease.BlobClientOptions{LeaseID: to.Ptr(leaseID)}
	}
	lc, err := lease.NewBlobClient(c.blobClient(containerID, blobID), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create lease client: %w", err)
	}
	return lc, nil
}
