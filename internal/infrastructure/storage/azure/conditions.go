package azure

import (
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/storage"
)

func modifiedAccessConditions(c *storage.Conditions) *blob.ModifiedAccessConditions {
	if c == nil || c.IsZero() {
		return nil
	}
	m := &blob.ModifiedAccessConditions{
		IfModifiedSince:   c.IfModifiedSince,
		IfUnmodifiedSince: c.IfUnmodifiedSince,
	}
	if c.IfMatch != "" {
		etag := azcore.ETag(c.IfMatch)
		m.IfMatch = &etag
	}
	if c.IfNoneMatch != "" {
		etag := azcore.ETag(c.IfNoneMatch)
		m.IfNoneMatch = &etag
	}
	return m
}

func accessConditions(c *storage.RequestConditions) *blob.AccessConditions {
	if c == nil {
		return nil
	}
	ac := &blob.AccessConditions{ModifiedAccessConditions: modifiedAccessConditions(&c.Conditions)}
	if c.TagConditions != "" {
		if ac.ModifiedAccessConditions == nil {
			ac.ModifiedAccessConditions = &blob.ModifiedAccessConditions{}
		}
		tags := c.TagConditions
		ac.ModifiedAccessConditions.IfTags = &tags
	}
	if c.LeaseID != "" {
		leaseID := c.LeaseID
		ac.LeaseAccessConditions = &blob.LeaseAccessConditions{LeaseID: &leaseID}
	}
	if ac.ModifiedAccessConditions == nil && ac.LeaseAccessConditions == nil {
		return nil
	}
	return ac
}

// uploadConditions merges the overwrite flag into the request conditions.
func uploadConditions(opts *storage.UploadOptions) *blob.AccessConditions {
	if opts == nil {
		return noOverwriteConditions(nil)
	}
	ac := accessConditions(opts.Conditions)
	if opts.Overwrite {
		return ac
	}
	return noOverwriteConditions(ac)
}

func noOverwriteConditions(ac *blob.AccessConditions) *blob.AccessConditions {
	if ac == nil {
		ac = &blob.AccessConditions{}
	}
	if ac.ModifiedAccessConditions == nil {
		ac.ModifiedAccessConditions = &blob.ModifiedAccessConditions{}
	}
	etagAny := azcore.ETagAny
	ac.ModifiedAccessConditions.IfNoneMatch = &etagAny
	return ac
}

func toPtrMap(m map[string]string) map[string]*string {
	if m == nil {
		return nil
	}
	out := make(map[string]*string, len(m))
	for k, v := range m {
		v := v
		out[k] = &v
	}
	return out
}

func fromPtrMap(m map[string]*string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func leaseDurationSeconds(d time.Duration) int32 {
	if d < 0 {
		return -1
	}
	return int32(d / time.Second)
}

func etagString(etag *azcore.ETag) string {
	if etag == nil {
		return ""
	}
	return string(*etag)
}

func stringValue(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// translateError maps service error codes onto the provider-neutral storage errors.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		sentinel = storage.ErrNotFound
	case bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ContainerAlreadyExists):
		sentinel = storage.ErrAlreadyExists
	case bloberror.HasCode(err, bloberror.ConditionNotMet, bloberror.TargetConditionNotMet):
		sentinel = storage.ErrPreconditionFailed
	case bloberror.HasCode(err, bloberror.LeaseAlreadyPresent, bloberror.LeaseIDMismatchWithLeaseOperation,
		bloberror.LeaseIDMissing, bloberror.LeaseNotPresentWithLeaseOperation, bloberror.LeaseIsBreakingAndCannotBeAcquired,
		bloberror.LeaseIsBrokenAndCannotBeRenewed, bloberror.LeaseLost):
		sentinel = storage.ErrLeaseConflict
	}
	if sentinel != nil {
		return fmt.Errorf("failed to %s: %w", op, errors.Join(sentinel, err))
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
