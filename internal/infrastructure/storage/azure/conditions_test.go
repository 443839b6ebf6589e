package azure

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/storage"
)

func TestAccessConditions_NilWhenEmpty(t *testing.T) {
	assert.Nil(t, accessConditions(nil))
	assert.Nil(t, accessConditions(&storage.RequestConditions{}))
	assert.Nil(t, modifiedAccessConditions(&storage.Conditions{}))
}

func TestAccessConditions_MapsEveryField(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ac := accessConditions(&storage.RequestConditions{
		Conditions: storage.Conditions{
			IfMatch:         `"0x1"`,
			IfModifiedSince: &since,
		},
		LeaseID:       "lease-1",
		TagConditions: `"env"='prod'`,
	})
	require.NotNil(t, ac)
	require.NotNil(t, ac.ModifiedAccessConditions)
	assert.Equal(t, azcore.ETag(`"0x1"`), *ac.ModifiedAccessConditions.IfMatch)
	assert.Nil(t, ac.ModifiedAccessConditions.IfNoneMatch)
	assert.Equal(t, since, *ac.ModifiedAccessConditions.IfModifiedSince)
	assert.Equal(t, `"env"='prod'`, *ac.ModifiedAccessConditions.IfTags)
	require.NotNil(t, ac.LeaseAccessConditions)
	assert.Equal(t, "lease-1", *ac.LeaseAccessConditions.LeaseID)
}

func TestUploadConditions_Overwrite(t *testing.T) {
	ac := uploadConditions(nil)
	require.NotNil(t, ac)
	assert.Equal(t, azcore.ETagAny, *ac.ModifiedAccessConditions.IfNoneMatch)

	assert.Nil(t, uploadConditions(&storage.UploadOptions{Overwrite: true}))

	ac = uploadConditions(&storage.UploadOptions{
		Conditions: &storage.RequestConditions{LeaseID: "lease-2"},
	})
	require.NotNil(t, ac)
	assert.Equal(t, azcore.ETagAny, *ac.ModifiedAccessConditions.IfNoneMatch)
	assert.Equal(t, "lease-2", *ac.LeaseAccessConditions.LeaseID)
}

func TestMetadataMaps(t *testing.T) {
	in := map[string]string{"a": "1", "b": "2"}
	ptrs := toPtrMap(in)
	require.Len(t, ptrs, 2)
	assert.Equal(t, "1", *ptrs["a"])
	assert.Equal(t, "2", *ptrs["b"])
	assert.Equal(t, in, fromPtrMap(ptrs))
	assert.Nil(t, toPtrMap(nil))
	assert.Empty(t, fromPtrMap(nil))
}

func TestLeaseDurationSeconds(t *testing.T) {
	assert.Equal(t, int32(-1), leaseDurationSeconds(storage.InfiniteLease))
	assert.Equal(t, int32(30), leaseDurationSeconds(30*time.Second))
}

func TestTranslateError_PassesThroughUnknown(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := translateError("list containers", cause)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, storage.ErrNotFound))
	assert.Contains(t, err.Error(), "failed to list containers")
	assert.NoError(t, translateError("noop", nil))
}
