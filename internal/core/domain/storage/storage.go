package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("storage: not found")
	ErrAlreadyExists      = errors.New("storage: already exists")
	ErrPreconditionFailed = errors.New("storage: precondition failed")
	ErrLeaseConflict      = errors.New("storage: lease conflict")
	ErrProviderNotFound   = errors.New("storage: provider not found")
)

// Conditions are the HTTP conditional headers shared by container, blob and lease operations.
type Conditions struct {
	IfMatch           string     `json:"if_match,omitempty"`
	IfNoneMatch       string     `json:"if_none_match,omitempty"`
	IfModifiedSince   *time.Time `json:"if_modified_since,omitempty"`
	IfUnmodifiedSince *time.Time `json:"if_unmodified_since,omitempty"`
}

// IsZero reports whether no condition is set.
func (c Conditions) IsZero() bool {
	return c.IfMatch == "" && c.IfNoneMatch == "" && c.IfModifiedSince == nil && c.IfUnmodifiedSince == nil
}

// RequestConditions extend Conditions with blob-level lease and tag predicates.
type RequestConditions struct {
	Conditions
	LeaseID       string `json:"lease_id,omitempty"`
	TagConditions string `json:"tag_conditions,omitempty"`
}

// TransferOptions tune chunked transfers. Zero values use the provider defaults.
type TransferOptions struct {
	BlockSize   int64
	Concurrency int
}

type UploadOptions struct {
	// Overwrite replaces an existing blob; when false the upload fails with
	// ErrAlreadyExists if the blob is present.
	Overwrite  bool
	Metadata   map[string]string
	Tags       map[string]string
	Conditions *RequestConditions
	Transfer   TransferOptions
}

type DownloadOptions struct {
	Conditions *RequestConditions
	Transfer   TransferOptions
}

type ContainerProperties struct {
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

// LeaseInfo describes the state of a blob lease after a lease operation.
type LeaseInfo struct {
	LeaseID string `json:"lease_id,omitempty"`
	// LeaseTime is the remaining break period; only set by BreakLease.
	LeaseTime    *time.Duration `json:"lease_time,omitempty"`
	LastModified time.Time      `json:"last_modified"`
	ETag         string         `json:"etag"`
}

// InfiniteLease requests a lease that never expires.
const InfiniteLease time.Duration = -1
