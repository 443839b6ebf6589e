package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/storage"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
)

const (
	metadataHeaderPrefix = "X-Meta-"
	headerLeaseID        = "X-Lease-Id"
	headerTagConditions  = "X-If-Tags"
	headerVersionID      = "X-Version-Id"
)

// LeaseRequest is the body of PUT .../blobs/*?comp=lease.
type LeaseRequest struct {
	Action string `json:"action" validate:"required,oneof=acquire renew release break"`
	// DurationSeconds is 15-60, or -1 for an infinite lease. Used by acquire.
	DurationSeconds    int    `json:"durationSeconds"`
	LeaseID            string `json:"leaseId" validate:"required_if=Action renew,required_if=Action release"`
	BreakPeriodSeconds *int   `json:"breakPeriodSeconds,omitempty" validate:"omitempty,min=0,max=60"`
}

// storageError maps storage errors onto HTTP errors.
func storageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrProviderNotFound), errors.Is(err, storage.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrAlreadyExists), errors.Is(err, storage.ErrLeaseConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrPreconditionFailed):
		return echo.NewHTTPError(http.StatusPreconditionFailed, err.Error())
	default:
		// provider errors can name accounts and request ids; they reach the request log only
		return echo.NewHTTPError(http.StatusInternalServerError, "storage operation failed").SetInternal(err)
	}
}

func (s *Server) client(c echo.Context) (ports.CloudStorageClient, error) {
	client, err := s.storage.Client(c.Param("provider"))
	if err != nil {
		return nil, storageError(err)
	}
	return client, nil
}

func blobName(c echo.Context) (string, error) {
	name := strings.TrimPrefix(c.Param("*"), "/")
	if name == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "blob name is required")
	}
	return name, nil
}

func parseHTTPTime(c echo.Context, header string) (*time.Time, error) {
	v := c.Request().Header.Get(header)
	if v == "" {
		return nil, nil
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s header", header))
	}
	return &t, nil
}

// conditions reads the standard conditional request headers.
func conditions(c echo.Context) (storage.Conditions, error) {
	h := c.Request().Header
	cond := storage.Conditions{
		IfMatch:     h.Get("If-Match"),
		IfNoneMatch: h.Get("If-None-Match"),
	}
	var err error
	if cond.IfModifiedSince, err = parseHTTPTime(c, "If-Modified-Since"); err != nil {
		return cond, err
	}
	if cond.IfUnmodifiedSince, err = parseHTTPTime(c, "If-Unmodified-Since"); err != nil {
		return cond, err
	}
	return cond, nil
}

func requestConditions(c echo.Context) (*storage.RequestConditions, error) {
	cond, err := conditions(c)
	if err != nil {
		return nil, err
	}
	rc := &storage.RequestConditions{
		Conditions:    cond,
		LeaseID:       c.Request().Header.Get(headerLeaseID),
		TagConditions: c.Request().Header.Get(headerTagConditions),
	}
	if rc.Conditions.IsZero() && rc.LeaseID == "" && rc.TagConditions == "" {
		return nil, nil
	}
	return rc, nil
}

func metadataHeaders(c echo.Context) map[string]string {
	var md map[string]string
	for name, values := range c.Request().Header {
		if !strings.HasPrefix(name, metadataHeaderPrefix) || len(values) == 0 {
			continue
		}
		if md == nil {
			md = map[string]string{}
		}
		md[strings.ToLower(strings.TrimPrefix(name, metadataHeaderPrefix))] = values[0]
	}
	return md
}

// bindStringMap decodes a JSON object body. echo's Bind would also copy path params into a map.
func bindStringMap(c echo.Context) (map[string]string, error) {
	var m map[string]string
	if err := json.NewDecoder(c.Request().Body).Decode(&m); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return m, nil
}

func (s *Server) listStorageProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"providers": s.storage.Keys()})
}

func (s *Server) createContainer(c echo.Context) error {
	client, err := s.client(c)
	if err != nil {
		return err
	}
	if err := client.CreateContainerIfNotExists(c.Request().Context(), c.Param("container")); err != nil {
		return storageError(err)
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) getContainerProperties(c echo.Context) error {
	client, err := s.client(c)
	if err != nil {
		return err
	}
	props, err := client.GetContainerProperties(c.Request().Context(), c.Param("container"))
	if err != nil {
		return storageError(err)
	}
	return c.JSON(http.StatusOK, props)
}

func (s *Server) deleteContainer(c echo.Context) error {
	client, err := s.client(c)
	if err != nil {
		return err
	}
	if err := client.DeleteContainer(c.Request().Context(), c.Param("container")); err != nil {
		return storageError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// deleteBlobs deletes every blob under ?prefix=. An empty prefix needs ?all=true.
func (s *Server) deleteBlobs(c echo.Context) error {
	prefix := c.QueryParam("prefix")
	if prefix == "" && c.QueryParam("all") != "true" {
		return echo.NewHTTPError(http.StatusBadRequest, "prefix is required; pass all=true to empty the container")
	}
	client, err := s.client(c)
	if err != nil {
		return err
	}
	deleted, err := client.DeleteBlobs(c.Request().Context(), c.Param("container"), prefix)
	if err != nil {
		return storageError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deleted": deleted})
}

// putBlob uploads the request body, or updates metadata, tags or the lease per ?comp=.
func (s *Server) putBlob(c echo.Context) error {
	switch c.QueryParam("comp") {
	case "":
		return s.uploadBlob(c)
	case "metadata":
		return s.setBlobMetadata(c)
	case "tags":
		return s.setBlobTags(c)
	case "lease":
		return s.leaseBlob(c)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported comp parameter")
	}
}

func (s *Server) uploadBlob(c echo.Context) error {
	client, err := s.client(c)
	if err != nil {
		return err
	}
	name, err := blobName(c)
	if err != nil {
		return err
	}
	rc, err := requestConditions(c)
	if err != nil {
		return err
	}
	opts := &storage.UploadOptions{
		Overwrite:  c.QueryParam("overwrite") == "true",
		Metadata:   metadataHeaders(c),
		Conditions: rc,
	}
	if bs := c.QueryParam("blockSize"); bs != "" {
		if opts.Transfer.BlockSize, err = strconv.ParseInt(bs, 10, 64); err != nil || opts.Transfer.BlockSize < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid blockSize")
		}
	}
	version, err := client.Upload(c.Request().Context(), c.Param("container"), name, c.Request().Body, opts)
	if err != nil {
		return storageError(err)
	}
	if version != "" {
		c.Response().Header().Set(headerVersionID, version)
	}
	return c.JSON(http.StatusCreated, map[string]string{"container": c.Param("container"), "blob": name, "version_id": version})
}

func (s *Server) setBlobMetadata(c echo.Context) error {
	client, err := s.client(c)
	if err != nil {
		return err
	}
	name, err := blobName(c)
	if err != nil {
		return err
	}
	md, err := bindStringMap(c)
	if err != nil {
		return err
	}
	rc, err := requestConditions(c)
	if err != nil {
		return err
	}
	version, err := client.SetMetadata(c.Request().Context(), c.Param("container"), name, md, rc)
	if err != nil {
		return storageError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"version_id": version})
}

func (s *Server) setBlobTags(c echo.Context) error {
	client, err := s.client(c)
	if err != nil {
		return err
	}
	name, err := blobName(c)
	if err != nil {
		return err
	}
	tags, err := bindStringMap(c)
	if err != nil {
		return err
	}
	rc, err := requestConditions(c)
	if err != nil {
		return err
	}
	if err := client.SetTags(c.Request().Context(), c.Param("container"), name, tags, rc); err != nil {
		return storageError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) leaseBlob(c echo.Context) error {
	var req LeaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	client, err := s.client(c)
	if err != nil {
		return err
	}
	name, err := blobName(c)
	if err != nil {
		return err
	}
	cond, err := conditions(c)
	if err != nil {
		return err
	}
	var condPtr *storage.Conditions
	if !cond.IsZero() {
		condPtr = &cond
	}

	ctx := c.Request().Context()
	container := c.Param("container")
	var info *storage.LeaseInfo
	switch req.Action {
	case "acquire":
		duration := storage.InfiniteLease
		if req.DurationSeconds != -1 {
			if req.DurationSeconds < 15 || req.DurationSeconds > 60 {
				return echo.NewHTTPError(http.StatusBadRequest, "durationSeconds must be between 15 and 60, or -1")
			}
			duration = time.Duration(req.DurationSeconds) * time.Second
		}
		info, err = client.AcquireLease(ctx, container, name, duration, condPtr)
	case "renew":
		info, err = client.RenewLease(ctx, container, name, req.LeaseID, condPtr)
	case "release":
		info, err = client.ReleaseLease(ctx, container, name, req.LeaseID)
	case "break":
		var period *time.Duration
		if req.BreakPeriodSeconds != nil {
			p := time.Duration(*req.BreakPeriodSeconds) * time.Second
			period = &p
		}
		info, err = client.BreakLease(ctx, container, name, period, condPtr)
	}
	if err != nil {
		return storageError(err)
	}
	return c.JSON(http.StatusOK, info)
}

// getBlob streams the blob content, or returns its metadata for ?comp=metadata.
func (s *Server) getBlob(c echo.Context) error {
	client, err := s.client(c)
	if err != nil {
		return err
	}
	name, err := blobName(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if c.QueryParam("comp") == "metadata" {
		md, err := client.GetMetadata(ctx, c.Param("container"), name)
		if err != nil {
			return storageError(err)
		}
		return c.JSON(http.StatusOK, md)
	}

	rc, err := requestConditions(c)
	if err != nil {
		return err
	}
	body, err := client.Download(ctx, c.Param("container"), name, &storage.DownloadOptions{Conditions: rc})
	if err != nil {
		return storageError(err)
	}
	defer body.Close()
	return c.Stream(http.StatusOK, echo.MIMEOctetStream, body)
}

func (s *Server) blobExists(c echo.Context) error {
	client, err := s.client(c)
	if err != nil {
		return err
	}
	name, err := blobName(c)
	if err != nil {
		return err
	}
	exists, err := client.Exists(c.Request().Context(), c.Param("container"), name)
	if err != nil {
		return storageError(err)
	}
	if !exists {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) deleteBlob(c echo.Context) error {
	client, err := s.client(c)
	if err != nil {
		return err
	}
	name, err := blobName(c)
	if err != nil {
		return err
	}
	if err := client.DeleteBlob(c.Request().Context(), c.Param("container"), name); err != nil {
		return storageError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
