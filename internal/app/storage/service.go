/*
Package storage issues presigned upload URLs for avatar and banner images and confirms the
uploads before their public URLs are recorded on a profile.

Images go straight from the client to S3-compatible storage; the bytes never pass through
this process except when the CLI uploads a local file with Put.
*/
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"holidaze/internal/configs"
	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/logx"
)

var (
	ErrStorageNotConfigured = errs.Define(errs.ErrStorageNotConfigured, "storage: uploads are not configured")
	ErrStorageFailed        = errs.Define(errs.ErrFileStorageFailed, "storage: object storage failed")
	ErrObjectNotFound       = errs.Define(errs.ErrInvalidParams, "storage: object not found")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	ContentType string
	Size        int64
}

// Backend is the object storage the service drives.
type Backend interface {
	// PresignUpload generates a pre-signed URL for uploading an object.
	PresignUpload(ctx context.Context, key, mimeType string, size int64, duration time.Duration) (string, error)

	// Delete removes the object with the given key.
	Delete(ctx context.Context, key string) error

	// GetObjectMetadata returns the stored object's type and size.
	GetObjectMetadata(ctx context.Context, key string) (ObjectInfo, error)
}

// UploadRequest describes an image the client is about to upload.
type UploadRequest struct {
	Kind     Kind   `json:"kind"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"fileSize"`
}

// Upload is a granted upload.
type Upload struct {
	URL       string    `json:"presignedUrl"`
	Key       string    `json:"fileKey"`
	PublicURL string    `json:"publicUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service grants and confirms image uploads. A Service without a backend is disabled and
// every call fails with ErrStorageNotConfigured.
type Service struct {
	backend       Backend
	publicBaseURL string
	now           func() time.Time
}

// NewService returns a service over backend publishing objects under publicBaseURL.
func NewService(backend Backend, publicBaseURL string) *Service {
	return &Service{
		backend:       backend,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}
}

// NewStorageService builds the service for cfg. Without a bucket it returns a disabled service.
func NewStorageService(ctx context.Context, cfg configs.StorageConfig) (*Service, error) {
	if !cfg.Enabled() {
		return &Service{now: time.Now}, nil
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	base := cfg.PublicBaseURL
	if base == "" {
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return NewService(client, base), nil
}

// Enabled reports whether uploads are configured.
func (s *Service) Enabled() bool {
	return s != nil && s.backend != nil
}

// PublicURL is where the object with key is displayed from.
func (s *Service) PublicURL(key string) string {
	return s.publicBaseURL + "/" + strings.TrimLeft(key, "/")
}

// PresignImage validates req and grants an upload URL for an image of handle.
func (s *Service) PresignImage(ctx context.Context, handle string, req UploadRequest) (Upload, error) {
	if !s.Enabled() {
		return Upload{}, ErrStorageNotConfigured
	}
	if req.Kind != KindAvatar && req.Kind != KindBanner {
		return Upload{}, fmt.Errorf("%w: unknown image kind %q", ErrImageType, req.Kind)
	}
	if err := ValidateSize(req.Size); err != nil {
		return Upload{}, err
	}
	if err := ValidateType(req.FileName, req.MimeType); err != nil {
		return Upload{}, err
	}

	key := ObjectKey(req.Kind, handle, req.FileName)
	url, err := s.backend.PresignUpload(ctx, key, strings.ToLower(req.MimeType), req.Size, PresignedURLDuration)
	if err != nil {
		return Upload{}, err
	}

	return Upload{
		URL:       url,
		Key:       key,
		PublicURL: s.PublicURL(key),
		ExpiresAt: s.now().Add(PresignedURLDuration),
	}, nil
}

// Confirm checks that the object with key was uploaded by handle and is an acceptable image,
// and returns its public URL. Unacceptable objects are deleted.
func (s *Service) Confirm(ctx context.Context, handle, key string) (string, error) {
	if !s.Enabled() {
		return "", ErrStorageNotConfigured
	}
	if !ownedBy(key, handle) {
		return "", ErrInvalidKey
	}

	info, err := s.backend.GetObjectMetadata(ctx, key)
	if err != nil {
		return "", err
	}

	verr := ValidateSize(info.Size)
	if verr == nil {
		if _, ok := AllowedMIMETypes[strings.ToLower(info.ContentType)]; !ok {
			verr = ErrImageType
		}
	}
	if verr != nil {
		if err := s.backend.Delete(ctx, key); err != nil {
			logx.Warn("Failed to delete rejected upload", "key", key, "error", err.Error())
		}
		return "", verr
	}

	return s.PublicURL(key), nil
}

// Put uploads body to a presigned URL, as a browser would.
func Put(ctx context.Context, client *http.Client, url, mimeType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("storage: building upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", mimeType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: uploading: %v", ErrStorageFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: upload answered HTTP %d", ErrStorageFailed, resp.StatusCode)
	}
	return nil
}

