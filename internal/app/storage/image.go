package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/randx"
)

const (
	// MaxImageSizeMB is the maximum allowed image size in megabytes.
	MaxImageSizeMB = 5

	// MaxImageSize is the maximum allowed image size in bytes.
	MaxImageSize = MaxImageSizeMB * 1024 * 1024

	// PresignedURLDuration is how long an upload URL stays valid.
	PresignedURLDuration = 5 * time.Minute
)

var (
	ErrEmptyImage    = errs.Define(errs.ErrInvalidParams, "storage: empty image")
	ErrImageTooLarge = errs.Define(errs.ErrFileSizeTooLarge, "storage: image too large")
	ErrImageType     = errs.Define(errs.ErrFileTypeInvalid, "storage: unsupported image type")
	ErrInvalidKey    = errs.Define(errs.ErrInvalidParams, "storage: object key does not belong to the user")
)

// AllowedMIMETypes defines the set of permitted image types.
var AllowedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// ExtToMIME maps file extensions to their corresponding MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// Kind is what an uploaded image is used for.
type Kind string

const (
	KindAvatar Kind = "avatar"
	KindBanner Kind = "banner"
)

// ParseKind accepts "avatar" and "banner".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAvatar, KindBanner:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown image kind %q", ErrImageType, s)
	}
}

// ValidateSize checks that size is within acceptable limits.
func ValidateSize(size int64) error {
	if size <= 0 {
		return ErrEmptyImage
	}
	if size > MaxImageSize {
		return ErrImageTooLarge
	}
	return nil
}

// ValidateType checks that the file name's extension and the MIME type agree on an allowed type.
func ValidateType(fileName, mimeType string) error {
	lowerMimeType := strings.ToLower(mimeType)

	if _, ok := AllowedMIMETypes[lowerMimeType]; !ok {
		return ErrImageType
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	expectedMIME, ok := ExtToMIME[ext]
	if !ok || expectedMIME != lowerMimeType {
		return ErrImageType
	}
	return nil
}

// MIMEFor returns the MIME type implied by the file name's extension.
func MIMEFor(fileName string) (string, bool) {
	mime, ok := ExtToMIME[strings.ToLower(filepath.Ext(fileName))]
	return mime, ok
}

// ObjectKey builds a fresh key for an image of handle: <kind>/<handle>/<id><ext>.
func ObjectKey(kind Kind, handle, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("%s/%s/%s%s", kind, handle, randx.ObjectID(), ext)
}

// ownedBy reports whether key was issued for an image of handle.
func ownedBy(key, handle string) bool {
	for _, kind := range []Kind{KindAvatar, KindBanner} {
		if strings.HasPrefix(key, fmt.Sprintf("%s/%s/", kind, handle)) {
			return true
		}
	}
	return false
}

