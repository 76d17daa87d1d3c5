// Package filestore keeps report files outside the Record Store. References
// returned by Store are opaque to callers: a relative path for the local
// store, an object key for S3.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/healthvault/internal/common"
	sc "github.com/dmitrijs2005/healthvault/internal/server/config"
)

type Store interface {
	// Store saves data and returns its reference.
	Store(ctx context.Context, ownerID string, data []byte, contentType string) (string, error)
	// Remove deletes ref. existed is false when nothing was there to delete.
	Remove(ctx context.Context, ref string) (existed bool, err error)
	// Read returns common.ErrorNotFound when ref is absent.
	Read(ctx context.Context, ref string) ([]byte, error)
	// Exists returns ErrInvalidRef for a ref no store could hold.
	Exists(ctx context.Context, ref string) (bool, error)
}

// ErrInvalidRef marks a reference that is empty or escapes the store root.
// It also matches common.ErrorNotFound.
var ErrInvalidRef = errors.New("invalid file reference")

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// Allowed reports whether contentType may be stored.
func Allowed(contentType string) bool {
	_, ok := extensions[contentType]
	return ok
}

// NewKey builds a unique key like reports/<owner>/2024/1/10/<uuid>.pdf.
func NewKey(ownerID, contentType string) string {
	d := time.Now()
	name := uuid.NewString() + extensions[contentType]
	return path.Join("reports", ownerID, fmt.Sprint(d.Year()), fmt.Sprint(int(d.Month())), fmt.Sprint(d.Day()), name)
}

// validRef rejects references that are empty or escape the store root.
func validRef(ref string) error {
	clean := path.Clean(ref)
	if clean != ref || clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w %q: %w", ErrInvalidRef, ref, common.ErrorNotFound)
	}
	return nil
}

// New builds the store selected by cfg.FileStorage.
func New(ctx context.Context, cfg *sc.Config) (Store, error) {
	switch cfg.FileStorage {
	case sc.FileStorageS3:
		return NewS3Store(ctx, S3Options{
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3RootUser,
			SecretKey:    cfg.S3RootPassword,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Bucket:       cfg.S3Bucket,
		})
	case sc.FileStorageLocal, "":
		return NewLocalStore(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown file storage %q", cfg.FileStorage)
	}
}

// Presigner is implemented by stores that can hand out direct download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, ref string, ttl time.Duration) (string, error)
}
