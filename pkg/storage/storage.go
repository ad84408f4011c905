package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
)

// Info describes a stored artifact.
type Info struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// ArtifactStore persists artifacts by name.
type ArtifactStore interface {
	// Put stores r under name and returns where it was written. size may be
	// -1 when unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	// Open returns the artifact's content. Missing artifacts yield a
	// NotFound error.
	Open(ctx context.Context, name string) (io.ReadCloser, Info, error)
	Exists(ctx context.Context, name string) (bool, error)
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (ArtifactStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "fs", "file":
		return NewFileStore(cfg.Dir)
	case "minio", "s3":
		return NewMinioStore(ctx, cfg.Minio)
	default:
		return nil, errs.New(errs.ErrorTypeValidation, fmt.Sprintf("unknown storage backend %q", cfg.Backend))
	}
}

// ValidateName rejects names that could escape the store.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errs.New(errs.ErrorTypeValidation, "artifact name is required")
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."):
		return errs.New(errs.ErrorTypeValidation, fmt.Sprintf("invalid artifact name %q", name))
	}
	return nil
}

// ContentTypeFor guesses the content type from the artifact extension.
func ContentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".jpg"), strings.HasSuffix(name, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
