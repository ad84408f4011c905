package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
)

// MinioStore keeps artifacts in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger logger.Logger
}

// NewMinioStore connects and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errs.New(errs.ErrorTypeValidation, "minio endpoint and bucket are required")
	}
	log := logger.GetLogger().WithFields(map[string]interface{}{
		"component": "minio",
		"endpoint":  cfg.Endpoint,
		"bucket":    cfg.Bucket,
	})

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		log.WithError(err).Error("cannot connect to minio")
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errs.Upstream(0, err, "failed to check artifact bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			// Another instance may have created it in the meantime.
			if again, errExists := client.BucketExists(ctx, cfg.Bucket); errExists != nil || !again {
				return nil, errs.Upstream(0, err, "failed to create artifact bucket")
			}
		}
		log.Info("Successfully created bucket")
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, logger: log}, nil
}

// Put uploads the artifact and returns its bucket path.
func (s *MinioStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = ContentTypeFor(name)
	}
	if _, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		s.logger.WithError(err).WarnWithFields("Failed to upload artifact", map[string]interface{}{"name": name})
		return "", errs.Upstream(0, err, "artifact upload failed")
	}
	return s.bucket + "/" + name, nil
}

// Open streams an artifact from the bucket.
func (s *MinioStore) Open(ctx context.Context, name string) (io.ReadCloser, Info, error) {
	if err := ValidateName(name); err != nil {
		return nil, Info{}, err
	}
	st, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return nil, Info{}, s.classify(name, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, Info{}, s.classify(name, err)
	}
	return obj, Info{Name: name, Size: st.Size, ContentType: st.ContentType, ModTime: st.LastModified}, nil
}

// Exists reports whether the object is present.
func (s *MinioStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	_, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, s.classify(name, err)
}

func (s *MinioStore) classify(name string, err error) error {
	if isNotFound(err) {
		return errs.New(errs.ErrorTypeNotFound, fmt.Sprintf("artifact %s not found", name))
	}
	return errs.Upstream(0, err, "artifact storage failed")
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
