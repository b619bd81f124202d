// Package archive stores raw event payloads in object storage for replay and
// debugging. Archiving is strictly best effort: it runs off the ingest hot
// path and its failures never affect the client-visible contract.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leadintent_backend/platform/config"
	"leadintent_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver writes event payloads to a MinIO/S3 bucket.
type Archiver struct {
	client *minio.Client
	bucket string
	logger *logger.Logger
}

// New creates the archiver and ensures the bucket exists. Returns nil (no
// error) when archiving is not configured.
func New(ctx context.Context, cfg config.ArchiveConfig, log *logger.Logger) (*Archiver, error) {
	if !cfg.IsArchiveEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	bucket := cfg.GetArchiveBucket()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create archive bucket: %w", err)
		}
	}

	log.Info("event payload archive enabled", "bucket", bucket)
	return &Archiver{client: client, bucket: bucket, logger: log}, nil
}

// Archive stores one event payload under a date-partitioned key.
func (a *Archiver) Archive(ctx context.Context, eventID uuid.UUID, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal archive payload: %w", err)
	}

	key := fmt.Sprintf("events/%s/%s.json", time.Now().UTC().Format("2006/01/02"), eventID)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("store archive object %s: %w", key, err)
	}
	return nil
}
