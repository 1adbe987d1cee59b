package core

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	blobcore "estatecore/internal/blob/core"
	"estatecore/pkg/domain"
)

var errNoBlobStore = errors.New("no blob store configured")

// upload writes an attachment to the blob store outside any store
// transaction and returns its key.
func (s *Service) upload(ctx context.Context, op, key string, r io.Reader, contentType string) (string, error) {
	if s.blobs == nil {
		return "", domain.ExternalOperationError{Operation: op, Err: errNoBlobStore}
	}
	start := time.Now()
	info, err := s.blobs.Put(ctx, key, r, blobcore.PutOptions{ContentType: contentType})
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("attachment upload failed", zap.String("operation", op), zap.String("key", key), zap.Error(err))
		return "", domain.ExternalOperationError{Operation: op, Err: err}
	}
	return info.Key, nil
}

// discard removes an uploaded attachment whose reference could not be stored.
func (s *Service) discard(ctx context.Context, key string) {
	if _, err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("orphaned attachment", zap.String("key", key), zap.Error(err))
	}
}

func attachmentKey(kind, id, bucket, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	base = strings.ReplaceAll(base, " ", "_")
	return path.Join(kind, id, bucket, uuid.NewString()+"-"+base)
}
