// File: /services/upload_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadService validates and stores media files.
type UploadService struct {
	store   BlobStore
	maxSize int64
	log     *zap.Logger
	now     func() time.Time
}

func NewUploadService(store BlobStore, maxSize int64, log *zap.Logger) *UploadService {
	if maxSize <= 0 {
		maxSize = 20 << 20
	}
	return &UploadService{store: store, maxSize: maxSize, log: log, now: time.Now}
}

func (s *UploadService) MaxSize() int64 {
	return s.maxSize
}

// Upload sniffs the content type from the bytes themselves and accepts
// images, audio and video only.
func (s *UploadService) Upload(ctx context.Context, r io.Reader, size int64) (string, error) {
	if size == 0 {
		return "", invalid("file", "No file selected")
	}
	if size > s.maxSize {
		return "", invalid("file", fmt.Sprintf("File exceeds the %d MB limit", s.maxSize>>20))
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return "", invalid("file", fmt.Sprintf("File exceeds the %d MB limit", s.maxSize>>20))
	}

	mtype := mimetype.Detect(data)
	if !allowedMedia(mtype) {
		return "", invalid("file", fmt.Sprintf("File type %s is not allowed", mtype.String()))
	}

	now := s.now().UTC()
	key := fmt.Sprintf("uploads/%04d/%02d/%s%s", now.Year(), now.Month(), uuid.NewString(), mtype.Extension())

	url, err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mtype.String())
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	s.log.Info("file uploaded", zap.String("key", key), zap.String("content_type", mtype.String()), zap.Int("bytes", len(data)))
	return url, nil
}

// allowedMedia rejects SVG since it can carry script.
func allowedMedia(m *mimetype.MIME) bool {
	if m.Is("image/svg+xml") {
		return false
	}
	major, _, _ := strings.Cut(m.String(), "/")
	switch major {
	case "image", "audio", "video":
		return true
	}
	return false
}
