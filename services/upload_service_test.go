package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chyrp-api/config"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

func newUploadService(t *testing.T, maxSize int64) (*UploadService, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewLocalStore(root, "http://localhost:5000/uploads/")
	require.NoError(t, err)
	svc := NewUploadService(store, maxSize, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC) }
	return svc, root
}

func TestUploadStoresImage(t *testing.T) {
	svc, root := newUploadService(t, 1<<20)

	url, err := svc.Upload(context.Background(), bytes.NewReader(pngBytes), int64(len(pngBytes)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:5000/uploads/2024/05/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	name := filepath.Base(url)
	data, err := os.ReadFile(filepath.Join(root, "2024", "05", name))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestUploadRejects(t *testing.T) {
	svc, _ := newUploadService(t, 64)
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)
	text := []byte("just some notes")
	big := append(append([]byte{}, pngBytes...), make([]byte, 100)...)

	tests := []struct {
		name string
		data []byte
		size int64
	}{
		{name: "empty", data: nil, size: 0},
		{name: "declared too large", data: pngBytes, size: 1 << 20},
		{name: "actually too large", data: big, size: 10},
		{name: "svg", data: svg, size: int64(len(svg))},
		{name: "plain text", data: text, size: int64(len(text))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), bytes.NewReader(tt.data), tt.size)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, "file", verr.Field)
		})
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost/uploads")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "uploads/../../etc/passwd", strings.NewReader("x"), 1, "text/plain")
	assert.Error(t, err)
}

func TestNewBlobStore(t *testing.T) {
	ctx := context.Background()

	store, err := NewBlobStore(ctx, config.StorageConfig{Driver: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	store, err = NewBlobStore(ctx, config.StorageConfig{
		Driver: "s3",
		S3:     config.S3Config{Endpoint: "localhost:9000", Bucket: "media", AccessKey: "k", SecretKey: "s"},
	})
	require.NoError(t, err)
	s3, ok := store.(*S3Store)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9000/media", s3.publicURL)

	_, err = NewBlobStore(ctx, config.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)
}
