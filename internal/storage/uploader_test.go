package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUploaderValidates(t *testing.T) {
	_, err := NewUploader(Config{Region: "eu-1", AccessKey: "a", SecretKey: "s"})
	assert.ErrorContains(t, err, "bucket")
	_, err = NewUploader(Config{Bucket: "b", AccessKey: "a", SecretKey: "s"})
	assert.ErrorContains(t, err, "region")
	_, err = NewUploader(Config{Bucket: "b", Region: "eu-1"})
	assert.ErrorContains(t, err, "credentials")
}

func TestObjectKeyLayout(t *testing.T) {
	u, err := NewUploader(Config{Bucket: "b", Region: "eu-1", AccessKey: "a", SecretKey: "s", Prefix: "/backups/"})
	require.NoError(t, err)
	u.now = func() time.Time { return time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC) }

	key := u.objectKey(ContentTypeZstdJSON)
	assert.Regexp(t, regexp.MustCompile(`^backups/2026/03/07/[0-9a-f-]{36}\.json\.zst$`), key)
	assert.NotEqual(t, key, u.objectKey(ContentTypeZstdJSON))
	assert.Equal(t, ".bin", extensionFromContentType("text/plain"))
}

func TestUploadRejectsEmptyData(t *testing.T) {
	u, err := NewUploader(Config{Bucket: "b", Region: "eu-1", AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	_, err = u.Upload(context.Background(), nil, ContentTypeZstdJSON)
	assert.Error(t, err)
}
