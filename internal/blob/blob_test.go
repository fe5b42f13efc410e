package blob

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store, key string) {
	ctx := context.Background()
	info, err := s.Put(ctx, key, "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size)

	got, data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", got.ContentType)

	require.NoError(t, s.Delete(ctx, key))
	_, _, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory(), "images/p1/i1")
	assert.ErrorIs(t, NewMemory().Delete(context.Background(), "nope"), ErrNotFound)
}

func TestMemoryStoreCopiesData(t *testing.T) {
	m := NewMemory()
	buf := []byte("abc")
	_, err := m.Put(context.Background(), "k", "", buf)
	require.NoError(t, err)
	buf[0] = 'z'

	_, data, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestS3Store(t *testing.T) {
	bucket := os.Getenv("TELEMED_TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("TELEMED_TEST_S3_BUCKET not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := NewS3(ctx, S3Config{
		Bucket:    bucket,
		Region:    os.Getenv("TELEMED_TEST_S3_REGION"),
		Endpoint:  os.Getenv("TELEMED_TEST_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("TELEMED_TEST_S3_PATH_STYLE"), "true"),
	})
	require.NoError(t, err)
	exerciseStore(t, s, "test/"+time.Now().Format("20060102150405.000000000"))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{})
	assert.Error(t, err)
}
