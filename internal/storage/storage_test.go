package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolshed-backend/internal/config"
	"toolshed-backend/internal/domain"
)

func TestMockStorageService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m, err := NewMockStorageService("http://localhost:8080/", t.TempDir())
	require.NoError(t, err)

	key := "disputes/3/photo.jpg"
	exists, _, err := m.FileExists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.SaveFile(key, strings.NewReader("jpegbytes")))
	exists, size, err := m.FileExists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(9), size)

	rc, err := m.ReadFile(key)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "jpegbytes", string(body))

	require.NoError(t, m.DeleteFile(ctx, key))
	require.NoError(t, m.DeleteFile(ctx, key))
	exists, _, _ = m.FileExists(ctx, key)
	assert.False(t, exists)
}

func TestMockStorageService_URLs(t *testing.T) {
	m, err := NewMockStorageService("http://localhost:8080/", t.TempDir())
	require.NoError(t, err)

	upload, err := m.GeneratePresignedUploadURL(context.Background(), "disputes/3/a b.png", "image/png", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(upload, "http://localhost:8080/api/v1/upload/"))
	assert.Contains(t, upload, "key=disputes%2F3%2Fa+b.png")

	_, err = m.GeneratePresignedUploadURL(context.Background(), "../etc/passwd", "text/plain", time.Minute)
	assert.Error(t, err)
	assert.Error(t, m.SaveFile("/abs", strings.NewReader("x")))
}

type fakeS3 struct {
	headErr error
	size    int64
}

func (f *fakeS3) HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(f.size)}, nil
}

func (f *fakeS3) DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3/" + aws.ToString(in.Key) + "?put"}, nil
}

func (fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3/" + aws.ToString(in.Key)}, nil
}

func TestS3Storage_FileExists(t *testing.T) {
	ctx := context.Background()

	s := &S3Storage{bucket: "evidence", client: &fakeS3{size: 512}, presign: fakePresigner{}}
	exists, size, err := s.FileExists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(512), size)

	s.client = &fakeS3{headErr: &types.NotFound{}}
	exists, _, err = s.FileExists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	s.client = &fakeS3{headErr: errors.New("timeout")}
	_, _, err = s.FileExists(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	url, err := s.GeneratePresignedUploadURL(ctx, "disputes/1/x.jpg", "image/jpeg", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3/disputes/1/x.jpg?put", url)
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Type: "mock", UploadDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &MockStorageService{}, s)

	_, err = New(context.Background(), config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}
