package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObjectWithContext(_ aws.Context, input *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.input = input
	if input.Body != nil {
		f.body, _ = io.ReadAll(input.Body)
	}
	return &s3.PutObjectOutput{}, f.err
}

func TestLocalStorePutWritesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8080/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "licenses/1/SP", Object{Name: "permit.PDF", ContentType: "application/pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost:8080/uploads/licenses/1/SP/"))
	assert.True(t, strings.HasSuffix(url, ".pdf"))

	key := strings.TrimPrefix(url, "http://localhost:8080/uploads/")
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)
}

func TestValidateRejects(t *testing.T) {
	assert.ErrorIs(t, Validate(Object{Name: "a.pdf"}), ErrEmptyFile)
	assert.ErrorIs(t, Validate(Object{Name: "a.exe", Data: []byte("x")}), ErrFileType)
	assert.ErrorIs(t, Validate(Object{Name: "a.pdf", Data: make([]byte, MaxFileSize+1)}), ErrFileTooLarge)
}

func TestS3StorePut(t *testing.T) {
	client := &fakePutter{}
	store := NewS3Store(client, "permits", "sa-east-1", "")

	url, err := store.Put(context.Background(), "licenses/7/MG", Object{Name: "doc.png", ContentType: "image/png", Data: []byte("png")})
	require.NoError(t, err)
	require.NotNil(t, client.input)
	assert.Equal(t, "permits", aws.StringValue(client.input.Bucket))
	assert.Equal(t, "image/png", aws.StringValue(client.input.ContentType))
	assert.Equal(t, []byte("png"), client.body)
	assert.Equal(t, "https://permits.s3.sa-east-1.amazonaws.com/"+aws.StringValue(client.input.Key), url)
}

func TestS3StorePutError(t *testing.T) {
	client := &fakePutter{err: errors.New("denied")}
	store := NewS3Store(client, "permits", "sa-east-1", "http://minio:9000")
	_, err := store.Put(context.Background(), "x", Object{Name: "doc.pdf", Data: []byte("x")})
	assert.Error(t, err)
}
