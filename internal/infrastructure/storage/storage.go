// Package storage uploads permit documents. It writes to S3 when a bucket is configured
// and to a local directory otherwise.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

const MaxFileSize = 20 * 1024 * 1024

var (
	ErrEmptyFile    = errors.New("file is empty")
	ErrFileTooLarge = errors.New("file exceeds maximum size")
	ErrFileType     = errors.New("file type not allowed")
)

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// Object is a file to upload.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

// Store persists objects and returns their public URL.
type Store interface {
	Put(ctx context.Context, folder string, obj Object) (string, error)
}

// Options configures New.
type Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	LocalDir        string
	PublicBaseURL   string
}

// New returns an S3Store when a bucket is set, else a LocalStore.
func New(opts Options) (Store, error) {
	if opts.Bucket == "" {
		return NewLocalStore(opts.LocalDir, opts.PublicBaseURL)
	}
	cfg := &aws.Config{Region: aws.String(opts.Region)}
	if opts.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, "")
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewS3Store(s3.New(sess), opts.Bucket, opts.Region, opts.Endpoint), nil
}

// Validate checks size and extension.
func Validate(obj Object) error {
	if len(obj.Data) == 0 {
		return ErrEmptyFile
	}
	if len(obj.Data) > MaxFileSize {
		return ErrFileTooLarge
	}
	if _, ok := allowedExtensions[strings.ToLower(filepath.Ext(obj.Name))]; !ok {
		return ErrFileType
	}
	return nil
}

func objectKey(folder, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return path.Join(folder, time.Now().UTC().Format("2006/01"), uuid.NewString()+ext)
}

type putter interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Store uploads to an S3 bucket.
type S3Store struct {
	client   putter
	bucket   string
	region   string
	endpoint string
}

func NewS3Store(client putter, bucket, region, endpoint string) *S3Store {
	return &S3Store{client: client, bucket: bucket, region: region, endpoint: endpoint}
}

func (s *S3Store) Put(ctx context.Context, folder string, obj Object) (string, error) {
	if err := Validate(obj); err != nil {
		return "", err
	}
	key := objectKey(folder, obj.Name)
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(obj.Data),
		ContentType:   aws.String(obj.ContentType),
		ContentLength: aws.Int64(int64(len(obj.Data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return s.url(key), nil
}

func (s *S3Store) url(key string) string {
	if s.endpoint != "" {
		return strings.TrimRight(s.endpoint, "/") + "/" + s.bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// LocalStore writes objects below dir and serves them from baseURL/uploads.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the root directory served under /uploads.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(_ context.Context, folder string, obj Object) (string, error) {
	if err := Validate(obj); err != nil {
		return "", err
	}
	key := objectKey(folder, obj.Name)
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	if err := os.WriteFile(target, obj.Data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return s.baseURL + "/uploads/" + key, nil
}
