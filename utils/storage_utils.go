package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// FileStorage stores uploaded files and returns their public URL.
type FileStorage interface {
	Save(ctx context.Context, data []byte, folder, fileName, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicURL is the base the object key is appended to. When empty the
	// virtual-hosted style URL of the endpoint is used.
	PublicURL string
}

// S3Storage keeps files in an S3-compatible bucket.
type S3Storage struct {
	client    *s3.S3
	bucket    string
	publicURL string
}

func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		host := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
		if host == "" {
			host = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		}
		publicURL = fmt.Sprintf("https://%s.%s", cfg.Bucket, host)
	}

	return &S3Storage{client: s3.New(sess), bucket: cfg.Bucket, publicURL: publicURL}, nil
}

func (s *S3Storage) Save(ctx context.Context, data []byte, folder, fileName, contentType string) (string, error) {
	key := path.Join(folder, fileName)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		ACL:           aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("unable to upload file to S3: %w", err)
	}

	return s.publicURL + "/" + key, nil
}

func (s *S3Storage) Delete(ctx context.Context, url string) error {
	key := strings.TrimPrefix(strings.TrimPrefix(url, s.publicURL), "/")
	if key == url || key == "" {
		return nil
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("unable to delete file from S3: %w", err)
	}
	return nil
}

// DiskStorage keeps files under a local directory served at baseURL.
type DiskStorage struct {
	dir     string
	baseURL string
}

func NewDiskStorage(dir, baseURL string) *DiskStorage {
	return &DiskStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (d *DiskStorage) Save(_ context.Context, data []byte, folder, fileName, _ string) (string, error) {
	target := filepath.Join(d.dir, folder)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(target, filepath.Base(fileName)), data, 0o644); err != nil {
		return "", err
	}
	return d.baseURL + "/" + path.Join(folder, filepath.Base(fileName)), nil
}

func (d *DiskStorage) Delete(_ context.Context, url string) error {
	rel := strings.TrimPrefix(url, d.baseURL+"/")
	if rel == url || rel == "" || strings.Contains(rel, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(d.dir, filepath.FromSlash(rel)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Dir is the directory served as static content.
func (d *DiskStorage) Dir() string {
	return d.dir
}
