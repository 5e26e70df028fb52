package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage stores document blobs in a MinIO/S3 bucket. Paths map
// directly to object keys.
type ObjectStorage struct {
	client *minio.Client
	bucket string
}

type ObjectStorageArgs struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

func NewObjectStorage(args ObjectStorageArgs) (Storage, error) {
	client, err := minio.New(args.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(args.AccessKey, args.SecretKey, ""),
		Secure: args.UseSSL,
		Region: args.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating object storage client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, args.Bucket)
	if err != nil {
		return nil, fmt.Errorf("error checking bucket %v: %w", args.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, args.Bucket, minio.MakeBucketOptions{Region: args.Region}); err != nil {
			return nil, fmt.Errorf("error creating bucket %v: %w", args.Bucket, err)
		}
	}

	slog.Info("creating new object storage", "endpoint", args.Endpoint, "bucket", args.Bucket)

	return &ObjectStorage{client: client, bucket: args.Bucket}, nil
}

func (s *ObjectStorage) Read(path string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(context.Background(), s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		slog.Error("error reading object", "path", path, "error", err)
		return nil, fmt.Errorf("error reading file %v: %v", path, err)
	}
	return obj, nil
}

func (s *ObjectStorage) Write(path string, data io.Reader) error {
	// Size -1 streams the body with multipart upload.
	_, err := s.client.PutObject(context.Background(), s.bucket, path, data, -1, minio.PutObjectOptions{})
	if err != nil {
		slog.Error("error writing object", "path", path, "error", err)
		return fmt.Errorf("error writing to file %v: %v", path, err)
	}
	return nil
}

func (s *ObjectStorage) Delete(path string) error {
	err := s.client.RemoveObject(context.Background(), s.bucket, path, minio.RemoveObjectOptions{})
	if err != nil {
		slog.Error("error deleting object", "path", path, "error", err)
		return fmt.Errorf("error deleting file %v: %v", path, err)
	}
	return nil
}

func (s *ObjectStorage) Exists(path string) (bool, error) {
	_, err := s.client.StatObject(context.Background(), s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		var minioErr minio.ErrorResponse
		if errors.As(err, &minioErr) && minioErr.Code == "NoSuchKey" {
			return false, nil
		}
		slog.Error("error checking if object exists", "path", path, "error", err)
		return false, fmt.Errorf("error checking if file %v exists: %w", path, err)
	}
	return true, nil
}

func (s *ObjectStorage) Usage() (UsageStats, error) {
	// Bucket capacity is not bounded, the disk usage guard does not apply.
	return UsageStats{}, nil
}

func (s *ObjectStorage) Location() string {
	return s.bucket
}
