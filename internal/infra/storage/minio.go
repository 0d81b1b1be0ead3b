package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	log        *slog.Logger
}

// New buat koneksi MinIO
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool, logger *slog.Logger) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region, log: logger}, nil
}

// Upload copies one local file to the remote key.
func (s *Store) Upload(ctx context.Context, localPath, remotePath string) error {
	_, err := s.client.FPutObject(ctx, s.bucketName, remotePath, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(localPath),
	})
	if err != nil {
		s.log.Error("artifact upload failed",
			slog.String("local", localPath),
			slog.String("remote", remotePath),
			slog.Any("err", err))
		return err
	}
	s.log.Info("artifact uploaded",
		slog.String("remote", remotePath),
		slog.String("bucket", s.bucketName))
	return nil
}

// DeleteLocalTree removes a scan output directory. Best-effort: a directory
// that cannot be removed is logged and left for manual recovery.
func (s *Store) DeleteLocalTree(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		s.log.Warn("skip delete of non-existent directory", slog.String("path", path))
		return
	}
	if err := os.RemoveAll(path); err != nil {
		s.log.Error("failed to delete local directory", slog.String("path", path), slog.Any("err", err))
		return
	}
	s.log.Info("deleted local directory", slog.String("path", path))
}

// FetchPayload downloads a remote object in full (the worker's tool payload).
func (s *Store) FetchPayload(ctx context.Context, remotePath string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// mimeType sederhana
func contentTypeFor(localPath string) string {
	switch filepath.Ext(localPath) {
	case ".json":
		return "application/json"
	case ".txt", ".stdout", ".stderr", ".log":
		return "text/plain"
	case ".html":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
