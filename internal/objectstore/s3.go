// Package objectstore implements model.ObjectStore against an S3-compatible
// bucket via minio-go, the way bunbase's storage client wraps the same
// library for its own object operations.
package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"snapvault/internal/model"
)

// multipartPartSize is the part size PutMultipart passes to minio-go;
// minio-go's PutObject already multiparts internally for a streaming
// reader of unknown size, so PutMultipart just calls through with size -1.
const multipartPartSize = 64 << 20

type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

type S3Store struct {
	id     string
	mc     *minio.Client
	bucket string
}

func NewS3(id string, cfg Config) (*S3Store, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, &model.EnvironmentError{Msg: "create minio client for " + cfg.Endpoint, Cause: err}
	}
	return &S3Store{id: id, mc: mc, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Name() string { return s.id }

func (s *S3Store) List(prefix string) ([]model.ObjectStat, error) {
	ctx := context.Background()
	ch := s.mc.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	var out []model.ObjectStat
	for obj := range ch {
		if obj.Err != nil {
			return nil, &model.EnvironmentError{Msg: "list objects in " + s.bucket, Cause: obj.Err}
		}
		out = append(out, model.ObjectStat{Key: obj.Key, Size: obj.Size})
	}
	return out, nil
}

func (s *S3Store) Put(key string, r io.Reader, size int64) error {
	ctx := context.Background()
	_, err := s.mc.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{})
	if err != nil {
		return &model.PartialUploadError{Key: key, Cause: err}
	}
	return nil
}

// PutMultipart streams r of unknown length; minio-go buffers and uploads
// in multipartPartSize chunks internally when size is -1.
func (s *S3Store) PutMultipart(key string, r io.Reader) error {
	ctx := context.Background()
	_, err := s.mc.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		PartSize: multipartPartSize,
	})
	if err != nil {
		return &model.PartialUploadError{Key: key, Cause: err}
	}
	return nil
}

func (s *S3Store) Delete(key string) error {
	ctx := context.Background()
	if err := s.mc.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}
