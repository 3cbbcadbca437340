package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage MinIO归档实现
type MinioStorage struct {
	client     *minio.Client // MinIO客户端
	bucketName string        // 存储桶名称
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string // MinIO服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
	Bucket    string // 存储桶名称
}

// NewMinioStorage 创建MinIO存储实例，存储桶不存在时自动创建
func NewMinioStorage(ctx context.Context, cfg MinioConfig) (*MinioStorage, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "pdf-indexer"
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %v", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %v", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.Bucket,
	}, nil
}

// Save 流式上传文件，大小未知时由SDK分片
func (s *MinioStorage) Save(ctx context.Context, reader io.Reader, filename string) (FileInfo, error) {
	id := uuid.New().String()
	key := objectKey(id, filename)
	contentType := getMimeType(filename)

	info, err := s.client.PutObject(ctx, s.bucketName, key, reader, -1, minio.PutObjectOptions{
		ContentType:    contentType,
		SendContentMd5: true,
		UserMetadata:   map[string]string{"original-name": cleanName(filename)},
	})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload file: %v", err)
	}

	return FileInfo{
		ID:       id,
		Name:     cleanName(filename),
		Size:     info.Size,
		MimeType: contentType,
		Path:     key,
		Checksum: info.ChecksumSHA256,
	}, nil
}

// Open 按ID获取对象
func (s *MinioStorage) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	info, err := s.Stat(ctx, id)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, info.Path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %v", err)
	}
	return obj, nil
}

// Stat 按ID前缀查找对象
func (s *MinioStorage) Stat(ctx context.Context, id string) (FileInfo, error) {
	if _, err := uuid.Parse(id); err != nil {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    id + "/",
		Recursive: true,
	}) {
		if object.Err != nil {
			return FileInfo{}, fmt.Errorf("error listing objects: %v", object.Err)
		}
		if info, ok := minioFileInfo(object); ok {
			return info, nil
		}
	}
	return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete 删除对象
func (s *MinioStorage) Delete(ctx context.Context, id string) error {
	info, err := s.Stat(ctx, id)
	if err != nil {
		return err
	}

	err = s.client.RemoveObject(ctx, s.bucketName, info.Path, minio.RemoveObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete object: %v", err)
	}
	return nil
}

// List 列出存储桶中的所有归档文件
func (s *MinioStorage) List(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo
	for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %v", object.Err)
		}
		if info, ok := minioFileInfo(object); ok {
			files = append(files, info)
		}
	}
	return files, nil
}

// minioFileInfo 将对象信息转换为FileInfo
func minioFileInfo(object minio.ObjectInfo) (FileInfo, bool) {
	id, name, ok := splitKey(object.Key)
	if !ok {
		return FileInfo{}, false
	}
	return FileInfo{
		ID:       id,
		Name:     name,
		Size:     object.Size,
		MimeType: getMimeType(name),
		Path:     object.Key,
		Checksum: object.ChecksumSHA256,
	}, true
}
