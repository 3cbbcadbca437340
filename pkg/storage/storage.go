package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrNotFound 归档文件不存在
var ErrNotFound = errors.New("archived file not found")

// FileInfo 归档文件元数据
type FileInfo struct {
	ID       string // 文件唯一标识符
	Name     string // 原始文件名
	Size     int64  // 文件大小(字节)
	MimeType string // 文件MIME类型
	Path     string // 内部存储路径(实现相关)
	Checksum string // 内容的SHA-256
}

// Storage 文件归档接口
// 已处理的PDF按ID归档，可以有不同实现(本地文件系统、MinIO)
type Storage interface {
	// Save 保存文件并返回文件信息
	Save(ctx context.Context, reader io.Reader, filename string) (FileInfo, error)

	// Open 按ID打开文件内容
	Open(ctx context.Context, id string) (io.ReadCloser, error)

	// Stat 按ID获取文件信息
	Stat(ctx context.Context, id string) (FileInfo, error)

	// Delete 删除文件
	Delete(ctx context.Context, id string) error

	// List 列出所有文件
	List(ctx context.Context) ([]FileInfo, error)
}

// Config 存储配置
type Config struct {
	Type      string `mapstructure:"type"`       // local 或 minio
	Path      string `mapstructure:"path"`       // 本地存储路径
	Endpoint  string `mapstructure:"endpoint"`   // MinIO服务端点
	AccessKey string `mapstructure:"access_key"` // 访问密钥ID
	SecretKey string `mapstructure:"secret_key"` // 秘密访问密钥
	UseSSL    bool   `mapstructure:"use_ssl"`    // 是否使用SSL
	Bucket    string `mapstructure:"bucket"`     // 存储桶名称
}

// New 根据配置创建存储实例
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		return NewLocalStorage(LocalConfig{Path: cfg.Path})
	case "minio":
		return NewMinioStorage(ctx, MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// objectKey 归档对象的相对路径: <id>/<文件名>
func objectKey(id, filename string) string {
	return id + "/" + cleanName(filename)
}

// splitKey 从对象路径解析出ID和文件名
func splitKey(key string) (id, name string, ok bool) {
	key = filepath.ToSlash(key)
	i := strings.Index(key, "/")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// cleanName 去掉路径部分，防止目录穿越
func cleanName(filename string) string {
	name := filepath.Base(filepath.ToSlash(filename))
	if name == "." || name == "/" || name == "" {
		return "document.pdf"
	}
	return name
}

// getMimeType 根据文件扩展名判断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
