package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStorage 本地文件归档实现
type LocalStorage struct {
	basePath string // 基础存储路径
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 本地存储路径
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	if cfg.Path == "" {
		cfg.Path = "data/archive"
	}
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %v", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %v", err)
	}

	return &LocalStorage{basePath: absPath}, nil
}

// Save 保存文件到本地存储
func (s *LocalStorage) Save(ctx context.Context, reader io.Reader, filename string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}

	id := uuid.New().String()
	key := objectKey(id, filename)
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return FileInfo{}, fmt.Errorf("failed to create directory: %v", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(file, hash), reader)
	if err != nil {
		os.RemoveAll(filepath.Dir(fullPath))
		return FileInfo{}, fmt.Errorf("failed to write file: %v", err)
	}

	return FileInfo{
		ID:       id,
		Name:     cleanName(filename),
		Size:     size,
		MimeType: getMimeType(filename),
		Path:     key,
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// Open 按ID打开文件
func (s *LocalStorage) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	info, err := s.Stat(ctx, id)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.basePath, filepath.FromSlash(info.Path)))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	return file, nil
}

// Stat 按ID获取文件信息，不计算校验和
func (s *LocalStorage) Stat(ctx context.Context, id string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	entries, err := os.ReadDir(filepath.Join(s.basePath, id))
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return FileInfo{}, fmt.Errorf("failed to read directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			return FileInfo{}, fmt.Errorf("failed to stat file: %v", err)
		}
		return FileInfo{
			ID:       id,
			Name:     entry.Name(),
			Size:     fi.Size(),
			MimeType: getMimeType(entry.Name()),
			Path:     objectKey(id, entry.Name()),
		}, nil
	}
	return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete 删除文件
func (s *LocalStorage) Delete(ctx context.Context, id string) error {
	if _, err := s.Stat(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.basePath, id)); err != nil {
		return fmt.Errorf("failed to delete file: %v", err)
	}
	return nil
}

// List 列出所有归档文件
func (s *LocalStorage) List(ctx context.Context) ([]FileInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %v", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := s.Stat(ctx, entry.Name())
		if err != nil {
			// 非归档目录
			continue
		}
		files = append(files, info)
	}
	return files, nil
}
