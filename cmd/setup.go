package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fyerfyer/pdf-indexer/api/middleware"
	"github.com/fyerfyer/pdf-indexer/config"
	"github.com/fyerfyer/pdf-indexer/internal/cache"
	"github.com/fyerfyer/pdf-indexer/internal/database"
	"github.com/fyerfyer/pdf-indexer/internal/document"
	"github.com/fyerfyer/pdf-indexer/internal/embedding"
	"github.com/fyerfyer/pdf-indexer/internal/ocr"
	"github.com/fyerfyer/pdf-indexer/internal/repository"
	"github.com/fyerfyer/pdf-indexer/internal/services"
	"github.com/fyerfyer/pdf-indexer/internal/vectordb"
	_ "github.com/fyerfyer/pdf-indexer/internal/vectordb/faissstore"
	"github.com/fyerfyer/pdf-indexer/pkg/storage"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// app 运行期组件，由调用方负责Close
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	pipeline *services.Pipeline
	runs     repository.RunRepository

	closers []io.Closer
}

// Close 按创建的逆序释放组件
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to release component")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}

// closerFunc 函数适配io.Closer
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// buildApp 根据配置组装流水线
func buildApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := setupVectorStore(cfg.VectorDB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	a.closers = append(a.closers, store)

	embedder, err := setupEmbedding(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	if cfg.Cache.Enable {
		c, err := setupCache(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		a.closers = append(a.closers, c)
		embedder = embedding.NewCachedClient(embedder, c, cfg.Cache.TTL, logger)
	}

	captioner, err := setupCaptioner(cfg.OCR, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OCR: %w", err)
	}
	if captioner != nil {
		a.closers = append(a.closers, captioner)
	}

	distance, err := vectordb.ParseDistance(cfg.VectorDB.Distance)
	if err != nil {
		return nil, err
	}
	opts := []services.PipelineOption{
		services.WithLogger(logger),
		services.WithCollection(cfg.Pipeline.Collection),
		services.WithDistance(distance),
		services.WithTimeout(cfg.VectorDB.Timeout),
	}

	if cfg.Database.Enable {
		if err := setupDatabase(cfg.Database, logger); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, closerFunc(database.Close))
		a.runs = repository.NewRunRepository()
		opts = append(opts, services.WithRunRepository(a.runs))
	}

	if cfg.Storage.Enable {
		archive, err := setupStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		opts = append(opts, services.WithStorage(archive))
	}

	var docCaptioner document.Captioner
	if captioner != nil {
		docCaptioner = captioner
	}
	segmenter := document.NewSegmenter(docCaptioner, document.WithSegmenterLogger(logger))

	a.pipeline = services.NewPipeline(segmenter, embedder, store, opts...)
	if err := a.pipeline.Init(ctx); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// setupLogger 设置日志系统，配置了文件时同时写入滚动日志
func setupLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := middleware.GetLogger()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.File != "" {
		logger.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}))
	}
	return logger, nil
}

// setupVectorStore 设置向量数据库
func setupVectorStore(cfg config.VectorDBConfig) (vectordb.Store, error) {
	distance, err := vectordb.ParseDistance(cfg.Distance)
	if err != nil {
		return nil, err
	}

	return vectordb.NewStore(vectordb.Config{
		Type:     cfg.Type,
		Host:     cfg.Host,
		Port:     cfg.Port,
		APIKey:   cfg.APIKey,
		UseTLS:   cfg.UseTLS,
		Path:     cfg.Path,
		Timeout:  cfg.Timeout,
		Distance: distance,
	})
}

// setupEmbedding 设置嵌入模型客户端
func setupEmbedding(cfg *config.Config, logger *logrus.Logger) (embedding.Client, error) {
	ec := cfg.Embed
	return embedding.NewClient(ec.Provider,
		embedding.WithAPIKey(ec.APIKey),
		embedding.WithBaseURL(ec.Endpoint),
		embedding.WithModel(ec.Model),
		embedding.WithDimensions(ec.Dimensions),
		embedding.WithBatchSize(ec.BatchSize),
		embedding.WithTimeout(ec.Timeout),
		embedding.WithMaxRetries(ec.MaxRetries),
		embedding.WithLogger(logger),
	)
}

// setupCache 设置嵌入缓存
func setupCache(cfg config.CacheConfig) (cache.Cache, error) {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.Type = cfg.Type
	if cfg.Prefix != "" {
		cacheConfig.Prefix = cfg.Prefix
	}
	if cfg.TTL > 0 {
		cacheConfig.DefaultTTL = cfg.TTL
	}

	if cfg.Type == "redis" {
		cacheConfig.RedisAddr = cfg.Address
		cacheConfig.RedisPassword = cfg.Password
		cacheConfig.RedisDB = cfg.DB
	}

	return cache.NewCache(cacheConfig)
}

// setupCaptioner 设置OCR，关闭时返回nil，所有图片使用占位说明
func setupCaptioner(cfg config.OCRConfig, logger *logrus.Logger) (*ocr.TesseractCaptioner, error) {
	if !cfg.Enabled {
		logger.Info("OCR disabled, images will use placeholder captions")
		return nil, nil
	}
	return ocr.NewTesseractCaptioner(
		ocr.WithLanguages(cfg.Language...),
		ocr.WithLogger(logger),
	)
}

// setupDatabase 设置处理记录数据库
func setupDatabase(cfg config.DatabaseConfig, logger *logrus.Logger) error {
	dbConfig := database.DefaultConfig()
	if cfg.Type != "" {
		dbConfig.Type = cfg.Type
	}
	if cfg.DSN != "" {
		dbConfig.DSN = cfg.DSN
	}
	return database.Setup(dbConfig, logger)
}

// setupStorage 设置原始文件归档
func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	return storage.New(ctx, storage.Config{
		Type:      cfg.Type,
		Path:      cfg.Path,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
	})
}
