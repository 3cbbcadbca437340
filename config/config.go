package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"` // 服务器主机
	Port int    `mapstructure:"port"` // 服务器端口
	Mode string `mapstructure:"mode"` // gin运行模式：debug, release, test
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PipelineConfig 入库流水线配置
type PipelineConfig struct {
	InputPath  string `mapstructure:"input_path"` // 默认处理的PDF
	Query      string `mapstructure:"query"`      // 处理完成后执行的示例查询
	TopK       int    `mapstructure:"top_k"`      // 查询返回的结果数
	Collection string `mapstructure:"collection"` // 集合名称
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type     string        `mapstructure:"type"`     // memory, qdrant, weaviate, faiss
	Host     string        `mapstructure:"host"`     // 服务器地址
	Port     int           `mapstructure:"port"`     // 服务器端口
	APIKey   string        `mapstructure:"api_key"`  // API密钥
	UseTLS   bool          `mapstructure:"use_tls"`  // 是否使用TLS
	Path     string        `mapstructure:"path"`     // faiss索引目录
	Distance string        `mapstructure:"distance"` // 距离度量方式：cosine, l2, dot
	Timeout  time.Duration `mapstructure:"timeout"`  // 单次调用超时时间
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider"`    // python 或 openai
	Model      string        `mapstructure:"model"`       // 模型名称
	Endpoint   string        `mapstructure:"endpoint"`    // API端点
	APIKey     string        `mapstructure:"api_key"`     // API密钥（如果需要）
	Dimensions int           `mapstructure:"dimensions"`  // 向量维度
	BatchSize  int           `mapstructure:"batch_size"`  // 批处理大小
	Timeout    time.Duration `mapstructure:"timeout"`     // 请求超时时间
	MaxRetries int           `mapstructure:"max_retries"` // 最大重试次数
}

// OCRConfig 图片文字识别配置
type OCRConfig struct {
	Enabled  bool     `mapstructure:"enabled"`  // 关闭时所有图片使用占位说明
	Language []string `mapstructure:"language"` // tesseract语言
}

// CacheConfig 嵌入缓存配置
type CacheConfig struct {
	Enable   bool          `mapstructure:"enable"`   // 是否启用缓存
	Type     string        `mapstructure:"type"`     // 缓存类型：memory 或 redis
	Address  string        `mapstructure:"address"`  // Redis地址
	Password string        `mapstructure:"password"` // Redis密码
	DB       int           `mapstructure:"db"`       // Redis数据库
	Prefix   string        `mapstructure:"prefix"`   // 键前缀
	TTL      time.Duration `mapstructure:"ttl"`      // 缓存TTL
}

// DatabaseConfig 处理记录数据库配置
type DatabaseConfig struct {
	Enable bool   `mapstructure:"enable"` // 是否记录处理历史
	Type   string `mapstructure:"type"`   // 数据库类型: sqlite
	DSN    string `mapstructure:"dsn"`    // 数据源名称
}

// StorageConfig 原始文件归档配置
type StorageConfig struct {
	Enable    bool   `mapstructure:"enable"`   // 是否归档
	Type      string `mapstructure:"type"`     // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`     // 本地存储路径
	Bucket    string `mapstructure:"bucket"`   // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"` // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`        // debug, info, warn, error
	File       string `mapstructure:"file"`         // 日志文件，为空时只输出到stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个文件最大大小
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的旧文件数
	MaxAgeDays int    `mapstructure:"max_age_days"` // 旧文件保留天数
}

// Load 从文件和环境变量加载配置
// 配置文件不存在时使用默认值并写出默认配置文件
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		logrus.WithField("path", configPath).Warn("Config file not found, using defaults")
		writeDefaultConfig(v, configPath)
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	} else {
		logrus.WithField("path", v.ConfigFileUsed()).Debug("Using config file")
	}

	// 支持环境变量覆盖，例如 VECTORDB_HOST
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置的取值范围
func (c *Config) Validate() error {
	if c.Pipeline.TopK <= 0 {
		return fmt.Errorf("pipeline.top_k must be positive, got %d", c.Pipeline.TopK)
	}
	if c.Embed.Dimensions <= 0 {
		return fmt.Errorf("embed.dimensions must be positive, got %d", c.Embed.Dimensions)
	}
	if strings.TrimSpace(c.Pipeline.Collection) == "" {
		return errors.New("pipeline.collection cannot be empty")
	}
	return nil
}

// writeDefaultConfig 写出默认配置文件，失败时只记录警告
func writeDefaultConfig(v *viper.Viper, path string) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return
		}
	}
	if err := v.WriteConfigAs(path); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Could not write default config")
	}
}

// expandEnv 将形如 ${VAR} 的取值替换为环境变量
func expandEnv(cfg *Config) {
	for _, field := range []*string{
		&cfg.Embed.APIKey,
		&cfg.VectorDB.APIKey,
		&cfg.Cache.Password,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
	} {
		*field = resolveEnv(*field)
	}
}

// resolveEnv 解析单个 ${VAR} 引用，环境变量未设置时保留原值
func resolveEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
		return envVal
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	// 流水线默认配置
	v.SetDefault("pipeline.input_path", "Algorithms_and_Flowcharts.pdf")
	v.SetDefault("pipeline.query", "What are flowcharts?")
	v.SetDefault("pipeline.top_k", 5)
	v.SetDefault("pipeline.collection", "pdf_metadata_collection")

	// 向量数据库默认配置
	v.SetDefault("vectordb.type", "qdrant")
	v.SetDefault("vectordb.host", "localhost")
	v.SetDefault("vectordb.port", 6334)
	v.SetDefault("vectordb.use_tls", false)
	v.SetDefault("vectordb.path", "./vectordb")
	v.SetDefault("vectordb.distance", "cosine")
	v.SetDefault("vectordb.timeout", "30s")

	// Embedding默认配置
	v.SetDefault("embed.provider", "python")
	v.SetDefault("embed.model", "all-MiniLM-L6-v2")
	v.SetDefault("embed.endpoint", "http://localhost:8000/api")
	v.SetDefault("embed.dimensions", 384)
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.max_retries", 3)

	// OCR默认配置
	v.SetDefault("ocr.enabled", true)
	v.SetDefault("ocr.language", []string{"eng"})

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.prefix", "pdfidx")
	v.SetDefault("cache.ttl", "24h")

	// 数据库默认配置
	v.SetDefault("database.enable", true)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/pdf-indexer.db")

	// 归档默认配置
	v.SetDefault("storage.enable", false)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/archive")
	v.SetDefault("storage.bucket", "pdf-indexer")
	v.SetDefault("storage.use_ssl", false)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}
