package vectordb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/pdf-indexer/internal/models"
)

// 常用错误定义
var (
	ErrEmptyVector         = errors.New("empty vector")
	ErrInvalidDimension    = errors.New("vector dimension mismatch")
	ErrCollectionNotFound  = errors.New("collection not found")
	ErrInvalidCollection   = errors.New("invalid collection name")
	ErrUnsupportedDistance = errors.New("unsupported distance type")
)

// Point 写入向量库的一个点
type Point struct {
	ID      uint64         // 点ID，在集合内唯一
	Vector  []float32      // 向量表示
	Payload models.Payload // 溯源载荷
}

// SearchResult 搜索结果
type SearchResult struct {
	ID      uint64         // 点ID
	Payload models.Payload // 溯源载荷
	Score   float32        // 相似度得分，越大越相似
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// Valid 检查距离类型是否受支持
func (d DistanceType) Valid() bool {
	return d == Cosine || d == DotProduct || d == Euclidean
}

// Store 向量库接口
// 集合需先通过EnsureCollection创建，点的生命周期归向量库所有
type Store interface {
	// EnsureCollection 确保集合存在，已存在时不报错
	EnsureCollection(ctx context.Context, name string, dimension int, distance DistanceType) error

	// Upsert 写入一批点，ID相同的点被覆盖
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search 返回与向量最相似的topK个点，按得分降序排列
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error)

	// Count 返回集合中的点数
	Count(ctx context.Context, collection string) (int, error)

	// Close 关闭连接或释放资源
	Close() error
}

// Config 向量数据库配置
type Config struct {
	Type     string        // 数据库类型，如 "memory", "qdrant", "weaviate", "faiss"
	Host     string        // 服务器地址
	Port     int           // 服务器端口
	APIKey   string        // 访问密钥
	UseTLS   bool          // 是否使用TLS
	Path     string        // 本地索引文件路径（faiss）
	Timeout  time.Duration // 单次请求超时
	Distance DistanceType  // 默认距离类型
}

// Factory 向量数据库工厂函数类型
type Factory func(config Config) (Store, error)

// StoreRegistry 注册可用的向量数据库实现
var StoreRegistry = map[string]Factory{}

// RegisterStore 注册向量数据库工厂函数
func RegisterStore(name string, factory Factory) {
	StoreRegistry[name] = factory
}

// NewStore 根据配置创建向量数据库实例
func NewStore(config Config) (Store, error) {
	if config.Type == "" {
		config.Type = "memory"
	}
	factory, ok := StoreRegistry[config.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported vector store type: %s", config.Type)
	}
	return factory(config)
}
