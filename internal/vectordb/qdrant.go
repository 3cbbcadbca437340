package vectordb

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore 基于Qdrant的向量库实现，通过gRPC访问
type QdrantStore struct {
	client   *qdrant.Client
	timeout  time.Duration
	distance DistanceType
}

// NewQdrantStore 创建Qdrant向量库
func NewQdrantStore(config Config) (Store, error) {
	host := config.Host
	if host == "" {
		host = "localhost"
	}
	port := config.Port
	if port == 0 {
		port = 6334
	}
	distance := config.Distance
	if distance == "" {
		distance = Cosine
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
	})
	if err != nil {
		return nil, unavailable("connect", "", err)
	}

	return &QdrantStore{
		client:   client,
		timeout:  config.Timeout,
		distance: distance,
	}, nil
}

// withTimeout 为单次请求设置超时
func (s *QdrantStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// qdrantDistance 映射距离类型
func qdrantDistance(d DistanceType) (qdrant.Distance, error) {
	switch d {
	case Cosine:
		return qdrant.Distance_Cosine, nil
	case DotProduct:
		return qdrant.Distance_Dot, nil
	case Euclidean:
		return qdrant.Distance_Euclid, nil
	default:
		return qdrant.Distance_UnknownDistance, fmt.Errorf("%w: %s", ErrUnsupportedDistance, d)
	}
}

// EnsureCollection 先检查再创建
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dimension int, distance DistanceType) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("vector dimension must be positive")
	}
	if distance == "" {
		distance = s.distance
	}
	dist, err := qdrantDistance(distance)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return unavailable("ensure_collection", name, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: dist,
		}),
	})
	if err != nil {
		return unavailable("ensure_collection", name, err)
	}
	return nil
}

// Upsert 一次请求写入整批点，等待写入完成后返回
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if err := ValidateVector(p.Vector, 0); err != nil {
			return fmt.Errorf("invalid vector for point %d: %w", p.ID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(PayloadToMap(p.Payload)),
		})
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	return unavailable("upsert", collection, err)
}

// Search 查询最相似的点
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	if err := ValidateVector(vector, 0); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	scored, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, unavailable("search", collection, err)
	}

	results := make([]SearchResult, 0, len(scored))
	for _, sp := range scored {
		results = append(results, SearchResult{
			ID:      sp.GetId().GetNum(),
			Payload: PayloadFromMap(qdrantValues(sp.GetPayload())),
			Score:   sp.GetScore(),
		})
	}
	SortSearchResults(results)
	return results, nil
}

// Count 精确统计集合中的点数
func (s *QdrantStore) Count(ctx context.Context, collection string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, unavailable("count", collection, err)
	}
	return int(n), nil
}

// Close 关闭gRPC连接
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// qdrantValues 将Qdrant的载荷值转换为通用类型
func qdrantValues(payload map[string]*qdrant.Value) map[string]interface{} {
	m := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			m[k] = v.GetStringValue()
		case *qdrant.Value_IntegerValue:
			m[k] = v.GetIntegerValue()
		case *qdrant.Value_DoubleValue:
			m[k] = v.GetDoubleValue()
		case *qdrant.Value_BoolValue:
			m[k] = v.GetBoolValue()
		}
	}
	return m
}

func init() {
	RegisterStore("qdrant", NewQdrantStore)
}
