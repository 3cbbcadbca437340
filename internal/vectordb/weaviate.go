package vectordb

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// weaviateNamespace 用于从点ID生成确定性的对象UUID
var weaviateNamespace = uuid.MustParse("6f1c1d8e-6a43-4f2c-9a77-2b0f5e0c2d41")

const fieldPointID = "pointId"

// WeaviateStore 基于Weaviate的向量库实现
// 集合映射为Weaviate类，向量由调用方提供
type WeaviateStore struct {
	client    *weaviate.Client
	timeout   time.Duration
	distance  DistanceType
	mu        sync.RWMutex
	distances map[string]DistanceType // 类名到距离类型
}

// NewWeaviateStore 创建Weaviate向量库
func NewWeaviateStore(config Config) (Store, error) {
	scheme := "http"
	if config.UseTLS || strings.HasPrefix(config.Host, "https://") {
		scheme = "https"
	}
	host := strings.TrimPrefix(strings.TrimPrefix(config.Host, "https://"), "http://")
	if host == "" {
		host = "localhost"
	}
	if config.Port != 0 {
		host = fmt.Sprintf("%s:%d", host, config.Port)
	}

	cfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if config.APIKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: config.APIKey}
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, unavailable("connect", "", err)
	}

	distance := config.Distance
	if distance == "" {
		distance = Cosine
	}

	return &WeaviateStore{
		client:    client,
		timeout:   config.Timeout,
		distance:  distance,
		distances: make(map[string]DistanceType),
	}, nil
}

// ClassName 将集合名转换为Weaviate类名
// pdf_metadata_collection -> PdfMetadataCollection
func ClassName(collection string) string {
	parts := strings.FieldsFunc(collection, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// ObjectID 由集合名和点ID生成确定性UUID，重复写入同一点时覆盖原对象
func ObjectID(collection string, id uint64) strfmt.UUID {
	u := uuid.NewSHA1(weaviateNamespace, []byte(collection+"/"+strconv.FormatUint(id, 10)))
	return strfmt.UUID(u.String())
}

func (s *WeaviateStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func weaviateDistance(d DistanceType) (string, error) {
	switch d {
	case Cosine:
		return "cosine", nil
	case DotProduct:
		return "dot", nil
	case Euclidean:
		return "l2-squared", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDistance, d)
	}
}

// weaviateScore 将Weaviate返回的距离转换为得分
func weaviateScore(distance float64, d DistanceType) float32 {
	switch d {
	case DotProduct:
		return float32(-distance)
	case Euclidean:
		return float32(math.Exp(-math.Sqrt(math.Max(distance, 0))))
	default:
		return float32(1 - distance)
	}
}

func (s *WeaviateStore) distanceOf(class string) DistanceType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.distances[class]; ok {
		return d
	}
	return s.distance
}

// EnsureCollection 检查类是否存在，不存在则创建
func (s *WeaviateStore) EnsureCollection(ctx context.Context, name string, dimension int, distance DistanceType) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("vector dimension must be positive")
	}
	if distance == "" {
		distance = s.distance
	}
	metric, err := weaviateDistance(distance)
	if err != nil {
		return err
	}
	class := ClassName(name)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
	if err != nil {
		return unavailable("ensure_collection", name, err)
	}

	s.mu.Lock()
	s.distances[class] = distance
	s.mu.Unlock()

	if exists {
		return nil
	}

	classObj := &models.Class{
		Class:      class,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: fieldKind, DataType: []string{"text"}},
			{Name: fieldContent, DataType: []string{"text"}},
			{Name: fieldDescription, DataType: []string{"text"}},
			{Name: fieldPage, DataType: []string{"int"}},
			{Name: fieldOrdinal, DataType: []string{"int"}},
			{Name: fieldPointID, DataType: []string{"int"}},
		},
		VectorIndexType: "hnsw",
		VectorIndexConfig: map[string]interface{}{
			"distance": metric,
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(classObj).Do(ctx); err != nil {
		return unavailable("ensure_collection", name, err)
	}
	return nil
}

// Upsert 使用批量接口写入，一批一次请求
func (s *WeaviateStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	class := ClassName(collection)

	batcher := s.client.Batch().ObjectsBatcher()
	for _, p := range points {
		if err := ValidateVector(p.Vector, 0); err != nil {
			return fmt.Errorf("invalid vector for point %d: %w", p.ID, err)
		}
		props := PayloadToMap(p.Payload)
		props[fieldPointID] = int64(p.ID)

		batcher = batcher.WithObjects(&models.Object{
			Class:      class,
			ID:         ObjectID(collection, p.ID),
			Properties: props,
			Vector:     p.Vector,
		})
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := batcher.Do(ctx)
	if err != nil {
		return unavailable("upsert", collection, err)
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return unavailable("upsert", collection, fmt.Errorf("object %s: %s", r.ID, r.Result.Errors.Error[0].Message))
		}
	}
	return nil
}

// Search 使用nearVector查询
func (s *WeaviateStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	if err := ValidateVector(vector, 0); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}
	class := ClassName(collection)

	fields := []graphql.Field{
		{Name: fieldKind},
		{Name: fieldContent},
		{Name: fieldDescription},
		{Name: fieldPage},
		{Name: fieldOrdinal},
		{Name: fieldPointID},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.GraphQL().Get().
		WithClassName(class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, unavailable("search", collection, err)
	}
	if len(resp.Errors) > 0 {
		return nil, unavailable("search", collection, fmt.Errorf("%s", resp.Errors[0].Message))
	}

	get, _ := resp.Data["Get"].(map[string]interface{})
	items, _ := get[class].([]interface{})

	distance := s.distanceOf(class)
	results := make([]SearchResult, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		result := SearchResult{
			ID:      uint64(asInt(obj[fieldPointID])),
			Payload: PayloadFromMap(obj),
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				result.Score = weaviateScore(d, distance)
			}
		}
		results = append(results, result)
	}
	SortSearchResults(results)
	return results, nil
}

// Count 通过聚合查询统计对象数
func (s *WeaviateStore) Count(ctx context.Context, collection string) (int, error) {
	class := ClassName(collection)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.GraphQL().Aggregate().
		WithClassName(class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, unavailable("count", collection, err)
	}
	if len(resp.Errors) > 0 {
		return 0, unavailable("count", collection, fmt.Errorf("%s", resp.Errors[0].Message))
	}

	agg, _ := resp.Data["Aggregate"].(map[string]interface{})
	rows, _ := agg[class].([]interface{})
	if len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	return asInt(meta["count"]), nil
}

// Close Weaviate客户端基于HTTP，无需关闭
func (s *WeaviateStore) Close() error {
	return nil
}

func init() {
	RegisterStore("weaviate", NewWeaviateStore)
}
