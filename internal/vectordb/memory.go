package vectordb

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore 内存向量库实现
// 用于开发、测试以及不需要持久化的场景
type MemoryStore struct {
	mu          sync.RWMutex                 // 读写锁，确保并发安全
	collections map[string]*memoryCollection // 集合名到集合的映射
	distance    DistanceType                 // 默认距离类型
}

// memoryCollection 单个集合
type memoryCollection struct {
	dimension int
	distance  DistanceType
	points    map[uint64]Point
}

// NewMemoryStore 创建内存向量库
func NewMemoryStore(config Config) (Store, error) {
	distance := config.Distance
	if distance == "" {
		distance = Cosine
	}
	if !distance.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDistance, distance)
	}

	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
		distance:    distance,
	}, nil
}

// EnsureCollection 确保集合存在
// 已存在且维度一致时直接返回，维度不一致时报错
func (s *MemoryStore) EnsureCollection(ctx context.Context, name string, dimension int, distance DistanceType) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("vector dimension must be positive")
	}
	if distance == "" {
		distance = s.distance
	}
	if !distance.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedDistance, distance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, requested %d",
				ErrInvalidDimension, name, c.dimension, dimension)
		}
		return nil
	}

	s.collections[name] = &memoryCollection{
		dimension: dimension,
		distance:  distance,
		points:    make(map[uint64]Point),
	}
	return nil
}

// Upsert 写入一批点
// 整批先校验，任一点非法时不写入任何点
func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	for _, p := range points {
		if err := ValidateVector(p.Vector, c.dimension); err != nil {
			return fmt.Errorf("invalid vector for point %d: %w", p.ID, err)
		}
	}

	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		if c.distance == Cosine {
			vec = NormalizeVector(vec)
		}
		c.points[p.ID] = Point{ID: p.ID, Vector: vec, Payload: p.Payload}
	}
	return nil
}

// Search 暴力计算所有点的相似度
func (s *MemoryStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if err := ValidateVector(vector, c.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	if c.distance == Cosine {
		vector = NormalizeVector(vector)
	}

	results := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		dist, err := ComputeDistance(vector, p.Vector, c.distance)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			ID:      p.ID,
			Payload: p.Payload,
			Score:   DistanceToScore(dist, c.distance),
		})
	}

	SortSearchResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count 返回集合中的点数
func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	return len(c.points), nil
}

// Close 内存实现无需释放资源
func (s *MemoryStore) Close() error {
	return nil
}

func init() {
	RegisterStore("memory", NewMemoryStore)
}
