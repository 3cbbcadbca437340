// Package faissstore 基于Faiss的本地向量库
// 依赖cgo和libfaiss，通过空导入注册为 "faiss" 类型
package faissstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"
	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/fyerfyer/pdf-indexer/internal/vectordb"
)

// Store 实现基于Faiss的向量库
// 每个集合一个IDMap,Flat索引；配置了Path时在关闭时落盘
type Store struct {
	mu          sync.RWMutex
	dir         string
	distance    vectordb.DistanceType
	collections map[string]*collection
}

// collection 单个集合的索引和载荷
type collection struct {
	index     faiss.Index
	dimension int
	distance  vectordb.DistanceType
	payloads  map[uint64]models.Payload
	dirty     bool
}

// collectionMeta 落盘的集合元数据
type collectionMeta struct {
	Dimension int                       `json:"dimension"`
	Distance  vectordb.DistanceType     `json:"distance"`
	Payloads  map[uint64]models.Payload `json:"payloads"`
}

// New 创建Faiss向量库，Path为索引目录，为空时仅在内存中运行
func New(config vectordb.Config) (vectordb.Store, error) {
	if config.Path != "" {
		if err := os.MkdirAll(config.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %v", err)
		}
	}
	distance := config.Distance
	if distance == "" {
		distance = vectordb.Cosine
	}
	if !distance.Valid() {
		return nil, fmt.Errorf("%w: %s", vectordb.ErrUnsupportedDistance, distance)
	}

	return &Store{
		dir:         config.Path,
		distance:    distance,
		collections: make(map[string]*collection),
	}, nil
}

func (s *Store) indexPath(name string) string {
	return filepath.Join(s.dir, name+".index")
}

func (s *Store) metaPath(name string) string {
	return filepath.Join(s.dir, name+".meta.json")
}

// metric 选择Faiss度量，余弦通过归一化后的内积实现
func metric(d vectordb.DistanceType) int {
	if d == vectordb.Euclidean {
		return faiss.MetricL2
	}
	return faiss.MetricInnerProduct
}

// score 将Faiss返回的值转换为得分
func score(v float32, d vectordb.DistanceType) float32 {
	if d == vectordb.Euclidean {
		// Faiss返回的是平方距离
		return float32(math.Exp(-math.Sqrt(float64(v))))
	}
	return v
}

// EnsureCollection 确保集合存在，优先从磁盘加载
func (s *Store) EnsureCollection(ctx context.Context, name string, dimension int, distance vectordb.DistanceType) error {
	if err := vectordb.ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("vector dimension must be positive")
	}
	if distance == "" {
		distance = s.distance
	}
	if !distance.Valid() {
		return fmt.Errorf("%w: %s", vectordb.ErrUnsupportedDistance, distance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, requested %d",
				vectordb.ErrInvalidDimension, name, c.dimension, dimension)
		}
		return nil
	}

	if s.dir != "" && fileExists(s.indexPath(name)) {
		c, err := s.load(name)
		if err != nil {
			return &vectordb.StoreUnavailableError{Op: "ensure_collection", Collection: name, Err: err}
		}
		if c.dimension != dimension {
			c.index.Delete()
			return fmt.Errorf("%w: stored collection %s has dimension %d, requested %d",
				vectordb.ErrInvalidDimension, name, c.dimension, dimension)
		}
		s.collections[name] = c
		return nil
	}

	index, err := faiss.IndexFactory(dimension, "IDMap,Flat", metric(distance))
	if err != nil {
		return &vectordb.StoreUnavailableError{Op: "ensure_collection", Collection: name, Err: err}
	}
	s.collections[name] = &collection{
		index:     index,
		dimension: dimension,
		distance:  distance,
		payloads:  make(map[uint64]models.Payload),
		dirty:     true,
	}
	return nil
}

// Upsert 先移除已有ID再整批写入
func (s *Store) Upsert(ctx context.Context, name string, points []vectordb.Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", vectordb.ErrCollectionNotFound, name)
	}

	vectors := make([]float32, 0, len(points)*c.dimension)
	ids := make([]int64, 0, len(points))
	var existing []int64
	for _, p := range points {
		if err := vectordb.ValidateVector(p.Vector, c.dimension); err != nil {
			return fmt.Errorf("invalid vector for point %d: %w", p.ID, err)
		}
		vec := p.Vector
		if c.distance == vectordb.Cosine {
			vec = vectordb.NormalizeVector(vec)
		}
		vectors = append(vectors, vec...)
		ids = append(ids, int64(p.ID))
		if _, ok := c.payloads[p.ID]; ok {
			existing = append(existing, int64(p.ID))
		}
	}

	if len(existing) > 0 {
		sel, err := faiss.NewIDSelectorBatch(existing)
		if err != nil {
			return &vectordb.StoreUnavailableError{Op: "upsert", Collection: name, Err: err}
		}
		_, err = c.index.RemoveIDs(sel)
		sel.Delete()
		if err != nil {
			return &vectordb.StoreUnavailableError{Op: "upsert", Collection: name, Err: err}
		}
	}

	if err := c.index.AddWithIDs(vectors, ids); err != nil {
		return &vectordb.StoreUnavailableError{Op: "upsert", Collection: name, Err: err}
	}
	for _, p := range points {
		c.payloads[p.ID] = p.Payload
	}
	c.dirty = true
	return nil
}

// Search 查询最相似的topK个点
func (s *Store) Search(ctx context.Context, name string, vector []float32, topK int) ([]vectordb.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vectordb.ErrCollectionNotFound, name)
	}
	if err := vectordb.ValidateVector(vector, c.dimension); err != nil {
		return nil, err
	}

	k := int64(topK)
	if total := c.index.Ntotal(); k > total {
		k = total
	}
	if k <= 0 {
		return []vectordb.SearchResult{}, nil
	}

	if c.distance == vectordb.Cosine {
		vector = vectordb.NormalizeVector(vector)
	}
	distances, labels, err := c.index.Search(vector, k)
	if err != nil {
		return nil, &vectordb.StoreUnavailableError{Op: "search", Collection: name, Err: err}
	}

	results := make([]vectordb.SearchResult, 0, len(labels))
	for i, label := range labels {
		if label < 0 {
			continue
		}
		id := uint64(label)
		payload, ok := c.payloads[id]
		if !ok {
			continue
		}
		results = append(results, vectordb.SearchResult{
			ID:      id,
			Payload: payload,
			Score:   score(distances[i], c.distance),
		})
	}
	vectordb.SortSearchResults(results)
	return results, nil
}

// Count 返回集合中的点数
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", vectordb.ErrCollectionNotFound, name)
	}
	return int(c.index.Ntotal()), nil
}

// Close 保存有改动的集合并释放索引
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, c := range s.collections {
		if s.dir != "" && c.dirty {
			if err := s.save(name, c); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to save index %s on close: %v", name, err)
			}
		}
		c.index.Delete()
	}
	s.collections = make(map[string]*collection)
	return firstErr
}

// save 保存索引和载荷
func (s *Store) save(name string, c *collection) error {
	if err := faiss.WriteIndex(c.index, s.indexPath(name)); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}

	data, err := json.MarshalIndent(collectionMeta{
		Dimension: c.dimension,
		Distance:  c.distance,
		Payloads:  c.payloads,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(s.metaPath(name), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	c.dirty = false
	return nil
}

// load 从磁盘加载索引和载荷
func (s *Store) load(name string) (*collection, error) {
	data, err := os.ReadFile(s.metaPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %v", err)
	}
	var meta collectionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %v", err)
	}

	index, err := faiss.ReadIndex(s.indexPath(name), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %v", err)
	}
	if meta.Payloads == nil {
		meta.Payloads = make(map[uint64]models.Payload)
	}

	return &collection{
		index:     index,
		dimension: index.D(),
		distance:  meta.Distance,
		payloads:  meta.Payloads,
	}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	vectordb.RegisterStore("faiss", New)
}
