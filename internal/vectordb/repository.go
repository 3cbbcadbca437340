package vectordb

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ComputeDistance 计算两个向量间的距离
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrInvalidDimension, len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		return cosineDistance(v1, v2), nil
	case DotProduct:
		return dotProduct(v1, v2), nil
	case Euclidean:
		return euclideanDistance(v1, v2), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDistance, distType)
	}
}

// cosineDistance 余弦距离 = 1 - 余弦相似度
func cosineDistance(v1, v2 []float32) float32 {
	norm1 := vectorNorm(v1)
	norm2 := vectorNorm(v2)
	if norm1 == 0 || norm2 == 0 {
		return 1.0
	}

	similarity := dotProduct(v1, v2) / (norm1 * norm2)
	// 浮点误差
	if similarity > 1.0 {
		similarity = 1.0
	}
	return 1.0 - similarity
}

func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := 0; i < len(v1); i++ {
		dot += v1[i] * v2[i]
	}
	return dot
}

func euclideanDistance(v1, v2 []float32) float32 {
	var sum float32
	for i := 0; i < len(v1); i++ {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// vectorNorm 计算向量的L2范数
func vectorNorm(v []float32) float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	return float32(math.Sqrt(float64(sum)))
}

// NormalizeVector 归一化向量，零向量原样返回
func NormalizeVector(v []float32) []float32 {
	norm := vectorNorm(v)
	if norm == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

// DistanceToScore 将距离转换为评分，越大越相似
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		return 1 - distance
	case DotProduct:
		// 点积本身就是相似度
		return distance
	case Euclidean:
		return float32(math.Exp(-float64(distance)))
	default:
		return 0
	}
}

// SortSearchResults 按得分降序排序，得分相同时按ID升序，保证结果稳定
func SortSearchResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

// ValidateVector 验证向量维度和有效性
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, expectedDim, len(vector))
	}
	return nil
}

// ValidateCollectionName 集合名只允许字母、数字、下划线和短横线
func ValidateCollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidCollection
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
		}
	}
	return nil
}

// ParseDistance 解析配置中的距离类型
func ParseDistance(s string) (DistanceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "dot", "ip", "inner_product":
		return DotProduct, nil
	case "l2", "euclid", "euclidean":
		return Euclidean, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDistance, s)
	}
}
