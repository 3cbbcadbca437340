package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-indexer/internal/cache"
	"github.com/fyerfyer/pdf-indexer/internal/pyprovider"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient 基于testify/mock的嵌入客户端
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	vec, _ := args.Get(0).([]float32)
	return vec, args.Error(1)
}

func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	vecs, _ := args.Get(0).([][]float32)
	return vecs, args.Error(1)
}

func (m *MockClient) Name() string  { return "mock" }
func (m *MockClient) Dimension() int { return 3 }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// fakePythonService 模拟Python嵌入服务，返回固定维度的向量
func fakePythonService(t *testing.T, dim int, calls *int32) *httptest.Server {
	t.Helper()
	vector := func(text string) []float32 {
		v := make([]float32, dim)
		for i := range v {
			v[i] = float32(len(text)+i) / 100
		}
		return v
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/python/embeddings", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req pyprovider.EmbeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(pyprovider.EmbeddingResponse{Success: true, Embedding: vector(req.Text)})
	})
	mux.HandleFunc("/api/python/embeddings/batch", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req pyprovider.BatchEmbeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		vecs := make([][]float32, len(req.Texts))
		for i, text := range req.Texts {
			vecs[i] = vector(text)
		}
		json.NewEncoder(w).Encode(pyprovider.BatchEmbeddingResponse{Success: true, Embeddings: vecs})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// TestPythonEmbeddingClient 测试Python嵌入客户端
func TestPythonEmbeddingClient(t *testing.T) {
	var calls int32
	server := fakePythonService(t, 384, &calls)

	client, err := NewClient("python",
		WithBaseURL(server.URL+"/api"),
		WithTimeout(5*time.Second),
		WithBatchSize(2),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	assert.Equal(t, pyprovider.DefaultModel, client.Name())
	assert.Equal(t, 384, client.Dimension())

	ctx := context.Background()
	vec, err := client.Embed(ctx, "What are flowcharts?")
	require.NoError(t, err)
	assert.Len(t, vec, 384)

	vecs, err := client.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(0.03), vecs[2][0])
	// 一次单条请求加两批
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	_, err = client.Embed(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestPythonClientDimensionMismatch(t *testing.T) {
	var calls int32
	server := fakePythonService(t, 8, &calls)

	client, err := NewPythonClient(WithBaseURL(server.URL+"/api"), WithDimensions(384), WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "text")
	var embErr EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, ErrCodeDimensionMismatch, embErr.Code)
}

func TestPythonClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"bad key"}`))
	}))
	defer server.Close()

	client, err := NewPythonClient(WithBaseURL(server.URL), WithMaxRetries(0), WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "text")
	var embErr EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, ErrCodeInvalidAPIKey, embErr.Code)
	assert.True(t, IsEmbeddingError(err))
}

func TestNewClientUnknown(t *testing.T) {
	_, err := NewClient("tongyi")
	var embErr EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, ErrCodeInvalidRequest, embErr.Code)
}

func TestOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewClient("openai")
	var embErr EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, ErrCodeInvalidAPIKey, embErr.Code)
}

func TestOpenAIClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, 4, req.Dimensions)

		// 逆序返回，客户端需按index归位
		data := make([]map[string]interface{}, len(req.Input))
		for i := range req.Input {
			idx := len(req.Input) - 1 - i
			data[i] = map[string]interface{}{
				"object":    "embedding",
				"index":     idx,
				"embedding": []float32{float32(idx), 0, 0, 1},
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data, "model": req.Model})
	}))
	defer server.Close()

	client, err := NewClient("openai",
		WithAPIKey("test-key"),
		WithBaseURL(server.URL+"/v1"),
		WithDimensions(4),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", client.Name())

	vecs, err := client.EmbedBatch(context.Background(), []string{"x", "y", "z"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, float32(i), v[0])
	}
}

func TestCachedClient(t *testing.T) {
	ctx := context.Background()
	mem, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	inner := new(MockClient)
	inner.On("Embed", ctx, "A | B").Return([]float32{1, 0, 0}, nil).Once()
	inner.On("EmbedBatch", ctx, []string{"new"}).Return([][]float32{{0, 1, 0}}, nil).Once()

	client := NewCachedClient(inner, mem, 0, quietLogger())

	first, err := client.Embed(ctx, "A | B")
	require.NoError(t, err)
	second, err := client.Embed(ctx, "A | B")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	vecs, err := client.EmbedBatch(ctx, []string{"A | B", "new"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vecs)

	assert.Equal(t, "mock", client.Name())
	assert.Equal(t, 3, client.Dimension())
	inner.AssertExpectations(t)
}

func TestCachedClientDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	mem, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	inner := new(MockClient)
	inner.On("Embed", ctx, "flaky").Return(nil, ErrRateLimited).Once()
	inner.On("Embed", ctx, "flaky").Return([]float32{0, 0, 1}, nil).Once()

	client := NewCachedClient(inner, mem, time.Minute, quietLogger())
	_, err = client.Embed(ctx, "flaky")
	assert.ErrorIs(t, err, ErrRateLimited)

	vec, err := client.Embed(ctx, "flaky")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1}, vec)
	inner.AssertExpectations(t)
}
