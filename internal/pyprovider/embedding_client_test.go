package pyprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient 指向本地模拟服务的嵌入客户端
func newTestClient(t *testing.T, handler http.HandlerFunc) *EmbeddingClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	config := DefaultConfig().
		WithBaseURL(server.URL + "/api").
		WithTimeout(5*time.Second).
		WithRetry(2, 10*time.Millisecond)
	client, err := NewClient(config, logger)
	require.NoError(t, err)
	return NewEmbeddingClient(client)
}

func TestEmbed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/python/embeddings", r.URL.Path)
		assert.Equal(t, DefaultModel, r.URL.Query().Get("model"))
		assert.Equal(t, "384", r.URL.Query().Get("dimension"))

		var req EmbeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "What are flowcharts?", req.Text)

		json.NewEncoder(w).Encode(EmbeddingResponse{Success: true, Model: DefaultModel, Dimension: 3, Embedding: []float32{0.1, 0.2, 0.3}})
	})

	vec, err := client.Embed(context.Background(), "What are flowcharts?", "", 384)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	_, err = client.Embed(context.Background(), "", "", 0)
	assert.Error(t, err)
}

func TestEmbedBatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/python/embeddings/batch", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("normalize"))

		var req BatchEmbeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vecs := make([][]float32, len(req.Texts))
		for i := range vecs {
			vecs[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(BatchEmbeddingResponse{Success: true, Count: len(vecs), Embeddings: vecs})
	})

	vecs, err := client.EmbedBatch(context.Background(), []string{"a", "b"}, "custom", 0, true)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 1}, vecs[1])
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// 每次重试都必须带着完整的请求体
		var req EmbeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "retry me", req.Text)

		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(EmbeddingResponse{Success: true, Embedding: []float32{1}})
	})

	vec, err := client.Embed(context.Background(), "retry me", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"text too long"}`))
	})

	_, err := client.Embed(context.Background(), "x", "", 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "text too long", apiErr.Detail)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
