package vectordb

import (
	"testing"

	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDistance(t *testing.T) {
	d, err := ComputeDistance([]float32{1, 0}, []float32{1, 0}, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-6)

	d, err = ComputeDistance([]float32{1, 0}, []float32{0, 1}, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 1, d, 1e-6)

	d, err = ComputeDistance([]float32{0, 0}, []float32{3, 4}, Euclidean)
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-6)

	_, err = ComputeDistance([]float32{1}, []float32{1, 2}, Cosine)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = ComputeDistance([]float32{1}, []float32{1}, "manhattan")
	assert.ErrorIs(t, err, ErrUnsupportedDistance)
}

func TestParseDistance(t *testing.T) {
	tests := map[string]DistanceType{
		"":       Cosine,
		"COSINE": Cosine,
		"dot":    DotProduct,
		"l2":     Euclidean,
		"euclid": Euclidean,
	}
	for in, want := range tests {
		got, err := ParseDistance(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseDistance("hamming")
	assert.Error(t, err)
}

func TestPayloadMapRoundTrip(t *testing.T) {
	p := models.Payload{Kind: models.KindTable, Content: "A | B", Description: "Table 1 on page 2", Page: 2, Ordinal: 1}
	assert.Equal(t, p, PayloadFromMap(PayloadToMap(p)))

	// JSON解码后的数字为float64
	decoded := map[string]interface{}{
		"kind":        "image",
		"description": "Image 1 on page 3",
		"page":        float64(3),
		"ordinal":     float64(1),
	}
	assert.Equal(t, models.Payload{Kind: models.KindImage, Description: "Image 1 on page 3", Page: 3, Ordinal: 1},
		PayloadFromMap(decoded))
}

func TestClassName(t *testing.T) {
	assert.Equal(t, "PdfMetadataCollection", ClassName("pdf_metadata_collection"))
	assert.Equal(t, "Docs", ClassName("docs"))
	assert.Equal(t, "MyIndex2", ClassName("my-index2"))
}

func TestObjectIDDeterministic(t *testing.T) {
	assert.Equal(t, ObjectID("c", 1), ObjectID("c", 1))
	assert.NotEqual(t, ObjectID("c", 1), ObjectID("c", 2))
	assert.NotEqual(t, ObjectID("a", 1), ObjectID("b", 1))
}

func TestStoreUnavailableError(t *testing.T) {
	err := unavailable("upsert", "docs", ErrEmptyVector)
	var target *StoreUnavailableError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "upsert", target.Op)
	assert.Equal(t, "docs", target.Collection)
	assert.ErrorIs(t, err, ErrEmptyVector)
	assert.Nil(t, unavailable("upsert", "docs", nil))
}
