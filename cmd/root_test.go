package main

import (
	"bytes"
	"testing"

	"github.com/fyerfyer/pdf-indexer/config"
	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintPayloads(t *testing.T) {
	var buf bytes.Buffer
	err := printPayloads(&buf, []models.Payload{
		{Kind: models.KindParagraph, Content: "Flowcharts", Page: 1, Ordinal: 1},
		{Kind: models.KindImage, Description: "Image 1 on page 2", Page: 2, Ordinal: 1},
	})
	require.NoError(t, err)

	want := `{
  "kind": "paragraph",
  "content": "Flowcharts",
  "page": 1,
  "ordinal": 1
}
{
  "kind": "image",
  "description": "Image 1 on page 2",
  "page": 2,
  "ordinal": 1
}
`
	assert.Equal(t, want, buf.String())
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCmd()

	f := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, f)
	assert.Equal(t, "config.yaml", f.DefValue)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["ingest"])
	assert.True(t, names["query"])
	assert.True(t, names["serve"])
}

func TestSetupVectorStoreRejectsUnknownType(t *testing.T) {
	_, err := setupVectorStore(config.VectorDBConfig{Type: "pinecone"})
	assert.Error(t, err)

	_, err = setupVectorStore(config.VectorDBConfig{Type: "memory", Distance: "manhattan"})
	assert.Error(t, err)
}

func TestSetupLoggerLevel(t *testing.T) {
	logger, err := setupLogger(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", logger.GetLevel().String())

	logger, err = setupLogger(config.LogConfig{Level: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, "info", logger.GetLevel().String())
}
