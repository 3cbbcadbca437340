package services

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyerfyer/pdf-indexer/internal/document"
	"github.com/fyerfyer/pdf-indexer/internal/embedding"
	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/fyerfyer/pdf-indexer/internal/repository"
	"github.com/fyerfyer/pdf-indexer/internal/vectordb"
	"github.com/fyerfyer/pdf-indexer/pkg/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 16

// bagEmbedder 按词哈希分桶的确定性嵌入，包含FAIL的文本返回EmbeddingError
type bagEmbedder struct {
	calls   int // 单条请求次数
	batches int // 批量请求次数
}

func (e *bagEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.vector(ctx, text)
}

func (e *bagEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.vector(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *bagEmbedder) vector(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, embedding.NewEmbeddingError(embedding.ErrCodeTimeout, err.Error())
	}
	if strings.Contains(text, "FAIL") {
		return nil, embedding.NewEmbeddingError(embedding.ErrCodeServerError, "boom")
	}
	vec := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,?|")))
		vec[h.Sum32()%testDim]++
	}
	vec[0] += 0.01
	return vec, nil
}

func (e *bagEmbedder) Name() string   { return "bag" }
func (e *bagEmbedder) Dimension() int { return testDim }

// fakeSource 内存中的文档
type fakeSource struct {
	pages  []document.Page
	closed int
}

func (s *fakeSource) PageCount() int { return len(s.pages) }

func (s *fakeSource) Page(ctx context.Context, n int) (document.Page, error) {
	if n < 1 || n > len(s.pages) {
		return document.Page{}, errors.New("page out of range")
	}
	return s.pages[n-1], nil
}

func (s *fakeSource) Close() error {
	s.closed++
	return nil
}

func openerFor(src *fakeSource) document.Opener {
	return func(path string) (document.Source, error) {
		return src, nil
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestPipeline(t *testing.T, src *fakeSource, captioner document.Captioner, opts ...PipelineOption) (*Pipeline, vectordb.Store, *bagEmbedder) {
	t.Helper()
	store, err := vectordb.NewMemoryStore(vectordb.Config{})
	require.NoError(t, err)

	emb := &bagEmbedder{}
	logger := quietLogger()
	seg := document.NewSegmenter(captioner, document.WithSegmenterLogger(logger))

	base := []PipelineOption{WithLogger(logger), WithOpener(openerFor(src))}
	p := NewPipeline(seg, emb, store, append(base, opts...)...)
	require.NoError(t, p.Init(context.Background()))
	return p, store, emb
}

func TestPipeline_ParagraphOnlyDocument(t *testing.T) {
	src := &fakeSource{pages: []document.Page{
		{Number: 1, Text: "Intro\n\nBody"},
	}}
	p, store, _ := newTestPipeline(t, src, nil)

	res, err := p.Process(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Paragraphs)
	assert.Equal(t, 0, res.Tables)
	assert.Equal(t, 0, res.Images)
	assert.Equal(t, 1, src.closed, "document closed after processing")

	n, err := store.Count(context.Background(), DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := p.Query(context.Background(), "Body", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.Payload{Kind: models.KindParagraph, Content: "Body", Page: 1, Ordinal: 2}, results[0].Payload)
}

func TestPipeline_PipeScenario(t *testing.T) {
	src := &fakeSource{pages: []document.Page{
		{Number: 1, Text: "Name | Age\nBob | 3"},
	}}
	p, store, _ := newTestPipeline(t, src, nil)

	res, err := p.Process(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Paragraphs)
	assert.Equal(t, 1, res.Tables)

	results, err := p.Query(context.Background(), "Bob", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	kinds := map[models.UnitKind]models.Payload{}
	for _, r := range results {
		kinds[r.Payload.Kind] = r.Payload
	}
	assert.Equal(t, "Name | Age\nBob | 3", kinds[models.KindParagraph].Content)
	assert.Equal(t, "Name | Age\nBob | 3", kinds[models.KindTable].Content)
	assert.Equal(t, "Table 1 on page 1", kinds[models.KindTable].Description)

	n, err := store.Count(context.Background(), DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "ids do not collide across batches")
}

func TestPipeline_ImagePlaceholder(t *testing.T) {
	raw := pngBytes(t)
	src := &fakeSource{pages: []document.Page{
		{Number: 1, Text: "one"},
		{Number: 2, Text: "two"},
		{Number: 3, Text: "", Images: []document.RawImage{
			{Index: 1, ObjNr: 10, Data: raw},
			{Index: 2, ObjNr: 11, Data: raw},
		}},
	}}
	captioner := document.CaptionerFunc(func(ctx context.Context, img image.Image) (string, error) {
		return "  \n ", nil
	})
	p, _, _ := newTestPipeline(t, src, captioner)

	res, err := p.Process(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Images)

	results, err := p.Query(context.Background(), "Image 2 on page 3", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, models.Payload{Kind: models.KindImage, Description: "Image 2 on page 3", Page: 3, Ordinal: 2}, results[0].Payload)
}

func TestPipeline_EmbeddingFailureSkipsUnit(t *testing.T) {
	src := &fakeSource{pages: []document.Page{
		{Number: 1, Text: "good one\n\nFAIL here\n\ngood two"},
	}}
	p, store, emb := newTestPipeline(t, src, nil)

	res, err := p.Process(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Paragraphs)
	assert.Equal(t, 1, res.Skipped)

	// 整批失败后逐条重试
	assert.Equal(t, 1, emb.batches)
	assert.Equal(t, 3, emb.calls)

	n, err := store.Count(context.Background(), DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// 每个非空批次只发一次批量嵌入请求
func TestPipeline_EmbedsEachBatchOnce(t *testing.T) {
	src := &fakeSource{pages: []document.Page{
		{Number: 1, Text: "plain words\n\nA | B\n\nmore words"},
	}}
	p, _, emb := newTestPipeline(t, src, nil)

	res, err := p.Process(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Paragraphs)
	assert.Equal(t, 1, res.Tables)

	assert.Equal(t, 2, emb.batches)
	assert.Zero(t, emb.calls)
}

func TestPipeline_TopKLargerThanStore(t *testing.T) {
	src := &fakeSource{pages: []document.Page{
		{Number: 1, Text: "alpha\n\nbeta\n\ngamma"},
	}}
	p, _, _ := newTestPipeline(t, src, nil)
	_, err := p.Process(context.Background(), "doc.pdf")
	require.NoError(t, err)

	results, err := p.Query(context.Background(), "alpha", 100)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	// 相同查询结果一致
	again, err := p.Query(context.Background(), "alpha", 100)
	require.NoError(t, err)
	assert.Equal(t, Payloads(results), Payloads(again))
}

func TestPipeline_InitIdempotent(t *testing.T) {
	src := &fakeSource{}
	p, store, _ := newTestPipeline(t, src, nil)
	require.NoError(t, p.Init(context.Background()))

	other := NewPipeline(nil, &bagEmbedder{}, store, WithLogger(quietLogger()))
	require.NoError(t, other.Init(context.Background()))
}

func TestPipeline_QueryValidation(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeSource{}, nil)

	_, err := p.Query(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = p.Query(context.Background(), "x", 0)
	assert.Error(t, err)
}

func TestPipeline_OpenErrorIsFatal(t *testing.T) {
	store, err := vectordb.NewMemoryStore(vectordb.Config{})
	require.NoError(t, err)

	p := NewPipeline(nil, &bagEmbedder{}, store, WithLogger(quietLogger()))
	_, err = p.Process(context.Background(), "/definitely/missing.pdf")

	var openErr *document.DocumentOpenError
	assert.ErrorAs(t, err, &openErr)
}

// failingStore 所有写入都失败的向量库
type failingStore struct {
	vectordb.Store
}

func (s failingStore) Upsert(ctx context.Context, collection string, points []vectordb.Point) error {
	return errors.New("connection refused")
}

func TestPipeline_StoreFailureIsFatal(t *testing.T) {
	mem, err := vectordb.NewMemoryStore(vectordb.Config{})
	require.NoError(t, err)

	src := &fakeSource{pages: []document.Page{{Number: 1, Text: "text"}}}
	p := NewPipeline(nil, &bagEmbedder{}, failingStore{mem},
		WithLogger(quietLogger()), WithOpener(openerFor(src)))

	_, err = p.Process(context.Background(), "doc.pdf")
	var sue *vectordb.StoreUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, "upsert", sue.Op)
	assert.Equal(t, DefaultCollection, sue.Collection)
	assert.Equal(t, 1, src.closed)
}

func TestPipeline_CancelledContext(t *testing.T) {
	src := &fakeSource{pages: []document.Page{{Number: 1, Text: "a\n\nb"}}}
	p, _, _ := newTestPipeline(t, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, "doc.pdf")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.closed)
}

func TestPipeline_LedgerSeedsIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRunRepositoryWithDB(db)
	store, err := vectordb.NewMemoryStore(vectordb.Config{})
	require.NoError(t, err)

	src := &fakeSource{pages: []document.Page{{Number: 1, Text: "first\n\nsecond"}}}
	newP := func() *Pipeline {
		return NewPipeline(nil, &bagEmbedder{}, store,
			WithLogger(quietLogger()), WithOpener(openerFor(src)), WithRunRepository(repo))
	}

	res, err := newP().Process(context.Background(), "doc.pdf")
	require.NoError(t, err)

	run, err := repo.GetByID(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Paragraphs)
	assert.Equal(t, 1, run.Pages)

	// 新的流水线从记录中恢复ID，不覆盖已有的点
	_, err = newP().Process(context.Background(), "doc.pdf")
	require.NoError(t, err)

	n, err := store.Count(context.Background(), DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	max, ok, err := repo.MaxPointID(DefaultCollection)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), max)

	units, err := repo.GetUnits(res.RunID)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "first", units[0].Text)
}

func TestPipeline_FailedRunRecorded(t *testing.T) {
	repo := repository.NewRunRepositoryWithDB(setupTestDB(t))
	store, err := vectordb.NewMemoryStore(vectordb.Config{})
	require.NoError(t, err)

	p := NewPipeline(nil, &bagEmbedder{}, store, WithLogger(quietLogger()), WithRunRepository(repo))
	_, err = p.Process(context.Background(), "/missing.pdf")
	require.Error(t, err)

	runs, total, err := repo.List(0, 10, map[string]interface{}{"status": models.RunStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.NotEmpty(t, runs[0].Error)
}

// unitsFailingRepo 保存索引单元时总是失败
type unitsFailingRepo struct {
	repository.RunRepository
}

func (r unitsFailingRepo) SaveUnits(units []*models.IndexedUnit) error {
	return errors.New("disk full")
}

// 索引单元未能记录时运行失败，不会静默留下无法追踪的编号
func TestPipeline_LedgerWriteFailureFailsRun(t *testing.T) {
	repo := repository.NewRunRepositoryWithDB(setupTestDB(t))
	store, err := vectordb.NewMemoryStore(vectordb.Config{})
	require.NoError(t, err)

	src := &fakeSource{pages: []document.Page{{Number: 1, Text: "first\n\nsecond"}}}
	p := NewPipeline(nil, &bagEmbedder{}, store,
		WithLogger(quietLogger()), WithOpener(openerFor(src)), WithRunRepository(unitsFailingRepo{repo}))

	_, err = p.Process(context.Background(), "doc.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	runs, total, err := repo.List(0, 10, map[string]interface{}{"status": models.RunStatusFailed})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Contains(t, runs[0].Error, "disk full")
}

func TestPipeline_Archive(t *testing.T) {
	dir := t.TempDir()
	archive, err := storage.NewLocalStorage(storage.LocalConfig{Path: dir})
	require.NoError(t, err)

	path := writeFile(t, "%PDF-1.4 fake")
	src := &fakeSource{pages: []document.Page{{Number: 1, Text: "archived"}}}
	p, _, _ := newTestPipeline(t, src, nil, WithStorage(archive))

	res, err := p.Process(context.Background(), path)
	require.NoError(t, err)
	require.NotEmpty(t, res.StorageID)

	info, err := archive.Stat(context.Background(), res.StorageID)
	require.NoError(t, err)
	assert.Equal(t, "upload.pdf", info.Name)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
