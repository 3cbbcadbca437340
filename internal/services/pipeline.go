package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fyerfyer/pdf-indexer/internal/document"
	"github.com/fyerfyer/pdf-indexer/internal/embedding"
	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/fyerfyer/pdf-indexer/internal/repository"
	"github.com/fyerfyer/pdf-indexer/internal/vectordb"
	"github.com/fyerfyer/pdf-indexer/pkg/storage"
	"github.com/sirupsen/logrus"
)

// DefaultCollection 默认集合名称
const DefaultCollection = "pdf_metadata_collection"

// ErrEmptyQuery 查询文本为空
var ErrEmptyQuery = errors.New("query text cannot be empty")

// Pipeline 文档入库流水线
// 负责协调分段、归一化、向量化和写入向量库
type Pipeline struct {
	opener     document.Opener       // 文档打开函数
	segmenter  *document.Segmenter   // 分段器
	embedder   embedding.Client      // 嵌入模型客户端
	store      vectordb.Store        // 向量库
	tracker    *RunTracker           // 处理记录管理器
	archive    storage.Storage       // 原始文件归档，可为nil
	collection string                // 集合名称
	distance   vectordb.DistanceType // 距离度量
	timeout    time.Duration         // 单次向量库调用的超时时间
	logger     *logrus.Logger        // 日志记录器

	runs   repository.RunRepository
	mu     sync.Mutex // 一次只处理一个文档
	nextID uint64     // 下一个可用的点ID
	ready  bool       // Init是否已完成
}

// PipelineOption 流水线配置选项
type PipelineOption func(*Pipeline)

// NewPipeline 创建流水线
func NewPipeline(segmenter *document.Segmenter, embedder embedding.Client, store vectordb.Store, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		opener:     document.OpenPDF,
		segmenter:  segmenter,
		embedder:   embedder,
		store:      store,
		collection: DefaultCollection,
		distance:   vectordb.Cosine,
		timeout:    30 * time.Second,
		logger:     logrus.New(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.segmenter == nil {
		p.segmenter = document.NewSegmenter(nil, document.WithSegmenterLogger(p.logger))
	}
	p.tracker = NewRunTracker(p.runs, p.logger)
	return p
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRunRepository 设置处理记录仓储
func WithRunRepository(repo repository.RunRepository) PipelineOption {
	return func(p *Pipeline) {
		p.runs = repo
	}
}

// WithStorage 设置原始文件归档
func WithStorage(s storage.Storage) PipelineOption {
	return func(p *Pipeline) {
		p.archive = s
	}
}

// WithOpener 设置文档打开函数
func WithOpener(opener document.Opener) PipelineOption {
	return func(p *Pipeline) {
		if opener != nil {
			p.opener = opener
		}
	}
}

// WithCollection 设置集合名称
func WithCollection(name string) PipelineOption {
	return func(p *Pipeline) {
		if name != "" {
			p.collection = name
		}
	}
}

// WithDistance 设置距离度量
func WithDistance(d vectordb.DistanceType) PipelineOption {
	return func(p *Pipeline) {
		if d.Valid() {
			p.distance = d
		}
	}
}

// WithTimeout 设置单次向量库调用的超时时间，0表示不限制
func WithTimeout(timeout time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.timeout = timeout
	}
}

// Collection 返回集合名称
func (p *Pipeline) Collection() string {
	return p.collection
}

// ProcessResult 一次处理的统计结果
type ProcessResult struct {
	RunID      string `json:"run_id"`
	FileName   string `json:"file_name"`
	StorageID  string `json:"storage_id,omitempty"`
	Pages      int    `json:"pages"`
	Paragraphs int    `json:"paragraphs"`
	Tables     int    `json:"tables"`
	Images     int    `json:"images"`
	Skipped    int    `json:"skipped"`
	Excluded   int    `json:"excluded"`
}

// Total 写入向量库的点数
func (r *ProcessResult) Total() int {
	return r.Paragraphs + r.Tables + r.Images
}

// Init 确保集合存在，并从处理记录中恢复ID分配器
func (p *Pipeline) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.init(ctx)
}

func (p *Pipeline) init(ctx context.Context) error {
	if p.ready {
		return nil
	}

	dim := p.embedder.Dimension()
	if dim <= 0 {
		return fmt.Errorf("embedder %s reports invalid dimension %d", p.embedder.Name(), dim)
	}

	callCtx, cancel := p.callContext(ctx)
	err := p.store.EnsureCollection(callCtx, p.collection, dim, p.distance)
	cancel()
	if err != nil {
		return vectordb.AsStoreUnavailable("ensure_collection", p.collection, err)
	}

	if p.runs != nil {
		max, ok, err := p.runs.MaxPointID(p.collection)
		if err != nil {
			return fmt.Errorf("failed to read last point id: %w", err)
		}
		if ok {
			p.nextID = max + 1
		}
	}

	p.logger.WithFields(logrus.Fields{
		"collection": p.collection,
		"dimension":  dim,
		"distance":   p.distance,
		"next_id":    p.nextID,
	}).Info("Collection ready")

	p.ready = true
	return nil
}

// Process 处理一个PDF：分段、嵌入并写入向量库
// 段落、表格和图片三个批次分别写入，ID在整个运行期间唯一
func (p *Pipeline) Process(ctx context.Context, path string) (*ProcessResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path cannot be empty")
	}
	if err := p.init(ctx); err != nil {
		return nil, err
	}

	run, err := p.tracker.Start(path, p.collection)
	if err != nil {
		return nil, err
	}

	result, err := p.process(ctx, run, path)
	if err != nil {
		if ferr := p.tracker.Fail(run, err); ferr != nil {
			p.logger.WithError(ferr).Warn("Failed to mark ingest run as failed")
		}
		return nil, err
	}

	if err := p.tracker.Complete(run, map[string]interface{}{
		"embedder":  p.embedder.Name(),
		"dimension": p.embedder.Dimension(),
		"excluded":  result.Excluded,
	}); err != nil {
		p.logger.WithError(err).Warn("Failed to mark ingest run as completed")
	}
	return result, nil
}

// process 执行一次处理，run的计数随处理推进而更新
func (p *Pipeline) process(ctx context.Context, run *models.IngestRun, path string) (*ProcessResult, error) {
	src, err := p.opener(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			p.logger.WithError(cerr).Warn("Failed to close document")
		}
	}()

	result := &ProcessResult{
		RunID:    run.ID,
		FileName: filepath.Base(path),
	}

	if p.archive != nil {
		result.StorageID = p.archiveFile(ctx, path)
		run.StorageID = result.StorageID
	}

	pages, err := document.Pages(ctx, src)
	if err != nil {
		return nil, err
	}
	result.Pages = len(pages)
	run.Pages = len(pages)

	segs, err := p.segmenter.Segment(ctx, pages)
	if err != nil {
		return nil, err
	}
	result.Skipped = segs.Skipped

	p.logger.WithFields(logrus.Fields{
		"file":       result.FileName,
		"pages":      result.Pages,
		"paragraphs": len(segs.Paragraphs),
		"tables":     len(segs.Tables),
		"images":     len(segs.Images),
	}).Info("Document segmented")

	batches := []struct {
		kind  models.UnitKind
		units []models.ExtractedUnit
		count *int
	}{
		{models.KindParagraph, segs.Paragraphs, &result.Paragraphs},
		{models.KindTable, segs.Tables, &result.Tables},
		{models.KindImage, segs.Images, &result.Images},
	}

	for _, b := range batches {
		stored, skipped, excluded, err := p.indexBatch(ctx, run.ID, b.kind, b.units)
		if err != nil {
			return nil, err
		}
		*b.count = stored
		result.Skipped += skipped
		result.Excluded += excluded
	}

	run.Paragraphs = result.Paragraphs
	run.Tables = result.Tables
	run.Images = result.Images
	run.Skipped = result.Skipped
	return result, nil
}

// indexBatch 归一化、嵌入并写入一个批次，返回写入数、跳过数和排除数
func (p *Pipeline) indexBatch(ctx context.Context, runID string, kind models.UnitKind, units []models.ExtractedUnit) (int, int, int, error) {
	records, excluded := document.NormalizeAll(units)
	if len(records) == 0 {
		return 0, 0, excluded, nil
	}

	vectors, skipped, err := p.embedRecords(ctx, kind, records)
	if err != nil {
		return 0, 0, 0, err
	}

	points := make([]vectordb.Point, 0, len(records))
	ledger := make([]*models.IndexedUnit, 0, len(records))

	for i, rec := range records {
		vec := vectors[i]
		if vec == nil {
			continue
		}

		id := p.allocateID()
		points = append(points, vectordb.Point{
			ID:      id,
			Vector:  vec,
			Payload: rec.Payload,
		})
		ledger = append(ledger, &models.IndexedUnit{
			RunID:      runID,
			Collection: p.collection,
			PointID:    id,
			Kind:       kind,
			Page:       rec.Payload.Page,
			Ordinal:    rec.Payload.Ordinal,
			Text:       rec.TextForEmbedding,
		})
	}

	if len(points) == 0 {
		return 0, skipped, excluded, nil
	}

	callCtx, cancel := p.callContext(ctx)
	err = p.store.Upsert(callCtx, p.collection, points)
	cancel()
	if err != nil {
		return 0, 0, 0, vectordb.AsStoreUnavailable("upsert", p.collection, err)
	}

	// 编号种子来自台账，写入失败则整个运行失败
	if err := p.tracker.RecordUnits(ledger); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to record indexed units: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"kind":     kind,
		"points":   len(points),
		"skipped":  skipped,
		"first_id": points[0].ID,
		"last_id":  points[len(points)-1].ID,
	}).Info("Batch stored")

	return len(points), skipped, excluded, nil
}

// embedRecords 批量嵌入一个批次的文本
// 结果与records一一对应，nil表示该单元嵌入失败被跳过
// 整批请求返回嵌入错误时逐条重试，只跳过失败的单元
func (p *Pipeline) embedRecords(ctx context.Context, kind models.UnitKind, records []models.Record) ([][]float32, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.TextForEmbedding
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) == len(texts) {
		return vectors, 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, 0, ctxErr
	}
	if err != nil {
		var embErr embedding.EmbeddingError
		if !errors.As(err, &embErr) {
			return nil, 0, fmt.Errorf("failed to embed %s batch: %w", kind, err)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"kind":  kind,
		"units": len(records),
	}).WithError(err).Warn("Batch embedding failed, embedding units one by one")

	vectors = make([][]float32, len(records))
	skipped := 0
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		vec, err := p.embedder.Embed(ctx, rec.TextForEmbedding)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, 0, ctxErr
			}
			var embErr embedding.EmbeddingError
			if !errors.As(err, &embErr) {
				return nil, 0, fmt.Errorf("failed to embed %s on page %d: %w", kind, rec.Payload.Page, err)
			}
			p.logger.WithFields(logrus.Fields{
				"kind":    kind,
				"page":    rec.Payload.Page,
				"ordinal": rec.Payload.Ordinal,
				"code":    embErr.Code,
			}).WithError(err).Warn("Skipping unit that failed to embed")
			skipped++
			continue
		}
		vectors[i] = vec
	}
	return vectors, skipped, nil
}

// Query 嵌入查询文本并返回最相似的topK个结果，按相似度降序排列
func (p *Pipeline) Query(ctx context.Context, text string, topK int) ([]vectordb.SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}

	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	results, err := p.store.Search(callCtx, p.collection, vec, topK)
	if err != nil {
		return nil, vectordb.AsStoreUnavailable("search", p.collection, err)
	}

	p.logger.WithFields(logrus.Fields{
		"top_k":   topK,
		"results": len(results),
	}).Debug("Query completed")
	return results, nil
}

// Payloads 提取查询结果中的载荷
func Payloads(results []vectordb.SearchResult) []models.Payload {
	payloads := make([]models.Payload, len(results))
	for i, r := range results {
		payloads[i] = r.Payload
	}
	return payloads
}

// allocateID 分配下一个点ID
func (p *Pipeline) allocateID() uint64 {
	id := p.nextID
	p.nextID++
	return id
}

// archiveFile 归档原始文件，失败时只记录日志
func (p *Pipeline) archiveFile(ctx context.Context, path string) string {
	f, err := os.Open(path)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to open file for archiving")
		return ""
	}
	defer f.Close()

	info, err := p.archive.Save(ctx, f, filepath.Base(path))
	if err != nil {
		p.logger.WithError(err).Warn("Failed to archive document")
		return ""
	}

	p.logger.WithFields(logrus.Fields{
		"storage_id": info.ID,
		"size":       info.Size,
	}).Debug("Document archived")
	return info.ID
}

// callContext 为单次外部调用设置超时
func (p *Pipeline) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}
