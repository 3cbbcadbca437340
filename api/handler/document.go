package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/pdf-indexer/api/middleware"
	"github.com/fyerfyer/pdf-indexer/api/model"
	"github.com/fyerfyer/pdf-indexer/internal/repository"
	"github.com/fyerfyer/pdf-indexer/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxUploadSize 上传文件大小上限
const maxUploadSize = 64 << 20

// DocumentHandler 处理文档入库相关的API请求
type DocumentHandler struct {
	pipeline  *services.Pipeline       // 入库流水线
	runs      repository.RunRepository // 处理记录仓储，可为nil
	uploadDir string                   // 上传文件的临时目录
	logger    *logrus.Logger           // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(pipeline *services.Pipeline, runs repository.RunRepository, uploadDir string) *DocumentHandler {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	return &DocumentHandler{
		pipeline:  pipeline,
		runs:      runs,
		uploadDir: uploadDir,
		logger:    middleware.GetLogger(),
	}
}

// UploadDocument 上传PDF并同步完成入库
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, bindingError(err))
		return
	}

	filename := filepath.Base(req.File.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		middleware.HandleError(c, middleware.NewValidationError("unsupported file type, only .pdf is accepted"))
		return
	}
	if req.File.Size > maxUploadSize {
		middleware.HandleError(c, middleware.NewValidationError(
			fmt.Sprintf("file too large, limit is %d bytes", maxUploadSize)))
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to prepare upload directory", err.Error()))
		return
	}
	tmp, err := os.MkdirTemp(h.uploadDir, "upload-*")
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to prepare upload directory", err.Error()))
		return
	}
	defer os.RemoveAll(tmp)

	path := filepath.Join(tmp, filename)
	if err := c.SaveUploadedFile(req.File, path); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to save uploaded file", err.Error()))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"filename": filename,
		"size":     req.File.Size,
	}).Info("PDF uploaded, starting ingestion")

	result, err := h.pipeline.Process(c.Request.Context(), path)
	if err != nil {
		h.logger.WithError(err).WithField("filename", filename).Error("Failed to ingest document")
		middleware.HandleError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(result))
}

// ListRuns 列出处理记录
// GET /api/runs
func (h *DocumentHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		middleware.HandleError(c, middleware.NewNotFoundError("run history is disabled"))
		return
	}

	var req model.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, bindingError(err))
		return
	}

	filters := map[string]interface{}{}
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.FileName != "" {
		filters["file_name"] = req.FileName
	}

	runs, total, err := h.runs.List(req.Offset(), req.GetPageSize(), filters)
	if err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	infos := make([]model.RunInfo, len(runs))
	for i, run := range runs {
		infos[i] = model.NewRunInfo(run)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.RunListResponse{
		PaginationResponse: model.PaginationResponse{
			Total:    total,
			Page:     req.GetPage(),
			PageSize: req.GetPageSize(),
		},
		Runs: infos,
	}))
}

// GetRun 获取处理记录详情及其单元
// GET /api/runs/:id
func (h *DocumentHandler) GetRun(c *gin.Context) {
	if h.runs == nil {
		middleware.HandleError(c, middleware.NewNotFoundError("run history is disabled"))
		return
	}

	var req model.RunRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, bindingError(err))
		return
	}

	run, err := h.runs.GetByID(req.ID)
	if err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	units, err := h.runs.GetUnits(run.ID)
	if err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	detail := model.RunDetailResponse{
		RunInfo: model.NewRunInfo(run),
		Units:   make([]model.UnitInfo, len(units)),
	}
	for i, u := range units {
		detail.Units[i] = model.UnitInfo{
			PointID: u.PointID,
			Kind:    u.Kind,
			Page:    u.Page,
			Ordinal: u.Ordinal,
			Text:    u.Text,
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(detail))
}
