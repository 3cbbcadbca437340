package handler

import (
	"net/http"

	"github.com/fyerfyer/pdf-indexer/api/middleware"
	"github.com/fyerfyer/pdf-indexer/api/model"
	"github.com/fyerfyer/pdf-indexer/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DefaultTopK 未指定top_k时返回的结果数
const DefaultTopK = 5

// SearchHandler 处理相似度检索请求
type SearchHandler struct {
	pipeline *services.Pipeline
	logger   *logrus.Logger
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(pipeline *services.Pipeline) *SearchHandler {
	return &SearchHandler{
		pipeline: pipeline,
		logger:   middleware.GetLogger(),
	}
}

// Search 返回与查询最相似的单元
// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, bindingError(err))
		return
	}
	if req.TopK == 0 {
		req.TopK = DefaultTopK
	}

	results, err := h.pipeline.Query(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		h.logger.WithError(err).Warn("Search failed")
		middleware.HandleError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SearchResponse{
		Query:   req.Query,
		TopK:    req.TopK,
		Results: model.ConvertSearchResults(results),
	}))
}
