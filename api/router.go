package api

import (
	"net/http"

	"github.com/fyerfyer/pdf-indexer/api/handler"
	"github.com/fyerfyer/pdf-indexer/api/middleware"
	"github.com/fyerfyer/pdf-indexer/api/model"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	docHandler *handler.DocumentHandler,
	searchHandler *handler.SearchHandler,
) *gin.Engine {
	router := gin.New()

	// 追踪ID需要先于错误处理设置
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
		router.Use(middleware.ResponseLogger())
	}

	api := router.Group("/api")
	{
		// 上传并入库 - POST /api/documents
		api.POST("/documents", docHandler.UploadDocument)

		// 相似度检索 - POST /api/search
		api.POST("/search", searchHandler.Search)

		runGroup := api.Group("/runs")
		{
			// 处理记录列表 - GET /api/runs
			runGroup.GET("", docHandler.ListRuns)

			// 处理记录详情 - GET /api/runs/:id
			runGroup.GET("/:id", docHandler.GetRun)
		}

		// 健康检查 - GET /api/health
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
				"status": "ok",
			}))
		})
	}

	return router
}
