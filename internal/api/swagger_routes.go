//go:build swagger

package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// registerSwaggerRoutes 注册 Swagger 文档路由（仅在 -tags swagger 时启用）
func registerSwaggerRoutes(engine *gin.Engine) {
	// 文档数据源直接使用 /openapi
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(
		swaggerFiles.Handler,
		ginSwagger.URL("/openapi"),
		ginSwagger.DocExpansion("list"),
	))
}
