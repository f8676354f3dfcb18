package api

import (
	_ "embed"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openapiSpec []byte

// registerOpenAPIRoutes 提供 /openapi 与 /docs/ui
func registerOpenAPIRoutes(engine *gin.Engine, staticDir string) {
	engine.GET("/openapi", serveOpenAPI)
	engine.GET("/openapi.yaml", serveOpenAPI)
	engine.GET("/docs/ui", func(c *gin.Context) {
		serveSwaggerUI(c, staticDir)
	})
}

func serveOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml; charset=utf-8", openapiSpec)
}

func serveSwaggerUI(c *gin.Context, staticDir string) {
	// 使用静态目录下的 swagger-ui-dist（若存在），否则回退 CDN
	cssHref := "https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"
	jsBundle := "https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"
	if staticDir != "" {
		if _, err := os.Stat(filepath.Join(staticDir, "vendors", "swagger-ui", "swagger-ui-bundle.js")); err == nil {
			cssHref = "/vendors/swagger-ui/swagger-ui.css"
			jsBundle = "/vendors/swagger-ui/swagger-ui-bundle.js"
		}
	}

	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>LED Master API - Swagger UI</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <link rel="stylesheet" href="` + cssHref + `">
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="` + jsBundle + `" crossorigin></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi',
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis],
        layout: 'BaseLayout'
      })
    </script>
  </body>
</html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
