package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Swagger UI assets are pinned with SRI hashes.
// SRI hashes can be verified at: https://www.srihash.org/
const (
	swaggerUICSSURL    = "https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css"
	swaggerUIBundleURL = "https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js"

	swaggerUICSSSRI    = "sha384-+yyzNgM3K92sROwsXxYCxaiLWxWJ0G+v/9A+qIZ2rgefKgkdcmJI+L601cqPD/Ut"
	swaggerUIBundleSRI = "sha384-qn5tagrAjZi8cSmvZ+k3zk4+eDEEUcP9myuR2J6V+/H6rne++v6ChO7EeHAEzqxQ"

	swaggerUICSP = "default-src 'self'; " +
		"script-src 'self' 'unsafe-inline' https://unpkg.com; " +
		"style-src 'self' 'unsafe-inline' https://unpkg.com; " +
		"img-src 'self' data: https:; " +
		"font-src 'self' https://unpkg.com; " +
		"connect-src 'self'"
)

const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>wpsgate API Documentation</title>
    <link rel="stylesheet" type="text/css" href="` + swaggerUICSSURL + `" integrity="` + swaggerUICSSSRI + `" crossorigin="anonymous">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="` + swaggerUIBundleURL + `" integrity="` + swaggerUIBundleSRI + `" crossorigin="anonymous"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "/docs/openapi.yaml",
                dom_id: '#swagger-ui',
                deepLinking: true,
                validatorUrl: null,
                displayRequestDuration: true
            });
        };
    </script>
</body>
</html>`

// setupDocsRoutes serves the OpenAPI document and Swagger UI.
func (s *Server) setupDocsRoutes() {
	docs := s.router.Group("/docs")
	{
		docs.GET("/openapi.yaml", s.handleOpenAPIYAML)
		docs.GET("/openapi.json", s.handleOpenAPIJSON)
		docs.GET("", func(c *gin.Context) { c.Redirect(http.StatusMovedPermanently, "/docs/") })
		docs.GET("/", s.handleSwaggerUI)
	}
}

func (s *Server) handleOpenAPIYAML(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/x-yaml", s.openAPISpec)
}

// handleOpenAPIJSON serves the loaded document as JSON. It needs the
// validator, which holds the parsed document.
func (s *Server) handleOpenAPIJSON(c *gin.Context) {
	if s.openAPIValidator == nil || s.openAPIValidator.Spec() == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "NotFound",
			"message": "OpenAPI document not loaded",
			"code":    http.StatusNotFound,
		})
		return
	}
	body, err := json.Marshal(s.openAPIValidator.Spec())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "InternalError",
			"message": "failed to encode OpenAPI document",
			"code":    http.StatusInternalServerError,
		})
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) handleSwaggerUI(c *gin.Context) {
	c.Header("Content-Security-Policy", swaggerUICSP)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerUIPage))
}
