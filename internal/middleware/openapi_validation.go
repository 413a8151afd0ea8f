// Package middleware provides HTTP middleware for the WPS gateway.
// It includes request/response validation against the gateway's OpenAPI
// document, a Redis-backed rate limiter and security headers.
package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultMaxBodySize caps request bodies read for validation.
const DefaultMaxBodySize int64 = 1 << 20

// ValidationConfig holds configuration for the OpenAPI validation middleware.
type ValidationConfig struct {
	// ValidateRequest enables request validation against the OpenAPI document.
	ValidateRequest bool

	// ValidateResponse enables response validation against the OpenAPI document.
	// This should typically only be enabled in development/testing.
	ValidateResponse bool

	// MaxBodySize is the largest request body accepted for validation.
	// Larger bodies are rejected with 413.
	MaxBodySize int64

	// ExcludePaths is a list of path prefixes to exclude from validation.
	ExcludePaths []string

	// Logger is the logger for validation errors.
	Logger *zap.Logger
}

// DefaultValidationConfig returns the default validation configuration.
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		ValidateRequest:  true,
		ValidateResponse: false,
		MaxBodySize:      DefaultMaxBodySize,
		ExcludePaths: []string{
			"/health",
			"/ready",
			"/metrics",
			"/docs",
		},
	}
}

// OpenAPIValidator provides OpenAPI-based request/response validation.
type OpenAPIValidator struct {
	config *ValidationConfig
	router routers.Router
	spec   *openapi3.T
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewOpenAPIValidator creates a new OpenAPI validator with the given configuration.
func NewOpenAPIValidator(cfg *ValidationConfig) (*OpenAPIValidator, error) {
	if cfg == nil {
		cfg = DefaultValidationConfig()
	}
	if cfg.MaxBodySize < 0 {
		return nil, fmt.Errorf("max body size cannot be negative: %d", cfg.MaxBodySize)
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAPIValidator{
		config: cfg,
		logger: logger,
	}, nil
}

// LoadSpec loads the OpenAPI document from the given content.
func (v *OpenAPIValidator) LoadSpec(specContent []byte) error {
	if len(specContent) == 0 {
		return errors.New("OpenAPI spec is empty")
	}

	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(specContent)
	if err != nil {
		return fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}

	return v.install(spec, zap.String("source", "bytes"))
}

// LoadSpecFromFile loads the OpenAPI document from a file path.
func (v *OpenAPIValidator) LoadSpecFromFile(path string) error {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load OpenAPI spec from file: %w", err)
	}

	return v.install(spec, zap.String("path", path))
}

func (v *OpenAPIValidator) install(spec *openapi3.T, source zap.Field) error {
	if err := spec.Validate(context.Background()); err != nil {
		return fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(spec)
	if err != nil {
		return fmt.Errorf("failed to create OpenAPI router: %w", err)
	}

	v.mu.Lock()
	v.spec = spec
	v.router = router
	v.mu.Unlock()

	v.logger.Info("OpenAPI spec loaded",
		source,
		zap.String("title", spec.Info.Title),
		zap.String("version", spec.Info.Version),
	)

	return nil
}

// Spec returns the loaded OpenAPI document.
func (v *OpenAPIValidator) Spec() *openapi3.T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.spec
}

func (v *OpenAPIValidator) isExcludedPath(path string) bool {
	for _, excluded := range v.config.ExcludePaths {
		if strings.HasPrefix(path, excluded) {
			return true
		}
	}
	return false
}

// Middleware returns a Gin middleware function for OpenAPI validation.
// Requests whose route is not described in the document pass through.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		v.mu.RLock()
		router := v.router
		v.mu.RUnlock()

		if router == nil {
			v.logger.Warn("OpenAPI spec not loaded, skipping validation")
			c.Next()
			return
		}

		if v.isExcludedPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			v.logger.Debug("route not found in OpenAPI spec",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if v.config.ValidateRequest && !v.validateRequest(c, route, pathParams) {
			return
		}

		if v.config.ValidateResponse {
			v.validateResponseWithCapture(c, route, pathParams)
			return
		}

		c.Next()
	}
}

// validateRequest reports whether the request may proceed. On failure the
// response has already been written.
func (v *OpenAPIValidator) validateRequest(c *gin.Context, route *routers.Route, pathParams map[string]string) bool {
	if c.Request.ContentLength > v.config.MaxBodySize {
		abortWithValidationError(c, http.StatusRequestEntityTooLarge, "PayloadTooLarge",
			fmt.Sprintf("Request body exceeds %d bytes", v.config.MaxBodySize), nil)
		return false
	}

	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, v.config.MaxBodySize+1))
		if err != nil {
			v.logger.Error("failed to read request body", zap.Error(err))
			abortWithValidationError(c, http.StatusBadRequest, "BadRequest", "Failed to read request body", nil)
			return false
		}
		if int64(len(body)) > v.config.MaxBodySize {
			abortWithValidationError(c, http.StatusRequestEntityTooLarge, "PayloadTooLarge",
				fmt.Sprintf("Request body exceeds %d bytes", v.config.MaxBodySize), nil)
			return false
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		defer func() { c.Request.Body = io.NopCloser(bytes.NewReader(body)) }()
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    c.Request,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			MultiError:         true,
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}

	if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
		v.logger.Info("request validation failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		abortWithValidationError(c, http.StatusBadRequest, "ValidationError",
			formatValidationError(err), collectValidationErrors(err))
		return false
	}

	return true
}

func abortWithValidationError(c *gin.Context, status int, kind, message string, details []ValidationError) {
	body := gin.H{
		"error":   kind,
		"message": message,
		"code":    status,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, body)
}

// responseRecorder captures the response for validation.
type responseRecorder struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

// Write captures the response body.
func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// WriteHeader captures the status code.
func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// validateResponseWithCapture validates the response against the OpenAPI
// document. Mismatches are logged, never returned to the client.
func (v *OpenAPIValidator) validateResponseWithCapture(c *gin.Context, route *routers.Route, pathParams map[string]string) {
	recorder := &responseRecorder{
		ResponseWriter: c.Writer,
		body:           &bytes.Buffer{},
		statusCode:     http.StatusOK,
	}
	c.Writer = recorder

	c.Next()

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
		},
		Status: recorder.statusCode,
		Header: c.Writer.Header(),
		Body:   io.NopCloser(bytes.NewReader(recorder.body.Bytes())),
		Options: &openapi3filter.Options{
			MultiError: true,
		},
	}

	if err := openapi3filter.ValidateResponse(c.Request.Context(), input); err != nil {
		v.logger.Warn("response validation failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", recorder.statusCode),
			zap.Error(err),
		)
	}
}

// formatValidationError formats validation errors for the API response.
func formatValidationError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	if strings.Contains(errStr, "request body has an error") {
		if strings.Contains(errStr, "doesn't match schema") {
			return "Request body validation failed: " + extractSchemaError(errStr)
		}
		return "Invalid request body format"
	}

	if strings.Contains(errStr, "parameter") {
		return "Invalid request parameters: " + errStr
	}

	return "Request validation failed: " + errStr
}

// extractSchemaError extracts a human-readable error from schema validation.
func extractSchemaError(errStr string) string {
	if strings.Contains(errStr, "property") {
		parts := strings.Split(errStr, "property")
		if len(parts) > 1 {
			propertyPart := strings.TrimSpace(parts[1])
			if idx := strings.Index(propertyPart, " "); idx > 0 {
				return "invalid property " + strings.Trim(propertyPart[:idx], `"`)
			}
		}
	}

	if strings.Contains(errStr, "missing") {
		return "missing required field"
	}

	if strings.Contains(errStr, "type") {
		return "invalid field type"
	}

	return "schema validation failed"
}

// collectValidationErrors flattens kin-openapi's error tree into one entry
// per failing parameter or schema location.
func collectValidationErrors(err error) []ValidationError {
	var out []ValidationError

	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			out = append(out, collectValidationErrors(e)...)
		}
		return out
	}

	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return []ValidationError{{
				Field:   reqErr.Parameter.Name,
				Message: reqErr.Reason,
			}}
		}
		if nested := collectValidationErrors(reqErr.Err); len(nested) > 0 {
			return nested
		}
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		return []ValidationError{{
			Field:   strings.Join(schemaErr.JSONPointer(), "."),
			Message: schemaErr.Reason,
		}}
	}

	if reqErr != nil {
		return []ValidationError{{Message: reqErr.Error()}}
	}
	return nil
}

// ValidationError describes one failing field of a rejected request.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}
