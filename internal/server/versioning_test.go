package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewVersionConfig(t *testing.T) {
	config := NewVersionConfig()

	if config.DefaultVersion != "v1" {
		t.Errorf("DefaultVersion = %s, want v1", config.DefaultVersion)
	}
	if len(config.Versions) != 1 {
		t.Errorf("len(Versions) = %d, want 1", len(config.Versions))
	}
	v1, ok := config.Versions["v1"]
	if !ok {
		t.Fatal("Version v1 not found in config")
	}
	if v1.Status != VersionStatusStable {
		t.Errorf("v1 Status = %s, want %s", v1.Status, VersionStatusStable)
	}
}

func versionedRouter(config *VersionConfig) *gin.Engine {
	router := gin.New()
	router.Use(VersioningMiddleware(config))
	router.GET("/*path", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("api_version"))
	})
	return router
}

func TestVersioningMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		expectedStatus int
		expectedHeader string
	}{
		{
			name:           "v1 path sets version header",
			path:           "/wps/v1/services",
			expectedStatus: http.StatusOK,
			expectedHeader: "v1",
		},
		{
			name:           "path without version uses the default",
			path:           "/health",
			expectedStatus: http.StatusOK,
			expectedHeader: "v1",
		},
		{
			name:           "unknown version returns 404",
			path:           "/wps/v2/services",
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := versionedRouter(NewVersionConfig())

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.expectedStatus)
			}
			if tt.expectedHeader != "" {
				if got := w.Header().Get("X-API-Version"); got != tt.expectedHeader {
					t.Errorf("X-API-Version = %s, want %s", got, tt.expectedHeader)
				}
				if got := w.Body.String(); got != tt.expectedHeader {
					t.Errorf("api_version in context = %s, want %s", got, tt.expectedHeader)
				}
			}
		})
	}
}

func TestVersioningMiddleware_Deprecation(t *testing.T) {
	config := NewVersionConfig()
	sunsetDate := time.Now().AddDate(0, 6, 0)
	config.Versions["v1"].Status = VersionStatusDeprecated
	config.Versions["v1"].SunsetDate = &sunsetDate
	config.Versions["v1"].DeprecationMessage = "Please migrate to v2"

	req := httptest.NewRequest(http.MethodGet, "/wps/v1/services", nil)
	w := httptest.NewRecorder()
	versionedRouter(config).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Deprecation"); got != "true" {
		t.Errorf("Deprecation header = %s, want 'true'", got)
	}
	if got := w.Header().Get("X-Deprecation-Notice"); got != "Please migrate to v2" {
		t.Errorf("X-Deprecation-Notice = %s, want 'Please migrate to v2'", got)
	}
	if _, err := http.ParseTime(w.Header().Get("Sunset")); err != nil {
		t.Errorf("Sunset header is not an HTTP date: %v", err)
	}
}

func TestVersioningMiddleware_Sunset(t *testing.T) {
	config := NewVersionConfig()
	config.Versions["v1"].Status = VersionStatusSunset

	req := httptest.NewRequest(http.MethodGet, "/wps/v1/services", nil)
	w := httptest.NewRecorder()
	versionedRouter(config).ServeHTTP(w, req)

	if w.Code != http.StatusGone {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusGone)
	}
}

func TestExtractVersionFromPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{path: "/wps/v1/services", expected: "v1"},
		{path: "/api/v10/executions", expected: "v10"},
		{path: "/health", expected: ""},
		{path: "/wps/version/services", expected: ""},
		{path: "/wps/v/services", expected: ""},
		{path: "/wps/v12345678901/services", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := extractVersionFromPath(tt.path); got != tt.expected {
				t.Errorf("extractVersionFromPath(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
