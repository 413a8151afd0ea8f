package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// APIVersion represents an API version configuration.
type APIVersion struct {
	// Version is the version string (e.g., "v1").
	Version string
	// Status indicates the version status (stable, deprecated, sunset).
	Status string
	// SunsetDate is when the version will be removed (for deprecated versions).
	SunsetDate *time.Time
	// DeprecationMessage provides information about migration.
	DeprecationMessage string
}

// VersionStatus constants for API version lifecycle.
const (
	VersionStatusStable     = "stable"
	VersionStatusDeprecated = "deprecated"
	VersionStatusSunset     = "sunset"
)

// VersionConfig holds configuration for all API versions.
type VersionConfig struct {
	Versions       map[string]*APIVersion
	DefaultVersion string
}

// NewVersionConfig returns the gateway's version table. Only v1 exists.
func NewVersionConfig() *VersionConfig {
	return &VersionConfig{
		Versions: map[string]*APIVersion{
			"v1": {
				Version: "v1",
				Status:  VersionStatusStable,
			},
		},
		DefaultVersion: "v1",
	}
}

// VersioningMiddleware adds API version headers and handles deprecation notices.
func VersioningMiddleware(config *VersionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		version := extractVersionFromPath(c.Request.URL.Path)
		if version == "" {
			version = config.DefaultVersion
		}

		versionInfo, exists := config.Versions[version]
		if !exists {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":   "NotFound",
				"message": "API version not found: " + version,
				"code":    http.StatusNotFound,
			})
			return
		}

		c.Header("X-API-Version", version)
		c.Header("X-API-Version-Status", versionInfo.Status)

		switch versionInfo.Status {
		case VersionStatusDeprecated:
			c.Header("Deprecation", "true")
			if versionInfo.DeprecationMessage != "" {
				c.Header("X-Deprecation-Notice", versionInfo.DeprecationMessage)
			}
			if versionInfo.SunsetDate != nil {
				c.Header("Sunset", versionInfo.SunsetDate.Format(http.TimeFormat))
			}
		case VersionStatusSunset:
			c.AbortWithStatusJSON(http.StatusGone, gin.H{
				"error":   "Gone",
				"message": "API version " + version + " has been removed. Please upgrade to a newer version.",
				"code":    http.StatusGone,
			})
			return
		}

		c.Set("api_version", version)
		c.Next()
	}
}

// extractVersionFromPath returns the first vN segment of path.
func extractVersionFromPath(path string) string {
	for _, part := range strings.Split(path, "/") {
		if len(part) >= 2 && part[0] == 'v' && isNumeric(part[1:]) {
			return part
		}
	}
	return ""
}

// isNumeric checks if a string contains only digits.
func isNumeric(s string) bool {
	// Prevent potential DoS from extremely long strings
	if s == "" || len(s) > 10 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
