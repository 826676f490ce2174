package middleware

import (
	"github.com/gin-gonic/gin"
)

const (
	HeaderXAPIVersion = "X-API-Version"
	ContextAPIVersion = "api_version"
)

// Version stamps every response of a route group with the API version.
func Version(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextAPIVersion, version)
		c.Header(HeaderXAPIVersion, version)
		c.Next()
	}
}
