package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yinzara/ha-config-ai-agent/pkg/api/dto"
)

// APIKeyHeader carries the key on REST calls.
const APIKeyHeader = "X-API-Key"

// Auth rejects requests without the configured key. The key is read from
// the X-API-Key header, then an "Authorization: Bearer" header, then the
// api_key query parameter used by browser WebSocket clients. An empty apiKey
// disables the check.
func Auth(apiKey string) gin.HandlerFunc {
	want := []byte(apiKey)
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		got := presentedKey(c)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid api key"})
			return
		}
		c.Next()
	}
}

func presentedKey(c *gin.Context) string {
	if key := c.GetHeader(APIKeyHeader); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.Query("api_key")
}
