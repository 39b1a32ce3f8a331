package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// WithResponseMeta seeds a metadata map on the request context and stamps
// the processing time once the handler returns. Handlers add their own
// entries through SetCacheHit and the like; the response envelope carries
// the map to the client.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()

		meta := metaFor(c)
		if _, set := meta["processing_time_ms"]; !set {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit marks whether the response was served from the listing cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaFor(c)["cache_hit"] = hit
}

// ExtractMeta returns the metadata map for the current request, or nil when
// WithResponseMeta is not installed.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if value, exists := c.Get(responseMetaKey); exists {
		if meta, ok := value.(map[string]interface{}); ok {
			return meta
		}
	}
	return nil
}

func metaFor(c *gin.Context) map[string]interface{} {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := make(map[string]interface{})
	if c != nil {
		c.Set(responseMetaKey, meta)
	}
	return meta
}
