package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campus-adp/records-api/internal/service"
)

// Metrics times every request and feeds the HTTP histograms. Unmatched
// routes share one label value so 404 scans cannot blow up cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
