package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Get request size
		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		// Process request
		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		// Get response data
		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())

		// Record metrics
		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// Timer measures a storage tier write
type Timer struct {
	start   time.Time
	metrics *Metrics
	tier    string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, tier string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		tier:    tier,
	}
}

// Stop stops the timer and records the write outcome
func (t *Timer) Stop(err error) {
	t.metrics.RecordTierWrite(t.tier, err, time.Since(t.start))
}
