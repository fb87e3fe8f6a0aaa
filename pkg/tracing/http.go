package tracing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// untracedPaths are polled by probes and scrapers and would drown out the
// send-message spans.
var untracedPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// GinMiddleware traces inbound HTTP requests except health and metrics
// polls. Spans are named "<METHOD> <path>".
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithFilter(shouldTrace),
		otelgin.WithSpanNameFormatter(spanName),
	)
}

func spanName(c *gin.Context) string {
	return c.Request.Method + " " + c.Request.URL.Path
}

func shouldTrace(r *http.Request) bool {
	return !untracedPaths[r.URL.Path]
}
