package middleware

import (
	"screencast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// TracingMiddleware continues the caller's trace, or starts one, for every
// request. Handler errors are recorded on the span.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.TraceHTTPRequest(ctx, c.Request.Method, route)
		defer span.End()
		span.SetAttributes(attribute.String("http.client_ip", c.ClientIP()))

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if id := c.Writer.Header().Get(requestIDHeader); id != "" {
			span.SetAttributes(attribute.String("http.request_id", id))
		}
		if subject := Subject(c); subject != "" {
			span.SetAttributes(attribute.String("enduser.id", subject))
		}
		for _, ginErr := range c.Errors {
			span.RecordError(ginErr.Err)
		}

		switch {
		case status >= 500:
			span.SetStatus(codes.Error, c.Errors.String())
		case len(c.Errors) == 0:
			span.SetStatus(codes.Ok, "")
		}
	}
}
