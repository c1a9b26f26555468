package middleware

import (
	"strconv"

	"vibely/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader echoes the request's trace id back to the caller.
const TraceIDHeader = "X-Trace-ID"

// TracingMiddleware opens one server span per request, continuing any trace
// the caller propagated. Spans are named after the matched route so that
// /api/posts/7 and /api/posts/8 group together.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		carrier := propagation.HeaderCarrier{}
		for name, values := range c.GetReqHeaders() {
			carrier[name] = values
		}
		parent := otel.GetTextMapPropagator().Extract(c.UserContext(), carrier)

		ctx, span := observability.Tracer.Start(parent, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Method()),
				attribute.String("url.path", c.Path()),
				attribute.String("client.address", c.IP()),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals("traceID", traceID)
		c.Set(TraceIDHeader, traceID)
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		span.SetName(c.Method() + " " + c.Route().Path)
		span.SetAttributes(
			attribute.String("http.route", c.Route().Path),
			attribute.Int("http.response.status_code", status),
		)
		if rid, ok := c.Locals("requestid").(string); ok {
			span.SetAttributes(attribute.String("request.id", rid))
		}
		if uid, ok := c.Locals("userID").(uint); ok {
			span.SetAttributes(attribute.String("enduser.id", strconv.FormatUint(uint64(uid), 10)))
		}
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case status >= fiber.StatusInternalServerError:
			span.SetStatus(codes.Error, strconv.Itoa(status))
		}
		return err
	}
}
