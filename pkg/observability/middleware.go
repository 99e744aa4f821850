package observability

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// responseRecorder remembers the first status code sent to the client.
type responseRecorder struct {
	http.ResponseWriter

	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}

	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(buf []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	return r.ResponseWriter.Write(buf) //nolint:wrapcheck // passthrough writer.
}

func (r *responseRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}

	return r.status
}

// HTTPMiddleware traces each request as a server span named "METHOD /path",
// continuing any incoming W3C trace, and records it as an HTTP operation of
// the same name. 5xx responses count as failures. ops may be nil.
func HTTPMiddleware(tracer trace.Tracer, ops *OperationMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		op := HTTPRoute(req.Method, req.URL.Path)

		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		ctx, span := tracer.Start(ctx, op.Name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(req.Method),
				attribute.String("http.target", req.URL.Path),
			),
		)
		defer span.End()

		end := ops.Begin(ctx, op)

		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, req.WithContext(ctx))

		code := rec.code()
		span.SetAttributes(semconv.HTTPResponseStatusCode(code))

		failed := code >= http.StatusInternalServerError
		if failed {
			span.SetStatus(codes.Error, http.StatusText(code))
		}

		end(failed)
	})
}
