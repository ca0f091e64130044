package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RequestIDHeader carries the caller's request id, or the generated one.
	RequestIDHeader = "X-Request-ID"

	// TraceIDHeader carries the trace id of the request span.
	TraceIDHeader = "X-Trace-ID"
)

var tracer = otel.Tracer("claimrisk/api")

type requestInfoKey struct{}

// requestInfo identifies one API request in logs and responses.
type requestInfo struct {
	RequestID string
	TraceID   string
}

func withRequestInfo(ctx context.Context, info requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func requestInfoFrom(ctx context.Context) requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info
}

// GetRequestID returns the request id stored by TracingMiddleware.
func GetRequestID(ctx context.Context) string { return requestInfoFrom(ctx).RequestID }

// GetTraceID returns the trace id stored by TracingMiddleware. Without an
// installed tracer provider it equals the request id.
func GetTraceID(ctx context.Context) string { return requestInfoFrom(ctx).TraceID }

// TracingMiddleware opens a server span per request and tags it with the
// matched route once the handler has run.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx, span := tracer.Start(r.Context(), "HTTP "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		info := requestInfo{RequestID: requestID, TraceID: requestID}
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			info.TraceID = sc.TraceID().String()
		}

		w.Header().Set(RequestIDHeader, info.RequestID)
		w.Header().Set(TraceIDHeader, info.TraceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(withRequestInfo(ctx, info)))

		if route := routePattern(r); route != "" {
			span.SetName("HTTP " + r.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
		span.SetAttributes(attribute.Int("http.response.status_code", ww.Status()))
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

// LoggingMiddleware writes one structured log line per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		info := requestInfoFrom(r.Context())
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", routePattern(r),
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", info.RequestID,
			"trace_id", info.TraceID,
		)
	})
}

// CORSMiddleware answers preflight requests and marks responses readable
// by browser dashboards.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
		h.Set("Access-Control-Expose-Headers", RequestIDHeader+", "+TraceIDHeader)
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecoverMiddleware turns a handler panic into a JSON 500.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("panic recovered",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", GetRequestID(r.Context()),
			)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
