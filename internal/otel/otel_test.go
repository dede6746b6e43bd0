package otel

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup("cloak", "dev", false)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabledProducesValidSpans(t *testing.T) {
	shutdown, err := Setup("cloak-test", "0.0.1", true)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	ctx, span := Tracer("github.com/dativo-io/cloak/internal/otel/test").Start(context.Background(), "test.operation")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())

	traceID, spanID := TraceContextFrom(ctx)
	assert.NotEmpty(t, traceID)
	assert.NotEmpty(t, spanID)
}

func TestLogTraceFieldsWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().Func(LogTraceFields(context.Background())).Msg("event")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.NotContains(t, out, "trace_id")
	assert.NotContains(t, out, "span_id")
}

func TestMiddlewarePassesStatusThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) })

	for path, want := range map[string]int{"/ok": http.StatusOK, "/boom": http.StatusBadGateway} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestLLMRequestAttributes(t *testing.T) {
	attrs := LLMRequestAttributes("gemini", "gemini-2.0-flash", 0.3, 0.8, 100)
	require.Len(t, attrs, 5)
	assert.Equal(t, "gemini", attrs[0].Value.AsString())
	assert.Equal(t, int64(100), attrs[4].Value.AsInt64())
}

func TestSetupWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := setup("cloak-test", "0.0.1", true, &buf)
	require.NoError(t, err)

	_, span := Tracer("github.com/dativo-io/cloak/internal/otel/test").Start(context.Background(), "writer.operation")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "writer.operation")
}
