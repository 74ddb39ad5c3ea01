package context

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestIDFromContext(ctx))
	assert.Empty(t, GetClientIPFromContext(ctx))
	assert.Nil(t, GetLogger(ctx))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithClientIP(ctx, "10.0.0.7")
	ctx = WithLogger(ctx, logger)

	assert.Equal(t, "req-1", GetRequestIDFromContext(ctx))
	assert.Equal(t, "10.0.0.7", GetClientIPFromContext(ctx))
	assert.Same(t, logger, GetLogger(ctx))
}

func TestGetLoggerOrDefault_FallsBack(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, fallback, GetLoggerOrDefault(context.Background(), fallback))
}

func TestGetRequestID_GeneratesWhenMissing(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	assert.NotEmpty(t, GetRequestID(c))

	SetRequestID(c, "fixed")
	assert.Equal(t, "fixed", GetRequestID(c))
}
