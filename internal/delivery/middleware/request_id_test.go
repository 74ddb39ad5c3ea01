package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	deliverycontext "portal/internal/delivery/context"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware_PropagatesIDAndClientIP(t *testing.T) {
	e := echo.New()
	mw := NewRequestIDMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var gotID, gotIP string
	handler := mw.Process(func(c echo.Context) error {
		ctx := c.Request().Context()
		gotID = deliverycontext.GetRequestIDFromContext(ctx)
		gotIP = deliverycontext.GetClientIPFromContext(ctx)
		assert.NotNil(t, deliverycontext.GetLogger(ctx))

		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(deliverycontext.HeaderXRequestID, "abc-123")
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.50")
	rec := httptest.NewRecorder()

	require.NoError(t, handler(e.NewContext(req, rec)))
	assert.Equal(t, "abc-123", gotID)
	assert.Equal(t, "203.0.113.50", gotIP)
	assert.Equal(t, "abc-123", rec.Header().Get(deliverycontext.HeaderXRequestID))
}

func TestRequestIDMiddleware_GeneratesMissingID(t *testing.T) {
	e := echo.New()
	mw := NewRequestIDMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)))
	handler := mw.Process(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
	assert.Len(t, rec.Header().Get(deliverycontext.HeaderXRequestID), 36)
}
