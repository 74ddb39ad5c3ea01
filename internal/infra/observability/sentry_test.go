package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"portal/config"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func TestNew_WithoutDSNIsNoop(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	reporter, err := New(Params{
		Lifecycle: fxtest.NewLifecycle(t),
		Config:    cfg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		reporter.CaptureError(context.Background(), errors.New("boom"), map[string]string{"component": "test"})
	})
}
