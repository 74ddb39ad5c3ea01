package middleware

import (
	"log/slog"

	"portal/config"

	"github.com/labstack/echo/v4"
	slogecho "github.com/samber/slog-echo"
)

// NewAccessLogger returns the access log middleware shared by the API and worker servers.
// Bodies and headers are never logged: they carry passwords, codes and bearer tokens.
// It must run after RequestIDMiddleware so the X-Request-Id response header is already set.
func NewAccessLogger(logger *slog.Logger, cfg *config.Config) echo.MiddlewareFunc {
	return slogecho.NewWithConfig(logger, slogecho.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
		WithUserAgent:    cfg.Env.Debug,
		Filters: []slogecho.Filter{
			slogecho.IgnorePath("/health"),
		},
	})
}
