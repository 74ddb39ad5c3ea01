// Package observability reports unexpected failures to Sentry.
package observability

import (
	"context"
	"log/slog"
	"time"

	"portal/config"
	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/service"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const flushTimeout = 2 * time.Second

// Params defines the required parameters
type Params struct {
	fx.In
	fx.Lifecycle

	Config *config.Config
	Logger *slog.Logger
}

type sentryReporter struct {
	enabled bool
}

// New initialises the Sentry SDK when a DSN is configured. Without one the reporter is a no-op.
func New(params Params) (service.ErrorReporter, error) {
	cfg := params.Config.Sentry
	if cfg == nil || cfg.DSN == "" {
		params.Logger.Info("Sentry disabled, no DSN configured")

		return &sentryReporter{}, nil
	}

	environment := cfg.Environment
	if environment == "" {
		environment = params.Config.Env.Env
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		ServerName:       params.Config.Env.ServiceName,
		AttachStacktrace: true,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to initialise sentry")
	}

	params.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sentry.Flush(flushTimeout)

			return nil
		},
	})

	return &sentryReporter{enabled: true}, nil
}

// CaptureError sends err with the given tags and the request id from ctx.
func (r *sentryReporter) CaptureError(ctx context.Context, err error, tags map[string]string) {
	if !r.enabled || err == nil {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if requestID := deliverycontext.GetRequestIDFromContext(ctx); requestID != "" {
			scope.SetTag("request_id", requestID)
		}
		hub.CaptureException(err)
	})
}
