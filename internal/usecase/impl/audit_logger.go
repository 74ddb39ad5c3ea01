package impl

import (
	"context"
	"log/slog"

	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/entity"
	"portal/internal/domain/repository"
	"portal/internal/domain/service"
	"portal/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/fx"
)

// auditLogger implements the AuditUsecase interface on top of the background runner.
type auditLogger struct {
	repo     repository.AuditRepository
	runner   service.BackgroundRunner
	validate *validator.Validate
	clock    service.Clock
	logger   *slog.Logger
}

// AuditLoggerParams holds dependencies for AuditLogger, injected by Fx.
type AuditLoggerParams struct {
	fx.In

	Repo   repository.AuditRepository
	Runner service.BackgroundRunner
	Clock  service.Clock
	Logger *slog.Logger
}

// NewAuditLogger is the constructor for auditLogger.
func NewAuditLogger(params AuditLoggerParams) usecase.AuditUsecase {
	return &auditLogger{
		repo:     params.Repo,
		runner:   params.Runner,
		validate: validator.New(),
		clock:    params.Clock,
		logger:   params.Logger,
	}
}

// Record stamps the entry with id, time, request id and client address, then enqueues the write.
// It returns as soon as the entry is queued or dropped.
func (a *auditLogger) Record(ctx context.Context, entry *entity.AuditEntry) {
	logger := deliverycontext.GetLoggerOrDefault(ctx, a.logger)
	if entry == nil {
		return
	}

	stamped := *entry
	if stamped.ID == uuid.Nil {
		stamped.ID = uuid.New()
	}
	if stamped.Timestamp.IsZero() {
		stamped.Timestamp = a.clock.Now()
	}
	if stamped.Metadata.RequestID == "" {
		stamped.Metadata.RequestID = deliverycontext.GetRequestIDFromContext(ctx)
	}
	if stamped.Metadata.ClientIP == "" {
		stamped.Metadata.ClientIP = deliverycontext.GetClientIPFromContext(ctx)
	}

	if err := a.validate.Struct(&stamped); err != nil {
		logger.ErrorContext(ctx, "Invalid audit entry dropped",
			slog.String("action", string(stamped.Action)),
			slog.Any("error", err),
		)

		return
	}

	logger.DebugContext(ctx, "Audit entry recorded",
		slog.String("action", string(stamped.Action)),
		slog.String("outcome", string(stamped.Outcome)),
		slog.String("audit_id", stamped.ID.String()),
	)

	a.runner.Submit(ctx, "audit:"+string(stamped.Action), func(jobCtx context.Context) error {
		return a.repo.Append(jobCtx, &stamped)
	})
}
