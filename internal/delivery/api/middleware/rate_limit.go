package middleware

import (
	"strconv"
	"time"

	"portal/internal/domain/entity"
	domainerrors "portal/internal/domain/errors"
	"portal/internal/usecase"

	"github.com/labstack/echo/v4"
)

// RateLimitMiddleware applies a named bucket to a route group.
type RateLimitMiddleware struct {
	limiter usecase.RateLimitUsecase
	audit   usecase.AuditUsecase
}

// NewRateLimitMiddleware is the constructor for RateLimitMiddleware.
func NewRateLimitMiddleware(limiter usecase.RateLimitUsecase, audit usecase.AuditUsecase) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, audit: audit}
}

// Limit counts each request against bucket, keyed by the authenticated account when
// there is one and by client address otherwise.
func (m *RateLimitMiddleware) Limit(bucket string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identifier := c.RealIP()
			identity, authenticated := IdentityFrom(c)
			if authenticated {
				identifier = identity.AccountID.String()
			}

			ctx := c.Request().Context()
			decision := m.limiter.Check(ctx, identifier, bucket)

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if decision.Allowed {
				return next(c)
			}

			seconds := int(decision.RetryAfter.Round(time.Second).Seconds())
			header.Set("Retry-After", strconv.Itoa(seconds))

			entry := &entity.AuditEntry{
				Action:   entity.AuditActionRateLimited,
				Outcome:  entity.AuditOutcomeFailure,
				Metadata: entity.AuditMetadata{Reason: bucket},
			}
			if authenticated {
				actor := identity.AccountID
				entry.ActorID = &actor
				entry.ActorRole = identity.Role
			}
			m.audit.Record(ctx, entry)

			return domainerrors.ErrRateLimited.WithDetails("retry after " + strconv.Itoa(seconds) + " seconds")
		}
	}
}
