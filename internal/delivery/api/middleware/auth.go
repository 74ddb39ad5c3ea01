package middleware

import (
	"context"
	"slices"
	"strings"

	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/entity"
	domainerrors "portal/internal/domain/errors"
	"portal/internal/errors"
	"portal/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const identityKey = "identity"

// AuthMiddleware authenticates bearer access tokens and gates routes by role.
type AuthMiddleware struct {
	sessions usecase.SessionUsecase
	audit    usecase.AuditUsecase
}

// AuthMiddlewareParams holds dependencies for AuthMiddleware, injected by Fx.
type AuthMiddlewareParams struct {
	fx.In

	Sessions usecase.SessionUsecase
	Audit    usecase.AuditUsecase
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(params AuthMiddlewareParams) *AuthMiddleware {
	return &AuthMiddleware{sessions: params.Sessions, audit: params.Audit}
}

// Authenticate verifies the access token statelessly and stores the identity on the context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return errors.WithStack(domainerrors.ErrUnauthorized)
		}

		identity, err := m.sessions.VerifyAccess(strings.TrimSpace(token))
		if err != nil {
			return err
		}

		c.Set(identityKey, identity)

		ctx := c.Request().Context()
		if logger := deliverycontext.GetLogger(ctx); logger != nil {
			ctx = deliverycontext.WithLogger(ctx, logger.With("account_id", identity.AccountID.String()))
			c.SetRequest(c.Request().WithContext(ctx))
		}

		return next(c)
	}
}

// RequireRole admits callers holding any of roles. It must run after Authenticate.
// Denials are audited.
func (m *AuthMiddleware) RequireRole(roles ...entity.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := IdentityFrom(c)
			if !ok {
				return errors.WithStack(domainerrors.ErrUnauthorized)
			}

			if !slices.Contains(roles, identity.Role) {
				m.recordDenial(c.Request().Context(), identity, c.Path())

				return errors.WithStack(domainerrors.ErrForbidden)
			}

			return next(c)
		}
	}
}

func (m *AuthMiddleware) recordDenial(ctx context.Context, identity *entity.Identity, route string) {
	actor := identity.AccountID
	m.audit.Record(ctx, &entity.AuditEntry{
		ActorID:   &actor,
		ActorRole: identity.Role,
		Action:    entity.AuditActionAccessDenied,
		Outcome:   entity.AuditOutcomeFailure,
		Metadata: entity.AuditMetadata{
			Email:  identity.Email,
			Reason: "role_not_permitted",
			Extra:  map[string]string{"route": route},
		},
	})
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c echo.Context) (*entity.Identity, bool) {
	identity, ok := c.Get(identityKey).(*entity.Identity)

	return identity, ok && identity != nil
}
