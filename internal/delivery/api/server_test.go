package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"portal/config"
	apimiddleware "portal/internal/delivery/api/middleware"
	"portal/internal/delivery/api/router"
	"portal/internal/delivery/api/router/handler"
	"portal/internal/domain/entity"
	domainerrors "portal/internal/domain/errors"
	"portal/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuthUsecase struct {
	mock.Mock
}

func (m *mockAuthUsecase) Register(ctx context.Context, input *usecase.RegisterInput) (*usecase.RegisterOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*usecase.RegisterOutput)

	return out, args.Error(1)
}

func (m *mockAuthUsecase) Login(ctx context.Context, input *usecase.LoginInput) (*usecase.LoginOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*usecase.LoginOutput)

	return out, args.Error(1)
}

func (m *mockAuthUsecase) VerifyTwoFactor(ctx context.Context, input *usecase.VerifyTwoFactorInput) (*usecase.LoginOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*usecase.LoginOutput)

	return out, args.Error(1)
}

func (m *mockAuthUsecase) Refresh(ctx context.Context, refreshToken string) (*entity.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	out, _ := args.Get(0).(*entity.TokenPair)

	return out, args.Error(1)
}

func (m *mockAuthUsecase) Logout(ctx context.Context, accountID uuid.UUID) error {
	return m.Called(ctx, accountID).Error(0)
}

func (m *mockAuthUsecase) RevokeSessions(ctx context.Context, actor *entity.Identity, targetID uuid.UUID) error {
	return m.Called(ctx, actor, targetID).Error(0)
}

func (m *mockAuthUsecase) SetupTwoFactor(ctx context.Context, accountID uuid.UUID) (*usecase.TwoFactorSetupOutput, error) {
	args := m.Called(ctx, accountID)
	out, _ := args.Get(0).(*usecase.TwoFactorSetupOutput)

	return out, args.Error(1)
}

func (m *mockAuthUsecase) EnableTwoFactor(ctx context.Context, accountID uuid.UUID, code string) (*usecase.EnableTwoFactorOutput, error) {
	args := m.Called(ctx, accountID, code)
	out, _ := args.Get(0).(*usecase.EnableTwoFactorOutput)

	return out, args.Error(1)
}

func (m *mockAuthUsecase) DisableTwoFactor(ctx context.Context, accountID uuid.UUID, password string) error {
	return m.Called(ctx, accountID, password).Error(0)
}

func (m *mockAuthUsecase) ChangePassword(ctx context.Context, input *usecase.ChangePasswordInput) error {
	return m.Called(ctx, input).Error(0)
}

func (m *mockAuthUsecase) RequestPasswordReset(
	ctx context.Context,
	input *usecase.RequestPasswordResetInput,
) (*usecase.PasswordResetRequestOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*usecase.PasswordResetRequestOutput)

	return out, args.Error(1)
}

func (m *mockAuthUsecase) ResetPassword(ctx context.Context, input *usecase.ResetPasswordInput) error {
	return m.Called(ctx, input).Error(0)
}

func (m *mockAuthUsecase) Me(ctx context.Context, accountID uuid.UUID) (*entity.Account, error) {
	args := m.Called(ctx, accountID)
	out, _ := args.Get(0).(*entity.Account)

	return out, args.Error(1)
}

// stubSessions accepts "Bearer <role>" style tokens for a fixed account.
type stubSessions struct {
	usecase.SessionUsecase
	accountID uuid.UUID
}

func (s stubSessions) VerifyAccess(token string) (*entity.Identity, error) {
	role := entity.Role(token)
	if !role.IsValid() {
		return nil, errors.WithStack(domainerrors.ErrTokenInvalid)
	}

	return &entity.Identity{AccountID: s.accountID, Email: "caller@school.edu", Role: role}, nil
}

type stubLimiter struct {
	mu    sync.Mutex
	allow bool
	calls []string
}

func (l *stubLimiter) Check(_ context.Context, identifier, bucket string) entity.RateLimitDecision {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, bucket+":"+identifier)

	if l.allow {
		return entity.RateLimitDecision{Allowed: true, Limit: 20, Remaining: 19}
	}

	return entity.RateLimitDecision{Limit: 20, RetryAfter: 42 * time.Second}
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []entity.AuditEntry
}

func (a *recordingAudit) Record(_ context.Context, entry *entity.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *entry)
}

func (a *recordingAudit) actions() []entity.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()

	actions := make([]entity.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		actions = append(actions, e.Action)
	}

	return actions
}

type countingReporter struct {
	mu    sync.Mutex
	count int
}

func (r *countingReporter) CaptureError(context.Context, error, map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
}

type testServer struct {
	echo      *echo.Echo
	authUC    *mockAuthUsecase
	limiter   *stubLimiter
	audit     *recordingAudit
	reporter  *countingReporter
	accountID uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ts := &testServer{
		authUC:    &mockAuthUsecase{},
		limiter:   &stubLimiter{allow: true},
		audit:     &recordingAudit{},
		reporter:  &countingReporter{},
		accountID: uuid.New(),
	}
	t.Cleanup(func() { ts.authUC.AssertExpectations(t) })

	ts.echo = NewEcho(cfg, logger, apimiddleware.NewErrorMiddleware(logger, ts.reporter))
	router.NewRouter(router.RouterParams{
		AuthHandler: handler.NewAuthHandler(handler.AuthHandlerParams{AuthUC: ts.authUC, Logger: logger}),
		AuthMiddleware: apimiddleware.NewAuthMiddleware(apimiddleware.AuthMiddlewareParams{
			Sessions: stubSessions{accountID: ts.accountID},
			Audit:    ts.audit,
		}),
		RateLimitMiddleware: apimiddleware.NewRateLimitMiddleware(ts.limiter, ts.audit),
	}).RegisterRoutes(ts.echo)

	return ts
}

func (ts *testServer) do(method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXForwardedFor, "198.51.100.7")
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)

	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())

	return env
}

func TestServer_LoginPassesClientAddress(t *testing.T) {
	ts := newTestServer(t)
	ts.authUC.On("Login", mock.Anything, &usecase.LoginInput{
		Email: "a@school.edu", Password: "Correct#Horse42", ClientID: "198.51.100.7",
	}).Return(&usecase.LoginOutput{
		Status:             usecase.LoginStatusTwoFactorRequired,
		ChallengeToken:     "challenge",
		ChallengeExpiresAt: time.Date(2026, 1, 5, 8, 5, 0, 0, time.UTC),
	}, nil)

	rec := ts.do(http.MethodPost, "/auth/login", `{"email":"a@school.edu","password":"Correct#Horse42"}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var view handler.LoginView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &view))
	assert.Equal(t, usecase.LoginStatusTwoFactorRequired, view.Status)
	assert.Equal(t, "challenge", view.ChallengeToken)
	assert.Nil(t, view.Tokens)
}

func TestServer_DomainErrorsRenderTheirCode(t *testing.T) {
	ts := newTestServer(t)
	ts.authUC.On("Login", mock.Anything, mock.Anything).
		Return(nil, errors.Wrap(domainerrors.ErrAccountLocked, "locked until later"))

	rec := ts.do(http.MethodPost, "/auth/login", `{"email":"a@school.edu","password":"x"}`, "")

	assert.Equal(t, http.StatusLocked, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ACCOUNT_LOCKED", env.Error.Code)
	assert.NotContains(t, rec.Body.String(), "locked until later")
	assert.Equal(t, rec.Header().Get("X-Request-Id"), env.Meta.RequestID)
}

func TestServer_ValidationFailure(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/register", `{"email":"not-an-email","password":"p","name":"N","role":"admin"}`, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details, "email must be a valid email")
	assert.Contains(t, env.Error.Details, "role must be one of teacher student parent")
}

func TestServer_UnknownErrorIsOpaqueAndReported(t *testing.T) {
	ts := newTestServer(t)
	ts.authUC.On("Refresh", mock.Anything, "tok").Return(nil, errors.New("pq: relation does not exist"))

	rec := ts.do(http.MethodPost, "/auth/refresh", `{"refresh_token":"tok"}`, "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
	assert.Equal(t, 1, ts.reporter.count)
}

func TestServer_AuthenticatedRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/auth/me", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_INVALID", decode(t, rec).Error.Code)

	ts.authUC.On("Me", mock.Anything, ts.accountID).Return(&entity.Account{
		ID: ts.accountID, Email: "caller@school.edu", Role: entity.RoleStudent, PasswordHash: "$2a$secret",
	}, nil)
	rec = ts.do(http.MethodGet, "/auth/me", "", string(entity.RoleStudent))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "$2a$secret")
	assert.Contains(t, rec.Body.String(), "caller@school.edu")
}

func TestServer_SetupReturnsBase64QRCode(t *testing.T) {
	ts := newTestServer(t)
	ts.authUC.On("SetupTwoFactor", mock.Anything, ts.accountID).Return(&usecase.TwoFactorSetupOutput{
		Secret:          "JBSWY3DPEHPK3PXP",
		ProvisioningURI: "otpauth://totp/School%20Portal:caller@school.edu",
		QRCodePNG:       []byte{0x89, 'P', 'N', 'G'},
	}, nil)

	rec := ts.do(http.MethodPost, "/auth/2fa/setup", "", string(entity.RoleTeacher))

	require.Equal(t, http.StatusOK, rec.Code)
	var view handler.TwoFactorSetupView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &view))
	assert.Equal(t, "iVBORw==", view.QRCode)
	assert.Equal(t, []string{"mutation:" + ts.accountID.String()}, ts.limiter.calls)
}

func TestServer_MutationRateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.limiter.allow = false

	rec := ts.do(http.MethodPost, "/auth/password/change",
		`{"current_password":"a","new_password":"b"}`, string(entity.RoleParent))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	assert.Equal(t, []entity.AuditAction{entity.AuditActionRateLimited}, ts.audit.actions())
}

func TestServer_AdminRoutesRequireRole(t *testing.T) {
	ts := newTestServer(t)
	target := uuid.New()

	rec := ts.do(http.MethodPost, "/admin/accounts/"+target.String()+"/revoke-sessions", "", string(entity.RoleTeacher))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, []entity.AuditAction{entity.AuditActionAccessDenied}, ts.audit.actions())

	ts.authUC.On("RevokeSessions", mock.Anything,
		mock.MatchedBy(func(actor *entity.Identity) bool { return actor.Role == entity.RoleAdmin }),
		target,
	).Return(nil).Once()
	rec = ts.do(http.MethodPost, "/admin/accounts/"+target.String()+"/revoke-sessions", "", string(entity.RoleAdmin))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	ts.authUC.AssertExpectations(t)
}

func TestServer_PasswordResetRequestIsAccepted(t *testing.T) {
	ts := newTestServer(t)
	ts.authUC.On("RequestPasswordReset", mock.Anything, &usecase.RequestPasswordResetInput{
		Email: "ghost@school.edu", ClientID: "198.51.100.7",
	}).Return(&usecase.PasswordResetRequestOutput{Message: "If the account exists, a reset link has been sent."}, nil)

	rec := ts.do(http.MethodPost, "/auth/password/reset-request", `{"email":"ghost@school.edu"}`, "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
}
