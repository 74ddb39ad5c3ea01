package impl

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"portal/config"
	"portal/internal/domain/entity"
	"portal/internal/domain/repository"
	"portal/internal/domain/service"
	"portal/internal/infra/auth"
	"portal/internal/infra/persistence/memory"
	"portal/internal/infra/qrcode"
	"portal/internal/usecase"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Correct#Horse42"

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig() *config.Config {
	cfg := &config.Config{
		SecretKey: config.SecretKeyConfig{
			Access:    "access-secret-for-tests",
			Refresh:   "refresh-secret-for-tests",
			Challenge: "challenge-secret-for-tests",
		},
	}
	cfg.ApplyDefaults()

	return cfg
}

// inlineRunner runs background jobs synchronously so tests can assert on their effects.
type inlineRunner struct{}

func (inlineRunner) Submit(ctx context.Context, _ string, fn func(ctx context.Context) error) bool {
	_ = fn(context.WithoutCancel(ctx))

	return true
}

type recordingDispatcher struct {
	mu            sync.Mutex
	notifications []service.Notification
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n *service.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, *n)

	return nil
}

func (d *recordingDispatcher) events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := make([]string, 0, len(d.notifications))
	for _, n := range d.notifications {
		events = append(events, n.Event)
	}

	return events
}

func (d *recordingDispatcher) last(event string) *service.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := len(d.notifications) - 1; i >= 0; i-- {
		if d.notifications[i].Event == event {
			n := d.notifications[i]

			return &n
		}
	}

	return nil
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) CaptureError(_ context.Context, err error, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.errs)
}

// testEnv wires the real managers over the in-memory store, clock and counter store.
type testEnv struct {
	cfg        *config.Config
	clock      *memory.Clock
	store      *memory.Store
	counters   *memory.CounterStore
	auditRepo  *memory.AuditRepository
	dispatcher *recordingDispatcher
	reporter   *recordingReporter
	hasher     service.PasswordHasher
	tokens     service.TokenService

	audit       usecase.AuditUsecase
	rateLimiter usecase.RateLimitUsecase
	credentials usecase.CredentialUsecase
	twoFactor   usecase.TwoFactorUsecase
	sessions    usecase.SessionUsecase
	auth        usecase.AuthUsecase
}

type envOption func(*envOverrides)

type envOverrides struct {
	accountRepo func(repository.AccountRepository) repository.AccountRepository
	tokens      func(service.TokenService) service.TokenService
}

func withAccountRepo(wrap func(repository.AccountRepository) repository.AccountRepository) envOption {
	return func(o *envOverrides) { o.accountRepo = wrap }
}

func withTokenService(wrap func(service.TokenService) service.TokenService) envOption {
	return func(o *envOverrides) { o.tokens = wrap }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	var overrides envOverrides
	for _, opt := range opts {
		opt(&overrides)
	}

	cfg := newTestConfig()
	clock := memory.NewClock(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	store := memory.NewStore(clock)
	logger := newDiscardLogger()

	tokens, err := auth.NewJWTService(cfg, clock)
	require.NoError(t, err)
	if overrides.tokens != nil {
		tokens = overrides.tokens(tokens)
	}

	accountRepo := store.AccountRepo()
	if overrides.accountRepo != nil {
		accountRepo = overrides.accountRepo(accountRepo)
	}

	env := &testEnv{
		cfg:        cfg,
		clock:      clock,
		store:      store,
		counters:   memory.NewCounterStore(),
		auditRepo:  memory.NewAuditRepository(),
		dispatcher: &recordingDispatcher{},
		reporter:   &recordingReporter{},
		hasher:     auth.NewBcryptHasherWithCost(bcrypt.MinCost, *cfg.PasswordStrength),
		tokens:     tokens,
	}
	runner := inlineRunner{}

	env.audit = NewAuditLogger(AuditLoggerParams{
		Repo:   env.auditRepo,
		Runner: runner,
		Clock:  clock,
		Logger: logger,
	})
	env.rateLimiter = NewRateLimiter(RateLimiterParams{
		Store:  env.counters,
		Clock:  clock,
		Config: cfg,
		Logger: logger,
	})
	env.credentials = NewCredentialManager(CredentialManagerParams{
		AccountRepo:  accountRepo,
		Hasher:       env.hasher,
		TokenService: tokens,
		Audit:        env.audit,
		Dispatcher:   env.dispatcher,
		Runner:       runner,
		Clock:        clock,
		Config:       cfg,
		Logger:       logger,
	})
	env.twoFactor = NewTwoFactorManager(TwoFactorManagerParams{
		TxManager:    store.TransactionManager(),
		AccountRepo:  accountRepo,
		Hasher:       env.hasher,
		TokenService: tokens,
		TOTP:         auth.NewTOTPService(cfg),
		QRCode:       qrcode.NewQRCodeService(cfg),
		Audit:        env.audit,
		Clock:        clock,
		Config:       cfg,
		Logger:       logger,
	})
	env.sessions = NewSessionManager(SessionManagerParams{
		SessionRepo:  store.SessionRepo(),
		AccountRepo:  accountRepo,
		TokenService: tokens,
		Clock:        clock,
		Config:       cfg,
		Logger:       logger,
	})
	env.auth = NewAuthService(AuthServiceParams{
		Credentials: env.credentials,
		TwoFactor:   env.twoFactor,
		Sessions:    env.sessions,
		RateLimiter: env.rateLimiter,
		Audit:       env.audit,
		TxManager:   store.TransactionManager(),
		AccountRepo: accountRepo,
		ResetRepo:   store.PasswordResetRepo(),
		Hasher:      env.hasher,
		Dispatcher:  env.dispatcher,
		Runner:      runner,
		Reporter:    env.reporter,
		Clock:       clock,
		Config:      cfg,
		Logger:      logger,
	})

	return env
}

// createAccount stores an active account with testPassword.
func (e *testEnv) createAccount(t *testing.T, email string, role entity.Role) *entity.Account {
	t.Helper()

	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)

	account := &entity.Account{
		Email:        email,
		Name:         "Test " + role.String(),
		PasswordHash: hash,
		Role:         role,
	}
	require.NoError(t, e.store.AccountRepo().Create(context.Background(), account))

	return account
}

func (e *testEnv) account(t *testing.T, id uuid.UUID) *entity.Account {
	t.Helper()

	account, err := e.store.AccountRepo().FindByID(context.Background(), id)
	require.NoError(t, err)

	return account
}

// enableTwoFactor runs setup and enable and returns the active secret and recovery codes.
func (e *testEnv) enableTwoFactor(t *testing.T, account *entity.Account) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := e.auth.SetupTwoFactor(ctx, account.ID)
	require.NoError(t, err)

	enabled, err := e.auth.EnableTwoFactor(ctx, account.ID, e.code(t, setup.Secret, e.clock.Now()))
	require.NoError(t, err)

	return setup.Secret, enabled.RecoveryCodes
}

func (e *testEnv) code(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    e.cfg.TwoFactor.Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	return code
}

func (e *testEnv) login(t *testing.T, email string) *usecase.LoginOutput {
	t.Helper()

	out, err := e.auth.Login(context.Background(), &usecase.LoginInput{
		Email:    email,
		Password: testPassword,
		ClientID: "198.51.100.10",
	})
	require.NoError(t, err)

	return out
}
