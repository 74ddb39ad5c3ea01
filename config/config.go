package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/slighter12/go-lib/database/postgres"
)

const (
	defaultPath               = "."
	defaultMaxRequestBodySize = "100KB"
)

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port               int    `json:"port" yaml:"port"`
		MaxRequestBodySize string `json:"maxRequestBodySize" yaml:"maxRequestBodySize"`
		Timeouts           struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	Postgres *postgres.DBConn `json:"postgres" yaml:"postgres" mapstructure:"postgres"`

	// Redis backs the rate-limit counters and the notification queue.
	Redis *RedisConfig `json:"redis" yaml:"redis"`

	SecretKey SecretKeyConfig `json:"secretKey" yaml:"secretKey"`

	Auth *AuthConfig `json:"auth" yaml:"auth"`

	PasswordStrength *PasswordStrengthConfig `json:"passwordStrength" yaml:"passwordStrength"`

	TwoFactor *TwoFactorConfig `json:"twoFactor" yaml:"twoFactor"`

	RateLimit *RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`

	// Background tunes the in-process pool that performs audit writes and notification enqueues.
	Background *BackgroundConfig `json:"background" yaml:"background"`

	// Notification configures the asynq queue and the Pub/Sub fan-out used by the worker.
	Notification *NotificationConfig `json:"notification" yaml:"notification"`

	Sentry *SentryConfig `json:"sentry" yaml:"sentry"`
}

// SecretKeyConfig holds the HMAC keys for each token type.
type SecretKeyConfig struct {
	Access    string `json:"access" yaml:"access"`
	Refresh   string `json:"refresh" yaml:"refresh"`
	Challenge string `json:"challenge" yaml:"challenge"`
}

// RedisConfig defines the connection to the counter store and queue broker.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// AuthConfig defines authentication-related configuration
type AuthConfig struct {
	BcryptCost   int           `json:"bcryptCost" yaml:"bcryptCost"`
	StoreTimeout time.Duration `json:"storeTimeout" yaml:"storeTimeout"`

	Lockout struct {
		Threshold int           `json:"threshold" yaml:"threshold"`
		Duration  time.Duration `json:"duration" yaml:"duration"`
	} `json:"lockout" yaml:"lockout"`

	Tokens struct {
		AccessTTL    time.Duration `json:"accessTTL" yaml:"accessTTL"`
		RefreshTTL   time.Duration `json:"refreshTTL" yaml:"refreshTTL"`
		ChallengeTTL time.Duration `json:"challengeTTL" yaml:"challengeTTL"`
		Issuer       string        `json:"issuer" yaml:"issuer"`
	} `json:"tokens" yaml:"tokens"`

	PasswordResetTTL time.Duration `json:"passwordResetTTL" yaml:"passwordResetTTL"`
}

// PasswordStrengthConfig defines password strength requirements
type PasswordStrengthConfig struct {
	MinLength        int  `json:"minLength" yaml:"minLength"`
	RequireUppercase bool `json:"requireUppercase" yaml:"requireUppercase"`
	RequireLowercase bool `json:"requireLowercase" yaml:"requireLowercase"`
	RequireNumbers   bool `json:"requireNumbers" yaml:"requireNumbers"`
	RequireSpecial   bool `json:"requireSpecial" yaml:"requireSpecial"`
	MaxLength        int  `json:"maxLength" yaml:"maxLength"`
}

// TwoFactorConfig defines TOTP and recovery-code parameters.
type TwoFactorConfig struct {
	Issuer             string `json:"issuer" yaml:"issuer"`
	Period             uint   `json:"period" yaml:"period"`
	Skew               uint   `json:"skew" yaml:"skew"`
	Digits             int    `json:"digits" yaml:"digits"`
	RecoveryCodeCount  int    `json:"recoveryCodeCount" yaml:"recoveryCodeCount"`
	RecoveryCodeLength int    `json:"recoveryCodeLength" yaml:"recoveryCodeLength"`

	// QR code rendering of the provisioning URI
	QRSize                 int    `json:"qrSize" yaml:"qrSize"`
	QRErrorCorrectionLevel string `json:"qrErrorCorrectionLevel" yaml:"qrErrorCorrectionLevel"`
}

// RateLimitConfig maps bucket names to their sliding-window budget.
type RateLimitConfig struct {
	Buckets map[string]BucketConfig `json:"buckets" yaml:"buckets"`
}

// BucketConfig is one sliding-window budget.
type BucketConfig struct {
	Limit  int           `json:"limit" yaml:"limit"`
	Window time.Duration `json:"window" yaml:"window"`
}

// BackgroundConfig sizes the fire-and-forget job pool.
type BackgroundConfig struct {
	Workers        int           `json:"workers" yaml:"workers"`
	QueueSize      int           `json:"queueSize" yaml:"queueSize"`
	MaxRetries     int           `json:"maxRetries" yaml:"maxRetries"`
	InitialBackoff time.Duration `json:"initialBackoff" yaml:"initialBackoff"`
	MaxBackoff     time.Duration `json:"maxBackoff" yaml:"maxBackoff"`
	AttemptTimeout time.Duration `json:"attemptTimeout" yaml:"attemptTimeout"`
}

// NotificationConfig defines the notification queue and event publishing
type NotificationConfig struct {
	Queue       string `json:"queue" yaml:"queue"`
	MaxRetry    int    `json:"maxRetry" yaml:"maxRetry"`
	Concurrency int    `json:"concurrency" yaml:"concurrency"`

	// Provider type: "local" for local HTTP, "google" for Google Pub/Sub, anything else disables publishing
	Provider      string `json:"provider" yaml:"provider"`
	ProjectID     string `json:"projectId" yaml:"projectId"`
	TopicID       string `json:"topicId" yaml:"topicId"`
	LocalEndpoint string `json:"localEndpoint" yaml:"localEndpoint"`

	// SessionCleanupInterval drives the worker's expired-session janitor.
	SessionCleanupInterval time.Duration `json:"sessionCleanupInterval" yaml:"sessionCleanupInterval"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `json:"dsn" yaml:"dsn"`
	Environment string `json:"environment" yaml:"environment"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			searchPaths = append(searchPaths, filepath.Join(pwd, path))
		}
	}

	configFile, found := findConfigFile(searchPaths, currEnv)
	if !found {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Example: SECRETKEY_ACCESS -> secretKey.access
			return canonicalizeEnvKey(k, existingConfigMap), v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func findConfigFile(searchPaths []string, currEnv string) (string, bool) {
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}

	return "", false
}

func New() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.HTTP.MaxRequestBodySize) == "" {
		cfg.HTTP.MaxRequestBodySize = defaultMaxRequestBodySize
	}

	if cfg.Postgres != nil {
		// POSTGRES_REPLICAS_0_HOST, POSTGRES_REPLICAS_0_PORT, ...
		cfg.Postgres.Replicas = buildReplicasFromEnv()
	}

	cfg.ApplyDefaults()

	return cfg, nil
}

// ApplyDefaults fills every optional section so consumers never see nil pointers.
func (cfg *Config) ApplyDefaults() {
	if cfg.Redis == nil {
		cfg.Redis = &RedisConfig{Addr: "localhost:6379"}
	}
	if cfg.Auth == nil {
		cfg.Auth = &AuthConfig{}
	}
	cfg.Auth.applyDefaults()

	if cfg.PasswordStrength == nil {
		cfg.PasswordStrength = DefaultPasswordStrength()
	}
	if cfg.TwoFactor == nil {
		cfg.TwoFactor = &TwoFactorConfig{}
	}
	cfg.TwoFactor.applyDefaults()

	if cfg.RateLimit == nil {
		cfg.RateLimit = &RateLimitConfig{}
	}
	cfg.RateLimit.applyDefaults()

	if cfg.Background == nil {
		cfg.Background = &BackgroundConfig{}
	}
	cfg.Background.applyDefaults()

	if cfg.Notification == nil {
		cfg.Notification = &NotificationConfig{}
	}
	cfg.Notification.applyDefaults()

	if cfg.Sentry == nil {
		cfg.Sentry = &SentryConfig{}
	}
}

func (a *AuthConfig) applyDefaults() {
	if a.BcryptCost == 0 {
		a.BcryptCost = 12
	}
	if a.StoreTimeout == 0 {
		a.StoreTimeout = 3 * time.Second
	}
	if a.Lockout.Threshold == 0 {
		a.Lockout.Threshold = 5
	}
	if a.Lockout.Duration == 0 {
		a.Lockout.Duration = 15 * time.Minute
	}
	if a.Tokens.AccessTTL == 0 {
		a.Tokens.AccessTTL = 15 * time.Minute
	}
	if a.Tokens.RefreshTTL == 0 {
		a.Tokens.RefreshTTL = 30 * 24 * time.Hour
	}
	if a.Tokens.ChallengeTTL == 0 {
		a.Tokens.ChallengeTTL = 5 * time.Minute
	}
	if a.Tokens.Issuer == "" {
		a.Tokens.Issuer = "school-portal"
	}
	if a.PasswordResetTTL == 0 {
		a.PasswordResetTTL = 30 * time.Minute
	}
}

// DefaultPasswordStrength is the policy used when none is configured.
func DefaultPasswordStrength() *PasswordStrengthConfig {
	return &PasswordStrengthConfig{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumbers:   true,
		RequireSpecial:   true,
		MaxLength:        128,
	}
}

func (t *TwoFactorConfig) applyDefaults() {
	if t.Issuer == "" {
		t.Issuer = "School Portal"
	}
	if t.Period == 0 {
		t.Period = 30
	}
	if t.Skew == 0 {
		t.Skew = 1
	}
	if t.Digits == 0 {
		t.Digits = 6
	}
	if t.RecoveryCodeCount == 0 {
		t.RecoveryCodeCount = 8
	}
	if t.RecoveryCodeLength == 0 {
		t.RecoveryCodeLength = 10
	}
	if t.QRSize == 0 {
		t.QRSize = 256
	}
	if t.QRErrorCorrectionLevel == "" {
		t.QRErrorCorrectionLevel = "M"
	}
}

// DefaultBuckets are the sliding-window budgets used when a bucket is not configured.
func DefaultBuckets() map[string]BucketConfig {
	return map[string]BucketConfig{
		"login":               {Limit: 5, Window: time.Minute},
		"register":            {Limit: 5, Window: 10 * time.Minute},
		"password_reset":      {Limit: 3, Window: 15 * time.Minute},
		"announcement_create": {Limit: 10, Window: time.Minute},
		"attendance_submit":   {Limit: 60, Window: time.Minute},
		"mutation":            {Limit: 20, Window: time.Minute},
	}
}

func (r *RateLimitConfig) applyDefaults() {
	if r.Buckets == nil {
		r.Buckets = map[string]BucketConfig{}
	}
	for name, bucket := range DefaultBuckets() {
		if existing, ok := r.Buckets[name]; !ok || existing.Limit <= 0 || existing.Window <= 0 {
			r.Buckets[name] = bucket
		}
	}
}

func (a *BackgroundConfig) applyDefaults() {
	if a.Workers == 0 {
		a.Workers = 2
	}
	if a.QueueSize == 0 {
		a.QueueSize = 1024
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = 3
	}
	if a.InitialBackoff == 0 {
		a.InitialBackoff = 100 * time.Millisecond
	}
	if a.MaxBackoff == 0 {
		a.MaxBackoff = 5 * time.Second
	}
	if a.AttemptTimeout == 0 {
		a.AttemptTimeout = 5 * time.Second
	}
}

func (n *NotificationConfig) applyDefaults() {
	if n.Queue == "" {
		n.Queue = "notifications"
	}
	if n.MaxRetry == 0 {
		n.MaxRetry = 5
	}
	if n.Concurrency == 0 {
		n.Concurrency = 5
	}
	if n.SessionCleanupInterval == 0 {
		n.SessionCleanupInterval = time.Hour
	}
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}

// buildReplicasFromEnv builds the replicas slice from environment variables.
// Environment variable format: POSTGRES_REPLICAS_{index}_{field}
func buildReplicasFromEnv() []postgres.ConnectionConfig {
	var replicas []postgres.ConnectionConfig

	for i := 0; ; i++ {
		prefix := "POSTGRES_REPLICAS_" + strconv.Itoa(i) + "_"

		host := os.Getenv(prefix + "HOST")
		port := os.Getenv(prefix + "PORT")
		if host == "" || port == "" {
			break
		}

		replicas = append(replicas, postgres.ConnectionConfig{
			Host:     host,
			Port:     port,
			UserName: os.Getenv(prefix + "USERNAME"),
			Password: os.Getenv(prefix + "PASSWORD"),
		})
	}

	return replicas
}
