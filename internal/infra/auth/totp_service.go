package auth

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"portal/config"
	"portal/internal/domain/service"
)

// totpService implements service.TOTPService on RFC 6238 SHA1 codes.
type totpService struct {
	issuer string
	opts   totp.ValidateOpts
}

// NewTOTPService is the constructor for totpService.
func NewTOTPService(cfg *config.Config) service.TOTPService {
	tf := cfg.TwoFactor
	if tf == nil {
		tf = &config.TwoFactorConfig{}
	}
	period, skew, digits := tf.Period, tf.Skew, tf.Digits
	if period == 0 {
		period = 30
	}
	if digits == 0 {
		digits = 6
	}

	return &totpService{
		issuer: tf.Issuer,
		opts: totp.ValidateOpts{
			Period:    period,
			Skew:      skew,
			Digits:    otp.Digits(digits),
			Algorithm: otp.AlgorithmSHA1,
		},
	}
}

// GenerateKey creates a fresh 160-bit secret and its provisioning URI.
func (s *totpService) GenerateKey(accountName string) (*service.TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      s.opts.Period,
		Digits:      s.opts.Digits,
		Algorithm:   s.opts.Algorithm,
	})
	if err != nil {
		return nil, errors.Wrap(err, "totp.Generate")
	}

	return &service.TOTPKey{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// Validate accepts codes from the steps within the configured skew of at.
func (s *totpService) Validate(code, secret string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, at, s.opts)

	return err == nil && valid
}
