package service

import "time"

// TOTPKey is a freshly generated shared secret.
type TOTPKey struct {
	Secret          string // base32 secret
	ProvisioningURI string // otpauth:// URI for authenticator apps
}

// TOTPService generates and validates time-based one-time passwords.
type TOTPService interface {
	// GenerateKey creates a new secret labelled with the account name.
	GenerateKey(accountName string) (*TOTPKey, error)

	// Validate checks code against secret at the given instant with the configured step tolerance.
	Validate(code, secret string, at time.Time) bool
}
