package impl

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

const recoveryCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateRecoveryCodes returns count distinct uppercase alphanumeric codes of the given length.
func generateRecoveryCodes(count, length int) ([]string, error) {
	alphabetSize := big.NewInt(int64(len(recoveryCodeAlphabet)))
	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)

	for len(codes) < count {
		var b strings.Builder
		b.Grow(length)
		for range length {
			n, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				return nil, errors.Wrap(err, "failed to read random bytes")
			}
			b.WriteByte(recoveryCodeAlphabet[n.Int64()])
		}

		code := b.String()
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	return codes, nil
}

// hashRecoveryCode normalises user input (case, spaces, dashes) before hashing.
func hashRecoveryCode(code string) string {
	normalized := strings.ToUpper(strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(code)))
	sum := sha256.Sum256([]byte(normalized))

	return hex.EncodeToString(sum[:])
}

func hashRecoveryCodes(codes []string) []string {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = hashRecoveryCode(code)
	}

	return hashes
}

// newOpaqueToken returns a URL-safe random token and its SHA-256 hex digest.
func newOpaqueToken() (token, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", errors.Wrap(err, "failed to read random bytes")
	}
	token = hex.EncodeToString(buf)

	return token, hashOpaqueToken(token), nil
}

func hashOpaqueToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))

	return hex.EncodeToString(sum[:])
}
