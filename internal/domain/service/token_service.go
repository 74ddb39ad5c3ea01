package service

import (
	"time"

	"portal/internal/domain/entity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes the three signed token kinds.
type TokenType string

const (
	TokenTypeAccess    TokenType = "access"
	TokenTypeRefresh   TokenType = "refresh"
	TokenTypeChallenge TokenType = "challenge"
)

// PurposeTwoFactorVerification is the only purpose a challenge token may carry.
const PurposeTwoFactorVerification = "2fa_verification"

// Claims defines the custom claims for the JWT tokens.
type Claims struct {
	Email   string    `json:"email,omitempty"`
	Name    string    `json:"name,omitempty"`
	Role    string    `json:"role,omitempty"`
	Type    TokenType `json:"type"`
	Purpose string    `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim.
func (c *Claims) AccountID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Identity projects access-token claims.
func (c *Claims) Identity() (*entity.Identity, error) {
	id, err := c.AccountID()
	if err != nil {
		return nil, err
	}

	return &entity.Identity{
		AccountID: id,
		Email:     c.Email,
		Name:      c.Name,
		Role:      entity.Role(c.Role),
	}, nil
}

// TokenService signs and verifies the access, refresh and challenge tokens.
// Parse methods return domain ErrTokenExpired or ErrTokenInvalid.
type TokenService interface {
	IssueAccessToken(identity entity.Identity) (token string, expiresAt time.Time, err error)
	IssueRefreshToken(accountID uuid.UUID) (token string, expiresAt time.Time, err error)
	IssueChallengeToken(accountID uuid.UUID) (token string, expiresAt time.Time, err error)

	ParseAccessToken(token string) (*Claims, error)
	ParseRefreshToken(token string) (*Claims, error)
	ParseChallengeToken(token string) (*Claims, error)

	// HashRefreshToken returns the keyed one-way hash stored in the session record.
	HashRefreshToken(token string) string
}
