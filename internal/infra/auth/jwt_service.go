// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"portal/config"
	domainerrors "portal/internal/domain/errors"
	"portal/internal/domain/entity"
	"portal/internal/domain/service"
)

// jwtService is a concrete implementation of the TokenService interface using the JWT standard.
// Each token type has its own signing key, so a token of one type never verifies as another.
type jwtService struct {
	accessSecret    []byte
	refreshSecret   []byte
	challengeSecret []byte
	accessTTL       time.Duration
	refreshTTL      time.Duration
	challengeTTL    time.Duration
	issuer          string
	clock           service.Clock
}

// NewJWTService is the constructor for jwtService.
// It takes configuration values to create a new token service instance.
func NewJWTService(cfg *config.Config, clock service.Clock) (service.TokenService, error) {
	if cfg.SecretKey.Access == "" || cfg.SecretKey.Refresh == "" || cfg.SecretKey.Challenge == "" {
		return nil, errors.New("jwt secrets must be provided")
	}
	if cfg.Auth == nil {
		return nil, errors.New("auth config must be provided")
	}

	return &jwtService{
		accessSecret:    []byte(cfg.SecretKey.Access),
		refreshSecret:   []byte(cfg.SecretKey.Refresh),
		challengeSecret: []byte(cfg.SecretKey.Challenge),
		accessTTL:       cfg.Auth.Tokens.AccessTTL,
		refreshTTL:      cfg.Auth.Tokens.RefreshTTL,
		challengeTTL:    cfg.Auth.Tokens.ChallengeTTL,
		issuer:          cfg.Auth.Tokens.Issuer,
		clock:           clock,
	}, nil
}

// IssueAccessToken signs a token embedding the full identity for stateless authorization.
func (s *jwtService) IssueAccessToken(identity entity.Identity) (string, time.Time, error) {
	claims := s.newClaims(identity.AccountID, service.TokenTypeAccess, s.accessTTL)
	claims.Email = identity.Email
	claims.Name = identity.Name
	claims.Role = identity.Role.String()

	return s.sign(claims, s.accessSecret)
}

// IssueRefreshToken signs a token carrying only the account id and a random token id.
func (s *jwtService) IssueRefreshToken(accountID uuid.UUID) (string, time.Time, error) {
	return s.sign(s.newClaims(accountID, service.TokenTypeRefresh, s.refreshTTL), s.refreshSecret)
}

// IssueChallengeToken signs the short-lived proof that the password check passed.
func (s *jwtService) IssueChallengeToken(accountID uuid.UUID) (string, time.Time, error) {
	claims := s.newClaims(accountID, service.TokenTypeChallenge, s.challengeTTL)
	claims.Purpose = service.PurposeTwoFactorVerification

	return s.sign(claims, s.challengeSecret)
}

func (s *jwtService) ParseAccessToken(token string) (*service.Claims, error) {
	return s.parse(token, s.accessSecret, service.TokenTypeAccess)
}

func (s *jwtService) ParseRefreshToken(token string) (*service.Claims, error) {
	return s.parse(token, s.refreshSecret, service.TokenTypeRefresh)
}

func (s *jwtService) ParseChallengeToken(token string) (*service.Claims, error) {
	claims, err := s.parse(token, s.challengeSecret, service.TokenTypeChallenge)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != service.PurposeTwoFactorVerification {
		return nil, errors.Wrap(domainerrors.ErrTokenInvalid, "unexpected challenge purpose")
	}

	return claims, nil
}

// HashRefreshToken returns hex(HMAC-SHA256(refresh secret, token)).
func (s *jwtService) HashRefreshToken(token string) string {
	mac := hmac.New(sha256.New, s.refreshSecret)
	mac.Write([]byte(token))

	return hex.EncodeToString(mac.Sum(nil))
}

func (s *jwtService) newClaims(accountID uuid.UUID, tokenType service.TokenType, ttl time.Duration) *service.Claims {
	now := s.clock.Now()

	return &service.Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (s *jwtService) sign(claims *service.Claims, secret []byte) (string, time.Time, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "failed to sign token")
	}

	return signed, claims.ExpiresAt.Time, nil
}

// parse verifies signature, issuer, expiry and token type.
// Expired tokens map to ErrTokenExpired, anything else to ErrTokenInvalid.
func (s *jwtService) parse(tokenString string, secret []byte, want service.TokenType) (*service.Claims, error) {
	claims := &service.Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, errors.WithStack(domainerrors.ErrTokenExpired)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.Wrap(domainerrors.ErrTokenInvalid, "failed to parse token structure")
		default:
			return nil, errors.Wrapf(domainerrors.ErrTokenInvalid, "token verification failed: %v", err)
		}
	}

	if claims.Type != want {
		return nil, errors.Wrapf(domainerrors.ErrTokenInvalid, "unexpected token type %q", claims.Type)
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, errors.Wrap(domainerrors.ErrTokenInvalid, "invalid subject")
	}

	return claims, nil
}
