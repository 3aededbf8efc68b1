package security

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"contactbook/internal/errs"
	"contactbook/internal/ids"
)

type TokenKind string

const (
	KindAccess            TokenKind = "access"
	KindEmailVerification TokenKind = "email_verification"
)

type Claims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// Remaining is how long the token stays valid after now; zero once expired.
func (c Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	d := c.ExpiresAt.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type TokenConfig struct {
	Secret          string
	AccessTTL       time.Duration
	VerificationTTL time.Duration
}

// TokenService signs and verifies HS512 tokens with one process-wide secret.
type TokenService struct {
	secret          []byte
	accessTTL       time.Duration
	verificationTTL time.Duration
	now             func() time.Time
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is empty")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	return &TokenService{
		secret:          []byte(cfg.Secret),
		accessTTL:       cfg.AccessTTL,
		verificationTTL: cfg.VerificationTTL,
		now:             time.Now,
	}, nil
}

func (s *TokenService) IssueAccessToken(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.accessTTL
	}
	return s.issue(subject, KindAccess, ttl)
}

func (s *TokenService) IssueVerificationToken(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.verificationTTL
	}
	return s.issue(subject, KindEmailVerification, ttl)
}

func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

func (s *TokenService) issue(subject string, kind TokenKind, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is empty")
	}
	now := s.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ids.New(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and kind. Every failure is errs.ErrInvalidToken
// so callers cannot tell an expired token from a forged one.
func (s *TokenService) Verify(tokenStr string, expected TokenKind) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, errs.E(errs.KindUnauthorized, "", "invalid token", err)
	}
	if !token.Valid || claims.Subject == "" {
		return Claims{}, errs.ErrInvalidToken
	}
	if claims.Kind != expected {
		return Claims{}, errs.E(errs.KindUnauthorized, "", "invalid token",
			fmt.Errorf("token kind %q, want %q", claims.Kind, expected))
	}
	return claims, nil
}

// TokenDigest is the storage key form of a token; raw tokens never leave memory.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
