package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Session defaults.
const (
	SessionCookieName = "parent_session"
	DefaultSessionTTL = 2 * time.Hour
	sessionSubject    = "parent"
	sessionIssuer     = "voice-assistant"
)

var (
	// ErrParentModeDisabled is returned when no password hash is configured.
	ErrParentModeDisabled = errors.New("parent mode is not configured")
	// ErrInvalidPassword is returned for a failed login.
	ErrInvalidPassword = errors.New("invalid parent password")
	// ErrInvalidSession is returned for a missing, expired or forged token.
	ErrInvalidSession = errors.New("invalid parent session")
	// ErrMissingSecret is returned when sessions are created without a signing secret.
	ErrMissingSecret = errors.New("session signing secret cannot be empty")
)

// Sessions issues and verifies parent session tokens.
type Sessions struct {
	now          func() time.Time
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
}

// NewSessions creates a session issuer. passwordHash is a bcrypt hash; an
// empty hash disables login.
func NewSessions(passwordHash string, secret []byte, ttl time.Duration) (*Sessions, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}

	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &Sessions{
		now:          time.Now,
		passwordHash: []byte(passwordHash),
		secret:       secret,
		ttl:          ttl,
	}, nil
}

// HashPassword returns the bcrypt hash to put in the configuration.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hashed), nil
}

// Enabled reports whether a password hash is configured.
func (s *Sessions) Enabled() bool {
	return len(s.passwordHash) > 0
}

// TTL returns the lifetime of issued tokens.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Login checks password and returns a signed token with its expiry.
func (s *Sessions) Login(password string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrParentModeDisabled
	}

	err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if err != nil {
		return "", time.Time{}, ErrInvalidPassword
	}

	issued := s.now()
	expires := issued.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    sessionIssuer,
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return token, expires, nil
}

// Verify checks a token issued by Login.
func (s *Sessions) Verify(token string) error {
	if token == "" {
		return ErrInvalidSession
	}

	var claims jwt.RegisteredClaims

	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithSubject(sessionSubject),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidSession
	}

	return nil
}
