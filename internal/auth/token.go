package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = time.Hour

var ErrNoSecret = errors.New("jwt secret is empty")

var signingMethod = jwt.SigningMethodHS256

// Reason says why a token was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonMissing
	ReasonMalformed
	ReasonSignatureInvalid
	ReasonExpired
)

func (r Reason) String() string {
	switch r {
	case ReasonMissing:
		return "missing"
	case ReasonMalformed:
		return "malformed"
	case ReasonSignatureInvalid:
		return "signature_invalid"
	case ReasonExpired:
		return "expired"
	default:
		return "none"
	}
}

type TokenError struct {
	Reason Reason
	Err    error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return "token " + e.Reason.String()
	}
	return "token " + e.Reason.String() + ": " + e.Err.Error()
}

func (e *TokenError) Unwrap() error { return e.Err }

// ReasonOf extracts the rejection reason from a Validate error.
func ReasonOf(err error) Reason {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Reason
	}
	return ReasonNone
}

type Claims struct {
	UserID   int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

// TokenService issues and validates HS256 access tokens with one process-wide secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &TokenService{secret: secret, ttl: cfg.TTL, now: cfg.Now}, nil
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

func (s *TokenService) Issue(id Identity) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:   id.ID,
		Email:    id.Email,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) Validate(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, &TokenError{Reason: ReasonMissing}
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, s.keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, &TokenError{Reason: classify(err), Err: err}
	}
	return Identity{ID: claims.UserID, Email: claims.Email, Username: claims.Username}, nil
}

func (s *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != signingMethod.Alg() {
		return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
	}
	return s.secret, nil
}

// signature problems are checked before claims, so an expired forgery still reports SignatureInvalid
func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	default:
		return ReasonMalformed
	}
}
