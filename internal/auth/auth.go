// Package auth issues and validates the single-operator JWT used by the
// ops API. There is no user store: one operator account is configured
// through the environment with a bcrypt password hash.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrBadCredentials = errors.New("bad credentials")
)

const defaultTokenDuration = 24 * time.Hour

// Config carries the operator credentials and token settings.
type Config struct {
	JWTSecret        string
	TokenDuration    time.Duration
	OperatorUser     string
	OperatorPassHash string // bcrypt hash
}

// Claims is the token payload.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service signs and validates operator tokens.
type Service struct {
	secret   []byte
	duration time.Duration
	user     string
	passHash string
}

// NewService creates the auth service.
func NewService(cfg Config) *Service {
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = defaultTokenDuration
	}
	return &Service{
		secret:   []byte(cfg.JWTSecret),
		duration: cfg.TokenDuration,
		user:     cfg.OperatorUser,
		passHash: cfg.OperatorPassHash,
	}
}

// Login checks the operator credentials and returns a signed token.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.user || s.passHash == "" {
		return "", ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passHash), []byte(password)); err != nil {
		return "", ErrBadCredentials
	}
	return s.GenerateToken(username)
}

// GenerateToken signs a fresh operator token.
func (s *Service) GenerateToken(username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "auction-market-bot",
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token string.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenDurationSeconds reports the configured lifetime in seconds.
func (s *Service) TokenDurationSeconds() int64 {
	return int64(s.duration.Seconds())
}

// HashPassword produces a bcrypt hash suitable for AUTH_OPERATOR_PASS_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
