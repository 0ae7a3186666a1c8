package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors for JWT operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrWrongAudience       = errors.New("token audience mismatch")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("JWT secret must be at least 32 characters")
)

// DefaultAudience is the audience claim expected on bearer tokens.
const DefaultAudience = "evidenced"

// BearerClaims are the claims carried by interactive bearer tokens.
type BearerClaims struct {
	jwt.RegisteredClaims

	// OrgID identifies the caller's organization.
	OrgID string `json:"org_id,omitempty"`
}

// JWTConfig holds configuration for bearer token validation.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "evidenced".
	Issuer string

	// Audience is the audience the token must carry. Default: DefaultAudience.
	Audience string

	// TokenDuration is the lifetime of issued tokens. Default: 1 hour.
	TokenDuration time.Duration
}

// JWTService validates (and, for tooling, issues) bearer tokens.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service with the given configuration.
func NewJWTService(config JWTConfig) (*JWTService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}

	if config.Issuer == "" {
		config.Issuer = "evidenced"
	}
	if config.Audience == "" {
		config.Audience = DefaultAudience
	}
	if config.TokenDuration == 0 {
		config.TokenDuration = time.Hour
	}

	return &JWTService{config: config}, nil
}

// IssueToken creates a signed bearer token for the given subject and org.
func (s *JWTService) IssueToken(subject, orgID string) (string, error) {
	now := time.Now()
	claims := &BearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
		},
		OrgID: orgID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// ValidateToken validates a bearer token and returns its claims.
// The token must be HS256-signed, unexpired, and carry the expected
// audience.
func (s *JWTService) ValidateToken(tokenString string) (*BearerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &BearerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithAudience(s.config.Audience))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrWrongAudience
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*BearerClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
