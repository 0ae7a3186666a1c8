package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// uploadTokenType is the type claim stamped on upload tokens so a bearer
// token can never stand in for one (and vice versa).
const uploadTokenType = "upload"

// ErrWrongSession is returned when an upload token was issued for a
// different upload session.
var ErrWrongSession = errors.New("token does not match upload session")

// UploadTokenClaims bind an upload token to a single upload session.
type UploadTokenClaims struct {
	jwt.RegisteredClaims

	UploadID  string `json:"upload_id"`
	TokenType string `json:"typ"`
}

// UploadTokenIssuer mints and verifies per-session upload tokens. The
// signing secret is fixed for the process lifetime so a token issued
// before a config reload still verifies afterwards.
type UploadTokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewUploadTokenIssuer creates an issuer with the given secret and token
// lifetime. The lifetime should match the upload session TTL.
func NewUploadTokenIssuer(secret string, ttl time.Duration) (*UploadTokenIssuer, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UploadTokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue creates a signed token bound to uploadID.
func (i *UploadTokenIssuer) Issue(uploadID string) (string, error) {
	now := time.Now()
	claims := &UploadTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		UploadID:  uploadID,
		TokenType: uploadTokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// Verify checks that tokenString is a valid, unexpired upload token bound
// to uploadID.
func (i *UploadTokenIssuer) Verify(tokenString, uploadID string) error {
	token, err := jwt.ParseWithClaims(tokenString, &UploadTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}

	claims, ok := token.Claims.(*UploadTokenClaims)
	if !ok || !token.Valid || claims.TokenType != uploadTokenType {
		return ErrInvalidToken
	}
	if claims.UploadID != uploadID {
		return ErrWrongSession
	}
	return nil
}
