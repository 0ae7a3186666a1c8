package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{Secret: testSecret})
	require.NoError(t, err)
	return svc
}

func TestNewJWTServiceShortSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: "short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestBearerRoundTrip(t *testing.T) {
	svc := newTestJWTService(t)

	token, err := svc.IssueToken("auditor@example.org", "org-42")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "auditor@example.org", claims.Subject)
	assert.Equal(t, "org-42", claims.OrgID)
}

func TestBearerWrongAudience(t *testing.T) {
	svc := newTestJWTService(t)

	other, err := NewJWTService(JWTConfig{Secret: testSecret, Audience: "some-other-service"})
	require.NoError(t, err)

	token, err := other.IssueToken("user", "")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrWrongAudience)
}

func TestBearerExpired(t *testing.T) {
	svc := newTestJWTService(t)

	claims := &BearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{DefaultAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestBearerWrongSecret(t *testing.T) {
	svc := newTestJWTService(t)

	other, err := NewJWTService(JWTConfig{Secret: "ffffffffffffffffffffffffffffffff"})
	require.NoError(t, err)

	token, err := other.IssueToken("user", "")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerGarbage(t *testing.T) {
	svc := newTestJWTService(t)

	_, err := svc.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUploadTokenRoundTrip(t *testing.T) {
	issuer, err := NewUploadTokenIssuer(testSecret, time.Minute)
	require.NoError(t, err)

	token, err := issuer.Issue("upl-123")
	require.NoError(t, err)

	assert.NoError(t, issuer.Verify(token, "upl-123"))
}

func TestUploadTokenWrongSession(t *testing.T) {
	issuer, err := NewUploadTokenIssuer(testSecret, time.Minute)
	require.NoError(t, err)

	token, err := issuer.Issue("upl-123")
	require.NoError(t, err)

	assert.ErrorIs(t, issuer.Verify(token, "upl-456"), ErrWrongSession)
}

func TestUploadTokenSurvivesNewIssuerWithSameSecret(t *testing.T) {
	first, err := NewUploadTokenIssuer(testSecret, time.Minute)
	require.NoError(t, err)
	token, err := first.Issue("upl-9")
	require.NoError(t, err)

	// A restarted issuer with the same process secret must still accept
	// previously issued tokens.
	second, err := NewUploadTokenIssuer(testSecret, time.Minute)
	require.NoError(t, err)
	assert.NoError(t, second.Verify(token, "upl-9"))
}

func TestUploadTokenRejectsBearerToken(t *testing.T) {
	issuer, err := NewUploadTokenIssuer(testSecret, time.Minute)
	require.NoError(t, err)

	svc := newTestJWTService(t)
	bearer, err := svc.IssueToken("user", "")
	require.NoError(t, err)

	assert.ErrorIs(t, issuer.Verify(bearer, "upl-1"), ErrInvalidToken)
}

func TestPrincipalContext(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{AppKey: "registry"})

	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.True(t, p.IsAdmin())

	_, ok = PrincipalFromContext(context.Background())
	assert.False(t, ok)
}
