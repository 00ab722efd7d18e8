package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTokenWithSecret(t *testing.T, secret string, claims jwtlib.Claims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestCreateToken_AndValidate_Success(t *testing.T) {
	mgr := NewJwtManager("test-secret", time.Hour)

	token, err := mgr.CreateToken("indexer")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NoError(t, mgr.ValidateToken(token))

	claims, err := mgr.DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, "indexer", claims.Subject)
	assert.Equal(t, "admin", claims.Scope)
	require.NotNil(t, claims.ExpiresAt)
}

func TestValidateToken_InvalidSignature(t *testing.T) {
	signed := signTokenWithSecret(t, "other-secret", &Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		Issuer:   issuer,
		IssuedAt: jwtlib.NewNumericDate(time.Now()),
	}})

	err := NewJwtManager("test-secret", time.Hour).ValidateToken(signed)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestValidateToken_Expired(t *testing.T) {
	secret := "expire-secret"
	signed := signTokenWithSecret(t, secret, &Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		Issuer:    issuer,
		IssuedAt:  jwtlib.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-1 * time.Hour)),
	}})

	err := NewJwtManager(secret, time.Hour).ValidateToken(signed)
	assert.Equal(t, ErrExpiredToken, err)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	secret := "issuer-secret"
	signed := signTokenWithSecret(t, secret, &Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		Issuer: "someone-else",
	}})

	err := NewJwtManager(secret, time.Hour).ValidateToken(signed)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestValidateToken_Malformed(t *testing.T) {
	mgr := NewJwtManager("test-secret", 0)
	assert.Equal(t, ErrInvalidToken, mgr.ValidateToken("not-a-token"))
	assert.Equal(t, ErrInvalidToken, mgr.ValidateToken("a.b.c"))
}

func TestMissingKey(t *testing.T) {
	mgr := NewJwtManager("", time.Hour)

	_, err := mgr.CreateToken("indexer")
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.ErrorIs(t, mgr.ValidateToken("a.b.c"), ErrMissingKey)
}

func TestCreateToken_NoTTLNeverExpires(t *testing.T) {
	mgr := NewJwtManager("test-secret", 0)

	token, err := mgr.CreateToken("indexer")
	require.NoError(t, err)
	claims, err := mgr.DecodeToken(token)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}
