package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	auth, err := NewTokenAuth("test-secret")
	require.NoError(t, err)

	minted, err := auth.Mint(TokenClaims{
		UserID:        "user-1",
		WalletAddress: "0xabc",
		Email:         "alice@example.com",
	}, time.Hour)
	require.NoError(t, err)
	assert.Len(t, strings.Split(minted, "."), 3)

	claims, err := auth.Verify(minted)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "0xabc", claims.WalletAddress)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	auth, err := NewTokenAuth("secret-a")
	require.NoError(t, err)
	other, err := NewTokenAuth("secret-b")
	require.NoError(t, err)

	minted, err := auth.Mint(TokenClaims{UserID: "user-1"}, time.Hour)
	require.NoError(t, err)

	_, err = other.Verify(minted)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	auth, err := NewTokenAuth("test-secret")
	require.NoError(t, err)

	minted, err := auth.Mint(TokenClaims{UserID: "user-1"}, -time.Minute)
	require.NoError(t, err)

	_, err = auth.Verify(minted)
	assert.Error(t, err)
}

func TestVerifyRejectsUnsignedAlg(t *testing.T) {
	auth, err := NewTokenAuth("test-secret")
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = auth.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	auth, err := NewTokenAuth("test-secret")
	require.NoError(t, err)

	minted, err := auth.Mint(TokenClaims{WalletAddress: "0xabc"}, time.Hour)
	require.NoError(t, err)

	_, err = auth.Verify(minted)
	assert.ErrorContains(t, err, "subject")
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	auth, err := NewTokenAuth("test-secret")
	require.NoError(t, err)

	_, err = auth.Verify("not-a-token")
	assert.Error(t, err)
}

func TestNewTokenAuthRequiresSecret(t *testing.T) {
	_, err := NewTokenAuth("")
	assert.Error(t, err)
}
