package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betfolio/arena/internal/crypto"
)

type stubVerifier struct {
	claims crypto.TokenClaims
	err    error
}

func (v stubVerifier) Verify(string) (crypto.TokenClaims, error) {
	return v.claims, v.err
}

func TestAuthAttachesClaims(t *testing.T) {
	verifier := stubVerifier{claims: crypto.TokenClaims{UserID: "user-1", WalletAddress: "0xabc"}}

	var got crypto.TokenClaims
	var ok bool
	h := Auth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/bets/me", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, ok)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "0xabc", got.WalletAddress)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	h := Auth(stubVerifier{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/bets/me", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	h := Auth(stubVerifier{err: errors.New("bad signature")})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/bets/me", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid bearer token")
}

func TestAuthRejectsNonBearerScheme(t *testing.T) {
	h := Auth(stubVerifier{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/bets/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminKeyGuard(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	t.Run("matching key passes", func(t *testing.T) {
		h := AdminKey("op-key")(next)
		req := httptest.NewRequest(http.MethodPost, "/api/admin/contests", nil)
		req.Header.Set("X-Admin-Key", "op-key")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		h := AdminKey("op-key")(next)
		req := httptest.NewRequest(http.MethodPost, "/api/admin/contests", nil)
		req.Header.Set("X-Admin-Key", "guess")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("empty configured key disables routes", func(t *testing.T) {
		h := AdminKey("")(next)
		req := httptest.NewRequest(http.MethodPost, "/api/admin/contests", nil)
		req.Header.Set("X-Admin-Key", "")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
