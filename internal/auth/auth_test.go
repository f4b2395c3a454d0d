// File: internal/auth/auth_test.go
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/voicepilot/internal/config"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(config.AuthConfig{Enabled: true, JWTSecret: "s3cret", Issuer: "voicepilot"}, nil)
	require.NoError(t, err)
	v.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return v
}

func TestIssueAndVerify(t *testing.T) {
	v := newTestVerifier(t)
	token, err := v.Issue("u42", time.Hour)
	require.NoError(t, err)

	user, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u42", user)
}

func TestVerifyRejects(t *testing.T) {
	v := newTestVerifier(t)

	expired, err := v.Issue("u42", -time.Minute)
	require.NoError(t, err)

	other, err := NewVerifier(config.AuthConfig{Enabled: true, JWTSecret: "different", Issuer: "voicepilot"}, nil)
	require.NoError(t, err)
	forged, err := other.Issue("u42", time.Hour)
	require.NoError(t, err)

	foreign, err := NewVerifier(config.AuthConfig{Enabled: true, JWTSecret: "s3cret", Issuer: "someone-else"}, nil)
	require.NoError(t, err)
	wrongIssuer, err := foreign.Issue("u42", time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "voicepilot",
		ExpiresAt: jwt.NewNumericDate(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u42"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"expired":      expired,
		"forged":       forged,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"alg none":     noneAlg,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestDisabledAuthIsLocal(t *testing.T) {
	v, err := NewVerifier(config.AuthConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, v.Enabled())

	user, err := v.Verify("")
	require.NoError(t, err)
	assert.Equal(t, LocalUser, user)

	_, err = v.Issue("u1", time.Hour)
	assert.Error(t, err)
}

func TestNewVerifierNeedsSecret(t *testing.T) {
	_, err := NewVerifier(config.AuthConfig{Enabled: true}, nil)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v := newTestVerifier(t)
	token, err := v.Issue("u7", time.Hour)
	require.NoError(t, err)

	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		assert.True(t, ok)
		_, _ = w.Write([]byte(user))
	}))

	cases := []struct {
		name   string
		mutate func(r *http.Request)
		status int
		body   string
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, "u7"},
		{"query token", func(r *http.Request) { r.URL.RawQuery = "token=" + token }, http.StatusOK, "u7"},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) }, http.StatusUnauthorized, ""},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/voice", nil)
			tc.mutate(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
			} else {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestUserFromContextEmpty(t *testing.T) {
	_, ok := UserFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
