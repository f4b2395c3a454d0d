// File: internal/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/config"
)

// LocalUser is the identity of every request when auth is disabled.
const LocalUser = "local"

// ErrInvalidToken covers missing, malformed, expired and forged tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

type ctxKey struct{}

// Claims carried by voicepilot tokens. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	enabled bool
	secret  []byte
	issuer  string
	now     func() time.Time
	logger  *zap.Logger
}

// NewVerifier builds a verifier from the auth section.
func NewVerifier(cfg config.AuthConfig, logger *zap.Logger) (*Verifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Enabled && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth enabled without a jwt secret")
	}
	return &Verifier{
		enabled: cfg.Enabled,
		secret:  []byte(cfg.JWTSecret),
		issuer:  cfg.Issuer,
		now:     time.Now,
		logger:  logger.Named("auth"),
	}, nil
}

// Enabled reports whether tokens are checked at all.
func (v *Verifier) Enabled() bool { return v.enabled }

// Verify returns the user id in a token.
func (v *Verifier) Verify(token string) (string, error) {
	if !v.enabled {
		return LocalUser, nil
	}
	if token == "" {
		return "", ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return v.secret, nil }, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Issue signs a token for userID valid for ttl.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("cannot issue tokens without a jwt secret")
	}
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := v.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware rejects requests without a valid token and stores the user id
// in the request context. Browsers cannot set headers on a WebSocket
// upgrade, so a "token" query parameter is accepted as well.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := v.Verify(tokenFrom(r))
		if err != nil {
			v.logger.Debug("Rejected request", zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="voicepilot"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// WithUser attaches a user id to ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFromContext returns the user id stored by Middleware.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(ctxKey{}).(string)
	return user, ok && user != ""
}
