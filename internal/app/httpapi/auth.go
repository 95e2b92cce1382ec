package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vaultforge/agent_layer/internal/httputil"
	"github.com/vaultforge/agent_layer/pkg/logger"
)

type contextKey string

const accountContextKey contextKey = "wallet-account"

// Claims are the JWT claims for a wallet session token.
type Claims struct {
	WalletAddress string `json:"wallet_address"`
	jwt.RegisteredClaims
}

// Auth validates HMAC-signed wallet session tokens.
type Auth struct {
	secret    []byte
	skipPaths map[string]bool
	log       *logger.Logger
}

// NewAuth creates authentication middleware. Paths in skipPaths bypass
// authentication entirely.
func NewAuth(secret []byte, skipPaths []string, log *logger.Logger) *Auth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &Auth{secret: secret, skipPaths: skip, log: log}
}

// Handler returns the authentication middleware.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			httputil.Unauthorized(w, "missing Authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.Unauthorized(w, "invalid Authorization header format")
			return
		}

		claims, err := a.validate(parts[1])
		if err != nil {
			a.log.WithError(err).Warn("token validation failed")
			httputil.Unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, strings.ToLower(claims.WalletAddress))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid claims")
	}
	if strings.TrimSpace(claims.WalletAddress) == "" {
		return nil, fmt.Errorf("wallet_address claim is required")
	}
	return claims, nil
}

// IssueToken mints a wallet session token.
func IssueToken(secret []byte, walletAddress string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		WalletAddress: walletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   walletAddress,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// AccountFromContext returns the authenticated wallet address, or "" when the
// request was not authenticated.
func AccountFromContext(ctx context.Context) string {
	account, _ := ctx.Value(accountContextKey).(string)
	return account
}
