package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const SubjectContextKey ContextKey = "subject"

type Claims struct {
	jwt.RegisteredClaims
}

var authConfig *Config

type Config struct {
	JwtSecret []byte
	Enabled   bool
}

// Initialize sets up the auth configuration
func Initialize(jwtSecret string, enabled bool) {
	authConfig = &Config{
		JwtSecret: []byte(jwtSecret),
		Enabled:   enabled,
	}
}

// IsEnabled returns whether authentication is enabled
func IsEnabled() bool {
	if authConfig == nil {
		return false
	}
	return authConfig.Enabled
}

// GenerateToken creates a signed bearer token for the given subject,
// e.g. the name of a bot or operator consuming the API.
func GenerateToken(subject string, ttl time.Duration) (string, error) {
	if authConfig == nil {
		return "", errors.New("auth not initialized")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(authConfig.JwtSecret)
}

// ValidateToken validates a bearer token and returns its subject
func ValidateToken(tokenString string) (string, error) {
	if authConfig == nil {
		return "", errors.New("auth not initialized")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return authConfig.JwtSecret, nil
	})

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims.Subject, nil
	}

	return "", fmt.Errorf("invalid token")
}

// OptionalAuthMiddleware validates the bearer token if auth is enabled.
// If auth is disabled, it allows all requests through.
func OptionalAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !IsEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		var tokenString string
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		subject, err := ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), SubjectContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// SubjectFromContext extracts the authenticated subject from a request
func SubjectFromContext(r *http.Request) string {
	if s, ok := r.Context().Value(SubjectContextKey).(string); ok {
		return s
	}
	return ""
}
