package system

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthManager gates the SystemManager's control endpoints (start, stop,
// pause, resume, add/remove symbol) behind a JWT bearer token. Grounded
// on the teacher's internal/wsgateway/auth.go AuthManager.
type AuthManager struct {
	jwtSecret []byte
}

// NewAuthManager constructs an AuthManager. An empty secret is the
// teacher's MVP permissive mode: every request is accepted as user
// "default", the same as ValidateToken("").
func NewAuthManager(jwtSecret string) *AuthManager {
	return &AuthManager{jwtSecret: []byte(jwtSecret)}
}

// ValidateToken validates tokenString and returns the caller identity
// (the "user_id" claim, falling back to "sub").
func (a *AuthManager) ValidateToken(tokenString string) (string, error) {
	if len(a.jwtSecret) == 0 {
		return "default", nil
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	if userID, ok := claims["user_id"].(string); ok {
		return userID, nil
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub, nil
	}
	return "", fmt.Errorf("user_id not found in token")
}

// ExtractTokenFromHeader extracts a bearer token from an Authorization
// header, accepting both "Bearer <token>" and a bare token.
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("authorization header is empty")
	}
	parts := strings.Split(authHeader, " ")
	switch len(parts) {
	case 1:
		return parts[0], nil
	case 2:
		if !strings.EqualFold(parts[0], "bearer") {
			return "", fmt.Errorf("invalid authorization header format")
		}
		return parts[1], nil
	default:
		return "", fmt.Errorf("invalid authorization header format")
	}
}

// requireAuth wraps a control-endpoint handler so it only runs once the
// request's bearer token validates.
func (a *AuthManager) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if _, err := a.ValidateToken(token); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
