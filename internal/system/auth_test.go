package system

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthManagerValidateToken(t *testing.T) {
	secret := "test-secret-key"
	auth := NewAuthManager(secret)

	claims := jwt.MapClaims{
		"user_id": "operator-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	require.NoError(t, err, "sign token")

	userID, err := auth.ValidateToken(tokenString)
	require.NoError(t, err, "validate token")
	assert.Equal(t, "operator-1", userID)
}

func TestAuthManagerValidateTokenWrongSecret(t *testing.T) {
	auth := NewAuthManager("test-secret-key")

	claims := jwt.MapClaims{"user_id": "operator-1", "exp": time.Now().Add(time.Hour).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err, "sign token")

	_, err = auth.ValidateToken(tokenString)
	assert.Error(t, err, "expected error for token signed with the wrong secret")
}

func TestAuthManagerNoSecretIsPermissive(t *testing.T) {
	auth := NewAuthManager("")
	userID, err := auth.ValidateToken("anything")
	require.NoError(t, err, "expected no error with an unconfigured secret")
	assert.Equal(t, "default", userID)
}

func TestExtractTokenFromHeader(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc123", "abc123", false},
		{"abc123", "abc123", false},
		{"", "", true},
		{"Basic abc123", "", true},
	}
	for _, c := range cases {
		got, err := ExtractTokenFromHeader(c.header)
		if c.wantErr {
			assert.Error(t, err, "header %q", c.header)
			continue
		}
		if !assert.NoError(t, err, "header %q", c.header) {
			continue
		}
		assert.Equal(t, c.want, got, "header %q", c.header)
	}
}
