package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func operatorClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "alice",
		"roles":  []string{RoleOperator},
		"scopes": []string{ScopeRead, ScopeSecurity},
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func TestNewVerifier(t *testing.T) {
	tests := []struct {
		name    string
		config  VerifierConfig
		wantErr bool
	}{
		{"valid HS256 config", VerifierConfig{Algorithm: "HS256", SecretKey: "k"}, false},
		{"HS256 without secret", VerifierConfig{Algorithm: "HS256"}, true},
		{"RS256 without key", VerifierConfig{Algorithm: "RS256"}, true},
		{"RS256 with garbage PEM", VerifierConfig{Algorithm: "RS256", PublicKeyPEM: "nope"}, true},
		{"invalid algorithm", VerifierConfig{Algorithm: "ES256"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, v)
		})
	}
}

func TestVerifyHS256Token(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: "test-secret-key"})
	require.NoError(t, err)

	claims, err := v.VerifyToken("Bearer " + signHS256(t, "test-secret-key", operatorClaims()))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{RoleOperator}, claims.Roles)
	assert.True(t, claims.HasScope(ScopeSecurity))
	assert.False(t, claims.HasScope(ScopeConfigure))
}

func TestVerifyRejects(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: "test-secret-key", Issuer: "kinetic-ops"})
	require.NoError(t, err)

	withIssuer := func(mutate func(jwt.MapClaims)) jwt.MapClaims {
		c := operatorClaims()
		c["iss"] = "kinetic-ops"
		if mutate != nil {
			mutate(c)
		}
		return c
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"wrong secret", signHS256(t, "other", withIssuer(nil))},
		{"expired", signHS256(t, "test-secret-key", withIssuer(func(c jwt.MapClaims) {
			c["exp"] = time.Now().Add(-time.Hour).Unix()
		}))},
		{"no expiry", signHS256(t, "test-secret-key", withIssuer(func(c jwt.MapClaims) { delete(c, "exp") }))},
		{"wrong issuer", signHS256(t, "test-secret-key", withIssuer(func(c jwt.MapClaims) { c["iss"] = "someone" }))},
		{"unknown role", signHS256(t, "test-secret-key", withIssuer(func(c jwt.MapClaims) {
			c["roles"] = []string{"root"}
		}))},
		{"missing scopes", signHS256(t, "test-secret-key", withIssuer(func(c jwt.MapClaims) { delete(c, "scopes") }))},
		{"missing subject", signHS256(t, "test-secret-key", withIssuer(func(c jwt.MapClaims) { delete(c, "sub") }))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.VerifyToken(tt.token)
			assert.Error(t, err)
		})
	}

	claims, err := v.VerifyToken(signHS256(t, "test-secret-key", withIssuer(nil)))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func TestVerifyRS256Token(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := NewVerifier(VerifierConfig{Algorithm: "RS256", PublicKeyPEM: string(publicPEM)})
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, operatorClaims()).SignedString(privateKey)
	require.NoError(t, err)
	claims, err := v.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	// An HS256 token must not pass an RS256 verifier.
	_, err = v.VerifyToken(signHS256(t, string(publicPEM), operatorClaims()))
	assert.Error(t, err)
}

func TestSpaceDelimitedScopes(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: "k"})
	require.NoError(t, err)

	c := operatorClaims()
	c["scopes"] = "read configure"
	claims, err := v.VerifyToken(signHS256(t, "k", c))
	require.NoError(t, err)
	assert.Equal(t, []string{ScopeRead, ScopeConfigure}, claims.Scopes)
}

func TestAuthorize(t *testing.T) {
	claims := &Claims{Subject: "bob", Roles: []string{RoleViewer}, Scopes: []string{ScopeRead}}

	assert.NoError(t, claims.Authorize("getlog"))
	assert.ErrorIs(t, claims.Authorize("erase"), ErrForbidden)
	assert.ErrorIs(t, claims.Authorize("reboot"), ErrForbidden)

	var none *Claims
	assert.ErrorIs(t, none.Authorize("getlog"), ErrForbidden)
	assert.False(t, none.HasRole(RoleViewer))
}

func TestClaimsContext(t *testing.T) {
	assert.Nil(t, ClaimsFromContext(context.Background()))

	claims := &Claims{Subject: "carol"}
	ctx := WithClaims(context.Background(), claims)
	assert.Same(t, claims, ClaimsFromContext(ctx))
}
