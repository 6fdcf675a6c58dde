package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifierConfig holds configuration for operator token verification.
type VerifierConfig struct {
	// Algorithm is "RS256" or "HS256".
	Algorithm string

	// RS256 configuration
	PublicKeyPEM string

	// HS256 configuration
	SecretKey string

	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

// Verifier handles operator token verification.
type Verifier struct {
	config    VerifierConfig
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewVerifier creates a new token verifier.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	v := &Verifier{config: config}

	switch config.Algorithm {
	case "RS256":
		if config.PublicKeyPEM == "" {
			return nil, fmt.Errorf("RS256 requires a public key")
		}
		if err := v.loadPublicKeyFromPEM(config.PublicKeyPEM); err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
	case "HS256":
		if config.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires secret key")
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", config.Algorithm)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{config.Algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	v.parser = jwt.NewParser(opts...)

	return v, nil
}

// VerifyToken verifies a token and returns its claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer "))
	if tokenString == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return v.extractClaimsFromMap(claims)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch v.config.Algorithm {
	case "RS256":
		return v.publicKey, nil
	default:
		return []byte(v.config.SecretKey), nil
	}
}

// extractClaimsFromMap extracts claims from JWT MapClaims.
func (v *Verifier) extractClaimsFromMap(claims jwt.MapClaims) (*Claims, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("missing or invalid 'sub' claim")
	}

	roles, err := extractStringSlice(claims, "roles")
	if err != nil {
		return nil, fmt.Errorf("missing or invalid 'roles' claim: %w", err)
	}

	scopes, err := extractStringSlice(claims, "scopes")
	if err != nil {
		return nil, fmt.Errorf("missing or invalid 'scopes' claim: %w", err)
	}

	if !validateRoles(roles) {
		return nil, fmt.Errorf("invalid roles: %v", roles)
	}
	if !validateScopes(scopes) {
		return nil, fmt.Errorf("invalid scopes: %v", scopes)
	}

	return &Claims{
		Subject: sub,
		Roles:   roles,
		Scopes:  scopes,
	}, nil
}

// extractStringSlice extracts a string slice from claims.
func extractStringSlice(claims jwt.MapClaims, key string) ([]string, error) {
	value, ok := claims[key]
	if !ok {
		return nil, fmt.Errorf("missing claim: %s", key)
	}

	switch val := value.(type) {
	case []string:
		return val, nil
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("invalid %s claim: not a string", key)
			}
			result[i] = str
		}
		return result, nil
	case string:
		// Space-delimited, as in OAuth scope claims.
		return strings.Fields(val), nil
	default:
		return nil, fmt.Errorf("invalid %s claim: not a string array", key)
	}
}

func validateRoles(roles []string) bool {
	validRoles := map[string]bool{
		RoleViewer:   true,
		RoleOperator: true,
		RoleAdmin:    true,
	}
	for _, role := range roles {
		if !validRoles[role] {
			return false
		}
	}
	return len(roles) > 0
}

func validateScopes(scopes []string) bool {
	validScopes := map[string]bool{
		ScopeRead:      true,
		ScopeConfigure: true,
		ScopeSecurity:  true,
	}
	for _, scope := range scopes {
		if !validScopes[scope] {
			return false
		}
	}
	return len(scopes) > 0
}

// loadPublicKeyFromPEM loads a public key from PEM format.
func (v *Verifier) loadPublicKeyFromPEM(pemData string) error {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("not an RSA public key")
	}

	v.publicKey = rsaPub
	return nil
}
