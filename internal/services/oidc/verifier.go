package oidc

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/studyhall-app/studyhall/internal/models"
)

// Verifier verifies JWT tokens issued by the identity provider.
type Verifier struct {
	jwksManager *JWKSManager
	issuer      string
}

// NewVerifier creates a new JWT verifier
func NewVerifier(jwksManager *JWKSManager, issuer string) *Verifier {
	return &Verifier{
		jwksManager: jwksManager,
		issuer:      issuer,
	}
}

// Verify verifies a JWT token and extracts the claims provisioning needs.
func (v *Verifier) Verify(ctx context.Context, tokenString string, jwksURL string) (*models.JWTClaims, error) {
	keys, err := v.jwksManager.GetJWKS(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString), jwt.WithKeySet(keys), jwt.WithValidate(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}

	iss, ok := token.Get("iss")
	if !ok {
		return nil, fmt.Errorf("token missing issuer claim")
	}
	if issStr, ok := iss.(string); !ok || issStr != v.issuer {
		return nil, fmt.Errorf("token issuer mismatch: expected %s, got %v", v.issuer, iss)
	}

	claims := &models.JWTClaims{}

	stringClaims := map[string]*string{
		"sub":                &claims.Sub,
		"email":              &claims.Email,
		"name":               &claims.Name,
		"given_name":         &claims.GivenName,
		"family_name":        &claims.FamilyName,
		"preferred_username": &claims.PreferredUsername,
		"picture":            &claims.Picture,
		"iss":                &claims.Iss,
	}
	for name, dest := range stringClaims {
		if raw, ok := token.Get(name); ok {
			if s, ok := raw.(string); ok {
				*dest = s
			}
		}
	}

	if verified, ok := token.Get("email_verified"); ok {
		switch v := verified.(type) {
		case bool:
			claims.EmailVerified = v
		case string:
			// Some providers ship this claim as a string.
			claims.EmailVerified = v == "true"
		}
	}

	if exp, ok := token.Get("exp"); ok {
		if expFloat, ok := exp.(float64); ok {
			claims.Exp = int64(expFloat)
		}
	}

	if iat, ok := token.Get("iat"); ok {
		if iatFloat, ok := iat.(float64); ok {
			claims.Iat = int64(iatFloat)
		}
	}

	if aud, ok := token.Get("aud"); ok {
		if audStr, ok := aud.(string); ok {
			claims.Aud = audStr
		} else if audArr, ok := aud.([]any); ok && len(audArr) > 0 {
			if audStr, ok := audArr[0].(string); ok {
				claims.Aud = audStr
			}
		}
	}

	return claims, nil
}
