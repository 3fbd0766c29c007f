package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

// Identity is the minimal bearer claim every inbound request carries
// (spec §6: "each inbound request carries a bearer claim with at minimum
// user_id and immutable_id").
type Identity struct {
	UserID      string `json:"user_id"`
	ImmutableID string `json:"immutable_id"`
	OrgID       string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// JWKSVerifier verifies inbound bearer tokens against a published JWKS.
// The core never issues tokens — there is deliberately no Generate method
// here; that's the identity provider's job, out of scope per spec §1.
type JWKSVerifier struct {
	kf keyfunc.Keyfunc
}

// NewJWKSVerifier fetches and caches the JWKS at jwksURL, refreshing it in
// the background per keyfunc's default refresh policy.
func NewJWKSVerifier(ctx context.Context, jwksURL string) (*JWKSVerifier, error) {
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks from %s: %w", jwksURL, err)
	}
	return &JWKSVerifier{kf: kf}, nil
}

// Verify parses and validates a bearer token, returning the identity claim.
// Any failure — malformed token, unknown kid, expired claim, bad signature —
// is surfaced as apperr.KindAuth so HTTP handlers translate it to 401.
func (v *JWKSVerifier) Verify(tokenStr string) (*Identity, error) {
	var claims Identity
	token, err := jwt.ParseWithClaims(tokenStr, &claims, v.kf.Keyfunc)
	if err != nil {
		return nil, apperr.Auth("verify bearer token", err)
	}
	if !token.Valid {
		return nil, apperr.Auth("verify bearer token", errors.New("token not valid"))
	}
	if claims.UserID == "" || claims.ImmutableID == "" {
		return nil, apperr.Auth("verify bearer token", errors.New("missing user_id or immutable_id claim"))
	}
	return &claims, nil
}
