package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

func startJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString([]byte{1, 0, 1})
	jwks := map[string]any{
		"keys": []map[string]any{
			{"kty": "RSA", "kid": kid, "use": "sig", "alg": "RS256", "n": n, "e": e},
		},
	}
	body, err := json.Marshal(jwks)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims Identity) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWKSVerifierVerifiesValidToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := startJWKSServer(t, key, "kid-1")
	defer srv.Close()

	ctx := context.Background()
	v, err := NewJWKSVerifier(ctx, srv.URL)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	claims := Identity{
		UserID:      "user-1",
		ImmutableID: "imm-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok := signToken(t, key, "kid-1", claims)

	identity, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.UserID != "user-1" || identity.ImmutableID != "imm-1" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestJWKSVerifierRejectsMissingClaims(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := startJWKSServer(t, key, "kid-1")
	defer srv.Close()

	v, err := NewJWKSVerifier(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	tok := signToken(t, key, "kid-1", Identity{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})

	_, err = v.Verify(tok)
	if apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("expected auth error for missing claims, got %v", err)
	}
}

func TestJWKSVerifierRejectsExpiredToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := startJWKSServer(t, key, "kid-1")
	defer srv.Close()

	v, err := NewJWKSVerifier(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	tok := signToken(t, key, "kid-1", Identity{
		UserID:      "user-1",
		ImmutableID: "imm-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err = v.Verify(tok)
	if apperr.KindOf(err) != apperr.KindAuth {
		t.Fatalf("expected auth error for expired token, got %v", err)
	}
}
