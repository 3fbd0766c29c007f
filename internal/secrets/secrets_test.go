package secrets

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/objectstore"
)

func TestStorageNameEscapesUnsafeCharacters(t *testing.T) {
	got := storageName("users/alice/doc:42")
	want := "users_alice_doc_42.json"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolveParcelIndirectsSPrefixedKeys(t *testing.T) {
	store := objectstore.NewMemory()
	broker := &Broker{store: store}
	ctx := context.Background()

	if err := broker.PutParameter(ctx, "db-password-param", "s3cr3t"); err != nil {
		t.Fatalf("put parameter: %v", err)
	}

	raw := map[string]string{
		"username": "alice",
		"s_password": "db-password-param",
	}
	resolved := broker.ResolveParcel(ctx, raw)

	if resolved["username"] != "alice" {
		t.Fatalf("expected passthrough key, got %v", resolved)
	}
	if resolved["password"] != "s3cr3t" {
		t.Fatalf("expected resolved secret, got %v", resolved)
	}
	if _, stillPrefixed := resolved["s_password"]; stillPrefixed {
		t.Fatalf("expected s_ prefixed key to be replaced, got %v", resolved)
	}
}

func TestEnvelopeRoundTripsParcelLongerThan72Bytes(t *testing.T) {
	// bcrypt.GenerateFromPassword rejects (and, below that, silently
	// truncates) input over 72 bytes; this parcel's marshaled JSON
	// comfortably exceeds that to prove the SHA-256 check-hash has no such
	// limit.
	parcel := map[string]string{
		"api_key":      "sk-" + strings.Repeat("x", 120),
		"access_token": "a-realistic-bearer-token-value-that-is-quite-long-indeed",
	}

	envelope, err := buildEnvelope(parcel)
	if err != nil {
		t.Fatalf("buildEnvelope: %v", err)
	}
	if len(envelope) <= 72 {
		t.Fatalf("expected envelope longer than 72 bytes, got %d", len(envelope))
	}

	got, err := verifyEnvelope(envelope)
	if err != nil {
		t.Fatalf("verifyEnvelope: %v", err)
	}
	if got["api_key"] != parcel["api_key"] || got["access_token"] != parcel["access_token"] {
		t.Fatalf("got %v, want %v", got, parcel)
	}
}

func TestVerifyEnvelopeDetectsCorruptionBeyond72Bytes(t *testing.T) {
	// bcrypt only ever hashed the first 72 bytes of the parcel, so
	// corruption past that offset went undetected; the SHA-256 digest
	// covers the whole body.
	original := strings.Repeat("a", 200)
	envelope, err := buildEnvelope(map[string]string{"blob": original})
	if err != nil {
		t.Fatalf("buildEnvelope: %v", err)
	}

	corrupted := bytes.Replace(envelope, []byte(original), []byte(strings.Repeat("b", 200)), 1)
	if bytes.Equal(corrupted, envelope) {
		t.Fatal("corruption substitution had no effect on the envelope")
	}

	if _, err := verifyEnvelope(corrupted); apperr.KindOf(err) != apperr.KindCorruption {
		t.Fatalf("expected corruption error, got %v", err)
	}
}

func TestResolveParcelDropsUnresolvableIndirections(t *testing.T) {
	store := objectstore.NewMemory()
	broker := &Broker{store: store}
	ctx := context.Background()

	resolved := broker.ResolveParcel(ctx, map[string]string{"s_missing": "no-such-param"})
	if len(resolved) != 0 {
		t.Fatalf("expected unresolvable indirection to be dropped, got %v", resolved)
	}
}
