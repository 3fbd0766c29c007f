// Package secrets implements C11 Secrets Broker: per-document credential
// parcels with a deterministic storage name, TTL-bounded lifetime, a daily
// orphan sweep, and the "s_"-prefix secret indirection resolution pattern
// from the original parameter-store-backed implementation.
package secrets

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/objectstore"
)

const (
	stageBucket  = "secret-parcels"
	paramsBucket = "secret-params"
	sweepAge     = 24 * time.Hour
	secretPrefix = "s_"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// checksum returns a hex-encoded SHA-256 digest of body. bcrypt was tried
// first but truncates its input at 72 bytes (golang.org/x/crypto >= v0.26.0
// returns ErrPasswordTooLong past that), which both breaks Put for any
// realistic parcel and leaves tail corruption undetected even below the
// limit; a full-length digest has neither problem.
func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// parcelEnvelope is the on-disk shape: the caller's parcel plus an
// integrity check-hash over its marshaled form, so a corrupted blob is
// detected at read time rather than silently misused.
type parcelEnvelope struct {
	Parcel    map[string]string `json:"parcel"`
	CheckHash string            `json:"check_hash"`
}

// Broker stores credential parcels in the object store and tracks their
// creation time in Postgres for the orphan sweep. Parcels are written as
// plain JSON envelopes guarded by an integrity check-hash; they are not
// encrypted.
type Broker struct {
	db    *pgxpool.Pool
	store objectstore.Store
}

func New(db *pgxpool.Pool, store objectstore.Store) *Broker {
	return &Broker{db: db, store: store}
}

func storageName(docKey string) string {
	return unsafeNameChars.ReplaceAllString(docKey, "_") + ".json"
}

// buildEnvelope marshals parcel and computes its integrity check-hash.
func buildEnvelope(parcel map[string]string) ([]byte, error) {
	body, err := json.Marshal(parcel)
	if err != nil {
		return nil, apperr.Fatal("marshal secret parcel", err)
	}
	envelope, err := json.Marshal(parcelEnvelope{Parcel: parcel, CheckHash: checksum(body)})
	if err != nil {
		return nil, apperr.Fatal("marshal secret envelope", err)
	}
	return envelope, nil
}

// verifyEnvelope unmarshals an on-disk envelope and recomputes its
// check-hash, returning apperr.Corruption if the two don't match.
func verifyEnvelope(raw []byte) (map[string]string, error) {
	var envelope parcelEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperr.Fatal("unmarshal secret parcel", err)
	}

	rehashed, err := json.Marshal(envelope.Parcel)
	if err != nil {
		return nil, apperr.Fatal("remarshal secret parcel", err)
	}
	if subtle.ConstantTimeCompare([]byte(envelope.CheckHash), []byte(checksum(rehashed))) != 1 {
		return nil, apperr.Corruption("secret parcel integrity check failed", nil)
	}
	return envelope.Parcel, nil
}

// Put stores a plain (unencrypted) JSON envelope of the parcel and its
// check-hash for docKey under a deterministically derived name, overwriting
// any existing parcel.
func (b *Broker) Put(ctx context.Context, docKey string, parcel map[string]string) error {
	envelope, err := buildEnvelope(parcel)
	if err != nil {
		return err
	}

	key := storageName(docKey)
	if err := b.store.Put(ctx, stageBucket, key, envelope, "application/json"); err != nil {
		return apperr.Upstream("write secret parcel", err)
	}

	_, err = b.db.Exec(ctx, `
		INSERT INTO secret_parcels (doc_key, storage_bucket, storage_key, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (doc_key) DO UPDATE SET
			storage_bucket = EXCLUDED.storage_bucket,
			storage_key = EXCLUDED.storage_key,
			created_at = now()
	`, docKey, stageBucket, key)
	if err != nil {
		return apperr.Upstream("record secret parcel", err)
	}
	return nil
}

// Get retrieves the parcel for docKey. Retrieval failure is fatal, per
// spec §4.11 and C4's contract that a missing parcel fails the document.
func (b *Broker) Get(ctx context.Context, docKey string) (map[string]string, error) {
	var bucket, key string
	err := b.db.QueryRow(ctx, `
		SELECT storage_bucket, storage_key FROM secret_parcels WHERE doc_key = $1
	`, docKey).Scan(&bucket, &key)
	if err != nil {
		return nil, apperr.Fatal("locate secret parcel", err)
	}

	body, err := b.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, apperr.Fatal("retrieve secret parcel", err)
	}

	return verifyEnvelope(body)
}

// TryGet is Get's soft-fail counterpart: a missing parcel returns
// (nil, false, nil) instead of an error.
func (b *Broker) TryGet(ctx context.Context, docKey string) (map[string]string, bool, error) {
	parcel, err := b.Get(ctx, docKey)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindFatal {
			return nil, false, nil
		}
		return nil, false, err
	}
	return parcel, true, nil
}

// Delete removes a parcel's bookkeeping row, making it unreachable via Get
// and TryGet. The external object store contract (spec §6) exposes no
// delete operation, so the underlying blob is left in place as an orphan;
// its deterministic name ties it to a doc_key that no longer resolves, and
// object-store lifecycle rules (outside this core's scope) reclaim it.
func (b *Broker) Delete(ctx context.Context, docKey string) error {
	if _, err := b.db.Exec(ctx, `DELETE FROM secret_parcels WHERE doc_key = $1`, docKey); err != nil {
		return apperr.Upstream("delete secret parcel record", err)
	}
	return nil
}

// Sweep enumerates tracked parcels older than 24h and deletes any whose
// document is absent from the status tracker, per spec §4.11.
func (b *Broker) Sweep(ctx context.Context, documentExists func(docKey string) bool) (int, error) {
	cutoff := time.Now().Add(-sweepAge)
	rows, err := b.db.Query(ctx, `
		SELECT doc_key, created_at FROM secret_parcels WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, apperr.Upstream("query secret_parcels for sweep", err)
	}

	var orphans []string
	for rows.Next() {
		var docKey string
		var createdAt time.Time
		if err := rows.Scan(&docKey, &createdAt); err != nil {
			rows.Close()
			return 0, apperr.Upstream("scan secret_parcels row", err)
		}
		if !documentExists(docKey) {
			orphans = append(orphans, docKey)
		}
	}
	rows.Close()

	for _, docKey := range orphans {
		if err := b.Delete(ctx, docKey); err != nil {
			return 0, err
		}
	}
	return len(orphans), nil
}

// PutParameter stores a single named secret value, backing the "s_"-prefix
// indirection resolved by ResolveParcel.
func (b *Broker) PutParameter(ctx context.Context, name, value string) error {
	if err := b.store.Put(ctx, paramsBucket, name, []byte(value), "text/plain"); err != nil {
		return apperr.Upstream("store secret parameter", err)
	}
	return nil
}

// ResolveParcel replaces every "s_"-prefixed key's value (a parameter
// name) with the resolved secret value under the unprefixed key, mirroring
// the original `update_dict_with_secrets` indirection. Keys whose
// parameter cannot be resolved are dropped rather than propagated as
// garbage credentials.
func (b *Broker) ResolveParcel(ctx context.Context, parcel map[string]string) map[string]string {
	resolved := make(map[string]string, len(parcel))
	for k, v := range parcel {
		if len(k) <= len(secretPrefix) || k[:len(secretPrefix)] != secretPrefix {
			resolved[k] = v
			continue
		}
		value, err := b.store.Get(ctx, paramsBucket, v)
		if err != nil {
			continue
		}
		resolved[k[len(secretPrefix):]] = string(value)
	}
	return resolved
}
