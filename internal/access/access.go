// Package access implements C1 Object Access Control: row-level permission
// checks on documents and chunks, grounded on the teacher's repository
// pattern (internal/tenant) and on original_source's
// amplify-lambda-basic-ops/common/object_permissions.py, which underlies the
// policy column and the first-writer-wins ownership rule.
package access

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

// Level orders read < write < owner.
type Level int

const (
	LevelRead Level = iota
	LevelWrite
	LevelOwner
)

func ParseLevel(s string) (Level, bool) {
	switch s {
	case "read":
		return LevelRead, true
	case "write":
		return LevelWrite, true
	case "owner":
		return LevelOwner, true
	default:
		return 0, false
	}
}

func (l Level) String() string {
	switch l {
	case LevelRead:
		return "read"
	case LevelWrite:
		return "write"
	case LevelOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Grant is one row of the access table.
type Grant struct {
	ObjectID      string
	PrincipalID   string
	Permission    Level
	PrincipalType string
	ObjectType    string
	Policy        string
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Grant installs or extends a permission. The first grant ever made on an
// object installs the caller as owner/write regardless of what level was
// requested, matching the Python source's inferred first-writer-wins rule
// (spec §4.1, Open Question noted in DESIGN.md). Subsequent grants require
// the caller to already hold write or owner on the object.
func (s *Store) Grant(ctx context.Context, caller string, objectID, objectType string, principal, principalType string, level Level, policy string) error {
	existing, err := s.hasAnyGrant(ctx, objectID)
	if err != nil {
		return apperr.Upstream("check existing grants", err)
	}

	if !existing {
		_, err := s.db.Exec(ctx,
			`INSERT INTO access (object_id, principal_id, permission, principal_type, object_type, policy)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			objectID, caller, LevelOwner.String(), principalType, objectType, policy,
		)
		if err != nil {
			return apperr.Upstream("insert first-writer grant", err)
		}
		if principal == caller {
			return nil
		}
		// Caller also wants to grant someone else in the same call; fall through.
	} else {
		ok, err := s.Check(ctx, objectID, caller, LevelWrite)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Forbidden("caller lacks write/owner on object", nil)
		}
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO access (object_id, principal_id, permission, principal_type, object_type, policy)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (object_id, principal_id) DO UPDATE SET permission=EXCLUDED.permission, policy=EXCLUDED.policy`,
		objectID, principal, level.String(), principalType, objectType, policy,
	)
	if err != nil {
		return apperr.Upstream("insert grant", err)
	}
	return nil
}

func (s *Store) hasAnyGrant(ctx context.Context, objectID string) (bool, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM access WHERE object_id=$1`, objectID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Check returns true if principal has a grant whose permission is >= required.
func (s *Store) Check(ctx context.Context, objectID, principal string, required Level) (bool, error) {
	var permStr string
	err := s.db.QueryRow(ctx,
		`SELECT permission FROM access WHERE object_id=$1 AND principal_id=$2`,
		objectID, principal,
	).Scan(&permStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Upstream("check grant", err)
	}
	level, ok := ParseLevel(permStr)
	if !ok {
		return false, apperr.Corruption("unknown permission level stored", nil)
	}
	return level >= required, nil
}

// VisibleObjectIDs returns every document object_id principal holds a
// grant of at least required on. Used to scope corpus-wide retrieval
// (spec §4.10) to the caller's visible set instead of the full table.
func (s *Store) VisibleObjectIDs(ctx context.Context, principal string, required Level) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT object_id, permission FROM access WHERE principal_id=$1 AND object_type='document'`,
		principal,
	)
	if err != nil {
		return nil, apperr.Upstream("query visible objects", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var objectID, permStr string
		if err := rows.Scan(&objectID, &permStr); err != nil {
			return nil, apperr.Upstream("scan access row", err)
		}
		level, ok := ParseLevel(permStr)
		if ok && level >= required {
			ids = append(ids, objectID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Upstream("iterate visible objects", err)
	}
	return ids, nil
}

// Simulate returns the full boolean matrix objects x levels for principal.
// It never partially fails: unknown objects simply yield all-false rows.
func (s *Store) Simulate(ctx context.Context, objects []string, principal string, levels []Level) (map[string]map[Level]bool, error) {
	result := make(map[string]map[Level]bool, len(objects))
	for _, obj := range objects {
		row := make(map[Level]bool, len(levels))
		var permStr string
		err := s.db.QueryRow(ctx,
			`SELECT permission FROM access WHERE object_id=$1 AND principal_id=$2`,
			obj, principal,
		).Scan(&permStr)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			for _, l := range levels {
				row[l] = false
			}
		case err != nil:
			for _, l := range levels {
				row[l] = false
			}
		default:
			level, ok := ParseLevel(permStr)
			for _, l := range levels {
				row[l] = ok && level >= l
			}
		}
		result[obj] = row
	}
	return result, nil
}
