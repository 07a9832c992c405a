// Package pg loads a directory snapshot from Postgres at startup. Nothing is written back.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"g10.app/identity/internal/credential"
	"g10.app/identity/internal/directory"
	"g10.app/identity/internal/seed"
)

const pgErrUndefinedTable = "42P01"

var (
	ErrTablesMissing = errors.New("pg: identity tables missing")
	ErrInvalidRow    = errors.New("pg: invalid row")
)

// Open returns a small pool; the source only reads once at startup.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
	return db, nil
}

type Source struct {
	db *sql.DB
}

func NewSource(db *sql.DB) *Source { return &Source{db: db} }

// Load reads every identity table inside one read-only transaction and inserts
// the rows into dir in the order organizations, roles, groups, users.
func (s *Source) Load(ctx context.Context, dir *directory.Directory) (seed.Stats, error) {
	var st seed.Stats
	if s.db == nil {
		return st, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return st, err
	}
	defer func() { _ = tx.Rollback() }()

	if st.Organizations, err = loadOrganizations(ctx, tx, dir); err != nil {
		return st, classify("identity_orgs", err)
	}
	if st.Roles, err = loadRoles(ctx, tx, dir); err != nil {
		return st, classify("identity_roles", err)
	}
	if st.Groups, err = loadGroups(ctx, tx, dir); err != nil {
		return st, classify("identity_groups", err)
	}
	if st.Users, err = loadUsers(ctx, tx, dir); err != nil {
		return st, classify("identity_users", err)
	}
	return st, tx.Commit()
}

func loadOrganizations(ctx context.Context, tx *sql.Tx, dir *directory.Directory) (int, error) {
	rows, err := tx.QueryContext(ctx, `select id, name from identity_orgs order by id`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return n, err
		}
		uid, err := rowID(id)
		if err != nil {
			return n, err
		}
		org, err := directory.NewOrganization(uid, name)
		if err != nil {
			return n, fmt.Errorf("id %d: %w", id, err)
		}
		if err := dir.AddOrganization(org); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

func loadRoles(ctx context.Context, tx *sql.Tx, dir *directory.Directory) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		select id, name, org_id, coalesce(permissions, '[]'::jsonb)
		from identity_roles
		order by id
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			id, orgID int64
			name      string
			rawPerms  []byte
			perms     []string
		)
		if err := rows.Scan(&id, &name, &orgID, &rawPerms); err != nil {
			return n, err
		}
		if err := decodeArray(rawPerms, &perms); err != nil {
			return n, fmt.Errorf("%w: role %d permissions: %v", ErrInvalidRow, id, err)
		}
		ids, err := rowIDs(id, orgID)
		if err != nil {
			return n, err
		}
		role, err := directory.NewRole(ids[0], name, ids[1], perms)
		if err != nil {
			return n, fmt.Errorf("id %d: %w", id, err)
		}
		if err := dir.AddRole(role); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

func loadGroups(ctx context.Context, tx *sql.Tx, dir *directory.Directory) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		select id, name, org_id, coalesce(role_ids, '[]'::jsonb)
		from identity_groups
		order by id
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			id, orgID int64
			name      string
			rawRoles  []byte
			roleIDs   []uint64
		)
		if err := rows.Scan(&id, &name, &orgID, &rawRoles); err != nil {
			return n, err
		}
		if err := decodeArray(rawRoles, &roleIDs); err != nil {
			return n, fmt.Errorf("%w: group %d role_ids: %v", ErrInvalidRow, id, err)
		}
		ids, err := rowIDs(id, orgID)
		if err != nil {
			return n, err
		}
		group, err := directory.NewGroup(ids[0], name, ids[1], roleIDs)
		if err != nil {
			return n, fmt.Errorf("id %d: %w", id, err)
		}
		if err := dir.AddGroup(group); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

func loadUsers(ctx context.Context, tx *sql.Tx, dir *directory.Directory) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		select id, name, org_id,
		       coalesce(group_ids, '[]'::jsonb),
		       coalesce(role_ids, '[]'::jsonb),
		       credential
		from identity_users
		order by id
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			id, orgID          int64
			name               string
			rawGroups, rawRole []byte
			cred               []byte
			groupIDs, roleIDs  []uint64
		)
		if err := rows.Scan(&id, &name, &orgID, &rawGroups, &rawRole, &cred); err != nil {
			return n, err
		}
		if err := decodeArray(rawGroups, &groupIDs); err != nil {
			return n, fmt.Errorf("%w: user %d group_ids: %v", ErrInvalidRow, id, err)
		}
		if err := decodeArray(rawRole, &roleIDs); err != nil {
			return n, fmt.Errorf("%w: user %d role_ids: %v", ErrInvalidRow, id, err)
		}
		if len(cred) != credential.Size {
			return n, fmt.Errorf("%w: user %d credential is %d bytes, want %d", ErrInvalidRow, id, len(cred), credential.Size)
		}
		var digest credential.Digest
		copy(digest[:], cred)

		ids, err := rowIDs(id, orgID)
		if err != nil {
			return n, err
		}
		user, err := directory.NewUser(ids[0], name, ids[1], groupIDs, roleIDs, digest)
		if err != nil {
			return n, fmt.Errorf("id %d: %w", id, err)
		}
		if err := dir.AddUser(user); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

func decodeArray(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Postgres bigint is signed; negative ids cannot name directory entities.
func rowID(v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: negative id %d", ErrInvalidRow, v)
	}
	return uint64(v), nil
}

func rowIDs(vs ...int64) ([]uint64, error) {
	out := make([]uint64, len(vs))
	for i, v := range vs {
		u, err := rowID(v)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

func classify(table string, err error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUndefinedTable {
		return fmt.Errorf("%w: %s: %s", ErrTablesMissing, table, pgErr.Message)
	}
	return fmt.Errorf("pg: load %s: %w", table, err)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
