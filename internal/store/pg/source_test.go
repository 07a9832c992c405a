package pg

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"g10.app/identity/internal/credential"
	"g10.app/identity/internal/directory"
	"g10.app/identity/internal/seed"
)

func TestSourceLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	frank := credential.Hash("f")
	zoe := credential.Hash("z")

	mock.ExpectBegin()
	mock.ExpectQuery("select id, name from identity_orgs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(0), "acme"))
	mock.ExpectQuery("from identity_roles").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "org_id", "permissions"}).
			AddRow(int64(0), "owner", int64(0), []byte(`["*:*"]`)).
			AddRow(int64(2), "editor", int64(0), []byte(`["read:docs/*","write:docs/*"]`)))
	mock.ExpectQuery("from identity_groups").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "org_id", "role_ids"}).
			AddRow(int64(0), "dev", int64(0), []byte(`[2]`)))
	mock.ExpectQuery("from identity_users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "org_id", "group_ids", "role_ids", "credential"}).
			AddRow(int64(5), "Frank", int64(0), []byte(`[0]`), []byte(`[]`), frank[:]).
			AddRow(int64(6), "Zoe", int64(0), []byte(`[0]`), []byte(`[0]`), zoe[:]))
	mock.ExpectCommit()

	dir := directory.New()
	st, err := NewSource(db).Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := seed.Stats{Organizations: 1, Roles: 2, Groups: 1, Users: 2}
	if st != want {
		t.Fatalf("stats = %+v want %+v", st, want)
	}

	u, ok := dir.UserByCredential(frank)
	if !ok || u.ID != 5 || u.Name != "Frank" {
		t.Fatalf("UserByCredential = %+v,%v", u, ok)
	}
	m, ok := dir.Memberships(6)
	if !ok || len(m.Roles) != 2 || m.Roles[0].Name != "owner" || m.Roles[1].Name != "editor" {
		t.Fatalf("Memberships(6) = %+v,%v", m, ok)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSourceLoadMissingTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select id, name from identity_orgs").
		WillReturnError(&pgconn.PgError{Code: pgErrUndefinedTable, Message: `relation "identity_orgs" does not exist`})
	mock.ExpectRollback()

	_, err = NewSource(db).Load(context.Background(), directory.New())
	if !errors.Is(err, ErrTablesMissing) {
		t.Fatalf("expected ErrTablesMissing, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSourceLoadRejectsBadRows(t *testing.T) {
	cases := []struct {
		name string
		cred []byte
		ids  string
		want error
	}{
		{"short credential", []byte{1, 2, 3}, `[]`, ErrInvalidRow},
		{"bad group ids", make([]byte, credential.Size), `["x"]`, ErrInvalidRow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer db.Close()

			mock.ExpectBegin()
			mock.ExpectQuery("from identity_orgs").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
			mock.ExpectQuery("from identity_roles").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "org_id", "permissions"}))
			mock.ExpectQuery("from identity_groups").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "org_id", "role_ids"}))
			mock.ExpectQuery("from identity_users").
				WillReturnRows(sqlmock.NewRows([]string{"id", "name", "org_id", "group_ids", "role_ids", "credential"}).
					AddRow(int64(1), "Alice", int64(0), []byte(tc.ids), []byte(`[]`), tc.cred))
			mock.ExpectRollback()

			_, err = NewSource(db).Load(context.Background(), directory.New())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestSourceLoadNegativeID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("from identity_orgs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(-4), "acme"))
	mock.ExpectRollback()

	if _, err := NewSource(db).Load(context.Background(), directory.New()); !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow, got %v", err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, name := range []string{"0001_identity.up.sql", "0001_identity.down.sql"} {
		b, err := fs.ReadFile(Migrations(), name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(b) == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}
