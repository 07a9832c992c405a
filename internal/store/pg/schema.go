package pg

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the schema migrations for the identity tables, rooted so
// that file names are the migration names.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic("pg: embedded migrations: " + err.Error())
	}
	return sub
}
