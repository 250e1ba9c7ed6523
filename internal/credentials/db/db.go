package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-perfiles/internal/models"
)

// DB reads credential records. The service never writes to this store.
type DB struct {
	Bun *bun.DB
}

// CreateSchema creates the credentials table. Used for SQLite development
// databases and tests.
func CreateSchema(ctx context.Context, idb bun.IDB) error {
	_, err := idb.NewCreateTable().
		Model((*models.Credential)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create credentials: %w", err)
	}
	return nil
}

// FindByKey returns the credential whose employee number or login alias
// equals key exactly. An employee number match takes precedence over an alias
// match held by a different record. It returns nil when nothing matches.
func (d *DB) FindByKey(ctx context.Context, key string) (*models.Credential, error) {
	var matches []models.Credential
	err := d.Bun.NewSelect().
		Model(&matches).
		WhereOr("employee_number = ?", key).
		WhereOr("login_alias = ?", key).
		Limit(2).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	for i := range matches {
		if matches[i].EmployeeNumber == key {
			return &matches[i], nil
		}
	}
	return &matches[0], nil
}
