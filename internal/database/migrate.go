package database

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/iliyamo/todo-backend/internal/database/migrations"
)

// gooseUp is a seam for testing goose.UpContext.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("mysql"); err != nil {
		return err
	}
	return gooseUp(ctx, db, ".")
}
