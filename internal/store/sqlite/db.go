// Package sqlite stores ingested transactions in a local SQLite file. Each
// transaction is kept as its flat JSON record next to the columns needed to
// find it again.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dvloznov/statement-ingest/internal/normalizer"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

//go:embed schema.sql
var schema string

type DB struct {
	*sql.DB
	norm *normalizer.Normalizer
}

// Open opens or creates the database at the given path and applies the
// schema.
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("execute schema: %w", err)
	}
	return &DB{DB: db, norm: normalizer.New("")}, nil
}

// Open starts a session for one ingestion. It satisfies
// pipeline.SessionFactory; the connection stays with the DB.
func (db *DB) Open(ctx context.Context) (pipeline.Session, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &session{db: db}, nil
}
