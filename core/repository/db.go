package repository

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the Postgres connection pool of the run ledger
type DB struct {
	*sql.DB
}

// NewDB opens and pings a Postgres database
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

// EnsureSchema creates the ledger tables if they do not exist
func (db *DB) EnsureSchema() error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// encodeMeta serializes event metadata; nil becomes an empty object
func encodeMeta(meta map[string]interface{}) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode meta: %w", err)
	}
	return string(data), nil
}

// decodeMeta parses stored metadata, ignoring malformed documents
func decodeMeta(metaJSON string) map[string]interface{} {
	if metaJSON == "" {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil
	}
	return meta
}
