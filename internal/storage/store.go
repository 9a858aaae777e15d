// Package storage keeps per-namespace JSON documents in SQLite.
//
// Each service label gets its own namespace holding its credentials; the
// namespace implements lastfm.DocumentStore.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
)

const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		namespace TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
`

// DB is a document database.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the document database at path.
func Open(path string) (*DB, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Namespace returns the document stored under name.
func (d *DB) Namespace(name string) *Namespace {
	return &Namespace{db: d.db, name: name}
}

// Namespaces lists the namespaces that currently hold a document.
func (d *DB) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT namespace FROM documents ORDER BY namespace")
	if err != nil {
		return nil, fmt.Errorf("failed to query namespaces: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan namespace: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating namespaces: %w", err)
	}

	return names, nil
}

// Delete removes the document stored under name. Deleting a missing
// namespace is not an error.
func (d *DB) Delete(ctx context.Context, name string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM documents WHERE namespace = ?", name); err != nil {
		return fmt.Errorf("failed to delete namespace %q: %w", name, err)
	}
	return nil
}

// Namespace is a single JSON document.
type Namespace struct {
	db   *sql.DB
	name string
}

var _ lastfm.DocumentStore = (*Namespace)(nil)

// queryer is the subset of *sql.DB and *sql.Tx the document helpers need.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Name returns the namespace name.
func (n *Namespace) Name() string {
	return n.name
}

// Get decodes the document into v. A missing document leaves v untouched.
func (n *Namespace) Get(ctx context.Context, v any) error {
	return n.get(ctx, n.db, v)
}

// Set replaces the document with v.
func (n *Namespace) Set(ctx context.Context, v any) error {
	return n.set(ctx, n.db, v)
}

// Update reads the document into v, calls fn and writes v back in one
// transaction. Nothing is written when fn returns an error.
func (n *Namespace) Update(ctx context.Context, v any, fn func() error) error {
	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := n.get(ctx, tx, v); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	if err := n.set(ctx, tx, v); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (n *Namespace) get(ctx context.Context, q queryer, v any) error {
	var data string
	err := q.QueryRowContext(ctx, "SELECT data FROM documents WHERE namespace = ?", n.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read namespace %q: %w", n.name, err)
	}

	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to decode namespace %q: %w", n.name, err)
	}
	return nil
}

func (n *Namespace) set(ctx context.Context, q queryer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode namespace %q: %w", n.name, err)
	}

	query := `
		INSERT INTO documents (namespace, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, n.name, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to write namespace %q: %w", n.name, err)
	}
	return nil
}
