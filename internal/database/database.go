package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"celestia/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs document operations against the database or an open transaction.
type Store struct {
	q queryer
}

// DB is the SQLite-backed document store.
type DB struct {
	*Store
	conn   *sql.DB
	path   string
	logger *zerolog.Logger
}

var _ domain.Repository = (*DB)(nil)

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises transactions and keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{Store: &Store{q: conn}, conn: conn, path: path, logger: logger}, nil
}

func createTables(conn *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
            collection TEXT NOT NULL,
            id TEXT NOT NULL,
            data TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL,
            PRIMARY KEY (collection, id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(collection, created_at)`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id TEXT NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// WithTx runs fn inside a transaction. Any error returned by fn rolls it back.
// fn must only use the Store it is given.
func (db *DB) WithTx(ctx context.Context, fn func(tx domain.Store) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// filter is an equality condition on a top-level document field.
type filter struct {
	field string
	value any
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func fieldPath(field string) (string, error) {
	if !fieldPattern.MatchString(field) {
		return "", fmt.Errorf("invalid document field %q", field)
	}
	return "$." + field, nil
}

func now() time.Time {
	return time.Now().UTC()
}

func (s *Store) insertDoc(ctx context.Context, collection, id string, doc any, createdAt time.Time) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", collection, err)
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		collection, id, string(data), createdAt.UnixNano(), createdAt.UnixNano(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert %s document: %w", collection, err)
	}
	return nil
}

func (s *Store) getDoc(ctx context.Context, collection, id string, dst any) error {
	var data string
	err := s.q.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s document: %w", collection, err)
	}

	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("failed to decode %s document %s: %w", collection, id, err)
	}
	return nil
}

func whereClause(collection string, filters []filter) (string, []any, error) {
	conds := []string{"collection = ?"}
	args := []any{collection}
	for _, f := range filters {
		path, err := fieldPath(f.field)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, "json_extract(data, ?) = ?")
		args = append(args, path, f.value)
	}
	return strings.Join(conds, " AND "), args, nil
}

// queryDocs returns the documents matching every filter, oldest first.
func queryDocs[T any](ctx context.Context, s *Store, collection string, filters ...filter) ([]*T, error) {
	where, args, err := whereClause(collection, filters)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE `+where+` ORDER BY created_at ASC, id ASC`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s document: %w", collection, err)
		}
		doc := new(T)
		if err := json.Unmarshal([]byte(data), doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s document %s: %w", collection, id, err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// mergeDoc overwrites the given top-level fields in one statement. A nil value
// stores JSON null.
func (s *Store) mergeDoc(ctx context.Context, collection, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	ts := now()
	merged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["updatedAt"] = ts

	setArgs := make([]string, 0, len(merged))
	args := make([]any, 0, len(merged)*2+3)
	for field, value := range merged {
		path, err := fieldPath(field)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode field %s: %w", field, err)
		}
		setArgs = append(setArgs, "?, json(?)")
		args = append(args, path, string(raw))
	}
	args = append(args, ts.UnixNano(), collection, id)

	res, err := s.q.ExecContext(ctx,
		`UPDATE documents SET data = json_set(data, `+strings.Join(setArgs, ", ")+`), updated_at = ?
         WHERE collection = ? AND id = ?`, args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s document: %w", collection, err)
	}
	return expectRow(res, collection, id)
}

func (s *Store) deleteDoc(ctx context.Context, collection, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s document: %w", collection, err)
	}
	return expectRow(res, collection, id)
}

func expectRow(res sql.Result, collection, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return nil
}
