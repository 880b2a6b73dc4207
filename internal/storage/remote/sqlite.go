package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a Backend persisted in a SQLite database
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (and migrates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent flushes
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, dbPath: dbPath}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS layouts (
		user_id TEXT NOT NULL,
		layout_id TEXT NOT NULL,
		name TEXT NOT NULL,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, layout_id)
	);

	CREATE TABLE IF NOT EXISTS pointers (
		user_id TEXT PRIMARY KEY,
		active_layout_id TEXT NOT NULL,
		default_layout_id TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_layouts_user ON layouts(user_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Get returns the user's layouts
func (s *SQLiteStore) Get(ctx context.Context, user string) ([]types.Layout, error) {
	layouts, err := s.List(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(layouts) > 0 {
		return layouts, nil
	}
	if _, err := s.GetPointer(ctx, user); err != nil {
		return nil, err
	}
	return layouts, nil
}

// List returns the user's layouts in insertion order
func (s *SQLiteStore) List(ctx context.Context, user string) ([]types.Layout, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM layouts WHERE user_id = ? ORDER BY rowid`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to query layouts: %w", err)
	}
	defer rows.Close()

	layouts := []types.Layout{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan layout: %w", err)
		}
		layout, err := types.DecodeLayout(data)
		if err != nil {
			return nil, err
		}
		layouts = append(layouts, *layout)
	}
	return layouts, rows.Err()
}

// Put upserts a layout unless the stored copy is newer
func (s *SQLiteStore) Put(ctx context.Context, user string, layout types.Layout) error {
	data, err := types.EncodeLayout(&layout)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO layouts (user_id, layout_id, name, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, layout_id) DO UPDATE SET
			name = excluded.name,
			data = excluded.data,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= layouts.updated_at`,
		user, layout.ID, layout.Name, data, layout.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store layout: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStale
	}
	return nil
}

// Delete removes a layout
func (s *SQLiteStore) Delete(ctx context.Context, user, layoutID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM layouts WHERE user_id = ? AND layout_id = ?`, user, layoutID); err != nil {
		return fmt.Errorf("failed to delete layout: %w", err)
	}
	return nil
}

// GetPointer returns the user's pointer
func (s *SQLiteStore) GetPointer(ctx context.Context, user string) (types.Pointer, error) {
	var (
		p       types.Pointer
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT active_layout_id, default_layout_id, updated_at FROM pointers WHERE user_id = ?`, user).
		Scan(&p.ActiveLayoutID, &p.DefaultLayoutID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Pointer{}, ErrNotFound
	}
	if err != nil {
		return types.Pointer{}, fmt.Errorf("failed to query pointer: %w", err)
	}
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return p, nil
}

// PutPointer upserts the pointer unless the stored one is newer
func (s *SQLiteStore) PutPointer(ctx context.Context, user string, pointer types.Pointer) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pointers (user_id, active_layout_id, default_layout_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			active_layout_id = excluded.active_layout_id,
			default_layout_id = excluded.default_layout_id,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= pointers.updated_at`,
		user, pointer.ActiveLayoutID, pointer.DefaultLayoutID, pointer.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store pointer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStale
	}
	return nil
}
