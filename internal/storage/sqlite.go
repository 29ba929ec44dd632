// Package storage persists built catalog snapshots in SQLite so restarts can
// skip re-reading and re-embedding unchanged price lists.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a catalog.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRecord is one persisted catalog snapshot. Items holds the catalog
// entries as JSON; Vectors holds the serialized vector index. The two are
// written in one transaction so a stored snapshot is always complete.
type SnapshotRecord struct {
	Catalog   string
	Items     []byte
	Vectors   []byte
	ItemCount int
	BuiltAt   time.Time
}

// SnapshotStore stores catalog snapshots in a SQLite database.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore opens or creates the database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS catalog_snapshots (
		catalog TEXT PRIMARY KEY,
		items BLOB NOT NULL,
		vectors BLOB NOT NULL,
		item_count INTEGER NOT NULL,
		built_at TIMESTAMP NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveSnapshot writes or replaces the snapshot for rec.Catalog in a single
// transaction.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, rec *SnapshotRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO catalog_snapshots (catalog, items, vectors, item_count, built_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(catalog) DO UPDATE SET
		 	items = excluded.items,
		 	vectors = excluded.vectors,
		 	item_count = excluded.item_count,
		 	built_at = excluded.built_at`,
		rec.Catalog, rec.Items, rec.Vectors, rec.ItemCount, rec.BuiltAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", rec.Catalog, err)
	}
	return tx.Commit()
}

// LoadSnapshot returns the stored snapshot for catalog, or
// ErrSnapshotNotFound.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, catalog string) (*SnapshotRecord, error) {
	rec := SnapshotRecord{Catalog: catalog}
	err := s.db.QueryRowContext(ctx,
		`SELECT items, vectors, item_count, built_at
		 FROM catalog_snapshots WHERE catalog = ?`, catalog,
	).Scan(&rec.Items, &rec.Vectors, &rec.ItemCount, &rec.BuiltAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, catalog)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ItemCounts returns the stored item count per catalog.
func (s *SnapshotStore) ItemCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT catalog, item_count FROM catalog_snapshots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var catalog string
		var count int
		if err := rows.Scan(&catalog, &count); err != nil {
			return nil, err
		}
		counts[catalog] = count
	}
	return counts, rows.Err()
}

// DeleteSnapshot removes the stored snapshot for catalog, if any.
func (s *SnapshotStore) DeleteSnapshot(ctx context.Context, catalog string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM catalog_snapshots WHERE catalog = ?`, catalog)
	return err
}

// Close closes the database connection.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
