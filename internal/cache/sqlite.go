package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"riskai/internal/artifact"
)

// schemaVersion is the latest schema version. Bump when adding migrations.
const schemaVersion = 1

// SQLiteBackend stores records in a single-file SQLite database, one row
// per record, with tags and payload serialized as JSON.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at dir/riskai.db.
// The dir parameter allows tests to use t.TempDir().
func OpenSQLite(dir string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, "riskai.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(dbPath, 0600)

	return &SQLiteBackend{db: db}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS records (
		  item_id      TEXT PRIMARY KEY,
		  kind         TEXT NOT NULL,
		  content_hash TEXT NOT NULL,
		  created_at   INTEGER NOT NULL,
		  last_used    INTEGER NOT NULL,
		  use_count    INTEGER NOT NULL,
		  tags_json    TEXT,
		  payload_json TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_records_kind_hash
		ON records(kind, content_hash);

		CREATE INDEX IF NOT EXISTS idx_records_last_used
		ON records(last_used);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
			return fmt.Errorf("setting user_version: %w", err)
		}
	}

	return nil
}

const recordColumns = "item_id, content_hash, created_at, last_used, use_count, tags_json, payload_json"

func (b *SQLiteBackend) Get(ctx context.Context, itemID string) (*Record, error) {
	row := b.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE item_id = ?", itemID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (b *SQLiteBackend) Upsert(ctx context.Context, rec *Record) error {
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO records (item_id, kind, content_hash, created_at, last_used, use_count, tags_json, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
		  kind = excluded.kind,
		  content_hash = excluded.content_hash,
		  created_at = excluded.created_at,
		  last_used = excluded.last_used,
		  use_count = excluded.use_count,
		  tags_json = excluded.tags_json,
		  payload_json = excluded.payload_json`,
		rec.ItemID, string(rec.Kind()), rec.ContentHash,
		rec.CreatedAt.UnixNano(), rec.LastUsed.UnixNano(), rec.UseCount,
		string(tagsJSON), string(payloadJSON))
	return err
}

func (b *SQLiteBackend) FindByContentHash(ctx context.Context, kind artifact.Kind, contentHash string) ([]*Record, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE kind = ? AND content_hash = ? ORDER BY item_id",
		string(kind), contentHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) DeleteAll(ctx context.Context) (int, error) {
	res, err := b.db.ExecContext(ctx, "DELETE FROM records")
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (b *SQLiteBackend) DeleteLastUsedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx,
		"DELETE FROM records WHERE last_used < ?", cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n)
	return n, err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                 Record
		createdAt, lastUsed int64
		tagsJSON            sql.NullString
		payloadJSON         string
	)
	if err := row.Scan(&rec.ItemID, &rec.ContentHash, &createdAt, &lastUsed,
		&rec.UseCount, &tagsJSON, &payloadJSON); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.LastUsed = time.Unix(0, lastUsed)
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &rec.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return &rec, nil
}
