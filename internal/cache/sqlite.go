package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend persists the known-decision cache across restarts, for
// operators who want the startup-replay optimization to survive a daemon
// restart rather than starting cold.
type SQLiteBackend struct {
	db *sql.DB
	mu sync.Mutex

	seenStmt   *sql.Stmt
	recordStmt *sql.Stmt
	forgetStmt *sql.Stmt
}

// NewSQLiteBackend opens (creating if necessary) a SQLite database at
// dbPath and prepares the known-decision schema.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("cache: db path must not be empty")
	}

	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: init schema: %w", err)
	}
	if err := b.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: prepare statements: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS known_decisions (
		ip TEXT NOT NULL,
		kind TEXT NOT NULL,
		origin TEXT NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (ip, kind, origin)
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) prepareStatements() error {
	var err error

	b.seenStmt, err = b.db.Prepare(`SELECT expires_at FROM known_decisions WHERE ip = ? AND kind = ? AND origin = ?`)
	if err != nil {
		return err
	}
	b.recordStmt, err = b.db.Prepare(`
		INSERT INTO known_decisions (ip, kind, origin, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (ip, kind, origin) DO UPDATE SET expires_at = excluded.expires_at
	`)
	if err != nil {
		return err
	}
	b.forgetStmt, err = b.db.Prepare(`DELETE FROM known_decisions WHERE ip = ? AND kind = ? AND origin = ?`)
	return err
}

func (b *SQLiteBackend) Seen(ctx context.Context, key Key) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expiresAtUnix int64
	err := b.seenStmt.QueryRowContext(ctx, key.IP, string(key.Kind), string(key.Origin)).Scan(&expiresAtUnix)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: seen query: %w", err)
	}
	if expiresAtUnix != 0 && time.Now().Unix() > expiresAtUnix {
		return false, nil
	}
	return true, nil
}

func (b *SQLiteBackend) Record(ctx context.Context, key Key, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expiresAtUnix int64
	if !expiresAt.IsZero() {
		expiresAtUnix = expiresAt.Unix()
	}
	_, err := b.recordStmt.ExecContext(ctx, key.IP, string(key.Kind), string(key.Origin), expiresAtUnix)
	if err != nil {
		return fmt.Errorf("cache: record: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Forget(ctx context.Context, key Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.forgetStmt.ExecContext(ctx, key.IP, string(key.Kind), string(key.Origin)); err != nil {
		return fmt.Errorf("cache: forget: %w", err)
	}
	return nil
}

// Prune deletes every entry whose expires_at has passed and reports how
// many rows were removed, for the periodic cache scheduler.
func (b *SQLiteBackend) Prune(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, err := b.db.ExecContext(ctx,
		`DELETE FROM known_decisions WHERE expires_at != 0 AND expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cache: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: prune rows affected: %w", err)
	}
	return int(n), nil
}

func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Close()
}
