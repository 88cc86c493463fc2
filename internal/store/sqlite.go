package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"groupcast/internal/secretbox"
	logx "groupcast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// DB is the SQLite-backed store. Safe for concurrent use; writes are
// single independent inserts, so SQLite's own atomicity is enough.
type DB struct {
	db  *sql.DB
	box *secretbox.Box
	log logx.Logger
}

// Open opens (creating if needed) the database at cfg.Path and runs
// migrations.
func Open(cfg Config, box *secretbox.Box, log logx.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if box == nil {
		return nil, errors.New("store: secretbox is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &DB{db: db, box: box, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *DB) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *DB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddAccount seals all three credential fields and appends a new
// account row. Content is not validated beyond non-emptiness being the
// caller's concern; any strings are accepted.
func (s *DB) AddAccount(ctx context.Context, apiID, apiHash, handle string) (int64, error) {
	encID, err := s.box.Seal(apiID)
	if err != nil {
		return 0, fmt.Errorf("store: seal api id: %w", err)
	}
	encHash, err := s.box.Seal(apiHash)
	if err != nil {
		return 0, fmt.Errorf("store: seal api hash: %w", err)
	}
	encPhone, err := s.box.Seal(handle)
	if err != nil {
		return 0, fmt.Errorf("store: seal handle: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(api_id, api_hash, phone) VALUES(?,?,?)`,
		encID, encHash, encPhone,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert account: %w", err)
	}
	return id, nil
}

// Accounts loads and decrypts all stored accounts.
//
// A row whose ciphertext fails to decrypt is reported as a
// CorruptRecordError in the second return value without failing the
// load; callers decide whether to surface or just log them.
func (s *DB) Accounts(ctx context.Context) ([]Account, []*CorruptRecordError, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, api_id, api_hash, phone FROM accounts ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: query accounts: %w", err)
	}
	defer rows.Close()

	var (
		out     []Account
		corrupt []*CorruptRecordError
	)
	for rows.Next() {
		var (
			id                       int64
			encID, encHash, encPhone string
		)
		if err := rows.Scan(&id, &encID, &encHash, &encPhone); err != nil {
			return nil, nil, fmt.Errorf("store: scan account: %w", err)
		}

		apiID, err := s.box.Open(encID)
		if err == nil {
			var apiHash, phone string
			if apiHash, err = s.box.Open(encHash); err == nil {
				phone, err = s.box.Open(encPhone)
				if err == nil {
					out = append(out, Account{ID: id, APIID: apiID, APIHash: apiHash, Handle: phone})
					continue
				}
			}
		}
		ce := &CorruptRecordError{RecordID: id, Err: err}
		corrupt = append(corrupt, ce)
		s.log.Warn("skipping undecryptable account row", logx.Int64("record_id", id), logx.Err(err))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("store: iterate accounts: %w", err)
	}
	return out, corrupt, nil
}

// RecordSend appends one ledger row. There is no uniqueness constraint:
// the same group may legitimately receive repeat sends across runs.
func (s *DB) RecordSend(ctx context.Context, handle, groupID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages_sent(phone, group_id, message, sent_at) VALUES(?,?,?,?)`,
		handle, groupID, message, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: record send: %w", err)
	}
	return nil
}

// SendCount reports how many ledger rows exist for one handle, or for
// all handles if handle is empty. Used by the status view.
func (s *DB) SendCount(ctx context.Context, handle string) (int64, error) {
	var (
		n   int64
		err error
	)
	if handle == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages_sent`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages_sent WHERE phone = ?`, handle).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("store: count sends: %w", err)
	}
	return n, nil
}

// RecentSends returns the newest ledger rows, most recent first.
func (s *DB) RecentSends(ctx context.Context, limit int) ([]SendRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, group_id, message, sent_at FROM messages_sent ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query sends: %w", err)
	}
	defer rows.Close()

	var out []SendRecord
	for rows.Next() {
		var (
			r  SendRecord
			at string
		)
		if err := rows.Scan(&r.ID, &r.Handle, &r.GroupID, &r.Message, &at); err != nil {
			return nil, fmt.Errorf("store: scan send: %w", err)
		}
		if ts, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			r.SentAt = ts
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate sends: %w", err)
	}
	return out, nil
}
