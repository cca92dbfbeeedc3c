// Package store journals sessions and decrypted uploads to SQLite.
//
// The dispatcher hands every established session and every decrypted upload
// to the store; the management API reads them back per session fingerprint.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jroosing/dnstp/internal/protocol"
	"github.com/jroosing/dnstp/internal/session"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schema.sql
var schemaSQL string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNotFound is returned for an unknown session fingerprint.
var ErrNotFound = errors.New("store: not found")

// SessionRecord is a journalled session.
type SessionRecord struct {
	Fingerprint string    `json:"fingerprint"`
	ClientID    string    `json:"client_id"`
	Peer        string    `json:"peer"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Upload is a journalled, decrypted upload.
type Upload struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Key         string    `json:"key,omitempty"`
	HasKey      bool      `json:"has_key"`
	Value       string    `json:"value"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Store wraps a SQLite connection.
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens or creates the database at path and applies the schema.
// MemoryPath gives a database that lives as long as the Store.
func Open(ctx context.Context, path string) (*Store, error) {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	var dsn string
	if path == MemoryPath {
		dsn = "file::memory:?" + pragmas
	} else {
		dsn = fmt.Sprintf("file:%s?%s&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path, pragmas)
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == MemoryPath {
		// Every new connection would see its own empty database.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(4)
	}
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn, now: time.Now}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

const upsertSession = `
	INSERT INTO sessions (fingerprint, client_id, peer, first_seen, last_seen)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(fingerprint) DO UPDATE SET
		peer = excluded.peer,
		last_seen = excluded.last_seen
`

// RecordSession journals an established session. A repeated handshake from
// the same client refreshes peer and last_seen and keeps first_seen.
func (s *Store) RecordSession(ctx context.Context, info session.Info) error {
	_, err := s.conn.ExecContext(ctx, upsertSession,
		info.Fingerprint, info.ID, info.Peer.String(),
		info.FirstSeen.UnixMilli(), info.LastSeen.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", info.Fingerprint, err)
	}
	return nil
}

// RecordUpload journals a decrypted upload under a fresh UUID and touches
// its session row.
func (s *Store) RecordUpload(ctx context.Context, info session.Info, up protocol.Upload) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upload tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertSession,
		info.Fingerprint, info.ID, info.Peer.String(),
		info.FirstSeen.UnixMilli(), info.LastSeen.UnixMilli()); err != nil {
		return fmt.Errorf("failed to touch session %s: %w", info.Fingerprint, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO uploads (id, fingerprint, has_key, key, value, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), info.Fingerprint, up.HasKey, up.Key, up.Value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record upload for %s: %w", info.Fingerprint, err)
	}
	return tx.Commit()
}

// GetSession returns the journalled session with the given fingerprint.
func (s *Store) GetSession(ctx context.Context, fingerprint string) (SessionRecord, error) {
	var (
		rec                 SessionRecord
		firstSeen, lastSeen int64
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT fingerprint, client_id, peer, first_seen, last_seen
		FROM sessions WHERE fingerprint = ?
	`, fingerprint).Scan(&rec.Fingerprint, &rec.ClientID, &rec.Peer, &firstSeen, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("failed to get session: %w", err)
	}
	rec.FirstSeen = time.UnixMilli(firstSeen).UTC()
	rec.LastSeen = time.UnixMilli(lastSeen).UTC()
	return rec, nil
}

// ListUploads returns up to limit uploads for a session, newest first.
// A limit <= 0 returns all of them.
func (s *Store) ListUploads(ctx context.Context, fingerprint string, limit int) ([]Upload, error) {
	var q strings.Builder
	q.WriteString(`
		SELECT id, fingerprint, has_key, key, value, received_at
		FROM uploads
		WHERE fingerprint = ?
		ORDER BY received_at DESC, rowid DESC
	`)
	args := []any{fingerprint}
	if limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var (
			u        Upload
			received int64
		)
		if err := rows.Scan(&u.ID, &u.Fingerprint, &u.HasKey, &u.Key, &u.Value, &received); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		u.ReceivedAt = time.UnixMilli(received).UTC()
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}
	return uploads, nil
}

// CountUploads returns the number of uploads journalled for a session, or
// for all sessions when fingerprint is empty.
func (s *Store) CountUploads(ctx context.Context, fingerprint string) (int64, error) {
	query := "SELECT COUNT(*) FROM uploads"
	var args []any
	if fingerprint != "" {
		query += " WHERE fingerprint = ?"
		args = append(args, fingerprint)
	}
	var n int64
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count uploads: %w", err)
	}
	return n, nil
}
