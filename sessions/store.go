package sessions

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	brokererrors "github.com/ledgerops/go-token-broker/internal/errors"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps SQLite persistence for sessions and rate-limit counters.
// WAL mode and a non-zero busy timeout are part of the contract, not
// tuning: concurrent start/callback/poll writers are expected.
type Store struct {
	db      *sql.DB
	nowTime func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// Open opens (and initialises) the session store database at path.
func Open(path string, options ...StoreOption) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("[Open] storage path is required")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, brokererrors.Wrapf(err, "[Open] open sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, brokererrors.Wrapf(err, "[Open] ping sqlite db")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, brokererrors.Wrapf(err, "[Open] apply schema")
	}

	store := &Store{db: db, nowTime: time.Now}
	for _, opt := range options {
		opt(store)
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertSession creates a new session row in the created state.
func (s *Store) InsertSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO auth_session(id, provider, state, code_verifier, realm_id, created_at, expires_at, consumed)
        VALUES(?, ?, ?, ?, ?, ?, ?, 0)
    `, sess.ID, sess.Provider, sess.State, nullable(sess.CodeVerifier), nullable(sess.RealmID),
		sess.CreatedAt.Unix(), sess.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("insert session: %v: %w", err, brokererrors.ErrPersistence)
	}
	return nil
}

// LookupByState finds the most recent non-consumed session for a provider
// and state value. Consumed rows are excluded so a replayed state from an
// already-finished flow can never resolve to a session.
func (s *Store) LookupByState(ctx context.Context, provider, state string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, provider, state, code_verifier, realm_id, created_at, expires_at, ready_at, result_cipher, consumed
          FROM auth_session
         WHERE provider = ? AND state = ? AND consumed = 0
         ORDER BY created_at DESC
         LIMIT 1
    `, provider, state)
	return scanSession(row)
}

// LoadForPoll retrieves a session by id regardless of readiness.
func (s *Store) LoadForPoll(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, provider, state, code_verifier, realm_id, created_at, expires_at, ready_at, result_cipher, consumed
          FROM auth_session
         WHERE id = ?
    `, sessionID)
	return scanSession(row)
}

// MarkReady stores the result payload and flips the session to consumed in
// one conditional update. This is the single serialization point for
// duplicate callback deliveries: exactly one caller sees rows affected,
// any other gets ErrNotFound and must treat the flow as already finished.
func (s *Store) MarkReady(ctx context.Context, sessionID string, payload []byte, realmID *string) error {
	var realm any
	if realmID != nil {
		realm = *realmID
	}
	res, err := s.db.ExecContext(ctx, `
        UPDATE auth_session
           SET ready_at = ?, result_cipher = ?, realm_id = COALESCE(?, realm_id), consumed = 1
         WHERE id = ? AND consumed = 0
    `, s.nowTime().Unix(), payload, realm, sessionID)
	if err != nil {
		return fmt.Errorf("mark ready: %v: %w", err, brokererrors.ErrPersistence)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark ready rows affected: %v: %w", err, brokererrors.ErrPersistence)
	}
	if rows == 0 {
		return fmt.Errorf("mark ready %q: %w", sessionID, brokererrors.ErrNotFound)
	}
	return nil
}

// Delete removes a session row. Deleting an absent row is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_session WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %v: %w", err, brokererrors.ErrPersistence)
	}
	return nil
}

// IncrementRateLimit records one call for key and enforces limit within a
// fixed window. It runs inside a single transaction so concurrent request
// processes cannot lose updates. A limit of zero or less disables the check.
func (s *Store) IncrementRateLimit(ctx context.Context, key string, limit int, window time.Duration) (err error) {
	if limit <= 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rate limit tx: %v: %w", err, brokererrors.ErrPersistence)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.nowTime().Unix()
	windowSeconds := int64(window / time.Second)
	if windowSeconds <= 0 {
		windowSeconds = 1
	}

	var start, count sql.NullInt64
	queryErr := tx.QueryRowContext(ctx, `SELECT window_start, count FROM rate_limit WHERE key = ?`, key).Scan(&start, &count)
	switch {
	case queryErr == sql.ErrNoRows:
		if _, err = tx.ExecContext(ctx, `INSERT INTO rate_limit(key, window_start, count) VALUES(?, ?, 1)`, key, now); err != nil {
			return fmt.Errorf("insert rate limit: %v: %w", err, brokererrors.ErrPersistence)
		}
	case queryErr != nil:
		return fmt.Errorf("query rate limit: %v: %w", queryErr, brokererrors.ErrPersistence)
	default:
		switch {
		case !start.Valid || now-start.Int64 >= windowSeconds:
			if _, err = tx.ExecContext(ctx, `UPDATE rate_limit SET window_start = ?, count = 1 WHERE key = ?`, now, key); err != nil {
				return fmt.Errorf("reset rate limit: %v: %w", err, brokererrors.ErrPersistence)
			}
		case count.Valid && count.Int64 >= int64(limit):
			return fmt.Errorf("rate limit %q: %w", key, brokererrors.ErrRateLimited)
		default:
			if _, err = tx.ExecContext(ctx, `UPDATE rate_limit SET count = count + 1 WHERE key = ?`, key); err != nil {
				return fmt.Errorf("increment rate limit: %v: %w", err, brokererrors.ErrPersistence)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rate limit: %v: %w", err, brokererrors.ErrPersistence)
	}
	return nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var (
		sess     Session
		created  int64
		expires  int64
		ready    sql.NullInt64
		consumed int64
	)
	err := row.Scan(&sess.ID, &sess.Provider, &sess.State, &sess.CodeVerifier, &sess.RealmID,
		&created, &expires, &ready, &sess.Result, &consumed)
	if err == sql.ErrNoRows {
		return nil, brokererrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %v: %w", err, brokererrors.ErrPersistence)
	}
	sess.CreatedAt = time.Unix(created, 0).UTC()
	sess.ExpiresAt = time.Unix(expires, 0).UTC()
	if ready.Valid {
		sess.ReadyAt = sql.NullTime{Time: time.Unix(ready.Int64, 0).UTC(), Valid: true}
	}
	sess.Consumed = consumed != 0
	return &sess, nil
}

func nullable(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}
