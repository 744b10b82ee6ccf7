// internal/repository/postgres/session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"sessiongate-service/internal/domain/session"
	xerrors "sessiongate-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new active session without displacing anything else.
// Used for accounts exempt from single-session enforcement.
func (r *SessionRepository) Create(ctx context.Context, userID int64, deviceID *string, token string) error {
	query := `
		INSERT INTO sessions (session_token, user_id, device_id, is_active, started_at)
		VALUES ($1, $2, $3, TRUE, NOW())
	`

	if _, err := r.db.Exec(ctx, query, token, userID, deviceID); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// EstablishExclusive atomically creates a new active session and ends every
// other session of the user with reason new_login. The whole unit runs in
// one transaction under a per-user advisory lock, so two racing logins
// serialize and a concurrent status read never observes the user with zero
// active sessions. The insert happens before the bulk invalidation: the new
// session is visible the moment the old ones stop being so.
//
// Returns the tokens that were displaced.
func (r *SessionRepository) EstablishExclusive(ctx context.Context, userID int64, deviceID *string, token string) ([]string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize logins per user. The lock is released at commit/rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(lockNamespaceSessions, userID)); err != nil {
		return nil, fmt.Errorf("failed to take user lock: %w", err)
	}

	insert := `
		INSERT INTO sessions (session_token, user_id, device_id, is_active, started_at)
		VALUES ($1, $2, $3, TRUE, NOW())
	`
	if _, err := tx.Exec(ctx, insert, token, userID, deviceID); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	displace := `
		UPDATE sessions
		SET is_active = FALSE, ended_at = NOW(), ended_reason = $3
		WHERE user_id = $1 AND session_token <> $2 AND is_active
		RETURNING session_token
	`
	rows, err := tx.Query(ctx, displace, userID, token, string(session.EndReasonNewLogin))
	if err != nil {
		return nil, fmt.Errorf("failed to displace sessions: %w", err)
	}

	var displaced []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan displaced token: %w", err)
		}
		displaced = append(displaced, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read displaced tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit session switch: %w", err)
	}

	return displaced, nil
}

// GetStatus is the point read behind the liveness poll.
func (r *SessionRepository) GetStatus(ctx context.Context, token string) (*session.Status, error) {
	query := `
		SELECT is_active, COALESCE(ended_reason, '')
		FROM sessions
		WHERE session_token = $1
	`

	var status session.Status
	var reason string
	err := r.db.QueryRow(ctx, query, token).Scan(&status.IsActive, &reason)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session status: %w", err)
	}

	status.EndedReason = session.EndReason(reason)
	return &status, nil
}

// End terminates one specific session. The is_active guard makes the
// transition single-shot: a session that already ended keeps its original
// reason and timestamp, and End reports ErrSessionEnded.
func (r *SessionRepository) End(ctx context.Context, token string, reason session.EndReason) error {
	query := `
		UPDATE sessions
		SET is_active = FALSE, ended_at = NOW(), ended_reason = $2
		WHERE session_token = $1 AND is_active
	`

	result, err := r.db.Exec(ctx, query, token, string(reason))
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish "never existed" from "already terminal".
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE session_token = $1)`, token).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check session: %w", err)
		}
		if !exists {
			return xerrors.ErrNotFound
		}
		return xerrors.ErrSessionEnded
	}

	return nil
}

// InvalidateAllExcept ends every session of the user except keepToken.
// Returns the displaced tokens.
func (r *SessionRepository) InvalidateAllExcept(ctx context.Context, userID int64, keepToken string, reason session.EndReason) ([]string, error) {
	query := `
		UPDATE sessions
		SET is_active = FALSE, ended_at = NOW(), ended_reason = $3
		WHERE user_id = $1 AND session_token <> $2 AND is_active
		RETURNING session_token
	`

	rows, err := r.db.Query(ctx, query, userID, keepToken, string(reason))
	if err != nil {
		return nil, fmt.Errorf("failed to invalidate sessions: %w", err)
	}
	defer rows.Close()

	var displaced []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan displaced token: %w", err)
		}
		displaced = append(displaced, t)
	}

	return displaced, rows.Err()
}

// ListActive returns the user's currently active sessions.
func (r *SessionRepository) ListActive(ctx context.Context, userID int64) ([]*session.Session, error) {
	query := `
		SELECT session_token, user_id, device_id, is_active, started_at, ended_at, ended_reason
		FROM sessions
		WHERE user_id = $1 AND is_active
		ORDER BY started_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		var s session.Session
		if err := rows.Scan(&s.Token, &s.UserID, &s.DeviceID, &s.IsActive, &s.StartedAt, &s.EndedAt, &s.EndedReason); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}

// Advisory lock namespaces keep session and device locks apart from any
// other advisory lock users in the same database.
const (
	lockNamespaceSessions = int64(7201)
	lockNamespaceDevices  = int64(7202)
)

// advisoryLockKey folds a namespace and user id into the single bigint
// key form of pg_advisory_xact_lock. The two-int4 overload cannot carry
// a BIGINT user_id, so the key is computed here: high word namespace,
// low word the user id's low 32 bits.
func advisoryLockKey(namespace, userID int64) int64 {
	return namespace<<32 | (userID & 0xFFFFFFFF)
}
