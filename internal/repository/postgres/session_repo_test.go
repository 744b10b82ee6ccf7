package postgres

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"sessiongate-service/internal/db"
	"sessiongate-service/internal/domain/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a live database and run only when DATABASE_URL is set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	require.NoError(t, db.Migrate(dsn))

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// testUserID returns an id unused by earlier runs against the same
// database.
func testUserID() int64 {
	return time.Now().UnixNano()
}

func cleanupUser(t *testing.T, pool *pgxpool.Pool, userID int64) {
	t.Cleanup(func() {
		ctx := context.Background()
		pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
		pool.Exec(ctx, `DELETE FROM devices WHERE user_id = $1`, userID)
	})
}

func activeTokens(t *testing.T, pool *pgxpool.Pool, userID int64) []string {
	t.Helper()
	rows, err := pool.Query(context.Background(),
		`SELECT session_token FROM sessions WHERE user_id = $1 AND is_active`, userID)
	require.NoError(t, err)
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var tok string
		require.NoError(t, rows.Scan(&tok))
		tokens = append(tokens, tok)
	}
	require.NoError(t, rows.Err())
	return tokens
}

func TestEstablishExclusiveConcurrent(t *testing.T) {
	pool := testPool(t)
	repo := NewSessionRepository(pool)
	userID := testUserID()
	cleanupUser(t, pool, userID)

	const logins = 10
	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("it-%d-%d", userID, i)
			_, err := repo.EstablishExclusive(context.Background(), userID, nil, token)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Exactly one survivor no matter how the logins interleaved, and
	// every loser carries the displacement reason.
	require.Len(t, activeTokens(t, pool, userID), 1)

	var displacedCount int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM sessions
		 WHERE user_id = $1 AND NOT is_active AND ended_reason = $2 AND ended_at IS NOT NULL`,
		userID, string(session.EndReasonNewLogin)).Scan(&displacedCount)
	require.NoError(t, err)
	assert.Equal(t, logins-1, displacedCount)
}

func TestEstablishExclusiveLargeUserID(t *testing.T) {
	pool := testPool(t)
	repo := NewSessionRepository(pool)

	// user_id is BIGINT; ids past the int4 range must lock and insert
	// like any other.
	userID := int64(math.MaxInt32) + testUserID()%1000 + 1
	cleanupUser(t, pool, userID)

	_, err := repo.EstablishExclusive(context.Background(), userID, nil, fmt.Sprintf("it-big-%d-1", userID))
	require.NoError(t, err)

	displaced, err := repo.EstablishExclusive(context.Background(), userID, nil, fmt.Sprintf("it-big-%d-2", userID))
	require.NoError(t, err)
	assert.Len(t, displaced, 1)
	assert.Len(t, activeTokens(t, pool, userID), 1)
}

func TestEndSingleShot(t *testing.T) {
	pool := testPool(t)
	repo := NewSessionRepository(pool)
	userID := testUserID()
	cleanupUser(t, pool, userID)

	token := fmt.Sprintf("it-%d-end", userID)
	require.NoError(t, repo.Create(context.Background(), userID, nil, token))

	require.NoError(t, repo.End(context.Background(), token, session.EndReasonLogout))

	// A late close beacon cannot rewrite the recorded reason.
	err := repo.End(context.Background(), token, session.EndReasonClosed)
	assert.Error(t, err)

	status, err := repo.GetStatus(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, status.IsActive)
	assert.Equal(t, session.EndReasonLogout, status.EndedReason)
}

func TestDeviceUpsertConcurrentFirstLogin(t *testing.T) {
	pool := testPool(t)
	repo := NewDeviceRepository(pool)
	userID := testUserID()
	cleanupUser(t, pool, userID)

	// Racing first logins from different devices: exactly one record may
	// claim is_primary.
	const devices = 5
	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := fmt.Sprintf("fp-%d-%d", userID, i)
			_, _, err := repo.Upsert(context.Background(), userID, fp, "Desktop - Chrome")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var primaries int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM devices WHERE user_id = $1 AND is_primary`, userID).Scan(&primaries)
	require.NoError(t, err)
	assert.Equal(t, 1, primaries)
}
