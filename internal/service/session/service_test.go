package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"sessiongate-service/internal/domain/device"
	domain "sessiongate-service/internal/domain/session"
	xerrors "sessiongate-service/internal/pkg/errors"
	devicesvc "sessiongate-service/internal/service/device"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- fakes ----

type storedSession struct {
	userID int64
	active bool
	reason domain.EndReason
}

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*storedSession
	failAll  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*storedSession)}
}

func (f *fakeStore) Create(ctx context.Context, userID int64, deviceID *string, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("database unavailable")
	}
	f.sessions[token] = &storedSession{userID: userID, active: true}
	return nil
}

func (f *fakeStore) EstablishExclusive(ctx context.Context, userID int64, deviceID *string, token string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("database unavailable")
	}

	var displaced []string
	for t, s := range f.sessions {
		if s.userID == userID && s.active {
			s.active = false
			s.reason = domain.EndReasonNewLogin
			displaced = append(displaced, t)
		}
	}
	f.sessions[token] = &storedSession{userID: userID, active: true}
	return displaced, nil
}

func (f *fakeStore) GetStatus(ctx context.Context, token string) (*domain.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return &domain.Status{IsActive: s.active, EndedReason: s.reason}, nil
}

func (f *fakeStore) End(ctx context.Context, token string, reason domain.EndReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return xerrors.ErrNotFound
	}
	if !s.active {
		return xerrors.ErrSessionEnded
	}
	s.active = false
	s.reason = reason
	return nil
}

func (f *fakeStore) InvalidateAllExcept(ctx context.Context, userID int64, keepToken string, reason domain.EndReason) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var displaced []string
	for t, s := range f.sessions {
		if s.userID == userID && s.active && t != keepToken {
			s.active = false
			s.reason = reason
			displaced = append(displaced, t)
		}
	}
	return displaced, nil
}

func (f *fakeStore) ListActive(ctx context.Context, userID int64) ([]*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Session
	for t, s := range f.sessions {
		if s.userID == userID && s.active {
			out = append(out, &domain.Session{Token: t, UserID: userID, IsActive: true})
		}
	}
	return out, nil
}

func (f *fakeStore) activeCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.userID == userID && s.active {
			n++
		}
	}
	return n
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*domain.Status
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*domain.Status)}
}

func (f *fakeCache) Get(ctx context.Context, token string) (*domain.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.entries[token]; ok {
		return s, nil
	}
	return nil, errors.New("cache miss")
}

func (f *fakeCache) SetActive(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[token] = &domain.Status{IsActive: true}
	return nil
}

func (f *fakeCache) SetEnded(ctx context.Context, token string, reason domain.EndReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[token] = &domain.Status{IsActive: false, EndedReason: reason}
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events map[string]domain.EndReason
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(map[string]domain.EndReason)}
}

func (f *fakeNotifier) SessionEnded(token string, reason domain.EndReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[token] = reason
}

func (f *fakeNotifier) reasonFor(token string) (domain.EndReason, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.events[token]
	return r, ok
}

type fakeDeviceRepo struct {
	mu      sync.Mutex
	byPrint map[string]*device.Device
	err     error
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{byPrint: make(map[string]*device.Device)}
}

func (f *fakeDeviceRepo) Upsert(ctx context.Context, userID int64, fingerprint, displayName string) (*device.Device, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	if d, ok := f.byPrint[fingerprint]; ok {
		return d, false, nil
	}
	d := &device.Device{
		ID:          fingerprint[:8],
		UserID:      userID,
		Fingerprint: fingerprint,
		DisplayName: displayName,
		IsPrimary:   len(f.byPrint) == 0,
	}
	f.byPrint[fingerprint] = d
	return d, true, nil
}

func (f *fakeDeviceRepo) ListByUser(ctx context.Context, userID int64) ([]*device.Device, error) {
	return nil, nil
}

// ---- helpers ----

func testSignals(platform string) device.Signals {
	return device.Signals{
		ScreenWidth:  1920,
		ScreenHeight: 1080,
		ColorDepth:   24,
		Timezone:     "Europe/Berlin",
		Locale:       "de-DE",
		Platform:     platform,
		UserAgent:    "Mozilla/5.0 Chrome/120.0",
	}
}

func newTestService(store *fakeStore, cache *fakeCache, notifier *fakeNotifier, deviceRepo *fakeDeviceRepo) *Service {
	registry := devicesvc.NewRegistry(deviceRepo, zap.NewNop())
	return NewService(store, registry, cache, notifier, StudentsOnly, zap.NewNop())
}

// ---- tests ----

func TestLoginDisplacesOlderSession(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	notifier := newFakeNotifier()
	svc := newTestService(store, cache, notifier, newFakeDeviceRepo())

	ctx := context.Background()
	roles := []string{"student"}

	first, err := svc.Login(ctx, 1, roles, testSignals("Win32"))
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionToken)
	assert.True(t, first.IsPrimaryDevice)

	second, err := svc.Login(ctx, 1, roles, testSignals("MacIntel"))
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionToken, second.SessionToken)

	// Exactly one active session remains and it is the newest.
	assert.Equal(t, 1, store.activeCount(1))
	status, err := svc.Status(ctx, second.SessionToken)
	require.NoError(t, err)
	assert.True(t, status.IsActive)

	// The displaced session reads terminal with reason new_login.
	status, err = svc.Status(ctx, first.SessionToken)
	require.NoError(t, err)
	assert.False(t, status.IsActive)
	assert.Equal(t, domain.EndReasonNewLogin, status.EndedReason)

	// And the fast path fired for it.
	reason, ok := notifier.reasonFor(first.SessionToken)
	assert.True(t, ok)
	assert.Equal(t, domain.EndReasonNewLogin, reason)
}

func TestLoginExemptRoleKeepsConcurrentSessions(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeCache(), newFakeNotifier(), newFakeDeviceRepo())

	ctx := context.Background()
	roles := []string{"instructor"}

	_, err := svc.Login(ctx, 2, roles, testSignals("Win32"))
	require.NoError(t, err)
	_, err = svc.Login(ctx, 2, roles, testSignals("MacIntel"))
	require.NoError(t, err)

	assert.Equal(t, 2, store.activeCount(2))
}

func TestLoginDeviceFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	deviceRepo := newFakeDeviceRepo()
	deviceRepo.err = errors.New("devices table unavailable")
	svc := newTestService(store, newFakeCache(), newFakeNotifier(), deviceRepo)

	result, err := svc.Login(context.Background(), 3, []string{"student"}, testSignals("Win32"))
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionToken)
	assert.Empty(t, result.DeviceID)
	assert.Equal(t, 1, store.activeCount(3))
}

func TestLoginNewDeviceNotice(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeCache(), newFakeNotifier(), newFakeDeviceRepo())
	ctx := context.Background()
	roles := []string{"student"}

	// First device of the account: no notice.
	first, err := svc.Login(ctx, 4, roles, testSignals("Win32"))
	require.NoError(t, err)
	assert.Empty(t, first.Notices)

	// A second, previously unseen device: one informational notice.
	second, err := svc.Login(ctx, 4, roles, testSignals("MacIntel"))
	require.NoError(t, err)
	require.Len(t, second.Notices, 1)
	assert.Equal(t, "device.new_device", second.Notices[0].Key)
	assert.Contains(t, second.Notices[0].Message, second.DeviceName)

	// The same device again: known, no notice.
	third, err := svc.Login(ctx, 4, roles, testSignals("MacIntel"))
	require.NoError(t, err)
	assert.False(t, third.IsNewDevice)
	assert.Empty(t, third.Notices)
}

func TestLoginStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failAll = true
	svc := newTestService(store, newFakeCache(), newFakeNotifier(), newFakeDeviceRepo())

	_, err := svc.Login(context.Background(), 5, []string{"student"}, testSignals("Win32"))
	assert.ErrorIs(t, err, xerrors.ErrSessionUnavailable)
}

func TestConcurrentLoginsLeaveOneActive(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeCache(), newFakeNotifier(), newFakeDeviceRepo())

	const logins = 20
	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Login(context.Background(), 6, []string{"student"}, testSignals("Win32"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.activeCount(6))
}

func TestStatusCacheMissFallsBackAndWritesBack(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	svc := newTestService(store, cache, newFakeNotifier(), newFakeDeviceRepo())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, 7, nil, "tok-active"))

	status, err := svc.Status(ctx, "tok-active")
	require.NoError(t, err)
	assert.True(t, status.IsActive)

	// The read-back landed in the cache.
	cached, err := cache.Get(ctx, "tok-active")
	require.NoError(t, err)
	assert.True(t, cached.IsActive)
}

func TestStatusUnknownToken(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeCache(), newFakeNotifier(), newFakeDeviceRepo())

	_, err := svc.Status(context.Background(), "never-issued")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestEndIsIdempotent(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	svc := newTestService(store, cache, newFakeNotifier(), newFakeDeviceRepo())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, 8, nil, "tok"))

	require.NoError(t, svc.End(ctx, "tok", domain.EndReasonLogout))

	// A late close beacon after the logout: no error, reason unchanged.
	require.NoError(t, svc.End(ctx, "tok", domain.EndReasonClosed))

	status, err := svc.Status(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, status.IsActive)
	assert.Equal(t, domain.EndReasonLogout, status.EndedReason)
}

func TestEndUnknownToken(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeCache(), newFakeNotifier(), newFakeDeviceRepo())
	err := svc.End(context.Background(), "never-issued", domain.EndReasonLogout)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestEndInvalidReason(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeCache(), newFakeNotifier(), newFakeDeviceRepo())
	err := svc.End(context.Background(), "tok", domain.EndReason("expired"))
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestEndOthersKeepsOnlyNamedSession(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	svc := newTestService(store, newFakeCache(), notifier, newFakeDeviceRepo())
	ctx := context.Background()

	// An exempt account with three concurrent sessions.
	require.NoError(t, store.Create(ctx, 9, nil, "tok-a"))
	require.NoError(t, store.Create(ctx, 9, nil, "tok-b"))
	require.NoError(t, store.Create(ctx, 9, nil, "tok-keep"))

	ended, err := svc.EndOthers(ctx, 9, "tok-keep")
	require.NoError(t, err)
	assert.Equal(t, 2, ended)
	assert.Equal(t, 1, store.activeCount(9))

	reason, ok := notifier.reasonFor("tok-a")
	assert.True(t, ok)
	assert.Equal(t, domain.EndReasonLogout, reason)
}

func TestStudentsOnlyPolicy(t *testing.T) {
	assert.True(t, StudentsOnly([]string{"student"}))
	assert.True(t, StudentsOnly([]string{"forum_moderator", "student"}))
	assert.False(t, StudentsOnly([]string{"instructor"}))
	assert.False(t, StudentsOnly(nil))
}
