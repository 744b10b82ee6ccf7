// internal/service/session/service.go
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"sessiongate-service/internal/domain/device"
	"sessiongate-service/internal/domain/session"
	xerrors "sessiongate-service/internal/pkg/errors"
	devicesvc "sessiongate-service/internal/service/device"

	"go.uber.org/zap"
)

// Store is the authoritative session persistence surface.
type Store interface {
	Create(ctx context.Context, userID int64, deviceID *string, token string) error
	EstablishExclusive(ctx context.Context, userID int64, deviceID *string, token string) ([]string, error)
	GetStatus(ctx context.Context, token string) (*session.Status, error)
	End(ctx context.Context, token string, reason session.EndReason) error
	InvalidateAllExcept(ctx context.Context, userID int64, keepToken string, reason session.EndReason) ([]string, error)
	ListActive(ctx context.Context, userID int64) ([]*session.Session, error)
}

// StatusCache mirrors terminal and active statuses for cheap poll reads.
type StatusCache interface {
	Get(ctx context.Context, token string) (*session.Status, error)
	SetActive(ctx context.Context, token string) error
	SetEnded(ctx context.Context, token string, reason session.EndReason) error
}

// Notifier pushes a displacement event to a still-connected device. The
// liveness poller remains the guaranteed delivery path; this is the fast
// one.
type Notifier interface {
	SessionEnded(token string, reason session.EndReason)
}

// EnforcementPolicy decides whether single-active-session enforcement
// applies to an account with the given roles.
type EnforcementPolicy func(roles []string) bool

// StudentsOnly is the default policy: only student accounts are limited
// to one device at a time.
func StudentsOnly(roles []string) bool {
	for _, r := range roles {
		if r == "student" {
			return true
		}
	}
	return false
}

type Service struct {
	store    Store
	registry *devicesvc.Registry
	cache    StatusCache
	notifier Notifier
	policy   EnforcementPolicy
	logger   *zap.Logger
}

func NewService(
	store Store,
	registry *devicesvc.Registry,
	cache StatusCache,
	notifier Notifier,
	policy EnforcementPolicy,
	logger *zap.Logger,
) *Service {
	if policy == nil {
		policy = StudentsOnly
	}
	return &Service{
		store:    store,
		registry: registry,
		cache:    cache,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
	}
}

// Login establishes a session for an authenticated account. For enforced
// accounts the new session atomically displaces every other one with
// reason new_login; the most recently completed login always wins.
//
// Device bookkeeping is best effort: a registry failure is logged and the
// session proceeds with a null device id. Session creation failure is
// fatal to the login attempt.
func (s *Service) Login(ctx context.Context, userID int64, roles []string, sig device.Signals) (*session.LoginResult, error) {
	result := &session.LoginResult{}

	var deviceID *string
	d, isNew, err := s.registry.Register(ctx, userID, sig)
	if err != nil {
		// Bookkeeping must never lock a user out of their own account.
		s.logger.Error("device registration failed, continuing without device",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	} else {
		deviceID = &d.ID
		result.DeviceID = d.ID
		result.DeviceName = d.DisplayName
		result.IsNewDevice = isNew
		result.IsPrimaryDevice = d.IsPrimary

		if isNew && !d.IsPrimary {
			result.Notices = append(result.Notices, session.Notice{
				Severity: "info",
				Key:      "device.new_device",
				Message:  fmt.Sprintf("New device added to your account: %s", d.DisplayName),
			})
		}
	}

	token, err := newToken()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrSessionUnavailable, err.Error())
	}
	result.SessionToken = token

	if s.policy(roles) {
		displaced, err := s.store.EstablishExclusive(ctx, userID, deviceID, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", xerrors.ErrSessionUnavailable, err)
		}
		s.afterDisplacement(ctx, userID, token, displaced)
	} else {
		// Exempt roles keep their concurrent sessions.
		if err := s.store.Create(ctx, userID, deviceID, token); err != nil {
			return nil, fmt.Errorf("%w: %v", xerrors.ErrSessionUnavailable, err)
		}
		if err := s.cache.SetActive(ctx, token); err != nil {
			s.logger.Warn("failed to cache session status", zap.Error(err))
		}
	}

	s.logger.Info("session established",
		zap.Int64("user_id", userID),
		zap.Bool("enforced", s.policy(roles)),
		zap.Bool("new_device", result.IsNewDevice),
	)

	return result, nil
}

// Status answers the liveness poll for one token. Cache first, database
// on miss; the read-back is written to the cache for the next tick.
func (s *Service) Status(ctx context.Context, token string) (*session.Status, error) {
	if status, err := s.cache.Get(ctx, token); err == nil {
		return status, nil
	}

	status, err := s.store.GetStatus(ctx, token)
	if err != nil {
		return nil, err
	}

	var cacheErr error
	if status.IsActive {
		cacheErr = s.cache.SetActive(ctx, token)
	} else {
		cacheErr = s.cache.SetEnded(ctx, token, status.EndedReason)
	}
	if cacheErr != nil {
		s.logger.Warn("failed to cache session status", zap.Error(cacheErr))
	}

	return status, nil
}

// End terminates one session. Ending an already-terminal session is not
// an error to the caller: the transition happened exactly once and the
// stored reason stands.
func (s *Service) End(ctx context.Context, token string, reason session.EndReason) error {
	if !reason.Valid() {
		return xerrors.ErrInvalidInput
	}

	err := s.store.End(ctx, token, reason)
	if errors.Is(err, xerrors.ErrSessionEnded) {
		return nil
	}
	if err != nil {
		return err
	}

	if cacheErr := s.cache.SetEnded(ctx, token, reason); cacheErr != nil {
		s.logger.Warn("failed to cache session status", zap.Error(cacheErr))
	}
	s.notifier.SessionEnded(token, reason)

	return nil
}

// EndOthers logs the user out of every session except keepToken. Exempt
// accounts use this to clean up from a device they no longer hold.
func (s *Service) EndOthers(ctx context.Context, userID int64, keepToken string) (int, error) {
	displaced, err := s.store.InvalidateAllExcept(ctx, userID, keepToken, session.EndReasonLogout)
	if err != nil {
		return 0, err
	}

	for _, old := range displaced {
		if cacheErr := s.cache.SetEnded(ctx, old, session.EndReasonLogout); cacheErr != nil {
			s.logger.Warn("failed to cache session status", zap.Error(cacheErr))
		}
		s.notifier.SessionEnded(old, session.EndReasonLogout)
	}

	return len(displaced), nil
}

// ActiveSessions lists the account's currently active sessions.
func (s *Service) ActiveSessions(ctx context.Context, userID int64) ([]*session.Session, error) {
	return s.store.ListActive(ctx, userID)
}

// afterDisplacement mirrors the committed state into the cache and pushes
// the displacement to any still-connected losers. Both are best effort:
// the database already holds the truth and the poller will catch up.
func (s *Service) afterDisplacement(ctx context.Context, userID int64, newToken string, displaced []string) {
	if err := s.cache.SetActive(ctx, newToken); err != nil {
		s.logger.Warn("failed to cache session status", zap.Error(err))
	}

	for _, old := range displaced {
		if err := s.cache.SetEnded(ctx, old, session.EndReasonNewLogin); err != nil {
			s.logger.Warn("failed to cache displaced session status",
				zap.String("token_suffix", tokenSuffix(old)),
				zap.Error(err),
			)
		}
		s.notifier.SessionEnded(old, session.EndReasonNewLogin)
	}

	if len(displaced) > 0 {
		s.logger.Info("sessions displaced by new login",
			zap.Int64("user_id", userID),
			zap.Int("count", len(displaced)),
		)
	}
}

// newToken returns an opaque, unguessable session token.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// tokenSuffix keeps full tokens out of the logs.
func tokenSuffix(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[len(token)-6:]
}
