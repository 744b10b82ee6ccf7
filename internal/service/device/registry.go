// internal/service/device/registry.go
package device

import (
	"context"

	"sessiongate-service/internal/domain/device"

	"go.uber.org/zap"
)

// Repository is the persistence surface the registry needs.
type Repository interface {
	Upsert(ctx context.Context, userID int64, fingerprint, displayName string) (*device.Device, bool, error)
	ListByUser(ctx context.Context, userID int64) ([]*device.Device, error)
}

// Registry tracks the devices an account has logged in from.
type Registry struct {
	repo   Repository
	logger *zap.Logger
}

func NewRegistry(repo Repository, logger *zap.Logger) *Registry {
	return &Registry{repo: repo, logger: logger}
}

// Register resolves the client signals and upserts the device record.
// Returns the device and whether this sighting created it.
func (r *Registry) Register(ctx context.Context, userID int64, sig device.Signals) (*device.Device, bool, error) {
	fingerprint, displayName := Resolve(sig)

	d, isNew, err := r.repo.Upsert(ctx, userID, fingerprint, displayName)
	if err != nil {
		return nil, false, err
	}

	if isNew {
		r.logger.Info("device registered",
			zap.Int64("user_id", userID),
			zap.String("device_id", d.ID),
			zap.String("display_name", d.DisplayName),
			zap.Bool("is_primary", d.IsPrimary),
		)
	}

	return d, isNew, nil
}

// ListDevices returns the account's device history.
func (r *Registry) ListDevices(ctx context.Context, userID int64) ([]*device.Device, error) {
	return r.repo.ListByUser(ctx, userID)
}
