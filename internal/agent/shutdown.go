// internal/agent/shutdown.go
package agent

import (
	"context"
	"time"

	"sessiongate-service/internal/domain/session"

	"go.uber.org/zap"
)

// SessionEnder reports a session termination to the service.
type SessionEnder interface {
	EndSession(ctx context.Context, token string, reason session.EndReason) error
}

// ShutdownNotifier fires a best-effort "closed" report when the app is
// shutting down. It mirrors a browser beacon: short deadline, no retry,
// failures swallowed. A session whose close report never lands stays
// active until the next login displaces it, which is acceptable.
type ShutdownNotifier struct {
	client  SessionEnder
	timeout time.Duration
	logger  *zap.Logger
}

func NewShutdownNotifier(client SessionEnder, timeout time.Duration, logger *zap.Logger) *ShutdownNotifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ShutdownNotifier{client: client, timeout: timeout, logger: logger}
}

// Notify sends the closed report. Never returns an error: there is
// nothing the caller can do about a failure during shutdown.
func (n *ShutdownNotifier) Notify(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	if err := n.client.EndSession(ctx, token, session.EndReasonClosed); err != nil {
		n.logger.Debug("close report not delivered", zap.Error(err))
	}
}
