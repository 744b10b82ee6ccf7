// internal/agent/poller.go
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"sessiongate-service/internal/domain/session"
	xerrors "sessiongate-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// DefaultPollInterval balances displacement latency against server load:
// a displaced device finds out within half a minute.
const DefaultPollInterval = 30 * time.Second

// StatusFetcher is what the poller needs from the session service.
type StatusFetcher interface {
	SessionStatus(ctx context.Context, token string) (*session.Status, error)
}

// NotifyFunc receives the single end-of-session notice. It is called at
// most once for the lifetime of a Poller.
type NotifyFunc func(reason session.EndReason, message string)

// Poller watches one session token and raises a notice the moment the
// session goes terminal. A transport failure is inconclusive: the session
// is presumed alive and the next tick tries again.
type Poller struct {
	client   StatusFetcher
	token    string
	interval time.Duration
	notify   NotifyFunc
	logger   *zap.Logger

	poke chan struct{}
	stop chan struct{}

	once     sync.Once
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPoller(client StatusFetcher, token string, interval time.Duration, notify NotifyFunc, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:   client,
		token:    token,
		interval: interval,
		notify:   notify,
		logger:   logger,
		poke:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Start begins the poll loop. Returns immediately; the loop runs until
// Stop is called, the context ends, or the session goes terminal.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Poke requests an immediate check, e.g. when the app regains focus
// after being backgrounded. Coalesces when a poke is already pending.
func (p *Poller) Poke() {
	select {
	case p.poke <- struct{}{}:
	default:
	}
}

// Stop ends the poll loop and waits for it to exit. Safe to call more
// than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
		case <-p.poke:
		}

		if done := p.check(ctx); done {
			return
		}
	}
}

// check returns true when polling should stop.
func (p *Poller) check(ctx context.Context) bool {
	status, err := p.client.SessionStatus(ctx, p.token)
	if errors.Is(err, xerrors.ErrNotFound) {
		// The service does not know this token at all. Treat like a
		// terminal session with no recorded reason.
		p.raise("")
		return true
	}
	if err != nil {
		p.logger.Debug("session poll inconclusive", zap.Error(err))
		return false
	}

	if status.IsActive {
		return false
	}

	p.raise(status.EndedReason)
	return true
}

// raise delivers the end-of-session notice exactly once, no matter how
// many polls observe the terminal state.
func (p *Poller) raise(reason session.EndReason) {
	p.once.Do(func() {
		p.notify(reason, NoticeMessage(reason))
	})
}

// NoticeMessage maps a termination reason to the text shown to the user.
func NoticeMessage(reason session.EndReason) string {
	switch reason {
	case session.EndReasonNewLogin:
		return "Your account was opened on another device, so this session has ended. If this wasn't you, please change your password."
	case session.EndReasonLogout:
		return "You have been logged out."
	default:
		return "Your session has ended. Please log in again."
	}
}
