package reliability

import (
	"context"

	"synthnet/internal/core/domain"
	"synthnet/internal/core/ports"
	"synthnet/pkg/circuitbreaker"
	"synthnet/pkg/retry"

	"go.uber.org/zap"
)

// MailboxWrapper wraps a MailboxRepository with retry and a circuit
// breaker. Store trouble degrades to dropped queue writes; nothing on
// the relay's message path ever sees a store error.
type MailboxWrapper struct {
	repo   ports.MailboxRepository
	logger *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewMailboxWrapper creates a wrapper with retry and circuit breaker
func NewMailboxWrapper(
	repo ports.MailboxRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *MailboxWrapper {
	w := &MailboxWrapper{
		repo:           repo,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	w.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("mailbox circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return w
}

// Enqueue retries transient store failures, then gives up quietly.
func (w *MailboxWrapper) Enqueue(ctx context.Context, target domain.ClientID, payload []byte) error {
	err := w.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, w.retryConfig, func() error {
			return w.repo.Enqueue(ctx, target, payload)
		})
	})
	if err != nil {
		w.logger.Warnw("dropping signaling message, mailbox unavailable",
			"target", target,
			"error", err,
		)
	}
	// Best-effort contract: the caller has nothing useful to do with a
	// store failure mid-relay.
	return nil
}

// DrainAndDeliver is not retried: a partial drain must not redeliver
// entries that were already handed to the socket.
func (w *MailboxWrapper) DrainAndDeliver(ctx context.Context, target domain.ClientID, deliver func(payload []byte) error) error {
	err := w.circuitBreaker.Execute(ctx, func() error {
		return w.repo.DrainAndDeliver(ctx, target, deliver)
	})
	if err != nil {
		w.logger.Warnw("mailbox drain failed",
			"target", target,
			"error", err,
		)
	}
	return nil
}
