package repositories

import (
	"context"
	"fmt"

	"synthnet/internal/core/ports"
	"synthnet/internal/infrastructure/repositories/memory"
	redisrepo "synthnet/internal/infrastructure/repositories/redis"
	"synthnet/pkg/config"

	"go.uber.org/zap"
)

// Stores bundles the relay's backing repositories.
type Stores struct {
	Mailbox    ports.MailboxRepository
	Controller ports.ControllerRepository
	closeFn    func() error
	pingFn     func(ctx context.Context) error
}

// Close releases the backing store connection, if any.
func (s *Stores) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

// HealthCheck verifies the backing store is reachable. In-memory stores
// are always healthy.
func (s *Stores) HealthCheck(ctx context.Context) error {
	if s.pingFn != nil {
		return s.pingFn(ctx)
	}
	return nil
}

// NewStores builds Redis-backed repositories when Redis is enabled, else
// process-local in-memory ones.
func NewStores(cfg *config.Config, logger *zap.SugaredLogger) (*Stores, error) {
	if !cfg.Redis.Enabled {
		logger.Infow("using in-memory stores", "mailbox_ttl", cfg.Mailbox.TTL)
		return &Stores{
			Mailbox:    memory.NewMemoryMailboxRepository(cfg.Mailbox.TTL),
			Controller: memory.NewMemoryControllerRepository(),
		}, nil
	}

	client, err := redisrepo.NewRedisClient(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis stores: %w", err)
	}

	return &Stores{
		Mailbox:    redisrepo.NewRedisMailboxRepository(client, cfg.Mailbox.TTL, logger),
		Controller: redisrepo.NewRedisControllerRepository(client),
		closeFn:    func() error { return redisrepo.CloseRedisClient(client) },
		pingFn:     func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}, nil
}
