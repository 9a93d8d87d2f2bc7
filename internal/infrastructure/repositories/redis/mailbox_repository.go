package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"synthnet/internal/core/domain"
	"synthnet/internal/core/ports"
	"synthnet/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMailboxRepository stores queued signaling messages one entry per
// key. Entry IDs are time-prefixed so a sorted key scan drains FIFO, and
// the per-key TTL makes Redis expire undelivered entries without any
// application polling.
type RedisMailboxRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func NewRedisMailboxRepository(client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) ports.MailboxRepository {
	if ttl <= 0 {
		ttl = domain.MailboxTTL
	}
	return &RedisMailboxRepository{
		client: client,
		prefix: "synthnet:mailbox:",
		ttl:    ttl,
		logger: logger,
	}
}

func (r *RedisMailboxRepository) targetPrefix(target domain.ClientID) string {
	return fmt.Sprintf("%s%s:", r.prefix, target)
}

// Enqueue is fire-and-forget at the relay layer: store failures are
// logged and reported only so wrappers can count them.
func (r *RedisMailboxRepository) Enqueue(ctx context.Context, target domain.ClientID, payload []byte) error {
	key := r.targetPrefix(target) + utils.GenerateMailboxKeyID()
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		r.logger.Errorw("failed to enqueue signaling message",
			"target", target,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue message for %s: %w", target, err)
	}
	return nil
}

// DrainAndDeliver walks the target's mailbox in key order, delivering and
// deleting each entry. Entries are deleted whether or not deliver
// succeeded: a dropped socket write loses the message rather than
// requeuing it.
func (r *RedisMailboxRepository) DrainAndDeliver(ctx context.Context, target domain.ClientID, deliver func(payload []byte) error) error {
	match := r.targetPrefix(target) + "*"

	var keys []string
	iter := r.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan mailbox for %s: %w", target, err)
	}

	// SCAN order is unspecified; key IDs are time-prefixed, so sorting
	// restores enqueue order.
	sort.Strings(keys)

	for _, key := range keys {
		payload, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			r.logger.Errorw("failed to read queued message", "key", key, "error", err)
			continue
		}

		if err := deliver(payload); err != nil {
			r.logger.Warnw("queued message delivery failed, dropping",
				"target", target,
				"error", err,
			)
		}

		if err := r.client.Del(ctx, key).Err(); err != nil {
			r.logger.Errorw("failed to delete queued message", "key", key, "error", err)
		}
	}

	return nil
}
