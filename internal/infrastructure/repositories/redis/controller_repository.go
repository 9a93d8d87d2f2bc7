package redis

import (
	"context"
	"fmt"

	"synthnet/internal/core/domain"
	"synthnet/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// clearIfOwnerScript deletes the slot only when it still holds the
// caller's ID. The check and delete must be atomic or a disconnecting
// stale controller could clobber a newer registration.
var clearIfOwnerScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisControllerRepository keeps the active-controller slot in Redis so
// controller identity survives relay restarts and is shared across
// instances.
type RedisControllerRepository struct {
	client *redis.Client
	key    string
}

func NewRedisControllerRepository(client *redis.Client) ports.ControllerRepository {
	return &RedisControllerRepository{
		client: client,
		key:    "synthnet:controller:active",
	}
}

// Set records the controller unconditionally (last writer wins).
func (r *RedisControllerRepository) Set(ctx context.Context, id domain.ClientID) error {
	if err := r.client.Set(ctx, r.key, string(id), 0).Err(); err != nil {
		return fmt.Errorf("failed to set active controller: %w", err)
	}
	return nil
}

func (r *RedisControllerRepository) Get(ctx context.Context) (domain.ClientID, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active controller: %w", err)
	}
	return domain.ClientID(val), nil
}

func (r *RedisControllerRepository) ClearIfOwner(ctx context.Context, id domain.ClientID) (bool, error) {
	res, err := clearIfOwnerScript.Run(ctx, r.client, []string{r.key}, string(id)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to clear active controller: %w", err)
	}
	return res == 1, nil
}
