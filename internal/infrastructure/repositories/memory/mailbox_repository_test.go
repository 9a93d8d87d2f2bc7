package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"synthnet/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainDeliversInEnqueueOrder(t *testing.T) {
	repo := NewMemoryMailboxRepository(time.Minute)
	ctx := context.Background()
	target := domain.ClientID("synth-1")

	require.NoError(t, repo.Enqueue(ctx, target, []byte("first")))
	require.NoError(t, repo.Enqueue(ctx, target, []byte("second")))
	require.NoError(t, repo.Enqueue(ctx, target, []byte("third")))

	var delivered []string
	err := repo.DrainAndDeliver(ctx, target, func(payload []byte) error {
		delivered = append(delivered, string(payload))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, delivered)
}

func TestDrainIsAtMostOnce(t *testing.T) {
	repo := NewMemoryMailboxRepository(time.Minute)
	ctx := context.Background()
	target := domain.ClientID("synth-1")

	require.NoError(t, repo.Enqueue(ctx, target, []byte("once")))

	deliveries := 0
	drain := func(payload []byte) error {
		deliveries++
		return nil
	}
	require.NoError(t, repo.DrainAndDeliver(ctx, target, drain))
	require.NoError(t, repo.DrainAndDeliver(ctx, target, drain))

	assert.Equal(t, 1, deliveries)
}

func TestDeliveryFailureDropsEntry(t *testing.T) {
	repo := NewMemoryMailboxRepository(time.Minute)
	ctx := context.Background()
	target := domain.ClientID("synth-1")

	require.NoError(t, repo.Enqueue(ctx, target, []byte("doomed")))

	err := repo.DrainAndDeliver(ctx, target, func([]byte) error {
		return errors.New("socket gone")
	})
	require.NoError(t, err)

	assert.Equal(t, 0, repo.Pending(target))
}

func TestExpiredEntriesAreNotDelivered(t *testing.T) {
	repo := NewMemoryMailboxRepository(time.Minute)
	ctx := context.Background()
	target := domain.ClientID("synth-1")

	base := time.Now()
	repo.SetClock(func() time.Time { return base })
	require.NoError(t, repo.Enqueue(ctx, target, []byte("stale")))

	repo.SetClock(func() time.Time { return base.Add(2 * time.Minute) })
	require.NoError(t, repo.Enqueue(ctx, target, []byte("fresh")))

	repo.SetClock(func() time.Time { return base.Add(2*time.Minute + time.Second) })

	var delivered []string
	require.NoError(t, repo.DrainAndDeliver(ctx, target, func(payload []byte) error {
		delivered = append(delivered, string(payload))
		return nil
	}))
	assert.Equal(t, []string{"fresh"}, delivered)
}

func TestMailboxesAreIsolatedPerTarget(t *testing.T) {
	repo := NewMemoryMailboxRepository(time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, "synth-a", []byte("for-a")))
	require.NoError(t, repo.Enqueue(ctx, "synth-b", []byte("for-b")))

	var delivered []string
	require.NoError(t, repo.DrainAndDeliver(ctx, "synth-a", func(payload []byte) error {
		delivered = append(delivered, string(payload))
		return nil
	}))

	assert.Equal(t, []string{"for-a"}, delivered)
	assert.Equal(t, 1, repo.Pending("synth-b"))
}
