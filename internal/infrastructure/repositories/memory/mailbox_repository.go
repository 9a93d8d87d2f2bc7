package memory

import (
	"context"
	"sync"
	"time"

	"synthnet/internal/core/domain"
	"synthnet/internal/core/ports"
	"synthnet/pkg/utils"
)

var _ ports.MailboxRepository = (*MemoryMailboxRepository)(nil)

// MemoryMailboxRepository is the single-process mailbox used when Redis
// is disabled. Semantics match the Redis variant: FIFO per target,
// at-most-once delivery, TTL enforced by the store (checked on drain).
type MemoryMailboxRepository struct {
	mu    sync.Mutex
	boxes map[domain.ClientID][]*domain.QueuedMessage
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryMailboxRepository(ttl time.Duration) *MemoryMailboxRepository {
	if ttl <= 0 {
		ttl = domain.MailboxTTL
	}
	return &MemoryMailboxRepository{
		boxes: make(map[domain.ClientID][]*domain.QueuedMessage),
		ttl:   ttl,
		now:   time.Now,
	}
}

// SetClock overrides the repository's clock. Tests only.
func (r *MemoryMailboxRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryMailboxRepository) Enqueue(ctx context.Context, target domain.ClientID, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := make([]byte, len(payload))
	copy(buf, payload)

	r.boxes[target] = append(r.boxes[target], &domain.QueuedMessage{
		TargetID:  target,
		MessageID: utils.GenerateMailboxKeyID(),
		Payload:   buf,
		ExpireAt:  r.now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryMailboxRepository) DrainAndDeliver(ctx context.Context, target domain.ClientID, deliver func(payload []byte) error) error {
	r.mu.Lock()
	entries := r.boxes[target]
	delete(r.boxes, target)
	now := r.now()
	r.mu.Unlock()

	for _, entry := range entries {
		if entry.Expired(now) {
			continue
		}
		// Delivery failure drops the entry; it was already removed above.
		_ = deliver(entry.Payload)
	}
	return nil
}

// Pending returns the number of live queued entries for a target.
func (r *MemoryMailboxRepository) Pending(target domain.ClientID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	now := r.now()
	for _, entry := range r.boxes[target] {
		if !entry.Expired(now) {
			n++
		}
	}
	return n
}
