package memory

import (
	"context"
	"sync"

	"synthnet/internal/core/domain"
)

// MemoryControllerRepository holds the active-controller slot in process
// memory. Single-instance deployments only; a multi-instance relay needs
// the Redis variant.
type MemoryControllerRepository struct {
	mu     sync.RWMutex
	active domain.ClientID
}

func NewMemoryControllerRepository() *MemoryControllerRepository {
	return &MemoryControllerRepository{}
}

func (r *MemoryControllerRepository) Set(ctx context.Context, id domain.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = id
	return nil
}

func (r *MemoryControllerRepository) Get(ctx context.Context) (domain.ClientID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, nil
}

func (r *MemoryControllerRepository) ClearIfOwner(ctx context.Context, id domain.ClientID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != id {
		return false, nil
	}
	r.active = ""
	return true, nil
}
