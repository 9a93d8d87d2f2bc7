package ports

import (
	"context"

	"synthnet/internal/core/domain"
)

// MailboxRepository is the per-target mailbox for signaling messages
// addressed to clients that are currently offline.
type MailboxRepository interface {
	// Enqueue parks a message for the target. Best-effort: implementations
	// log store failures rather than returning them to the relay path, so
	// the returned error exists for wrappers and tests, and callers may
	// ignore it.
	Enqueue(ctx context.Context, target domain.ClientID, payload []byte) error

	// DrainAndDeliver walks the target's mailbox in enqueue order, calls
	// deliver for each entry, and deletes the entry whether or not
	// delivery succeeded. At-most-once semantics.
	DrainAndDeliver(ctx context.Context, target domain.ClientID, deliver func(payload []byte) error) error
}

// ControllerRepository holds the single active-controller slot.
type ControllerRepository interface {
	// Set records id as the active controller, replacing any previous
	// value (last writer wins).
	Set(ctx context.Context, id domain.ClientID) error

	// Get returns the active controller ID, or "" when none is set.
	Get(ctx context.Context) (domain.ClientID, error)

	// ClearIfOwner clears the slot only if it still names id, guarding
	// a stale disconnect against clobbering a newer registration.
	// Returns true if the slot was cleared.
	ClearIfOwner(ctx context.Context, id domain.ClientID) (bool, error)
}
