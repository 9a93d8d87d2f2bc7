package domain

import (
	"encoding/json"
	"time"
)

// MailboxTTL bounds how long a signaling message waits for an offline
// target. The backing store enforces expiry; nothing polls for it.
const MailboxTTL = 5 * time.Minute

// QueuedMessage is a signaling message parked for a target that had no
// open socket at relay time. Entries are owned by the mailbox store and
// delivered at most once, in enqueue order, when the target registers.
type QueuedMessage struct {
	TargetID  ClientID        `json:"target_id"`
	MessageID string          `json:"message_id"`
	Payload   json.RawMessage `json:"payload"`
	ExpireAt  time.Time       `json:"expire_at"`
}

// Expired reports whether the entry has outlived its TTL at the given time.
func (m *QueuedMessage) Expired(now time.Time) bool {
	return now.After(m.ExpireAt)
}
