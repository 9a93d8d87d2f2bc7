package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// GenerateSynthID generates a client ID for a synth peer
func GenerateSynthID() string {
	return GenerateID("synth")
}

// GenerateControllerID generates a client ID carrying the controller-role
// prefix recognised by the relay's registration handler.
func GenerateControllerID() string {
	return "controller-" + uuid.NewString()
}

// GenerateMailboxKeyID returns a fresh mailbox entry ID whose lexical
// order matches enqueue order, so a key scan drains FIFO. The uuid
// suffix breaks ties between entries queued in the same nanosecond.
func GenerateMailboxKeyID() string {
	return fmt.Sprintf("%020d-%s", time.Now().UnixNano(), uuid.NewString())
}
