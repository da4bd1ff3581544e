// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SessionID string
type MessageID string

// NewSessionID returns a time-ordered (UUIDv7) session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.Must(uuid.NewV7()).String())
}

// NewMessageID returns a time-ordered (UUIDv7) message identifier, so IDs
// created later always sort after IDs created earlier.
func NewMessageID() MessageID {
	return MessageID(uuid.Must(uuid.NewV7()).String())
}
