package realtime

import (
	"time"

	"pdfgate/cmd/identity/ids"
)

// NewSessionID returns a ULID identifying one feed connection.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id.
func NewEnvelopeID(now time.Time) string {
	id, err := ids.NewULID(now)
	if err != nil {
		return ""
	}
	return id
}
