package session

import (
	"github.com/google/uuid"
)

// NewID returns a UUIDv7. Its leading bits are a millisecond timestamp, so
// ids sort by creation time as plain strings.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ValidID reports whether id looks like something NewID produced. Browsers
// hand ids back to us, so anything else is treated as unknown.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// ShortID returns the last eight characters, the random tail, for display.
func ShortID(id string) string {
	if len(id) < 8 {
		return id
	}
	return id[len(id)-8:]
}
