package storage

import "github.com/google/uuid"

const (
	// ShortLen is how many ID characters the CLI shows.
	ShortLen = 8
	// MinPrefix is the shortest ID prefix Find matches on.
	MinPrefix = 4
)

// NewID returns a random search ID.
func NewID() string {
	return uuid.NewString()
}

// ShortID returns the display form of id.
func ShortID(id string) string {
	if len(id) > ShortLen {
		return id[:ShortLen]
	}
	return id
}

// IsID reports whether s is a complete search ID.
func IsID(s string) bool {
	return uuid.Validate(s) == nil
}
