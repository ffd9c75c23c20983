// Package uuid provides UUID functionality with a focus on UUIDv7
// (time-ordered UUIDs). It wraps github.com/google/uuid and sets version 7
// as the default. Correlation IDs, handles, and session IDs across cardlink
// are all UUIDv7 so they sort by creation time.
package uuid

import (
	"github.com/google/uuid"
)

// UUID represents a UUID, aliased from github.com/google/uuid.UUID
type UUID = uuid.UUID

// Nil is the zero UUID.
var Nil = uuid.Nil

// New returns a new random UUIDv7. Panics if UUID generation fails.
func New() UUID {
	uuidv7, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return uuidv7
}

// NewRandom returns a new random UUIDv7 and any error encountered during generation.
func NewRandom() (UUID, error) {
	return uuid.NewV7()
}

// NewString returns the string form of a new UUIDv7.
func NewString() string {
	return New().String()
}

// Parse parses a UUID string into a UUID value. Returns an error if the
// string is not a valid UUID.
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// MustParse parses a UUID string and panics if the string is not a valid UUID.
func MustParse(s string) UUID {
	return uuid.MustParse(s)
}
