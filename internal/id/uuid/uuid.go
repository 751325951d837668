// Package uuid generates run identities.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator mints UUIDv7 strings. Version 7 ids are time-ordered, so run
// uuids sort by creation time in the postgres mirror and in bucket listings.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a fresh UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
