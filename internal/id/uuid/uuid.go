// Package uuid generates time-ordered identifiers for snapshots, jobs, and tasks.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether s parses as a UUID. Route parameters are checked with
// it before they reach the store.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
