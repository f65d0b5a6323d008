package catalog

import "github.com/google/uuid"

// IDGenerator produces build ids. Implementations must be safe for
// concurrent use.
type IDGenerator interface {
	Generate() (string, error)
}

// UUIDv7Generator generates time-sortable UUIDv7 build ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the UUIDv7 build id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}
