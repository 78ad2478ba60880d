// Package ids generates identifiers for plans and tasks.
package ids

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a millisecond timestamp in the most significant bits, so
// identifiers sort by creation time. Stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the random source fails.
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Or returns g, or UUIDv7 if g is nil.
func Or(g Generator) Generator {
	if g == nil {
		return UUIDv7{}
	}
	return g
}
