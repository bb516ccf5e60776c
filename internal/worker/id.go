package worker

import "github.com/google/uuid"

// IDGenerator generates worker identities recorded in claimed_by.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 worker ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids sort by
// worker start time in the jobs table.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
