package certs

import "time"

// Record is the durable result of processing one recipient row. Immutable
// once created; the owning batch only aggregates it.
type Record struct {
	ID        string
	RowIndex  int
	Name      string
	EventName string
	EventDate string
	IssuedAt  time.Time

	// Paths relative to the site root, matching the packaged layout the
	// embedded QR URLs assume.
	ImagePath string
	PagePath  string
}
