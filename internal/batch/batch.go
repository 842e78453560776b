package batch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/certgen-backend/internal/certs"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusComplete       Status = "complete"
	StatusPartialFailure Status = "partial_failure"
	StatusFailed         Status = "failed"
)

// Terminal reports whether no further row outcomes can arrive.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusPartialFailure || s == StatusFailed
}

type RowFailure struct {
	RowIndex int    `json:"row"`
	Reason   string `json:"reason"`
}

// RowArtifact bundles a completed record with the bytes the packager needs.
type RowArtifact struct {
	Record certs.Record
	Image  []byte
	Page   []byte
	Meta   []byte
}

// Batch is one generation run. The orchestrator is its sole mutator; rows
// write into index-addressed slots so parallel completions cannot race.
type Batch struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Total     int
	EventName string
	EventDate string
	BaseURL   string

	mu        sync.RWMutex
	status    Status
	artifacts []*RowArtifact // slot per row, nil until the row succeeds
	failures  []*RowFailure  // slot per row, nil unless the row failed
	done      int
}

func newBatch(eventName, eventDate, baseURL string, total int) *Batch {
	return &Batch{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Total:     total,
		EventName: eventName,
		EventDate: eventDate,
		BaseURL:   baseURL,
		status:    StatusPending,
		artifacts: make([]*RowArtifact, total),
		failures:  make([]*RowFailure, total),
	}
}

func (b *Batch) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

func (b *Batch) completeRow(idx int, a *RowArtifact) {
	b.mu.Lock()
	b.artifacts[idx] = a
	b.done++
	b.mu.Unlock()
}

func (b *Batch) failRow(idx int, reason string) {
	b.mu.Lock()
	b.failures[idx] = &RowFailure{RowIndex: idx, Reason: reason}
	b.done++
	b.mu.Unlock()
}

// finalize derives the terminal state from row outcomes.
func (b *Batch) finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	succeeded, failed := 0, 0
	for i := range b.artifacts {
		switch {
		case b.artifacts[i] != nil:
			succeeded++
		case b.failures[i] != nil:
			failed++
		}
	}
	switch {
	case failed == 0:
		b.status = StatusComplete
	case succeeded == 0:
		b.status = StatusFailed
	default:
		b.status = StatusPartialFailure
	}
}

// Snapshot is a read-only view of a batch at some instant, with records in
// original row order.
type Snapshot struct {
	BatchID   uuid.UUID
	Status    Status
	CreatedAt time.Time
	EventName string
	EventDate string
	BaseURL   string

	Total     int
	Done      int
	Succeeded int
	Failed    int

	Records  []certs.Record
	Failures []RowFailure
}

func (b *Batch) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Snapshot{
		BatchID:   b.ID,
		Status:    b.status,
		CreatedAt: b.CreatedAt,
		EventName: b.EventName,
		EventDate: b.EventDate,
		BaseURL:   b.BaseURL,
		Total:     b.Total,
		Done:      b.done,
	}
	for i := range b.artifacts {
		if a := b.artifacts[i]; a != nil {
			s.Records = append(s.Records, a.Record)
			s.Succeeded++
		}
		if f := b.failures[i]; f != nil {
			s.Failures = append(s.Failures, *f)
			s.Failed++
		}
	}
	return s
}

// ArtifactsInRowOrder returns completed artifacts sorted by original row
// index. The byte slices are shared read-only with the batch.
func (b *Batch) ArtifactsInRowOrder() []RowArtifact {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]RowArtifact, 0, len(b.artifacts))
	for i := range b.artifacts {
		if a := b.artifacts[i]; a != nil {
			out = append(out, *a)
		}
	}
	return out
}
