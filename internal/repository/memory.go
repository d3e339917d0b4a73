package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process record store for development and tests. All
// operations hold one mutex, so each check-then-act sequence is atomic.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
	seq     uint64
	now     func() time.Time
}

type memoryEntry struct {
	record PredictionRecord
	seq    uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Insert(ctx context.Context, ownerUserID, imageReference, primaryLabel string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	rec := PredictionRecord{
		ID:             uuid.NewString(),
		OwnerUserID:    ownerUserID,
		ImageReference: imageReference,
		PrimaryLabel:   primaryLabel,
		CreatedAt:      s.now().UTC(),
	}
	s.records[rec.ID] = memoryEntry{record: rec, seq: s.seq}
	return rec.ID, nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerUserID string) ([]PredictionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	entries := make([]memoryEntry, 0)
	for _, e := range s.records {
		if e.record.OwnerUserID == ownerUserID {
			entries = append(entries, e)
		}
	}
	s.mu.Unlock()

	// Newest first; insertion order breaks equal timestamps.
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.record.CreatedAt.Equal(b.record.CreatedAt) {
			return a.record.CreatedAt.After(b.record.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]PredictionRecord, len(entries))
	for i, e := range entries {
		out[i] = e.record
	}
	return out, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, recordID, requestingUserID string) (*PredictionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := checkOwner(&e.record, requestingUserID); err != nil {
		return nil, err
	}
	rec := e.record
	return &rec, nil
}

func (s *MemoryStore) DeleteIfOwned(ctx context.Context, recordID, requestingUserID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[recordID]
	if !ok {
		return ErrNotFound
	}
	if err := checkOwner(&e.record, requestingUserID); err != nil {
		return err
	}
	delete(s.records, recordID)
	return nil
}

func (s *MemoryStore) SummarizeByOwner(ctx context.Context, ownerUserID string) ([]LabelCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	byLabel := make(map[string]int64)
	for _, e := range s.records {
		if e.record.OwnerUserID == ownerUserID {
			byLabel[e.record.PrimaryLabel]++
		}
	}
	s.mu.Unlock()

	counts := make([]LabelCount, 0, len(byLabel))
	for label, n := range byLabel {
		counts = append(counts, LabelCount{Label: label, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Label < counts[j].Label
	})
	return counts, nil
}
