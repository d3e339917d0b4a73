package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClockedStore() *MemoryStore {
	s := NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return s
}

func TestMemoryStoreListByOwnerNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newClockedStore()

	first, err := s.Insert(ctx, "alice", "a.png", "Melanoma")
	require.NoError(t, err)
	_, err = s.Insert(ctx, "bob", "b.png", "Dermatofibroma")
	require.NoError(t, err)
	second, err := s.Insert(ctx, "alice", "c.jpg", "Vascular lesion")
	require.NoError(t, err)

	records, err := s.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second, records[0].ID)
	assert.Equal(t, first, records[1].ID)
	assert.Equal(t, "c.jpg", records[0].ImageReference)
	assert.Equal(t, "alice", records[0].OwnerUserID)

	none, err := s.ListByOwner(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStoreEqualTimestampsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	ids := make([]string, 3)
	for i := range ids {
		id, err := s.Insert(ctx, "alice", fmt.Sprintf("%d.png", i), "Melanoma")
		require.NoError(t, err)
		ids[i] = id
	}

	records, err := s.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{records[0].ID, records[1].ID, records[2].ID})
}

func TestMemoryStoreDeleteIfOwnedForbiddenLeavesRecord(t *testing.T) {
	ctx := context.Background()
	s := newClockedStore()
	id, err := s.Insert(ctx, "bob", "b.png", "Melanoma")
	require.NoError(t, err)

	err = s.DeleteIfOwned(ctx, id, "alice")
	assert.ErrorIs(t, err, ErrForbidden)

	records, err := s.ListByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
}

func TestMemoryStoreDeleteIfOwned(t *testing.T) {
	ctx := context.Background()
	s := newClockedStore()
	id, err := s.Insert(ctx, "bob", "b.png", "Melanoma")
	require.NoError(t, err)

	require.NoError(t, s.DeleteIfOwned(ctx, id, "bob"))
	records, err := s.ListByOwner(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.ErrorIs(t, s.DeleteIfOwned(ctx, id, "bob"), ErrNotFound)
	assert.ErrorIs(t, s.DeleteIfOwned(ctx, "missing", "anyone"), ErrNotFound)
}

func TestMemoryStoreFindByID(t *testing.T) {
	ctx := context.Background()
	s := newClockedStore()
	id, err := s.Insert(ctx, "bob", "b.png", "Melanoma")
	require.NoError(t, err)

	rec, err := s.FindByID(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Melanoma", rec.PrimaryLabel)

	_, err = s.FindByID(ctx, id, "alice")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.FindByID(ctx, "missing", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSummarizeByOwner(t *testing.T) {
	ctx := context.Background()
	s := newClockedStore()
	for _, label := range []string{"Melanoma", "Dermatofibroma", "Melanoma", "Actinic keratosis"} {
		_, err := s.Insert(ctx, "alice", "x.png", label)
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, "bob", "y.png", "Melanoma")
	require.NoError(t, err)

	counts, err := s.SummarizeByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []LabelCount{
		{Label: "Melanoma", Count: 2},
		{Label: "Actinic keratosis", Count: 1},
		{Label: "Dermatofibroma", Count: 1},
	}, counts)
}

func TestMemoryStoreConcurrentDeleteSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.Insert(ctx, "alice", "a.png", "Melanoma")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.DeleteIfOwned(ctx, id, "alice") == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()
	_, err := s.Insert(ctx, "alice", "a.png", "Melanoma")
	assert.ErrorIs(t, err, context.Canceled)
}
