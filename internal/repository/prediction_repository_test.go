package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/dermscan/internal/logging"
)

func newTestRepository(t *testing.T) *PredictionRepository {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := NewPredictionRepository(db, zap.NewNop())
	repo.policy.InitialBackoff = time.Millisecond
	repo.policy.MaxBackoff = 2 * time.Millisecond

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	require.NoError(t, repo.AutoMigrate(context.Background()))
	return repo
}

func TestPredictionRepositoryListByOwnerNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	first, err := repo.Insert(ctx, "alice", "a.png", "Melanoma")
	require.NoError(t, err)
	_, err = repo.Insert(ctx, "bob", "b.png", "Dermatofibroma")
	require.NoError(t, err)
	second, err := repo.Insert(ctx, "alice", "c.jpg", "Vascular lesion")
	require.NoError(t, err)

	records, err := repo.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second, records[0].ID)
	assert.Equal(t, first, records[1].ID)
	assert.Equal(t, "c.jpg", records[0].ImageReference)
	assert.Equal(t, "Vascular lesion", records[0].PrimaryLabel)

	none, err := repo.ListByOwner(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPredictionRepositoryFindByID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	id, err := repo.Insert(ctx, "alice", "a.png", "Melanoma")
	require.NoError(t, err)

	rec, err := repo.FindByID(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.OwnerUserID)
	assert.Equal(t, "Melanoma", rec.PrimaryLabel)

	_, err = repo.FindByID(ctx, id, "bob")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = repo.FindByID(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	var opErr *logging.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "repository.find_by_id", opErr.Operation)
}

func TestPredictionRepositoryDeleteIfOwned(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	id, err := repo.Insert(ctx, "bob", "b.png", "Dermatofibroma")
	require.NoError(t, err)

	err = repo.DeleteIfOwned(ctx, id, "alice")
	require.ErrorIs(t, err, ErrForbidden)
	var opErr *logging.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "repository.delete_if_owned", opErr.Operation)

	records, err := repo.ListByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, records, 1, "a forbidden delete must leave the record")
	assert.Equal(t, id, records[0].ID)

	require.NoError(t, repo.DeleteIfOwned(ctx, id, "bob"))

	records, err = repo.ListByOwner(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.ErrorIs(t, repo.DeleteIfOwned(ctx, id, "bob"), ErrNotFound)
	assert.ErrorIs(t, repo.DeleteIfOwned(ctx, "missing", "bob"), ErrNotFound)
}

func TestPredictionRepositorySummarizeByOwner(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	for _, label := range []string{"Melanoma", "Dermatofibroma", "Melanoma"} {
		_, err := repo.Insert(ctx, "alice", "x.png", label)
		require.NoError(t, err)
	}
	_, err := repo.Insert(ctx, "bob", "y.png", "Melanoma")
	require.NoError(t, err)

	counts, err := repo.SummarizeByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []LabelCount{
		{Label: "Melanoma", Count: 2},
		{Label: "Dermatofibroma", Count: 1},
	}, counts)
}
