//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"complyhub/internal/modules/models"
	"complyhub/internal/modules/store"
	"complyhub/internal/platform/postgres"
	"complyhub/pkg/platform/sentinel"
	"complyhub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "module_states", "outbox")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestSaveUpserts() {
	ctx := context.Background()
	st := models.State{Type: models.IncidentManagement, Enabled: true, LastChangedAt: s.now, LastChangedBy: "admin-1"}
	s.Require().NoError(s.store.Save(ctx, st))

	st.Enabled = false
	st.LastChangedBy = "admin-2"
	st.LastChangedAt = s.now.Add(time.Minute)
	s.Require().NoError(s.store.Save(ctx, st))

	got, err := s.store.Find(ctx, models.IncidentManagement)
	s.Require().NoError(err)
	s.False(got.Enabled)
	s.Equal("admin-2", got.LastChangedBy)
	s.True(got.LastChangedAt.Equal(s.now.Add(time.Minute)))

	_, err = s.store.Find(ctx, models.WasteManagement)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSeedMissing() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, models.State{
		Type: models.AuditManagement, Enabled: false, LastChangedAt: s.now, LastChangedBy: "admin-1",
	}))

	seed := []models.State{
		{Type: models.UserManagement, Enabled: true, LastChangedAt: s.now, LastChangedBy: models.ActorSeed},
		{Type: models.AuditManagement, Enabled: true, LastChangedAt: s.now, LastChangedBy: models.ActorSeed},
		{Type: models.WasteManagement, Enabled: false, LastChangedAt: s.now, LastChangedBy: models.ActorSeed},
	}
	n, err := s.store.SeedMissing(ctx, seed)
	s.Require().NoError(err)
	s.Equal(2, n)

	all, err := s.store.LoadAll(ctx)
	s.Require().NoError(err)
	s.Len(all, 3)
	for _, st := range all {
		if st.Type == models.AuditManagement {
			s.False(st.Enabled, "existing row must survive seeding")
			s.Equal("admin-1", st.LastChangedBy)
		}
	}

	n, err = s.store.SeedMissing(ctx, seed)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *PostgresStoreSuite) TestTransactionRollback() {
	ctx := context.Background()
	tx := postgres.NewTransactor(s.postgres.DB, postgres.WithAdvisoryLock(42))

	err := tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Save(ctx, models.State{
			Type: models.TrainingManagement, Enabled: true, LastChangedAt: s.now, LastChangedBy: "admin-1",
		}); err != nil {
			return err
		}
		return sentinel.ErrConflict
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	_, err = s.store.Find(ctx, models.TrainingManagement)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestAdvisoryLockSerializesWriters checks that concurrent read-modify-write
// transactions under the advisory lock never lose an update.
func (s *PostgresStoreSuite) TestAdvisoryLockSerializesWriters() {
	ctx := context.Background()
	tx := postgres.NewTransactor(s.postgres.DB, postgres.WithAdvisoryLock(7))
	s.Require().NoError(s.store.Save(ctx, models.State{
		Type: models.PPEManagement, LastChangedAt: s.now, LastChangedBy: "0",
	}))

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tx.RunInTx(ctx, func(ctx context.Context) error {
				cur, err := s.store.Find(ctx, models.PPEManagement)
				if err != nil {
					return err
				}
				cur.LastChangedBy += "+"
				return s.store.Save(ctx, cur)
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	got, err := s.store.Find(ctx, models.PPEManagement)
	s.Require().NoError(err)
	s.Len(got.LastChangedBy, 1+writers)
}
