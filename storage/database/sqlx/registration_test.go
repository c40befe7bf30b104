package sqlxrepos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/registration"
	"github.com/trezcool/educore/tests"
)

func TestRegistrationRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	repo := NewRegistrationRepository(db)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Microsecond)

	b := testutil.CreateRegistration(t, repo, uuid.New().String(), "Institut Mont-Amba", "montamba", t0.Add(2*time.Minute))
	a := testutil.CreateRegistration(t, repo, uuid.New().String(), "athénée royal", "athenee", t0.Add(time.Minute))
	c := testutil.CreateRegistration(t, repo, uuid.New().String(), "Collège Boboto", "boboto", t0.Add(3*time.Minute))

	t.Run("subdomain uniqueness", func(t *testing.T) {
		assert.True(t, errors.Is(repo.CheckSubdomainUniqueness(ctx, "boboto"), registration.ErrSubdomainTaken))
		assert.NoError(t, repo.CheckSubdomainUniqueness(ctx, "wima"))

		dup := c
		dup.ID = uuid.New().String()
		_, err := repo.CreateRecord(ctx, dup)
		assert.True(t, errors.Is(err, registration.ErrSubdomainTaken))
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetRecord(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a, got)

		_, err = repo.GetRecord(ctx, uuid.New().String())
		assert.True(t, errors.Is(err, registration.ErrNotFound))
		_, err = repo.GetRecord(ctx, "not-a-uuid")
		assert.True(t, errors.Is(err, registration.ErrNotFound))
	})

	t.Run("query pending", func(t *testing.T) {
		got, err := repo.QueryPending(ctx, []core.DBOrdering{{Field: "created_at", Ascending: true}})
		require.NoError(t, err)
		assert.Equal(t, []registration.Record{a, b, c}, got)

		got, err = repo.QueryPending(ctx, []core.DBOrdering{{Field: "name", Ascending: true}})
		require.NoError(t, err)
		assert.Equal(t, []registration.Record{a, c, b}, got)

		_, err = repo.QueryPending(ctx, []core.DBOrdering{{Field: "1; DROP TABLE registration"}})
		assert.Error(t, err)
	})

	t.Run("decide", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		rec, err := repo.DecideRecord(ctx, registration.Decision{
			ID: b.ID, Status: registration.StatusRejected, Reason: "fake", DecidedAt: now, DecidedBy: "op-1",
		})
		require.NoError(t, err)
		assert.Equal(t, registration.StatusRejected, rec.Status)
		assert.Equal(t, "fake", rec.RejectionReason)
		assert.Equal(t, now, *rec.DecidedAt)

		_, err = repo.DecideRecord(ctx, registration.Decision{ID: b.ID, Status: registration.StatusApproved, DecidedAt: now})
		assert.True(t, errors.Is(err, registration.ErrAlreadyDecided))
		_, err = repo.DecideRecord(ctx, registration.Decision{ID: uuid.New().String(), Status: registration.StatusApproved, DecidedAt: now})
		assert.True(t, errors.Is(err, registration.ErrNotFound))

		got, err := repo.QueryPending(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("concurrent decisions", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.DecideRecord(ctx, registration.Decision{
					ID: c.ID, Status: registration.StatusApproved, DecidedAt: time.Now(), DecidedBy: "op-1",
				})
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var ok int
		for err := range results {
			if err == nil {
				ok++
			} else {
				assert.True(t, errors.Is(err, registration.ErrAlreadyDecided))
			}
		}
		assert.Equal(t, 1, ok)
	})
}
