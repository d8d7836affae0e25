package lease

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/mocks"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mem    *mocks.MemoryStore
	pool   *Pool
	tenant *domain.Tenant
}

func newFixture(t *testing.T, emails ...string) *fixture {
	t.Helper()
	mem := mocks.NewMemoryStore()
	tenant, err := domain.NewTenant("key-" + uuid.NewString())
	require.NoError(t, err)
	require.NoError(t, mem.Tenants().Create(context.Background(), tenant))
	for _, e := range emails {
		require.NoError(t, mem.Accounts().Add(context.Background(),
			&domain.Account{TenantID: tenant.ID, Email: e, Secret: "pw"}))
	}

	log, _ := logger.NewBufferLogger()
	return &fixture{
		mem:    mem,
		pool:   NewPool(mem.Accounts(), prometheus.NewRegistry(), log),
		tenant: tenant,
	}
}

func (f *fixture) newTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(f.tenant.ID, domain.TaskModeImage)
	require.NoError(t, err)
	require.NoError(t, f.mem.Tasks().Create(context.Background(), task))
	return task
}

func TestAcquire_BindsAccountToTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a@example.com")
	task := f.newTask(t)

	l, err := f.pool.Acquire(context.Background(), f.tenant.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", l.Email())
	assert.Equal(t, "a@example.com", f.mem.Task(task.ID).AccountEmail)
	assert.True(t, f.mem.Account(f.tenant.ID, "a@example.com").Leased)

	n, err := f.pool.Available(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.pool.leases.WithLabelValues(outcomeAcquired)))
}

func TestAcquire_Exhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := f.newTask(t)

	_, err := f.pool.Acquire(context.Background(), f.tenant.ID, task.ID)
	assert.ErrorIs(t, err, ErrNoneAvailable)
	assert.Empty(t, f.mem.Task(task.ID).AccountEmail)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.pool.leases.WithLabelValues(outcomeExhausted)))
}

func TestAcquire_StoreErrorIsNotExhaustion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a@example.com")
	task := f.newTask(t)
	boom := errors.New("connection reset")
	f.mem.Hook = func(op string) error {
		if op == "Lease" {
			return boom
		}
		return nil
	}

	_, err := f.pool.Acquire(context.Background(), f.tenant.ID, task.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoneAvailable)
}

func TestAcquire_ConcurrentSinglePool(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "only@example.com")

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		refused int
	)
	for i := 0; i < callers; i++ {
		task := f.newTask(t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pool.Acquire(context.Background(), f.tenant.ID, task.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
			} else if errors.Is(err, ErrNoneAvailable) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, callers-1, refused)
}

func TestLease_SettlesOnce(t *testing.T) {
	t.Parallel()

	t.Run("release then retain", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "a@example.com")
		l, err := f.pool.Acquire(context.Background(), f.tenant.ID, f.newTask(t).ID)
		require.NoError(t, err)

		require.NoError(t, l.Release(context.Background()))
		require.NoError(t, l.Release(context.Background()))
		l.Retain()

		assert.True(t, l.Settled())
		assert.False(t, f.mem.Account(f.tenant.ID, "a@example.com").Leased)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.pool.leases.WithLabelValues(outcomeReleased)))
		assert.Equal(t, 0.0, testutil.ToFloat64(f.pool.leases.WithLabelValues(outcomeRetained)))
	})

	t.Run("retain then release", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "a@example.com")
		l, err := f.pool.Acquire(context.Background(), f.tenant.ID, f.newTask(t).ID)
		require.NoError(t, err)

		l.Retain()
		require.NoError(t, l.Release(context.Background()))

		assert.True(t, f.mem.Account(f.tenant.ID, "a@example.com").Leased)
	})

	t.Run("failed release stays unsettled", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "a@example.com")
		l, err := f.pool.Acquire(context.Background(), f.tenant.ID, f.newTask(t).ID)
		require.NoError(t, err)

		f.mem.Hook = func(op string) error {
			if op == "Release" {
				return errors.New("db down")
			}
			return nil
		}
		require.Error(t, l.Release(context.Background()))
		assert.False(t, l.Settled())

		f.mem.Hook = nil
		require.NoError(t, l.Release(context.Background()))
		assert.True(t, l.Settled())
	})
}

func TestResume(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a@example.com")
	assert.Nil(t, f.pool.Resume(&domain.Task{TenantID: f.tenant.ID}))

	f.mem.SetLeased(f.tenant.ID, "a@example.com", true)
	l := f.pool.Resume(&domain.Task{TenantID: f.tenant.ID, AccountEmail: "a@example.com"})
	require.NotNil(t, l)
	require.NoError(t, l.Release(context.Background()))
	assert.False(t, f.mem.Account(f.tenant.ID, "a@example.com").Leased)
}

func TestAdd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "dup@example.com")
	res, err := f.pool.Add(context.Background(), f.tenant.ID, []string{
		"new@example.com:pw",
		"dup@example.com:pw",
		"no-colon",
		"",
		"bad-email:pw",
		"other@example.com:pw:extra",
	})
	require.NoError(t, err)
	assert.Equal(t, AddResult{Added: 2, Failed: 3}, res)

	accounts, err := f.pool.List(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
}

func TestRemoveAndReleaseAll(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a@example.com", "b@example.com")
	_, err := f.pool.Acquire(context.Background(), f.tenant.ID, f.newTask(t).ID)
	require.NoError(t, err)
	_, err = f.pool.Acquire(context.Background(), f.tenant.ID, f.newTask(t).ID)
	require.NoError(t, err)

	n, err := f.pool.ReleaseAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, f.pool.Remove(context.Background(), f.tenant.ID, "a@example.com"))
	available, err := f.pool.Available(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, available)
}

func TestAcquire_SkipsExcluded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a@example.com", "b@example.com")
	task := f.newTask(t)

	l, err := f.pool.Acquire(context.Background(), f.tenant.ID, task.ID, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", l.Email())
	require.NoError(t, l.Release(context.Background()))

	_, err = f.pool.Acquire(context.Background(), f.tenant.ID, task.ID, "a@example.com", "b@example.com")
	assert.ErrorIs(t, err, ErrNoneAvailable)
}

func TestTotal_CountsLeasedAccounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a@example.com", "b@example.com")
	task := f.newTask(t)
	_, err := f.pool.Acquire(context.Background(), f.tenant.ID, task.ID)
	require.NoError(t, err)

	total, err := f.pool.Total(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	available, err := f.pool.Available(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, available)
}
