package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/repo"
)

type memStore struct {
	mu    sync.Mutex
	items map[string]domain.Schedule
	saves int
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]domain.Schedule)}
}

func (m *memStore) Save(_ context.Context, s *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.Name] = *s
	m.saves++
	return nil
}

func (m *memStore) GetByName(_ context.Context, name string) (*domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[name]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) setEnabled(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.items[name]
	s.Enabled = enabled
	m.items[name] = s
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestCalculateNextDue(t *testing.T) {
	from := time.Date(2024, 3, 10, 1, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		cron     string
		timezone string
		want     time.Time
	}{
		{
			name:     "nightly utc",
			cron:     "0 2 * * *",
			timezone: "UTC",
			want:     time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC),
		},
		{
			name:     "nightly moscow",
			cron:     "0 2 * * *",
			timezone: "Europe/Moscow",
			want:     time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC),
		},
		{
			name:     "every 30 minutes",
			cron:     "*/30 * * * *",
			timezone: "UTC",
			want:     time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC),
		},
		{
			name:     "descriptor",
			cron:     "@hourly",
			timezone: "UTC",
			want:     time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC),
		},
		{
			name:     "bad timezone falls back to utc",
			cron:     "0 2 * * *",
			timezone: "Mars/Olympus",
			want:     time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDue(domain.NewSchedule("s", tt.cron, tt.timezone), from)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(domain.NewSchedule("s", "0 2 * * *", "")))
	assert.ErrorIs(t, Validate(domain.NewSchedule("s", "every night", "UTC")), ErrInvalidCron)
	assert.ErrorIs(t, Validate(domain.NewSchedule("s", "0 2 * * *", "Mars/Olympus")), ErrInvalidTimezone)
}

func TestNew_Validation(t *testing.T) {
	run := func(context.Context) (uuid.UUID, error) { return uuid.New(), nil }

	_, err := New(Config{Run: run})
	assert.Error(t, err)

	_, err = New(Config{Schedule: domain.NewSchedule("s", "bad", "UTC"), Run: run})
	assert.ErrorIs(t, err, ErrInvalidCron)
}

func TestScheduler_Tick(t *testing.T) {
	clk := &clock{now: time.Date(2024, 3, 10, 1, 30, 0, 0, time.UTC)}
	store := newMemStore()

	var runs []uuid.UUID
	s, err := New(Config{
		Schedule: domain.NewSchedule("nightly", "0 2 * * *", "UTC"),
		Store:    store,
		Now:      clk.Now,
		Run: func(context.Context) (uuid.UUID, error) {
			id := uuid.New()
			runs = append(runs, id)
			return id, nil
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NotNil(t, s.Schedule().NextDueAt)

	ran, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "not due yet")

	clk.Set(time.Date(2024, 3, 10, 2, 0, 5, 0, time.UTC))
	ran, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	require.Len(t, runs, 1)

	stored, err := store.GetByName(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Runs)
	assert.Equal(t, runs[0], *stored.LastRunID)
	assert.True(t, time.Date(2024, 3, 11, 2, 0, 0, 0, time.UTC).Equal(*stored.NextDueAt))

	ran, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "next due is tomorrow")
}

func TestScheduler_RunErrorKeepsSchedule(t *testing.T) {
	clk := &clock{now: time.Date(2024, 3, 10, 1, 59, 0, 0, time.UTC)}
	s, err := New(Config{
		Schedule: domain.NewSchedule("nightly", "0 2 * * *", "UTC"),
		Now:      clk.Now,
		Run: func(context.Context) (uuid.UUID, error) {
			return uuid.New(), errors.New("stage failed")
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	clk.Set(time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC))
	ran, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, s.Schedule().Runs)
	assert.True(t, s.Schedule().Enabled)
}

func TestScheduler_DisabledInStore(t *testing.T) {
	clk := &clock{now: time.Date(2024, 3, 10, 1, 59, 0, 0, time.UTC)}
	store := newMemStore()
	calls := 0

	s, err := New(Config{
		Schedule: domain.NewSchedule("nightly", "0 2 * * *", "UTC"),
		Store:    store,
		Now:      clk.Now,
		Run: func(context.Context) (uuid.UUID, error) {
			calls++
			return uuid.New(), nil
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	store.setEnabled("nightly", false)

	clk.Set(time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC))
	ran, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, calls)

	store.setEnabled("nightly", true)
	ran, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, calls)
}

func TestScheduler_StartRestoresCounters(t *testing.T) {
	store := newMemStore()
	prev := domain.NewSchedule("nightly", "0 2 * * *", "UTC")
	prev.Runs = 7
	prev.Enabled = false
	require.NoError(t, store.Save(context.Background(), prev))

	s, err := New(Config{
		Schedule: domain.NewSchedule("nightly", "0 3 * * *", "UTC"),
		Store:    store,
		Run:      func(context.Context) (uuid.UUID, error) { return uuid.New(), nil },
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, prev.ID, s.Schedule().ID)
	assert.Equal(t, 7, s.Schedule().Runs)
	assert.True(t, s.Schedule().Enabled)
	assert.Equal(t, "0 3 * * *", s.Schedule().CronExpr)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s, err := New(Config{
		Schedule: domain.NewSchedule("s", "@every 1s", "UTC"),
		Run:      func(context.Context) (uuid.UUID, error) { return uuid.New(), nil },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, s.Schedule().Runs, 2)
}
