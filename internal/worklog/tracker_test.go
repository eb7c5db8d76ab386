package worklog

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/flowforge/internal/config"
	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
	"github.com/flowforge-ai/flowforge/internal/metrics"
	"github.com/flowforge-ai/flowforge/internal/provider"
	"github.com/flowforge-ai/flowforge/internal/store"
)

type fakeTicketProvider struct {
	mu    sync.Mutex
	calls []int64 // seconds per AddWorklog call
	err   error
}

func (f *fakeTicketProvider) ParseWebhook([]byte) (*provider.TicketWebhookEvent, error) {
	return nil, ferrors.ErrNotImplemented
}

func (f *fakeTicketProvider) AddWorklog(_ context.Context, _ string, seconds int64, _ time.Time, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, seconds)
	return f.err
}

func (f *fakeTicketProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSource struct {
	tp  provider.TicketProvider
	err error
}

func (f *fakeSource) TicketProvider(*config.Project) (provider.TicketProvider, error) {
	return f.tp, f.err
}

type fixture struct {
	store   *store.Store
	tracker *Tracker
	ticket  *store.Ticket
	tp      *fakeTicketProvider
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	projects, err := config.ParseProjects([]byte("projects:\n  - id: acme\n    name: Acme\n"))
	require.NoError(t, err)

	ticket, err := st.UpsertTicket(context.Background(), "acme", &provider.TicketWebhookEvent{
		ExternalKey: "ACME-1",
		EventType:   "created",
		Ticket:      provider.TicketFields{Source: "jira", Title: "t"},
	}, time.Now())
	require.NoError(t, err)

	tp := &fakeTicketProvider{}
	tracker := NewTracker(st, &fakeSource{tp: tp}, projects, cfg, metrics.New(), zerolog.Nop())
	return &fixture{store: st, tracker: tracker, ticket: ticket, tp: tp}
}

func (f *fixture) worklogs(t *testing.T) []*store.Worklog {
	t.Helper()
	ws, err := f.store.ListWorklogsByTicket(context.Background(), f.ticket.ID)
	require.NoError(t, err)
	return ws
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.tracker.Run(context.Background(), f.ticket, PhasePlan, "planning", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	ws := f.worklogs(t)
	require.Len(t, ws, 1)
	assert.Equal(t, store.WorklogCompleted, ws[0].Status)
	assert.Equal(t, PhasePlan, ws[0].Phase)
	assert.Equal(t, "flowforge", ws[0].Actor)
	assert.NotNil(t, ws[0].EndedAt)
	assert.Empty(t, ws[0].SyncStatus, "no push without immediate mode")
}

func TestRun_FailurePropagatesOriginalError(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.tracker.Run(context.Background(), f.ticket, PhaseImplement, "", func(ctx context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	ws := f.worklogs(t)
	require.Len(t, ws, 1)
	assert.Equal(t, store.WorklogFailed, ws[0].Status)
}

func TestRun_FailedSpanHasPositiveSeconds(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.tracker.Run(context.Background(), f.ticket, PhasePlan, "", func(ctx context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	ws := f.worklogs(t)
	require.Len(t, ws, 1)
	assert.Equal(t, store.WorklogFailed, ws[0].Status)
	assert.Positive(t, ws[0].Seconds, "even an instant failure counts as elapsed time")
}

func TestElapsedSeconds(t *testing.T) {
	base := time.Now()
	cases := []struct {
		elapsed time.Duration
		want    int64
	}{
		{0, 0},
		{5 * time.Millisecond, 1},
		{499 * time.Millisecond, 1},
		{1400 * time.Millisecond, 1},
		{1600 * time.Millisecond, 2},
		{2 * time.Second, 2},
		{90 * time.Second, 90},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, elapsedSeconds(base, base.Add(tc.elapsed)), "elapsed=%s", tc.elapsed)
	}
}

func TestRun_PanicStillPersists(t *testing.T) {
	f := newFixture(t, Config{})

	assert.Panics(t, func() {
		_ = f.tracker.Run(context.Background(), f.ticket, PhaseTest, "", func(ctx context.Context) error {
			panic("boom")
		})
	})

	ws := f.worklogs(t)
	require.Len(t, ws, 1)
	assert.Equal(t, store.WorklogFailed, ws[0].Status)
}

func TestRun_ImmediatePush(t *testing.T) {
	f := newFixture(t, Config{PushImmediate: true})

	err := f.tracker.Run(context.Background(), f.ticket, PhasePR, "opened pr", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.tp.callCount())

	ws := f.worklogs(t)
	require.Len(t, ws, 1)
	assert.Equal(t, store.SyncSuccess, ws[0].SyncStatus)
	assert.NotNil(t, ws[0].SyncedAt)
}

func TestRun_ImmediatePushFailureIsolated(t *testing.T) {
	f := newFixture(t, Config{PushImmediate: true})
	f.tp.err = ferrors.ErrUnavailable

	err := f.tracker.Run(context.Background(), f.ticket, PhaseReview, "", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err, "push failure must not change the work's outcome")

	ws := f.worklogs(t)
	require.Len(t, ws, 1)
	assert.Equal(t, store.SyncFailed, ws[0].SyncStatus)
	assert.NotEmpty(t, ws[0].SyncError)
	assert.Nil(t, ws[0].SyncedAt)
}

func TestRun_NotImplementedCountsAsSyncFailure(t *testing.T) {
	f := newFixture(t, Config{PushImmediate: true})
	f.tp.err = ferrors.ErrNotImplemented

	err := f.tracker.Run(context.Background(), f.ticket, PhaseContext, "", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	ws := f.worklogs(t)
	require.Len(t, ws, 1)
	assert.Equal(t, store.SyncFailed, ws[0].SyncStatus)
	assert.Contains(t, ws[0].SyncError, "not implemented")
}

func TestRun_NoPushOnFailedWork(t *testing.T) {
	f := newFixture(t, Config{PushImmediate: true})

	_ = f.tracker.Run(context.Background(), f.ticket, PhaseImplement, "", func(ctx context.Context) error {
		return assert.AnError
	})
	assert.Zero(t, f.tp.callCount(), "failed phases are not pushed upstream")
}

func TestAsyncSpan(t *testing.T) {
	f := newFixture(t, Config{})

	h, err := f.tracker.StartAsync(context.Background(), f.ticket, PhaseImplement, "background run")
	require.NoError(t, err)

	ws := f.worklogs(t)
	require.Len(t, ws, 1)
	assert.Equal(t, store.WorklogInProgress, ws[0].Status)
	assert.Nil(t, ws[0].EndedAt)

	require.NoError(t, f.tracker.CompleteAsync(context.Background(), h, false))

	ws = f.worklogs(t)
	assert.Equal(t, store.WorklogCompleted, ws[0].Status)
	assert.NotNil(t, ws[0].EndedAt)
	assert.Positive(t, ws[0].Seconds)
}

func TestAsyncSpan_CompleteTwice(t *testing.T) {
	f := newFixture(t, Config{})

	h, err := f.tracker.StartAsync(context.Background(), f.ticket, PhaseTest, "")
	require.NoError(t, err)
	require.NoError(t, f.tracker.CompleteAsync(context.Background(), h, true))

	err = f.tracker.CompleteAsync(context.Background(), h, false)
	assert.Error(t, err, "terminal transition happens exactly once")

	ws := f.worklogs(t)
	assert.Equal(t, store.WorklogFailed, ws[0].Status, "first terminal status wins")
}

func TestAsyncSpan_ImmediatePushOnComplete(t *testing.T) {
	f := newFixture(t, Config{PushImmediate: true})

	h, err := f.tracker.StartAsync(context.Background(), f.ticket, PhasePlan, "")
	require.NoError(t, err)
	assert.Zero(t, f.tp.callCount())

	require.NoError(t, f.tracker.CompleteAsync(context.Background(), h, false))
	assert.Equal(t, 1, f.tp.callCount())
}

func TestFormatDuration(t *testing.T) {
	cases := map[int64]string{
		0:    "0s",
		45:   "45s",
		60:   "1m",
		90:   "1m 30s",
		3540: "59m",
		3600: "1h",
		3661: "1h 1m",
		7200: "2h",
	}
	for seconds, want := range cases {
		assert.Equal(t, want, FormatDuration(seconds), "seconds=%d", seconds)
	}
}
