package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTicket(t *testing.T, s *Store) int64 {
	t.Helper()
	ticket, err := s.UpsertTicket(context.Background(), "acme", sampleEvent("PLAT-1", "ticket"), time.Now())
	require.NoError(t, err)
	return ticket.ID
}

func newWorklog(ticketID int64, status string) *Worklog {
	return &Worklog{
		ID:        uuid.New().String(),
		TicketID:  ticketID,
		Actor:     "flowforge",
		Phase:     "implement",
		StartedAt: time.Now().UnixMilli(),
		Status:    status,
	}
}

func TestWorklog_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ticketID := createTicket(t, s)

	w := newWorklog(ticketID, WorklogInProgress)
	require.NoError(t, s.CreateWorklog(ctx, w))

	got, err := s.GetWorklog(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, WorklogInProgress, got.Status)
	assert.Nil(t, got.EndedAt)
	assert.Nil(t, got.SyncedAt)
	assert.Empty(t, got.SyncStatus)

	missing, err := s.GetWorklog(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWorklog_FinishOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ticketID := createTicket(t, s)

	w := newWorklog(ticketID, WorklogInProgress)
	require.NoError(t, s.CreateWorklog(ctx, w))

	ended := time.Now().Add(90 * time.Second)
	require.NoError(t, s.FinishWorklog(ctx, w.ID, ended, 90, WorklogCompleted))

	got, err := s.GetWorklog(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, WorklogCompleted, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, ended.UnixMilli(), *got.EndedAt)
	assert.Equal(t, int64(90), got.Seconds)

	// Terminal transition happens exactly once.
	err = s.FinishWorklog(ctx, w.ID, time.Now(), 120, WorklogFailed)
	assert.Error(t, err)

	// Invalid terminal status rejected.
	err = s.FinishWorklog(ctx, w.ID, time.Now(), 10, "paused")
	assert.Error(t, err)
}

func TestWorklog_SyncLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ticketID := createTicket(t, s)

	w := newWorklog(ticketID, WorklogInProgress)
	require.NoError(t, s.CreateWorklog(ctx, w))
	require.NoError(t, s.FinishWorklog(ctx, w.ID, time.Now(), 45, WorklogCompleted))

	// Failed push: recorded, still pending.
	require.NoError(t, s.MarkWorklogSyncFailed(ctx, w.ID, "jira down"))
	got, err := s.GetWorklog(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncFailed, got.SyncStatus)
	assert.Equal(t, "jira down", got.SyncError)
	assert.Nil(t, got.SyncedAt)

	pending, err := s.PendingSyncWorklogs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// Successful push: synced_at stamped, error cleared, no longer pending.
	require.NoError(t, s.MarkWorklogSynced(ctx, w.ID, time.Now()))
	got, err = s.GetWorklog(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncSuccess, got.SyncStatus)
	assert.Empty(t, got.SyncError)
	assert.NotNil(t, got.SyncedAt)

	pending, err = s.PendingSyncWorklogs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err := s.CountPendingSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWorklog_PendingSyncExcludesNonCompleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ticketID := createTicket(t, s)

	inProgress := newWorklog(ticketID, WorklogInProgress)
	require.NoError(t, s.CreateWorklog(ctx, inProgress))

	failed := newWorklog(ticketID, WorklogInProgress)
	require.NoError(t, s.CreateWorklog(ctx, failed))
	require.NoError(t, s.FinishWorklog(ctx, failed.ID, time.Now(), 5, WorklogFailed))

	completed := newWorklog(ticketID, WorklogInProgress)
	require.NoError(t, s.CreateWorklog(ctx, completed))
	require.NoError(t, s.FinishWorklog(ctx, completed.ID, time.Now(), 5, WorklogCompleted))

	pending, err := s.PendingSyncWorklogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, completed.ID, pending[0].ID)
}

func TestWorklog_ListByTicket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ticketID := createTicket(t, s)

	for i := 0; i < 3; i++ {
		w := newWorklog(ticketID, WorklogInProgress)
		w.CreatedAt = time.Now().UnixMilli() + int64(i)
		require.NoError(t, s.CreateWorklog(ctx, w))
	}

	list, err := s.ListWorklogsByTicket(ctx, ticketID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
