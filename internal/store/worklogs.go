package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Worklog statuses.
const (
	WorklogInProgress = "in_progress"
	WorklogCompleted  = "completed"
	WorklogFailed     = "failed"
)

// Sync statuses for the upstream push. Empty means no attempt yet.
const (
	SyncSuccess = "success"
	SyncFailed  = "failed"
)

// Worklog records one tracked phase execution against a ticket.
type Worklog struct {
	ID         string
	TicketID   int64
	Actor      string
	Phase      string
	StartedAt  int64 // unix millis
	EndedAt    *int64
	Seconds    int64
	Notes      string
	Status     string
	SyncStatus string
	SyncError  string
	SyncedAt   *int64
	CreatedAt  int64
}

// CreateWorklog inserts a worklog row. The row may be created in_progress
// (async spans) or already terminal (synchronous spans).
func (s *Store) CreateWorklog(ctx context.Context, w *Worklog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.CreatedAt == 0 {
		w.CreatedAt = time.Now().UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worklogs (
			id, ticket_id, actor, phase, started_at, ended_at, seconds,
			notes, status, sync_status, sync_error, synced_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.TicketID, w.Actor, w.Phase, w.StartedAt,
		nullInt64(w.EndedAt), w.Seconds, w.Notes, w.Status,
		nullString(w.SyncStatus), nullString(w.SyncError), nullInt64(w.SyncedAt),
		w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert worklog: %w", err)
	}
	return nil
}

// FinishWorklog transitions an in_progress worklog to a terminal status,
// stamping end time and elapsed seconds. The transition happens at most
// once: finishing an already-terminal row is an error.
func (s *Store) FinishWorklog(ctx context.Context, id string, endedAt time.Time, seconds int64, status string) error {
	if status != WorklogCompleted && status != WorklogFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE worklogs SET ended_at = ?, seconds = ?, status = ?
		WHERE id = ? AND status = ?`,
		endedAt.UnixMilli(), seconds, status, id, WorklogInProgress,
	)
	if err != nil {
		return fmt.Errorf("finish worklog: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish worklog rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("worklog %s is not in progress", id)
	}
	return nil
}

// MarkWorklogSynced records a successful upstream push.
func (s *Store) MarkWorklogSynced(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE worklogs SET sync_status = ?, sync_error = NULL, synced_at = ?
		WHERE id = ?`,
		SyncSuccess, at.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("mark worklog synced: %w", err)
	}
	return nil
}

// MarkWorklogSyncFailed records a failed upstream push. The row stays
// eligible for the batch sync sweep (synced_at remains null).
func (s *Store) MarkWorklogSyncFailed(ctx context.Context, id string, syncErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE worklogs SET sync_status = ?, sync_error = ? WHERE id = ?`,
		SyncFailed, syncErr, id,
	)
	if err != nil {
		return fmt.Errorf("mark worklog sync failed: %w", err)
	}
	return nil
}

// PendingSyncWorklogs returns completed worklogs that have never been
// successfully pushed upstream, oldest first.
func (s *Store) PendingSyncWorklogs(ctx context.Context, limit int) ([]*Worklog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, actor, phase, started_at, ended_at, seconds,
		       notes, status, sync_status, sync_error, synced_at, created_at
		FROM worklogs
		WHERE synced_at IS NULL AND status = ?
		ORDER BY created_at ASC
		LIMIT ?`,
		WorklogCompleted, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending sync: %w", err)
	}
	defer rows.Close()

	var out []*Worklog
	for rows.Next() {
		w, err := scanWorklog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CountPendingSync returns how many completed worklogs still await a
// successful upstream push.
func (s *Store) CountPendingSync(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM worklogs WHERE synced_at IS NULL AND status = ?`,
		WorklogCompleted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending sync: %w", err)
	}
	return n, nil
}

// GetWorklog retrieves a worklog by id, or nil if absent.
func (s *Store) GetWorklog(ctx context.Context, id string) (*Worklog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, ticket_id, actor, phase, started_at, ended_at, seconds,
		       notes, status, sync_status, sync_error, synced_at, created_at
		FROM worklogs WHERE id = ?`, id)
	w, err := scanWorklog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return w, err
}

// ListWorklogsByTicket returns all worklogs for a ticket, oldest first.
func (s *Store) ListWorklogsByTicket(ctx context.Context, ticketID int64) ([]*Worklog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, actor, phase, started_at, ended_at, seconds,
		       notes, status, sync_status, sync_error, synced_at, created_at
		FROM worklogs WHERE ticket_id = ? ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("query worklogs: %w", err)
	}
	defer rows.Close()

	var out []*Worklog
	for rows.Next() {
		w, err := scanWorklog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWorklog(row rowScanner) (*Worklog, error) {
	w := &Worklog{}
	var endedAt, syncedAt sql.NullInt64
	var syncStatus, syncError sql.NullString
	err := row.Scan(
		&w.ID, &w.TicketID, &w.Actor, &w.Phase, &w.StartedAt, &endedAt,
		&w.Seconds, &w.Notes, &w.Status, &syncStatus, &syncError, &syncedAt,
		&w.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan worklog: %w", err)
	}
	if endedAt.Valid {
		w.EndedAt = &endedAt.Int64
	}
	if syncedAt.Valid {
		w.SyncedAt = &syncedAt.Int64
	}
	w.SyncStatus = syncStatus.String
	w.SyncError = syncError.String
	return w, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
