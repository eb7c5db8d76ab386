package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowforge-ai/flowforge/internal/provider"
)

// Metadata keys stamped on every webhook-driven update.
const (
	MetaLastWebhookEvent = "last_webhook_event"
	MetaLastWebhookAt    = "last_webhook_at"
)

// Ticket is the canonical internal representation of an external issue.
type Ticket struct {
	ID                 int64
	ProjectID          string
	ExternalKey        string
	Source             string
	Title              string
	Body               string
	AcceptanceCriteria string
	Labels             []string
	Status             string
	Priority           string
	Meta               map[string]string
	CreatedAt          int64
	UpdatedAt          int64
}

// UpsertTicket inserts or updates the ticket keyed by (project_id,
// external_key) in a single transaction. The stored metadata map is merged
// with the event's metadata plus the last-webhook markers; existing keys are
// never dropped. The read-modify-write of meta happens inside the same
// transaction as the write, so concurrent webhooks for the same key cannot
// interleave partial state.
func (s *Store) UpsertTicket(ctx context.Context, projectID string, ev *provider.TicketWebhookEvent, receivedAt time.Time) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var (
		existingID   int64
		existingMeta string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, meta FROM tickets WHERE project_id = ? AND external_key = ?`,
		projectID, ev.ExternalKey,
	).Scan(&existingID, &existingMeta)
	exists := err == nil
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read existing ticket: %w", err)
	}

	meta := make(map[string]string)
	if exists && existingMeta != "" {
		if uerr := json.Unmarshal([]byte(existingMeta), &meta); uerr != nil {
			s.logger.Warn().Err(uerr).Str("external_key", ev.ExternalKey).Msg("resetting unreadable ticket meta")
			meta = make(map[string]string)
		}
	}
	for k, v := range ev.Ticket.Meta {
		meta[k] = v
	}
	meta[MetaLastWebhookEvent] = ev.EventType
	meta[MetaLastWebhookAt] = receivedAt.UTC().Format(time.RFC3339)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	labelsJSON, err := json.Marshal(nonNilLabels(ev.Ticket.Labels))
	if err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}

	now := receivedAt.UnixMilli()
	ticketID := existingID
	if exists {
		_, err = tx.ExecContext(ctx, `
			UPDATE tickets SET
				source = ?, title = ?, body = ?, acceptance_criteria = ?,
				labels = ?, status = ?, priority = ?, meta = ?, updated_at = ?
			WHERE id = ?`,
			ev.Ticket.Source, ev.Ticket.Title, ev.Ticket.Body, ev.Ticket.AcceptanceCriteria,
			string(labelsJSON), ev.Ticket.Status, ev.Ticket.Priority, string(metaJSON), now,
			existingID,
		)
		if err != nil {
			return nil, fmt.Errorf("update ticket: %w", err)
		}
	} else {
		res, ierr := tx.ExecContext(ctx, `
			INSERT INTO tickets (
				project_id, external_key, source, title, body, acceptance_criteria,
				labels, status, priority, meta, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, ev.ExternalKey, ev.Ticket.Source, ev.Ticket.Title, ev.Ticket.Body,
			ev.Ticket.AcceptanceCriteria, string(labelsJSON), ev.Ticket.Status,
			ev.Ticket.Priority, string(metaJSON), now, now,
		)
		if ierr != nil {
			return nil, fmt.Errorf("insert ticket: %w", ierr)
		}
		ticketID, err = res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("ticket id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}

	return &Ticket{
		ID:                 ticketID,
		ProjectID:          projectID,
		ExternalKey:        ev.ExternalKey,
		Source:             ev.Ticket.Source,
		Title:              ev.Ticket.Title,
		Body:               ev.Ticket.Body,
		AcceptanceCriteria: ev.Ticket.AcceptanceCriteria,
		Labels:             nonNilLabels(ev.Ticket.Labels),
		Status:             ev.Ticket.Status,
		Priority:           ev.Ticket.Priority,
		Meta:               meta,
		UpdatedAt:          now,
	}, nil
}

// GetTicket retrieves a ticket by internal id.
func (s *Store) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanTicket(s.db.QueryRowContext(ctx,
		`SELECT id, project_id, external_key, source, title, body, acceptance_criteria,
		        labels, status, priority, meta, created_at, updated_at
		 FROM tickets WHERE id = ?`, id))
}

// GetTicketByKey retrieves a ticket by its (project, external key) identity.
func (s *Store) GetTicketByKey(ctx context.Context, projectID, externalKey string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanTicket(s.db.QueryRowContext(ctx,
		`SELECT id, project_id, external_key, source, title, body, acceptance_criteria,
		        labels, status, priority, meta, created_at, updated_at
		 FROM tickets WHERE project_id = ? AND external_key = ?`, projectID, externalKey))
}

// CountTickets returns the number of tickets for a project.
func (s *Store) CountTickets(ctx context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanTicket(row rowScanner) (*Ticket, error) {
	t := &Ticket{}
	var labelsJSON, metaJSON string
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.ExternalKey, &t.Source, &t.Title, &t.Body,
		&t.AcceptanceCriteria, &labelsJSON, &t.Status, &t.Priority, &metaJSON,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	if labelsJSON != "" {
		if uerr := json.Unmarshal([]byte(labelsJSON), &t.Labels); uerr != nil {
			return nil, fmt.Errorf("decode labels: %w", uerr)
		}
	}
	if metaJSON != "" {
		if uerr := json.Unmarshal([]byte(metaJSON), &t.Meta); uerr != nil {
			return nil, fmt.Errorf("decode meta: %w", uerr)
		}
	}
	return t, nil
}

func nonNilLabels(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}
