// Package worklog times workflow phases against tickets, persists one
// worklog row per phase execution, and pushes elapsed time to the upstream
// ticket system without ever letting the push affect the tracked work.
package worklog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flowforge-ai/flowforge/internal/config"
	"github.com/flowforge-ai/flowforge/internal/metrics"
	"github.com/flowforge-ai/flowforge/internal/provider"
	"github.com/flowforge-ai/flowforge/internal/store"
)

// Well-known phase tags. The field is an open string; these cover the
// standard pipeline.
const (
	PhasePlan      = "plan"
	PhaseImplement = "implement"
	PhaseTest      = "test"
	PhaseReview    = "review"
	PhasePR        = "pr"
	PhaseRepair    = "repair"
	PhaseContext   = "context"
)

// ProviderSource resolves the ticket provider for a project. Satisfied by
// *provider.Resolver.
type ProviderSource interface {
	TicketProvider(project *config.Project) (provider.TicketProvider, error)
}

// Tracker wraps units of work with timing and worklog accounting.
type Tracker struct {
	store         *store.Store
	providers     ProviderSource
	projects      *config.ProjectSet
	pushImmediate bool
	actor         string
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// Config holds tracker settings.
type Config struct {
	PushImmediate bool
	Actor         string
}

// NewTracker creates a tracker.
func NewTracker(st *store.Store, providers ProviderSource, projects *config.ProjectSet, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Tracker {
	actor := cfg.Actor
	if actor == "" {
		actor = "flowforge"
	}
	return &Tracker{
		store:         st,
		providers:     providers,
		projects:      projects,
		pushImmediate: cfg.PushImmediate,
		actor:         actor,
		metrics:       m,
		logger:        logger.With().Str("component", "worklog").Logger(),
	}
}

// Handle identifies an in-progress async span.
type Handle struct {
	WorklogID string
	TicketID  int64
	startedAt time.Time
}

// Run executes fn as a timed synchronous span. The worklog row is written
// whether fn succeeds, fails, or panics, and fn's outcome propagates
// unchanged afterward. The optional immediate push happens after the row is
// durable and never alters the outcome.
func (t *Tracker) Run(ctx context.Context, ticket *store.Ticket, phase, notes string, fn func(context.Context) error) (err error) {
	started := time.Now()

	defer func() {
		recovered := recover()
		status := store.WorklogCompleted
		if err != nil || recovered != nil {
			status = store.WorklogFailed
		}
		ended := time.Now()
		w := t.persistSpan(ticket, phase, notes, started, ended, status)
		if w != nil && t.pushImmediate && status == store.WorklogCompleted {
			t.push(ctx, ticket, w)
		}
		if recovered != nil {
			panic(recovered)
		}
	}()

	return fn(ctx)
}

// elapsedSeconds rounds the span length to the nearest second. A span that
// took any time at all reports at least one second; failed spans in
// particular must never show up with zero elapsed time.
func elapsedSeconds(started, ended time.Time) int64 {
	d := ended.Sub(started)
	seconds := int64(d.Round(time.Second) / time.Second)
	if seconds == 0 && d > 0 {
		seconds = 1
	}
	return seconds
}

// persistSpan writes a terminal worklog row. Persistence errors are logged,
// not propagated: accounting must never mask or replace the work's outcome.
func (t *Tracker) persistSpan(ticket *store.Ticket, phase, notes string, started, ended time.Time, status string) *store.Worklog {
	seconds := elapsedSeconds(started, ended)
	endedMillis := ended.UnixMilli()
	w := &store.Worklog{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Actor:     t.actor,
		Phase:     phase,
		StartedAt: started.UnixMilli(),
		EndedAt:   &endedMillis,
		Seconds:   seconds,
		Notes:     notes,
		Status:    status,
	}
	if err := t.store.CreateWorklog(context.Background(), w); err != nil {
		t.metrics.RecordError("worklog", "persist")
		t.logger.Error().Err(err).
			Int64("ticket_id", ticket.ID).
			Str("phase", phase).
			Msg("failed to persist worklog")
		return nil
	}
	t.logger.Info().
		Int64("ticket_id", ticket.ID).
		Str("phase", phase).
		Str("status", status).
		Str("elapsed", FormatDuration(seconds)).
		Msg("phase finished")
	return w
}

// StartAsync opens an in-progress span for work that completes in another
// execution context.
func (t *Tracker) StartAsync(ctx context.Context, ticket *store.Ticket, phase, notes string) (*Handle, error) {
	started := time.Now()
	w := &store.Worklog{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Actor:     t.actor,
		Phase:     phase,
		StartedAt: started.UnixMilli(),
		Notes:     notes,
		Status:    store.WorklogInProgress,
	}
	if err := t.store.CreateWorklog(ctx, w); err != nil {
		return nil, fmt.Errorf("starting %s span: %w", phase, err)
	}
	t.metrics.WorklogsOpen.Inc()
	return &Handle{WorklogID: w.ID, TicketID: ticket.ID, startedAt: started}, nil
}

// CompleteAsync stamps the terminal status on an async span. Calling it twice
// for the same handle is an error from the exactly-once transition.
func (t *Tracker) CompleteAsync(ctx context.Context, handle *Handle, failed bool) error {
	status := store.WorklogCompleted
	if failed {
		status = store.WorklogFailed
	}
	ended := time.Now()
	seconds := elapsedSeconds(handle.startedAt, ended)

	if err := t.store.FinishWorklog(ctx, handle.WorklogID, ended, seconds, status); err != nil {
		return fmt.Errorf("completing span %s: %w", handle.WorklogID, err)
	}
	t.metrics.WorklogsOpen.Dec()

	if t.pushImmediate && status == store.WorklogCompleted {
		w, err := t.store.GetWorklog(ctx, handle.WorklogID)
		if err == nil && w != nil {
			if ticket, terr := t.store.GetTicket(ctx, handle.TicketID); terr == nil && ticket != nil {
				t.push(ctx, ticket, w)
			}
		}
	}
	return nil
}

// push forwards one completed worklog upstream. Best effort: the outcome is
// recorded on the row and never propagated.
func (t *Tracker) push(ctx context.Context, ticket *store.Ticket, w *store.Worklog) {
	project := t.projects.Get(ticket.ProjectID)

	err := t.pushOnce(ctx, project, ticket, w)
	if err != nil {
		t.metrics.RecordWorklogSync("failed")
		t.logger.Warn().Err(err).
			Str("worklog_id", w.ID).
			Str("external_key", ticket.ExternalKey).
			Msg("upstream worklog push failed")
		if merr := t.store.MarkWorklogSyncFailed(ctx, w.ID, err.Error()); merr != nil {
			t.logger.Error().Err(merr).Str("worklog_id", w.ID).Msg("failed to record sync failure")
		}
		return
	}

	t.metrics.RecordWorklogSync("success")
	if merr := t.store.MarkWorklogSynced(ctx, w.ID, time.Now()); merr != nil {
		t.logger.Error().Err(merr).Str("worklog_id", w.ID).Msg("failed to record sync success")
	}
}

func (t *Tracker) pushOnce(ctx context.Context, project *config.Project, ticket *store.Ticket, w *store.Worklog) error {
	tp, err := t.providers.TicketProvider(project)
	if err != nil {
		return fmt.Errorf("resolving ticket provider: %w", err)
	}
	started := time.UnixMilli(w.StartedAt)
	notes := w.Notes
	if notes == "" {
		notes = fmt.Sprintf("%s phase (%s)", w.Phase, FormatDuration(w.Seconds))
	}
	return tp.AddWorklog(ctx, ticket.ExternalKey, w.Seconds, started, notes)
}
