package worklog

import (
	"context"
	"time"

	"github.com/flowforge-ai/flowforge/internal/retry"
)

const batchLimit = 100

// BatchSync sweeps completed worklogs that never synced upstream and retries
// the push for each. Returns how many newly synced and how many remain.
// Re-running with no new rows pushes nothing: success stamps synced_at, which
// removes the row from the pending predicate.
func (t *Tracker) BatchSync(ctx context.Context) (synced, remaining int, err error) {
	pending, err := t.store.PendingSyncWorklogs(ctx, batchLimit)
	if err != nil {
		return 0, 0, err
	}

	retryCfg := retry.DefaultConfig()
	for _, w := range pending {
		ticket, terr := t.store.GetTicket(ctx, w.TicketID)
		if terr != nil || ticket == nil {
			t.logger.Warn().Str("worklog_id", w.ID).Int64("ticket_id", w.TicketID).Msg("pending worklog has no ticket")
			continue
		}
		project := t.projects.Get(ticket.ProjectID)

		perr := retry.Do(ctx, retryCfg, func(ctx context.Context) error {
			return t.pushOnce(ctx, project, ticket, w)
		})
		if perr != nil {
			t.metrics.RecordWorklogSync("failed")
			if merr := t.store.MarkWorklogSyncFailed(ctx, w.ID, perr.Error()); merr != nil {
				t.logger.Error().Err(merr).Str("worklog_id", w.ID).Msg("failed to record sync failure")
			}
			continue
		}
		if merr := t.store.MarkWorklogSynced(ctx, w.ID, time.Now()); merr != nil {
			t.logger.Error().Err(merr).Str("worklog_id", w.ID).Msg("failed to record sync success")
			continue
		}
		t.metrics.RecordWorklogSync("success")
		synced++
	}

	remaining, err = t.store.CountPendingSync(ctx)
	if err != nil {
		return synced, 0, err
	}
	t.logger.Info().Int("synced", synced).Int("remaining", remaining).Msg("batch sync finished")
	return synced, remaining, nil
}

// RunPeriodicSync runs BatchSync on the interval until ctx is cancelled.
func (t *Tracker) RunPeriodicSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := t.BatchSync(ctx); err != nil {
				t.logger.Error().Err(err).Msg("batch sync failed")
			}
		}
	}
}
