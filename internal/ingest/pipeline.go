package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowforge-ai/flowforge/internal/config"
	"github.com/flowforge-ai/flowforge/internal/dispatch"
	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
	"github.com/flowforge-ai/flowforge/internal/metrics"
	"github.com/flowforge-ai/flowforge/internal/store"
)

// Result is what a successful ingestion reports back to the sender.
type Result struct {
	TicketID    int64  `json:"ticket_id"`
	ExternalKey string `json:"external_key"`
	EventType   string `json:"event_type"`
}

// Pipeline runs a webhook through authenticate → parse → upsert → dispatch.
type Pipeline struct {
	store      *store.Store
	dispatcher dispatch.Dispatcher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewPipeline creates the ingestion pipeline.
func NewPipeline(st *store.Store, d dispatch.Dispatcher, m *metrics.Metrics, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:      st,
		dispatcher: d,
		metrics:    m,
		logger:     logger.With().Str("component", "ingest").Logger(),
	}
}

// Process handles one webhook delivery. Authentication and validation reject
// before any persistence. A dispatch failure after the commit returns both
// the result and an error: the caller reports the failure, the ticket stays.
func (p *Pipeline) Process(ctx context.Context, project *config.Project, adapter Adapter, req *Request) (*Result, error) {
	start := time.Now()
	source := adapter.Source()
	log := p.logger.With().Str("source", source).Str("project", project.ID).Logger()

	if err := adapter.Authenticate(req); err != nil {
		p.metrics.RecordWebhook(source, "auth_rejected")
		log.Warn().Err(err).Msg("webhook rejected")
		return nil, err
	}

	ev, err := adapter.Parse(req)
	if err != nil {
		p.metrics.RecordWebhook(source, "invalid")
		log.Warn().Err(err).Msg("webhook payload invalid")
		return nil, err
	}

	receivedAt := time.Now().UTC()
	ticket, err := p.store.UpsertTicket(ctx, project.ID, ev, receivedAt)
	if err != nil {
		p.metrics.RecordWebhook(source, "persistence_error")
		log.Error().Err(err).Str("external_key", ev.ExternalKey).Msg("ticket upsert failed")
		return nil, fmt.Errorf("persisting ticket %s: %w", ev.ExternalKey, err)
	}

	result := &Result{
		TicketID:    ticket.ID,
		ExternalKey: ev.ExternalKey,
		EventType:   ev.EventType,
	}

	if err := p.dispatcher.Dispatch(dispatch.Event{
		ProjectID:  project.ID,
		TicketID:   ticket.ID,
		ReceivedAt: receivedAt,
		Webhook:    *ev,
	}); err != nil {
		// The ticket is committed; the continuation is retryable on its own.
		p.metrics.RecordWebhook(source, "dispatch_error")
		log.Error().Err(err).Int64("ticket_id", ticket.ID).Msg("post-commit dispatch failed")
		return result, fmt.Errorf("%w: %v", ferrors.ErrDispatchFailed, err)
	}

	p.metrics.RecordWebhook(source, "ok")
	p.metrics.ObserveIngest(source, time.Since(start).Seconds())
	log.Info().
		Int64("ticket_id", ticket.ID).
		Str("external_key", ev.ExternalKey).
		Str("event_type", ev.EventType).
		Msg("webhook ingested")
	return result, nil
}
