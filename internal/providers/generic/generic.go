// Package generic implements the ticket provider contract for trackers that
// speak the generic flowforge webhook shape and have no REST API of their own.
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
	"github.com/flowforge-ai/flowforge/internal/provider"
)

// Payload is the generic webhook shape: a flat event name plus a ticket
// object mirroring the canonical fields.
type Payload struct {
	Event  string `json:"event"`
	Ticket struct {
		Key                string            `json:"key"`
		Title              string            `json:"title"`
		Body               string            `json:"body,omitempty"`
		AcceptanceCriteria string            `json:"acceptance_criteria,omitempty"`
		Labels             []string          `json:"labels,omitempty"`
		Status             string            `json:"status,omitempty"`
		Priority           string            `json:"priority,omitempty"`
		Meta               map[string]string `json:"meta,omitempty"`
	} `json:"ticket"`
}

// Provider is a webhook-only ticket source.
type Provider struct {
	logger zerolog.Logger
}

// New creates a generic ticket provider.
func New(logger zerolog.Logger) *Provider {
	return &Provider{logger: logger.With().Str("component", "generic").Logger()}
}

// ParseWebhook translates a generic payload into the canonical event.
func ParseWebhook(body []byte) (*provider.TicketWebhookEvent, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ferrors.ErrValidation, err)
	}
	if p.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ferrors.ErrValidation)
	}
	if p.Ticket.Key == "" {
		return nil, fmt.Errorf("%w: missing ticket key", ferrors.ErrValidation)
	}

	return &provider.TicketWebhookEvent{
		ExternalKey: p.Ticket.Key,
		EventType:   p.Event,
		Ticket: provider.TicketFields{
			Source:             "generic",
			Title:              p.Ticket.Title,
			Body:               p.Ticket.Body,
			AcceptanceCriteria: p.Ticket.AcceptanceCriteria,
			Labels:             p.Ticket.Labels,
			Status:             p.Ticket.Status,
			Priority:           p.Ticket.Priority,
			Meta:               p.Ticket.Meta,
		},
	}, nil
}

// ParseWebhook implements provider.TicketProvider.
func (p *Provider) ParseWebhook(body []byte) (*provider.TicketWebhookEvent, error) {
	return ParseWebhook(body)
}

// AddWorklog is not supported: generic trackers have no worklog API.
// Callers distinguish this from a failed push via errors.ErrNotImplemented.
func (p *Provider) AddWorklog(_ context.Context, externalKey string, _ int64, _ time.Time, _ string) error {
	p.logger.Debug().Str("key", externalKey).Msg("worklog push skipped: no backend")
	return fmt.Errorf("generic tracker worklog: %w", ferrors.ErrNotImplemented)
}
