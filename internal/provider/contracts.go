// Package provider defines the capability contracts that swappable backends
// implement, and the registry/resolver that picks a concrete backend per
// project and capability.
package provider

import (
	"context"
	"time"
)

// TicketFields is the provider-agnostic representation of an issue's content.
// Optional sub-fields are zero-valued when the source payload omits them.
type TicketFields struct {
	Source             string            `json:"source"`
	Title              string            `json:"title"`
	Body               string            `json:"body"`
	AcceptanceCriteria string            `json:"acceptance_criteria,omitempty"`
	Labels             []string          `json:"labels,omitempty"`
	Status             string            `json:"status,omitempty"`
	Priority           string            `json:"priority,omitempty"`
	Meta               map[string]string `json:"meta,omitempty"`
}

// TicketWebhookEvent is the canonical event every ingestion adapter produces,
// regardless of which external system sent the webhook.
type TicketWebhookEvent struct {
	ExternalKey string       `json:"external_key"`
	EventType   string       `json:"event_type"`
	Ticket      TicketFields `json:"ticket"`
}

// Plan is the output of a planning engine.
type Plan struct {
	Summary string   `json:"summary"`
	Steps   []string `json:"steps"`
}

// PatchSummary describes the result of an implementation run.
type PatchSummary struct {
	Branch       string `json:"branch"`
	Description  string `json:"description"`
	FilesChanged int    `json:"files_changed"`
}

// ReviewResult is the output of a review engine.
type ReviewResult struct {
	Approved bool     `json:"approved"`
	Comments []string `json:"comments,omitempty"`
}

// RunRequest describes a unit of execution handed to a Runner.
type RunRequest struct {
	Name    string            `json:"name"`
	Command []string          `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
}

// RunResult reports the outcome of a Runner execution.
type RunResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// Notification is a message for a NotificationChannel.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// TicketProvider integrates an external ticket system.
type TicketProvider interface {
	// ParseWebhook translates a provider-specific payload into the canonical event.
	ParseWebhook(body []byte) (*TicketWebhookEvent, error)
	// AddWorklog pushes elapsed time for an issue upstream. Providers without
	// a worklog API return errors.ErrNotImplemented.
	AddWorklog(ctx context.Context, externalKey string, seconds int64, startedAt time.Time, notes string) error
}

// VcsProvider integrates a version-control host.
type VcsProvider interface {
	CreateBranch(ctx context.Context, repo, base, branch string) error
	OpenPullRequest(ctx context.Context, repo, branch, title, body string) (string, error)
	CommentOnPullRequest(ctx context.Context, repo string, number int, comment string) error
}

// Planner produces an implementation plan from a ticket description.
type Planner interface {
	Plan(ctx context.Context, input string) (*Plan, error)
}

// Implementer turns a plan into code changes.
type Implementer interface {
	Implement(ctx context.Context, input string) (*PatchSummary, error)
}

// Reviewer evaluates a proposed change.
type Reviewer interface {
	Review(ctx context.Context, input string) (*ReviewResult, error)
}

// EmbeddingProvider computes vector embeddings for search.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Runner executes a unit of work in some execution environment.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// NotificationChannel delivers a notification to humans.
type NotificationChannel interface {
	Notify(ctx context.Context, n Notification) error
}
