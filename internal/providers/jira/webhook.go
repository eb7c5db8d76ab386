package jira

import (
	"encoding/json"
	"fmt"
	"strings"

	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
	"github.com/flowforge-ai/flowforge/internal/provider"
)

// WebhookEvent is the top-level shape of a Jira webhook payload.
type WebhookEvent struct {
	WebhookEvent string `json:"webhookEvent"`
	IssueEvent   string `json:"issue_event_type_name,omitempty"`
	Issue        *Issue `json:"issue,omitempty"`
	User         *User  `json:"user,omitempty"`
	Comment      *struct {
		Body string `json:"body"`
	} `json:"comment,omitempty"`
}

// Issue represents a Jira issue.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains Jira issue field data. Optional sub-fields are
// pointers so absent payload keys stay absent rather than erroring.
type IssueFields struct {
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Assignee    *User      `json:"assignee,omitempty"`
	Reporter    *User      `json:"reporter,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	IssueType   *IssueType `json:"issuetype,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
}

type Status struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

type User struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"emailAddress,omitempty"`
}

type Priority struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

type IssueType struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

const acceptanceHeading = "## Acceptance Criteria"

// ParseWebhook translates a Jira webhook payload into the canonical event.
// Structural problems (not JSON, no event type, no issue key) are validation
// failures; missing optional fields are simply absent.
func ParseWebhook(body []byte) (*provider.TicketWebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ferrors.ErrValidation, err)
	}
	if ev.WebhookEvent == "" {
		return nil, fmt.Errorf("%w: missing webhookEvent", ferrors.ErrValidation)
	}
	if ev.Issue == nil || ev.Issue.Key == "" {
		return nil, fmt.Errorf("%w: missing issue key", ferrors.ErrValidation)
	}

	fields := ev.Issue.Fields
	body_, acceptance := splitAcceptance(fields.Description)

	meta := map[string]string{}
	if fields.Assignee != nil {
		meta["assignee"] = fields.Assignee.DisplayName
	}
	if fields.Reporter != nil {
		meta["reporter"] = fields.Reporter.DisplayName
	}
	if fields.IssueType != nil {
		meta["issue_type"] = fields.IssueType.Name
	}
	if ev.Comment != nil && ev.Comment.Body != "" {
		meta["last_comment"] = ev.Comment.Body
	}

	canonical := &provider.TicketWebhookEvent{
		ExternalKey: ev.Issue.Key,
		EventType:   ev.WebhookEvent,
		Ticket: provider.TicketFields{
			Source:             "jira",
			Title:              fields.Summary,
			Body:               body_,
			AcceptanceCriteria: acceptance,
			Labels:             fields.Labels,
			Meta:               meta,
		},
	}
	if fields.Status != nil {
		canonical.Ticket.Status = fields.Status.Name
	}
	if fields.Priority != nil {
		canonical.Ticket.Priority = fields.Priority.Name
	}
	return canonical, nil
}

// ParseWebhook implements provider.TicketProvider.
func (c *Client) ParseWebhook(body []byte) (*provider.TicketWebhookEvent, error) {
	return ParseWebhook(body)
}

// splitAcceptance separates an "## Acceptance Criteria" section from the
// description body, if present.
func splitAcceptance(description string) (body, acceptance string) {
	idx := strings.Index(description, acceptanceHeading)
	if idx < 0 {
		return strings.TrimSpace(description), ""
	}
	body = strings.TrimSpace(description[:idx])
	acceptance = strings.TrimSpace(strings.TrimPrefix(description[idx:], acceptanceHeading))
	return body, acceptance
}
