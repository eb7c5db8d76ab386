// Package ingest receives ticket-system webhooks, authenticates them,
// normalizes payloads into canonical events, and commits ticket state before
// handing off to the workflow layer.
package ingest

import (
	"github.com/flowforge-ai/flowforge/internal/provider"
)

// Request is the transport-independent view of an inbound webhook: raw body
// plus header and query accessors. Adapters never see the HTTP framework.
type Request struct {
	Body   []byte
	header func(string) string
	query  func(string) string
}

// NewRequest builds a Request. Nil accessors read as empty.
func NewRequest(body []byte, header, query func(string) string) *Request {
	return &Request{Body: body, header: header, query: query}
}

// Header returns a request header value, or empty.
func (r *Request) Header(name string) string {
	if r.header == nil {
		return ""
	}
	return r.header(name)
}

// Query returns a query parameter value, or empty.
func (r *Request) Query(name string) string {
	if r.query == nil {
		return ""
	}
	return r.query(name)
}

// Adapter handles one external ticket system's webhook dialect.
type Adapter interface {
	// Source names the external system ("jira", "generic").
	Source() string
	// Authenticate verifies the request. Rejection happens before any
	// parsing or persistence.
	Authenticate(req *Request) error
	// Parse translates the payload into the canonical event.
	Parse(req *Request) (*provider.TicketWebhookEvent, error)
}
