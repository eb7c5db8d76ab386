// Package requestid correlates inbound webhooks with an ID that travels
// through context and is echoed back in the response headers.
package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header the ingest server echoes the ID in.
const Header = "X-Request-ID"

type contextKey int

const idKey contextKey = iota

// Generate produces a fresh correlation ID: a UUID without separators, which
// keeps log lines grep-friendly.
func Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Context attaches id to ctx.
func Context(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// From returns the ID attached to ctx, or "" when none is.
func From(ctx context.Context) string {
	id, _ := ctx.Value(idKey).(string)
	return id
}
