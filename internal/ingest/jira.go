package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
	"github.com/flowforge-ai/flowforge/internal/provider"
	"github.com/flowforge-ai/flowforge/internal/providers/jira"
)

// signatureHeader carries the HMAC of the raw body. Jira automation and most
// proxies send either "sha256=<hex>" or the bare hex digest.
const signatureHeader = "X-Hub-Signature"

// JiraAdapter authenticates Jira webhooks with a shared-secret HMAC.
type JiraAdapter struct {
	secret     string
	production bool
	logger     zerolog.Logger
}

// NewJiraAdapter creates the adapter. An empty secret disables signature
// checking outside production; in production it rejects everything.
func NewJiraAdapter(secret string, production bool, logger zerolog.Logger) *JiraAdapter {
	return &JiraAdapter{
		secret:     secret,
		production: production,
		logger:     logger.With().Str("component", "ingest_jira").Logger(),
	}
}

// Source implements Adapter.
func (a *JiraAdapter) Source() string { return "jira" }

// Authenticate verifies HMAC-SHA256(secret, body) against the signature
// header in constant time.
func (a *JiraAdapter) Authenticate(req *Request) error {
	if a.secret == "" {
		if a.production {
			return fmt.Errorf("%w: no jira webhook secret configured in production", ferrors.ErrAuthFailure)
		}
		a.logger.Warn().Msg("jira webhook accepted WITHOUT signature verification: no secret configured")
		return nil
	}

	sig := strings.TrimSpace(req.Header(signatureHeader))
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ferrors.ErrAuthFailure, signatureHeader)
	}
	sig = strings.ToLower(strings.TrimPrefix(sig, "sha256="))

	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write(req.Body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("%w: signature mismatch", ferrors.ErrAuthFailure)
	}
	return nil
}

// Parse implements Adapter.
func (a *JiraAdapter) Parse(req *Request) (*provider.TicketWebhookEvent, error) {
	return jira.ParseWebhook(req.Body)
}
