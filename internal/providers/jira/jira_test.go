package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
)

func setupTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(server.URL, &BasicAuth{Email: "bot@example.com", APIToken: "token"}, zerolog.Nop())
	client.SetHTTPClient(server.Client())
	return client, server
}

func TestBasicAuth_Apply(t *testing.T) {
	auth := &BasicAuth{Email: "user@example.com", APIToken: "token123"}
	req, _ := http.NewRequest("GET", "http://example.com", nil)
	require.NoError(t, auth.Apply(req))
	assert.Contains(t, req.Header.Get("Authorization"), "Basic ")
}

func TestClient_AddWorklog(t *testing.T) {
	var got worklogRequest
	client, _ := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/rest/api/3/issue/PLAT-1/worklog")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"100"}`))
	})

	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	err := client.AddWorklog(context.Background(), "PLAT-1", 90, started, "implement phase")
	require.NoError(t, err)
	assert.Equal(t, int64(90), got.TimeSpentSeconds)
	require.NotNil(t, got.Comment)
	assert.Equal(t, "implement phase", got.Comment.Content[0].Content[0].Text)
}

func TestClient_AddWorklog_RoundsUpSubMinute(t *testing.T) {
	var got worklogRequest
	client, _ := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	})

	err := client.AddWorklog(context.Background(), "PLAT-1", 12, time.Now(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.TimeSpentSeconds)
	assert.Nil(t, got.Comment)
}

func TestClient_AddWorklog_APIError(t *testing.T) {
	client, _ := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.AddWorklog(context.Background(), "PLAT-1", 120, time.Now(), "")
	require.Error(t, err)
	var apiErr *ferrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)
	assert.True(t, ferrors.IsRetryable(err))
}

const jiraPayload = `{
	"webhookEvent": "jira:issue_updated",
	"issue_event_type_name": "issue_generic",
	"issue": {
		"id": "10001",
		"key": "PLAT-42",
		"fields": {
			"summary": "Fix the flaky deploy",
			"description": "The deploy fails intermittently.\n\n## Acceptance Criteria\n- deploy succeeds three times in a row",
			"status": {"name": "In Progress"},
			"priority": {"name": "High"},
			"labels": ["flowforge", "infra"],
			"assignee": {"accountId": "a1", "displayName": "Alice"},
			"issuetype": {"name": "Bug"}
		}
	}
}`

func TestParseWebhook_FullPayload(t *testing.T) {
	ev, err := ParseWebhook([]byte(jiraPayload))
	require.NoError(t, err)

	assert.Equal(t, "PLAT-42", ev.ExternalKey)
	assert.Equal(t, "jira:issue_updated", ev.EventType)
	assert.Equal(t, "jira", ev.Ticket.Source)
	assert.Equal(t, "Fix the flaky deploy", ev.Ticket.Title)
	assert.Equal(t, "The deploy fails intermittently.", ev.Ticket.Body)
	assert.Equal(t, "- deploy succeeds three times in a row", ev.Ticket.AcceptanceCriteria)
	assert.Equal(t, "In Progress", ev.Ticket.Status)
	assert.Equal(t, "High", ev.Ticket.Priority)
	assert.Equal(t, []string{"flowforge", "infra"}, ev.Ticket.Labels)
	assert.Equal(t, "Alice", ev.Ticket.Meta["assignee"])
	assert.Equal(t, "Bug", ev.Ticket.Meta["issue_type"])
}

func TestParseWebhook_MinimalPayload(t *testing.T) {
	minimal := `{"webhookEvent":"jira:issue_created","issue":{"key":"PLAT-1","fields":{"summary":"hi"}}}`
	ev, err := ParseWebhook([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, "PLAT-1", ev.ExternalKey)
	assert.Empty(t, ev.Ticket.Status)
	assert.Empty(t, ev.Ticket.Priority)
	assert.Empty(t, ev.Ticket.Meta["assignee"])
}

func TestParseWebhook_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{{{`,
		"no event type": `{"issue":{"key":"PLAT-1"}}`,
		"no issue":      `{"webhookEvent":"jira:issue_created"}`,
		"no key":        `{"webhookEvent":"jira:issue_created","issue":{"fields":{}}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWebhook([]byte(payload))
			assert.ErrorIs(t, err, ferrors.ErrValidation)
		})
	}
}
