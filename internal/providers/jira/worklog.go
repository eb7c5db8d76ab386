package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// jiraTimestamp is the format Jira expects for worklog start times.
const jiraTimestamp = "2006-01-02T15:04:05.000-0700"

type worklogRequest struct {
	TimeSpentSeconds int64   `json:"timeSpentSeconds"`
	Started          string  `json:"started"`
	Comment          *adfDoc `json:"comment,omitempty"`
}

// adfDoc is a minimal Atlassian Document Format body for plain-text comments.
type adfDoc struct {
	Type    string    `json:"type"`
	Version int       `json:"version"`
	Content []adfNode `json:"content"`
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

func plainTextADF(text string) *adfDoc {
	if text == "" {
		return nil
	}
	return &adfDoc{
		Type:    "doc",
		Version: 1,
		Content: []adfNode{{
			Type:    "paragraph",
			Content: []adfNode{{Type: "text", Text: text}},
		}},
	}
}

// AddWorklog records time spent against an issue. Jira rejects worklogs under
// one minute, so sub-minute spans are rounded up.
func (c *Client) AddWorklog(ctx context.Context, externalKey string, seconds int64, startedAt time.Time, notes string) error {
	if seconds < 60 {
		seconds = 60
	}

	body, err := json.Marshal(worklogRequest{
		TimeSpentSeconds: seconds,
		Started:          startedAt.Format(jiraTimestamp),
		Comment:          plainTextADF(notes),
	})
	if err != nil {
		return fmt.Errorf("marshaling worklog: %w", err)
	}

	resp, err := c.do(ctx, "POST", fmt.Sprintf("/rest/api/3/issue/%s/worklog", externalKey), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("adding worklog to %s: %w", externalKey, err)
	}
	resp.Body.Close()

	c.logger.Info().
		Str("key", externalKey).
		Int64("seconds", seconds).
		Msg("worklog pushed")
	return nil
}
