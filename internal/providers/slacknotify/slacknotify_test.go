package slacknotify

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/flowforge/internal/provider"
)

type fakeAPI struct {
	channel string
	calls   int
	err     error
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.calls++
	f.channel = channelID
	return channelID, "123.456", f.err
}

func TestNotify(t *testing.T) {
	api := &fakeAPI{}
	n := NewWithAPI(api, "#deploys", nil, zerolog.Nop())

	err := n.Notify(context.Background(), provider.Notification{Title: "PR opened", Body: "details"})
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls)
	assert.Equal(t, "#deploys", api.channel)
}

func TestNotify_AllowlistBlocks(t *testing.T) {
	api := &fakeAPI{}
	n := NewWithAPI(api, "#random", []string{"#deploys", "#alerts"}, zerolog.Nop())

	err := n.Notify(context.Background(), provider.Notification{Title: "hi"})
	assert.ErrorContains(t, err, "allowlist")
	assert.Zero(t, api.calls)
}

func TestNotify_AllowlistPermits(t *testing.T) {
	api := &fakeAPI{}
	n := NewWithAPI(api, "#alerts", []string{"#deploys", "#alerts"}, zerolog.Nop())

	err := n.Notify(context.Background(), provider.Notification{Title: "hi"})
	assert.NoError(t, err)
	assert.Equal(t, 1, api.calls)
}

func TestNotify_NoChannel(t *testing.T) {
	n := NewWithAPI(&fakeAPI{}, "", nil, zerolog.Nop())
	err := n.Notify(context.Background(), provider.Notification{Title: "hi"})
	assert.ErrorContains(t, err, "no slack channel")
}

func TestNotify_APIError(t *testing.T) {
	api := &fakeAPI{err: assert.AnError}
	n := NewWithAPI(api, "#deploys", nil, zerolog.Nop())

	err := n.Notify(context.Background(), provider.Notification{Title: "hi"})
	assert.ErrorIs(t, err, assert.AnError)
}
