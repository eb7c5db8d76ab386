package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "jira", cfg.DefaultTicketProvider)
	assert.Equal(t, "github", cfg.DefaultVcsProvider)
	assert.Equal(t, "anthropic", cfg.DefaultPlanner)
	assert.Equal(t, "openai", cfg.DefaultEmbeddings)
	assert.Equal(t, 5*time.Minute, cfg.WorklogSyncInterval)
	assert.False(t, cfg.WorklogPushImmediate)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overridden(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DEFAULT_AI_PLANNER", "openai")
	t.Setenv("JIRA_BASE_URL", "https://test.atlassian.net")
	t.Setenv("GITHUB_APP_ID", "12345")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "openai", cfg.DefaultPlanner)
	assert.Equal(t, "https://test.atlassian.net", cfg.JiraBaseURL)
	assert.Equal(t, int64(12345), cfg.GitHubAppID)
}

func TestCapabilityDefaults_CoversAllCapabilities(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)

	defaults := cfg.CapabilityDefaults()
	for _, key := range []string{
		"ticket_provider", "vcs_provider", "ai.planner", "ai.implement",
		"ai.review", "embeddings", "runner", "notify",
	} {
		assert.NotEmpty(t, defaults[key], "capability %s should have a default", key)
	}
}

func TestFamilyConfig_SkipsZeroGitHubIDs(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)

	fam := cfg.FamilyConfig()
	assert.Empty(t, fam["github"]["app_id"])
	assert.Equal(t, "claude-sonnet-4-5", fam["anthropic"]["model"])
	assert.Equal(t, "default", fam["k8s"]["namespace"])
}

func TestSlackAllowedChannelList(t *testing.T) {
	cfg := &Config{SlackAllowedChannels: "C123, C456 ,,C789"}
	assert.Equal(t, []string{"C123", "C456", "C789"}, cfg.SlackAllowedChannelList())

	empty := &Config{}
	assert.Nil(t, empty.SlackAllowedChannelList())
}
