package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all system-wide configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`
	DBPath      string `envconfig:"DB_PATH" default:"flowforge.db"`

	// Projects file (per-project provider overrides)
	ProjectsFile string `envconfig:"PROJECTS_FILE" default:"projects.yaml"`

	// Capability defaults: which named provider backs each capability when a
	// project does not override it.
	DefaultTicketProvider string `envconfig:"DEFAULT_TICKET_PROVIDER" default:"jira"`
	DefaultVcsProvider    string `envconfig:"DEFAULT_VCS_PROVIDER" default:"github"`
	DefaultPlanner        string `envconfig:"DEFAULT_AI_PLANNER" default:"anthropic"`
	DefaultImplementer    string `envconfig:"DEFAULT_AI_IMPLEMENTER" default:"anthropic"`
	DefaultReviewer       string `envconfig:"DEFAULT_AI_REVIEWER" default:"anthropic"`
	DefaultEmbeddings     string `envconfig:"DEFAULT_EMBEDDINGS" default:"openai"`
	DefaultRunner         string `envconfig:"DEFAULT_RUNNER" default:"local"`
	DefaultNotify         string `envconfig:"DEFAULT_NOTIFY" default:"slack"`

	// Jira (optional — webhook auth rejects in production without a secret)
	JiraBaseURL       string `envconfig:"JIRA_BASE_URL"`
	JiraAPIEmail      string `envconfig:"JIRA_API_EMAIL"`
	JiraAPIToken      string `envconfig:"JIRA_API_TOKEN"`
	JiraWebhookSecret string `envconfig:"JIRA_WEBHOOK_SECRET"`

	// Generic webhook tracker
	GenericWebhookToken string `envconfig:"GENERIC_WEBHOOK_TOKEN"`
	GenericJWTSecret    string `envconfig:"GENERIC_JWT_SECRET"`

	// GitHub App
	GitHubAppID          int64  `envconfig:"GITHUB_APP_ID"`
	GitHubInstallationID int64  `envconfig:"GITHUB_INSTALLATION_ID"`
	GitHubPrivateKeyPath string `envconfig:"GITHUB_PRIVATE_KEY_PATH"`

	// AI engines
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel   string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel      string `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
	OpenAIEmbedModel string `envconfig:"OPENAI_EMBED_MODEL" default:"text-embedding-3-small"`

	// Slack notifications
	SlackBotToken        string `envconfig:"SLACK_BOT_TOKEN"`
	SlackDefaultChannel  string `envconfig:"SLACK_DEFAULT_CHANNEL" default:"#flowforge"`
	SlackAllowedChannels string `envconfig:"SLACK_ALLOWED_CHANNELS"` // comma-separated, fail-closed if empty

	// Runners
	KubeconfigPath     string `envconfig:"KUBECONFIG_PATH"`
	RunnerNamespace    string `envconfig:"RUNNER_NAMESPACE" default:"default"`
	RunnerAllowedNS    string `envconfig:"RUNNER_ALLOWED_NAMESPACES"` // comma-separated
	RunnerImage        string `envconfig:"RUNNER_IMAGE" default:"flowforge/runner:latest"`
	LocalRunnerWorkdir string `envconfig:"LOCAL_RUNNER_WORKDIR"`

	// Worklog tracking
	WorklogPushImmediate bool          `envconfig:"WORKLOG_PUSH_IMMEDIATE" default:"false"`
	WorklogSyncInterval  time.Duration `envconfig:"WORKLOG_SYNC_INTERVAL" default:"5m"`
	WorklogActor         string        `envconfig:"WORKLOG_ACTOR" default:"flowforge"`

	// Workflow dispatch
	DispatchWorkers   int `envconfig:"DISPATCH_WORKERS" default:"4"`
	DispatchQueueSize int `envconfig:"DISPATCH_QUEUE_SIZE" default:"256"`
}

// IsProduction returns true when running in a production posture.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// SlackAllowedChannelList returns the parsed list of allowed Slack channel IDs.
// Returns nil if not configured (fail-closed — no channels allowed).
func (c *Config) SlackAllowedChannelList() []string {
	return splitList(c.SlackAllowedChannels)
}

// RunnerAllowedNamespaces returns the parsed namespace allowlist.
func (c *Config) RunnerAllowedNamespaces() []string {
	return splitList(c.RunnerAllowedNS)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CapabilityDefaults returns the capability-key → provider-name default
// mapping. An empty value means the capability has no system default.
func (c *Config) CapabilityDefaults() map[string]string {
	return map[string]string{
		"ticket_provider": c.DefaultTicketProvider,
		"vcs_provider":    c.DefaultVcsProvider,
		"ai.planner":      c.DefaultPlanner,
		"ai.implement":    c.DefaultImplementer,
		"ai.review":       c.DefaultReviewer,
		"embeddings":      c.DefaultEmbeddings,
		"runner":          c.DefaultRunner,
		"notify":          c.DefaultNotify,
	}
}

// FamilyConfig returns per-provider-family configuration groups keyed by
// family name. Values feed the resolver's parameter chain; empty entries are
// skipped there so declared defaults and semantic fallbacks still apply.
func (c *Config) FamilyConfig() map[string]map[string]string {
	return map[string]map[string]string{
		"jira": {
			"base_url":       c.JiraBaseURL,
			"api_email":      c.JiraAPIEmail,
			"api_token":      c.JiraAPIToken,
			"webhook_secret": c.JiraWebhookSecret,
		},
		"generic": {
			"webhook_token": c.GenericWebhookToken,
			"jwt_secret":    c.GenericJWTSecret,
		},
		"github": {
			"app_id":           nonZero(c.GitHubAppID),
			"installation_id":  nonZero(c.GitHubInstallationID),
			"private_key_path": c.GitHubPrivateKeyPath,
		},
		"anthropic": {
			"api_key": c.AnthropicAPIKey,
			"model":   c.AnthropicModel,
		},
		"openai": {
			"api_key":     c.OpenAIAPIKey,
			"model":       c.OpenAIModel,
			"embed_model": c.OpenAIEmbedModel,
		},
		"slack": {
			"bot_token":        c.SlackBotToken,
			"channel":          c.SlackDefaultChannel,
			"allowed_channels": c.SlackAllowedChannels,
		},
		"k8s": {
			"kubeconfig_path":    c.KubeconfigPath,
			"namespace":          c.RunnerNamespace,
			"allowed_namespaces": c.RunnerAllowedNS,
			"image":              c.RunnerImage,
		},
		"local": {
			"workdir": c.LocalRunnerWorkdir,
		},
	}
}

func nonZero(v int64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
