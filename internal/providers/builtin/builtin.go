// Package builtin registers every shipped provider implementation into a
// registry. This is the single place where (capability, name) pairs meet
// concrete constructors.
package builtin

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/flowforge-ai/flowforge/internal/provider"
	"github.com/flowforge-ai/flowforge/internal/providers/anthropic"
	"github.com/flowforge-ai/flowforge/internal/providers/engine"
	"github.com/flowforge-ai/flowforge/internal/providers/generic"
	"github.com/flowforge-ai/flowforge/internal/providers/github"
	"github.com/flowforge-ai/flowforge/internal/providers/jira"
	"github.com/flowforge-ai/flowforge/internal/providers/k8srunner"
	"github.com/flowforge-ai/flowforge/internal/providers/localrunner"
	"github.com/flowforge-ai/flowforge/internal/providers/openai"
	"github.com/flowforge-ai/flowforge/internal/providers/slacknotify"
)

// Registry builds a registry holding all built-in providers.
func Registry(logger zerolog.Logger) *provider.Registry {
	r := provider.NewRegistry()

	r.Register(provider.CapTicketProvider, "jira", provider.Factory{
		Family: "jira",
		Params: []provider.ParamSpec{
			{Name: "base_url", Required: true},
			{Name: "api_email"},
			{Name: "api_token"},
		},
		New: func(p provider.Params) (any, error) {
			auth := &jira.BasicAuth{Email: p.Get("api_email"), APIToken: p.Get("api_token")}
			return jira.NewClient(p.Get("base_url"), auth, logger), nil
		},
	})

	r.Register(provider.CapTicketProvider, "generic", provider.Factory{
		Family: "generic",
		New: func(p provider.Params) (any, error) {
			return generic.New(logger), nil
		},
	})

	r.Register(provider.CapVcsProvider, "github", provider.Factory{
		Family: "github",
		Params: []provider.ParamSpec{
			{Name: "app_id", Required: true},
			{Name: "installation_id", Required: true},
			{Name: "private_key_path", Required: true},
		},
		New: func(p provider.Params) (any, error) {
			keyPath := p.Get("private_key_path")
			if keyPath == "" {
				return github.NewUnconfigured(logger), nil
			}
			if _, err := os.Stat(keyPath); err != nil {
				// Placeholder or stale path: resolve to a client that
				// fails on use rather than failing resolution.
				logger.Warn().Str("path", keyPath).Msg("github private key not readable, operations will fail")
				return github.NewUnconfigured(logger), nil
			}
			return github.NewClient(p.GetInt64("app_id"), p.GetInt64("installation_id"), keyPath, logger)
		},
	})

	anthropicEngine := provider.Factory{
		Family: "anthropic",
		Params: []provider.ParamSpec{
			{Name: "api_key", Required: true},
			{Name: "model"},
		},
		New: func(p provider.Params) (any, error) {
			return engine.New(anthropic.NewClient(p.Get("api_key"), p.Get("model"), logger), logger), nil
		},
	}
	openaiEngine := provider.Factory{
		Family: "openai",
		Params: []provider.ParamSpec{
			{Name: "api_key", Required: true},
			{Name: "model"},
		},
		New: func(p provider.Params) (any, error) {
			return engine.New(openaiClient(p, logger), logger), nil
		},
	}
	for _, capability := range []provider.Capability{
		provider.CapPlanner, provider.CapImplementer, provider.CapReviewer,
	} {
		r.Register(capability, "anthropic", anthropicEngine)
		r.Register(capability, "openai", openaiEngine)
	}

	r.Register(provider.CapEmbeddings, "openai", provider.Factory{
		Family: "openai",
		Params: []provider.ParamSpec{
			{Name: "api_key", Required: true},
			{Name: "embed_model"},
		},
		New: func(p provider.Params) (any, error) {
			return openaiClient(p, logger), nil
		},
	})

	r.Register(provider.CapRunner, "kubernetes", provider.Factory{
		Family: "k8s",
		Params: []provider.ParamSpec{
			{Name: "kubeconfig_path"},
			{Name: "namespace", Default: "default"},
			{Name: "allowed_namespaces"},
			{Name: "image", Default: "flowforge/runner:latest"},
		},
		New: func(p provider.Params) (any, error) {
			return k8srunner.New(k8srunner.Config{
				KubeconfigPath:    p.Get("kubeconfig_path"),
				Namespace:         p.Get("namespace"),
				AllowedNamespaces: p.List("allowed_namespaces"),
				Image:             p.Get("image"),
			}, logger)
		},
	})

	r.Register(provider.CapRunner, "local", provider.Factory{
		Family: "local",
		Params: []provider.ParamSpec{{Name: "workdir"}},
		New: func(p provider.Params) (any, error) {
			return localrunner.New(p.Get("workdir"), logger), nil
		},
	})

	r.Register(provider.CapNotify, "slack", provider.Factory{
		Family: "slack",
		Params: []provider.ParamSpec{
			{Name: "bot_token", Required: true},
			{Name: "channel"},
			{Name: "allowed_channels"},
		},
		New: func(p provider.Params) (any, error) {
			return slacknotify.New(p.Get("bot_token"), p.Get("channel"), p.List("allowed_channels"), logger), nil
		},
	})

	return r
}

func openaiClient(p provider.Params, logger zerolog.Logger) *openai.Client {
	return openai.NewClient(p.Get("api_key"), p.Get("model"), p.Get("embed_model"), logger)
}
