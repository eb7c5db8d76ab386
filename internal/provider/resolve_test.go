package provider

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/flowforge/internal/config"
	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
)

// fakePlanner records which backing name and params it was built with.
type fakePlanner struct {
	name   string
	params Params
}

func (f *fakePlanner) Plan(context.Context, string) (*Plan, error) {
	return &Plan{Summary: f.name}, nil
}

func testRegistry() *Registry {
	r := NewRegistry()
	for _, name := range []string{"anthropic", "openai"} {
		n := name
		r.Register(CapPlanner, n, Factory{
			Family: n,
			Params: []ParamSpec{
				{Name: "api_key", Required: true},
				{Name: "model", Default: "default-model"},
				{Name: "base_url"},
				{Name: "org"},
			},
			New: func(p Params) (any, error) {
				return &fakePlanner{name: n, params: p}, nil
			},
		})
	}
	return r
}

func testSnapshot() Snapshot {
	return Snapshot{
		Defaults: map[string]string{"ai.planner": "openai"},
		Families: map[string]map[string]string{
			"openai": {"api_key": "sk-system"},
		},
	}
}

func newTestResolver() *Resolver {
	return NewResolver(testRegistry(), testSnapshot(), zerolog.Nop())
}

func TestResolve_SystemDefault(t *testing.T) {
	r := newTestResolver()

	binding, err := r.Resolve(nil, "ai.planner")
	require.NoError(t, err)
	assert.Equal(t, "openai", binding.Provider)
	assert.Equal(t, CapPlanner, binding.Capability)

	planner := binding.Instance.(*fakePlanner)
	assert.Equal(t, "sk-system", planner.params.Get("api_key"))
}

func TestResolve_ProjectOverrideWins(t *testing.T) {
	r := newTestResolver()
	project := &config.Project{
		ID: "acme",
		ProviderOverrides: map[string]any{
			"ai": map[string]any{"planner": "anthropic"},
		},
	}

	binding, err := r.Resolve(project, "ai.planner")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", binding.Provider)
}

func TestResolve_MalformedOverrideFallsBack(t *testing.T) {
	r := newTestResolver()

	// "ai" is a scalar, not a map — treated as no override.
	project := &config.Project{
		ID:                "acme",
		ProviderOverrides: map[string]any{"ai": "anthropic"},
	}
	binding, err := r.Resolve(project, "ai.planner")
	require.NoError(t, err)
	assert.Equal(t, "openai", binding.Provider)

	// Leaf exists but is not a string — also no override.
	project = &config.Project{
		ID: "acme",
		ProviderOverrides: map[string]any{
			"ai": map[string]any{"planner": map[string]any{"x": 1}},
		},
	}
	binding, err = r.Resolve(project, "ai.planner")
	require.NoError(t, err)
	assert.Equal(t, "openai", binding.Provider)
}

func TestResolve_UnknownCapability(t *testing.T) {
	r := newTestResolver()
	_, err := r.Resolve(nil, "espresso_machine")
	assert.ErrorIs(t, err, ferrors.ErrUnknownCapability)
}

func TestResolve_UnknownProviderName(t *testing.T) {
	r := newTestResolver()
	project := &config.Project{
		ID: "acme",
		ProviderOverrides: map[string]any{
			"ai": map[string]any{"planner": "skynet"},
		},
	}
	_, err := r.Resolve(project, "ai.planner")
	assert.ErrorIs(t, err, ferrors.ErrUnknownProvider)
}

func TestResolve_NoProviderConfigured(t *testing.T) {
	r := NewResolver(testRegistry(), Snapshot{Defaults: map[string]string{}}, zerolog.Nop())
	_, err := r.Resolve(nil, "ai.planner")
	assert.ErrorIs(t, err, ferrors.ErrNoProviderConfigured)
}

func TestResolve_ParamPriorityChain(t *testing.T) {
	r := newTestResolver()
	project := &config.Project{
		ID: "acme",
		ProviderOverrides: map[string]any{
			"config": map[string]any{
				"openai": map[string]any{"api_key": "sk-acme"},
			},
		},
	}

	binding, err := r.Resolve(project, "ai.planner")
	require.NoError(t, err)
	planner := binding.Instance.(*fakePlanner)

	// (a) project per-class config beats system family config.
	assert.Equal(t, "sk-acme", planner.params.Get("api_key"))
	// (c) declared default when neither config layer has a value.
	assert.Equal(t, "default-model", planner.params.Get("model"))
	// (d) semantic fallback by parameter name.
	assert.Equal(t, placeholderEndpoint, planner.params.Get("base_url"))
	// (e) empty value rather than failure.
	assert.Equal(t, "", planner.params.Get("org"))
}

func TestResolve_MissingCredentialsDoNotFail(t *testing.T) {
	// No family config, no overrides: every param degrades to a fallback.
	r := NewResolver(testRegistry(), Snapshot{
		Defaults: map[string]string{"ai.planner": "anthropic"},
	}, zerolog.Nop())

	binding, err := r.Resolve(nil, "ai.planner")
	require.NoError(t, err)
	planner := binding.Instance.(*fakePlanner)
	assert.Equal(t, placeholderCredential, planner.params.Get("api_key"))
}

func TestResolve_TypedHelper(t *testing.T) {
	r := newTestResolver()

	planner, err := r.Planner(nil)
	require.NoError(t, err)

	plan, err := planner.Plan(context.Background(), "do the thing")
	require.NoError(t, err)
	assert.Equal(t, "openai", plan.Summary)
}

func TestResolve_TypedHelperContractMismatch(t *testing.T) {
	r := NewRegistry()
	r.Register(CapNotify, "broken", Factory{
		New: func(Params) (any, error) { return "not a notifier", nil },
	})
	resolver := NewResolver(r, Snapshot{
		Defaults: map[string]string{"notify": "broken"},
	}, zerolog.Nop())

	_, err := resolver.Notifier(nil)
	require.Error(t, err)
	var ce *ferrors.ConstructionError
	assert.ErrorAs(t, err, &ce)
}

func TestResolve_ConstructionFailure(t *testing.T) {
	r := NewRegistry()
	r.Register(CapNotify, "flaky", Factory{
		New: func(Params) (any, error) { return nil, assert.AnError },
	})
	resolver := NewResolver(r, Snapshot{
		Defaults: map[string]string{"notify": "flaky"},
	}, zerolog.Nop())

	_, err := resolver.Resolve(nil, "notify")
	require.Error(t, err)
	var ce *ferrors.ConstructionError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, ce.Err, assert.AnError)
}

type fakeRecorder struct {
	events []string
}

func (f *fakeRecorder) RecordResolution(capability, source string) {
	f.events = append(f.events, capability+"/"+source)
}

func TestResolve_RecordsMetrics(t *testing.T) {
	rec := &fakeRecorder{}
	r := NewResolver(testRegistry(), testSnapshot(), zerolog.Nop()).WithMetrics(rec)

	_, err := r.Resolve(nil, "ai.planner")
	require.NoError(t, err)

	project := &config.Project{
		ID: "acme",
		ProviderOverrides: map[string]any{
			"ai": map[string]any{"planner": "anthropic"},
		},
	}
	_, err = r.Resolve(project, "ai.planner")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ai.planner/system-default",
		"ai.planner/project-override",
	}, rec.events)

	// Failed resolutions are not counted.
	_, err = r.Resolve(nil, "espresso_machine")
	require.Error(t, err)
	assert.Len(t, rec.events, 2)
}

func TestResolve_NoImplicitCaching(t *testing.T) {
	r := newTestResolver()

	a, err := r.Resolve(nil, "ai.planner")
	require.NoError(t, err)
	b, err := r.Resolve(nil, "ai.planner")
	require.NoError(t, err)
	assert.NotSame(t, a.Instance, b.Instance)
}
