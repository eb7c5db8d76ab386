package provider

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flowforge-ai/flowforge/internal/config"
	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
)

// Placeholder values supplied by the semantic fallback so stub backends stay
// constructible in development without real credentials.
const (
	placeholderCredential = "dev-placeholder-credential"
	placeholderEndpoint   = "http://localhost:9990"
)

// Snapshot is the immutable configuration state a resolution is a pure
// function of: system defaults plus provider-family config groups.
type Snapshot struct {
	Defaults map[string]string            // capability key → provider name
	Families map[string]map[string]string // family → param → value
}

// SnapshotFromConfig builds a Snapshot from the loaded system configuration.
func SnapshotFromConfig(cfg *config.Config) Snapshot {
	return Snapshot{
		Defaults: cfg.CapabilityDefaults(),
		Families: cfg.FamilyConfig(),
	}
}

// Binding is the result of one resolution. It is never persisted or cached.
type Binding struct {
	Capability Capability
	Provider   string
	Instance   any
}

// ResolutionRecorder receives one event per successful resolution.
// Satisfied by *metrics.Metrics.
type ResolutionRecorder interface {
	RecordResolution(capability, source string)
}

// Resolver picks and constructs the concrete backend for a (project,
// capability) pair. It is stateless and safe for concurrent use.
type Resolver struct {
	registry *Registry
	snapshot Snapshot
	recorder ResolutionRecorder
	logger   zerolog.Logger
}

// NewResolver creates a resolver over a validated registry and a config
// snapshot.
func NewResolver(registry *Registry, snapshot Snapshot, logger zerolog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		snapshot: snapshot,
		logger:   logger.With().Str("component", "resolver").Logger(),
	}
}

// WithMetrics attaches a resolution counter and returns the resolver.
func (r *Resolver) WithMetrics(rec ResolutionRecorder) *Resolver {
	r.recorder = rec
	return r
}

// Resolve determines the provider name for the capability (project override
// first, then system default), constructs the implementation with resolved
// parameters, and returns the binding. It fails only for an unknown
// capability, an unknown provider name, or a construction error — never for
// missing optional configuration.
func (r *Resolver) Resolve(project *config.Project, key string) (*Binding, error) {
	capability, err := ParseCapability(key)
	if err != nil {
		return nil, err
	}

	name, source := r.providerName(project, capability)
	if name == "" {
		return nil, fmt.Errorf("%w: capability %q, project %q",
			ferrors.ErrNoProviderConfigured, capability, projectID(project))
	}

	factory, err := r.registry.Lookup(capability, name)
	if err != nil {
		return nil, err
	}

	params := r.resolveParams(project, factory)

	instance, err := factory.New(params)
	if err != nil {
		return nil, &ferrors.ConstructionError{
			Capability: string(capability),
			Provider:   name,
			Err:        err,
		}
	}

	if r.recorder != nil {
		r.recorder.RecordResolution(string(capability), source)
	}
	r.logger.Info().
		Str("project", projectID(project)).
		Str("capability", string(capability)).
		Str("provider", name).
		Str("source", source).
		Msg("resolved provider")

	return &Binding{Capability: capability, Provider: name, Instance: instance}, nil
}

// providerName walks the project's overrides by splitting the capability key
// on "." and descending; any missing or non-map segment means "no override".
func (r *Resolver) providerName(project *config.Project, capability Capability) (name, source string) {
	if project != nil && project.ProviderOverrides != nil {
		if v, ok := lookupDotted(project.ProviderOverrides, string(capability)); ok {
			if s, ok := v.(string); ok && s != "" {
				return s, "project-override"
			}
		}
	}
	return r.snapshot.Defaults[string(capability)], "system-default"
}

func lookupDotted(m map[string]any, key string) (any, bool) {
	segments := strings.Split(key, ".")
	var current any = m
	for _, seg := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// resolveParams fills each declared parameter from, in priority order:
// project per-class override config, system family config, declared default,
// semantic fallback by parameter name, empty string.
func (r *Resolver) resolveParams(project *config.Project, factory Factory) Params {
	override := project.OverrideConfig(factory.Family)
	family := r.snapshot.Families[factory.Family]

	params := make(Params, len(factory.Params))
	for _, spec := range factory.Params {
		if v, ok := override[spec.Name]; ok {
			if s := stringify(v); s != "" {
				params[spec.Name] = s
				continue
			}
		}
		if v := family[spec.Name]; v != "" {
			params[spec.Name] = v
			continue
		}
		if spec.Default != "" {
			params[spec.Name] = spec.Default
			continue
		}
		params[spec.Name] = semanticFallback(spec.Name)
	}
	return params
}

// semanticFallback supplies a usable stand-in keyed by what the parameter
// name suggests it is. Anything unrecognized resolves to empty.
func semanticFallback(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "token"), strings.Contains(n, "key"), strings.Contains(n, "secret"):
		return placeholderCredential
	case strings.Contains(n, "url"), strings.Contains(n, "endpoint"):
		return placeholderEndpoint
	default:
		return ""
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func projectID(p *config.Project) string {
	if p == nil {
		return ""
	}
	return p.ID
}

// Typed resolution helpers. Each asserts the constructed instance to the
// capability's contract; a mismatch is a registration bug surfaced as a
// construction failure.

func (r *Resolver) TicketProvider(project *config.Project) (TicketProvider, error) {
	return resolveAs[TicketProvider](r, project, CapTicketProvider)
}

func (r *Resolver) VcsProvider(project *config.Project) (VcsProvider, error) {
	return resolveAs[VcsProvider](r, project, CapVcsProvider)
}

func (r *Resolver) Planner(project *config.Project) (Planner, error) {
	return resolveAs[Planner](r, project, CapPlanner)
}

func (r *Resolver) Implementer(project *config.Project) (Implementer, error) {
	return resolveAs[Implementer](r, project, CapImplementer)
}

func (r *Resolver) Reviewer(project *config.Project) (Reviewer, error) {
	return resolveAs[Reviewer](r, project, CapReviewer)
}

func (r *Resolver) Embeddings(project *config.Project) (EmbeddingProvider, error) {
	return resolveAs[EmbeddingProvider](r, project, CapEmbeddings)
}

func (r *Resolver) Runner(project *config.Project) (Runner, error) {
	return resolveAs[Runner](r, project, CapRunner)
}

func (r *Resolver) Notifier(project *config.Project) (NotificationChannel, error) {
	return resolveAs[NotificationChannel](r, project, CapNotify)
}

func resolveAs[T any](r *Resolver, project *config.Project, capability Capability) (T, error) {
	var zero T
	binding, err := r.Resolve(project, string(capability))
	if err != nil {
		return zero, err
	}
	typed, ok := binding.Instance.(T)
	if !ok {
		return zero, &ferrors.ConstructionError{
			Capability: string(capability),
			Provider:   binding.Provider,
			Err:        fmt.Errorf("instance %T does not implement the %s contract", binding.Instance, capability),
		}
	}
	return typed, nil
}
