package provider

import (
	"fmt"
	"strings"

	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
)

// Capability is one abstract integration role with swappable backends.
type Capability string

// The fixed capability set. Each maps 1:1 to a contract interface.
const (
	CapTicketProvider Capability = "ticket_provider"
	CapVcsProvider    Capability = "vcs_provider"
	CapPlanner        Capability = "ai.planner"
	CapImplementer    Capability = "ai.implement"
	CapReviewer       Capability = "ai.review"
	CapEmbeddings     Capability = "embeddings"
	CapRunner         Capability = "runner"
	CapNotify         Capability = "notify"
)

// Capabilities lists every known capability.
func Capabilities() []Capability {
	return []Capability{
		CapTicketProvider, CapVcsProvider, CapPlanner, CapImplementer,
		CapReviewer, CapEmbeddings, CapRunner, CapNotify,
	}
}

// ParseCapability validates a capability key.
func ParseCapability(key string) (Capability, error) {
	c := Capability(key)
	for _, known := range Capabilities() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ferrors.ErrUnknownCapability, key)
}

// ParamSpec declares one constructor parameter of a provider implementation.
type ParamSpec struct {
	Name     string
	Default  string
	Required bool // documented intent only; resolution still degrades to fallbacks
}

// Params carries resolved constructor parameters.
type Params map[string]string

// Get returns a parameter value, or empty string.
func (p Params) Get(name string) string { return p[name] }

// GetInt64 parses a parameter as int64, returning 0 on absence or bad input.
func (p Params) GetInt64(name string) int64 {
	var v int64
	_, err := fmt.Sscanf(p[name], "%d", &v)
	if err != nil {
		return 0
	}
	return v
}

// List splits a comma-separated parameter into trimmed entries.
func (p Params) List(name string) []string {
	raw := p[name]
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Factory builds a concrete provider instance from resolved parameters.
// The returned value must implement the contract interface of every
// capability the factory is registered under.
type Factory struct {
	// Family names the configuration group this implementation reads
	// (system family config and per-project "config" overrides).
	Family string
	Params []ParamSpec
	New    func(p Params) (any, error)
}

// Registry is the compile-time-checked mapping from (capability, provider
// name) to a factory. It is populated at startup and read-only afterwards.
type Registry struct {
	factories map[Capability]map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Capability]map[string]Factory)}
}

// Register adds a factory for a (capability, name) pair. Panics on duplicate
// registration: that is a programming error, not a runtime condition.
func (r *Registry) Register(cap Capability, name string, f Factory) {
	byName, ok := r.factories[cap]
	if !ok {
		byName = make(map[string]Factory)
		r.factories[cap] = byName
	}
	if _, dup := byName[name]; dup {
		panic(fmt.Sprintf("provider %q already registered for capability %q", name, cap))
	}
	byName[name] = f
}

// Lookup returns the factory for a (capability, name) pair.
func (r *Registry) Lookup(cap Capability, name string) (Factory, error) {
	byName, ok := r.factories[cap]
	if !ok {
		return Factory{}, fmt.Errorf("%w: %q", ferrors.ErrUnknownCapability, cap)
	}
	f, ok := byName[name]
	if !ok {
		return Factory{}, fmt.Errorf("%w: %q for capability %q", ferrors.ErrUnknownProvider, name, cap)
	}
	return f, nil
}

// Names returns the registered provider names for a capability.
func (r *Registry) Names(cap Capability) []string {
	byName := r.factories[cap]
	out := make([]string, 0, len(byName))
	for n := range byName {
		out = append(out, n)
	}
	return out
}

// Validate checks a capability→name default mapping against the registry so
// misconfigured names fail fast at boot rather than per-request. Empty
// defaults are allowed: the capability then has no system-wide backend.
func (r *Registry) Validate(defaults map[string]string) error {
	for key, name := range defaults {
		cap, err := ParseCapability(key)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		if _, err := r.Lookup(cap, name); err != nil {
			return fmt.Errorf("default for %s: %w", cap, err)
		}
	}
	return nil
}
